// Package server exposes the engine over HTTP: a REST surface for
// settings, scene queries, manual switches, and simulation, plus the
// websocket stream endpoint the host feeds generation tokens into.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/engine"
	"github.com/sceneloom/costumier/internal/health"
	"github.com/sceneloom/costumier/internal/observe"
	"github.com/sceneloom/costumier/internal/store"
)

// Server binds the engine, the settings store, and the stream hub to an
// HTTP router.
type Server struct {
	engine  *engine.Engine
	store   store.Store
	hub     *Hub
	metrics *observe.Metrics
	log     *slog.Logger
	cfg     config.ServerConfig
}

// New builds a Server. hub must be the same hub whose Switch method backs
// the engine's switch command, so that stream clients receive the
// commands their tokens produce.
func New(eng *engine.Engine, st store.Store, hub *Hub, cfg config.ServerConfig, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		engine:  eng,
		store:   st,
		hub:     hub,
		metrics: observe.DefaultMetrics(),
		log:     log,
		cfg:     cfg,
	}
}

// Router assembles the chi router with middleware, probes, metrics, the
// REST surface, and the websocket stream endpoint.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe.Middleware(s.metrics))

	health.New(
		health.StoreChecker(s.store.Ping),
		health.ProfileChecker(s.engine.CompileErr),
	).Register(r)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/settings", s.handleGetSettings)
		r.Get("/scene/top", s.handleSceneTop)
		r.Get("/messages/last/stats", s.handleLastStats)
		r.Get("/switches", s.handleRecentSwitches)
		r.Get("/lock", s.handleGetLock)

		mutating := r
		if s.cfg.RateLimitRPS > 0 {
			mutating = r.With(RateLimit(s.cfg.RateLimitRPS, s.cfg.RateLimitBurst))
		}
		mutating.Put("/settings", s.handlePutSettings)
		mutating.Post("/simulate", s.handleSimulate)
		mutating.Post("/switch", s.handleSwitch)
		mutating.Post("/lock", s.handleLock)
		mutating.Delete("/lock", s.handleUnlock)
		mutating.Post("/reset", s.handleReset)
		mutating.Put("/enabled", s.handleSetEnabled)

		r.Get("/stream", s.handleStream)
	})

	return r
}

// errorBody is the JSON error envelope shared by every handler.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}
