package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/engine"
	"github.com/sceneloom/costumier/internal/simulate"
	"github.com/sceneloom/costumier/internal/store"
)

// maxBodyBytes bounds request bodies; settings documents and simulation
// texts are small.
const maxBodyBytes = 1 << 20

// handleGetSettings serves the settings bundle as a YAML document, the
// same shape the config file and the store use.
func (s *Server) handleGetSettings(w http.ResponseWriter, _ *http.Request) {
	doc, err := yaml.Marshal(s.engine.Settings())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode settings")
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

// handlePutSettings replaces the settings bundle. JSON bodies are treated
// as host records in any historical schema version and migrated; YAML
// bodies must be the native shape. The new bundle is applied to the
// engine and persisted even when its active profile fails to compile --
// detection stays disabled until a corrected version arrives, and the
// compile error is reported in the response.
func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	var settings *config.Settings
	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		var raw map[string]any
		if err := json.Unmarshal(body, &raw); err != nil {
			writeError(w, http.StatusBadRequest, "decode json: "+err.Error())
			return
		}
		settings, err = config.MigrateSettings(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
	} else {
		settings = &config.Settings{}
		dec := yaml.NewDecoder(bytes.NewReader(body))
		dec.KnownFields(true)
		if err := dec.Decode(settings); err != nil {
			writeError(w, http.StatusBadRequest, "decode yaml: "+err.Error())
			return
		}
		for _, p := range settings.Profiles {
			p.Normalize()
		}
	}

	compileErr := s.engine.ApplySettings(settings)
	if err := s.store.SaveSettings(r.Context(), settings); err != nil {
		s.log.Error("persist settings", "err", err)
		writeError(w, http.StatusInternalServerError, "persist settings")
		return
	}

	resp := map[string]any{"applied": true}
	if compileErr != nil {
		resp["compile_error"] = compileErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSceneTop serves the current scene's top characters. The n query
// parameter is clamped by the engine.
func (s *Server) handleSceneTop(w http.ResponseWriter, r *http.Request) {
	n := 4
	if raw := r.URL.Query().Get("n"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "n must be an integer")
			return
		}
		n = v
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"top":    s.engine.TopCharacters(n),
		"roster": s.engine.SceneNames(),
	})
}

func (s *Server) handleLastStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mentions": s.engine.LastMessageStats(),
	})
}

func (s *Server) handleRecentSwitches(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = v
	}
	events, err := s.store.RecentSwitches(r.Context(), limit)
	if err != nil {
		s.log.Error("load switch history", "err", err)
		writeError(w, http.StatusInternalServerError, "load switch history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"switches": events})
}

// simulateRequest is the body of POST /v1/simulate. When Profile is empty
// the active profile is used.
type simulateRequest struct {
	Text    string `json:"text"`
	Profile string `json:"profile,omitempty"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	settings := s.engine.Settings()
	p := settings.Active()
	if req.Profile != "" {
		p = settings.Profiles[req.Profile]
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "no such profile")
		return
	}

	report, err := simulate.Run(r.Context(), p, req.Text)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// switchRequest is the body of POST /v1/switch and POST /v1/lock.
type switchRequest struct {
	Trigger string `json:"trigger,omitempty"`
	Name    string `json:"name,omitempty"`
}

// handleSwitch resolves a manual trigger by name or alias and issues the
// switch immediately.
func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}

	ev, err := s.engine.TriggerByName(r.Context(), req.Trigger)
	switch {
	case errors.Is(err, engine.ErrNoTrigger):
		writeError(w, http.StatusNotFound, "no trigger named "+strconv.Quote(req.Trigger))
		return
	case errors.Is(err, engine.ErrDisabled):
		writeError(w, http.StatusConflict, "switching is disabled")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.recordEvent(r.Context(), &ev)
	writeJSON(w, http.StatusOK, ev)
}

// handleLock pins a character's outfit and suspends automatic switching.
func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	ev, err := s.engine.Lock(r.Context(), req.Name)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	s.recordEvent(r.Context(), &ev)
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUnlock(w http.ResponseWriter, _ *http.Request) {
	s.engine.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetLock(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"locked": s.engine.Locked()})
}

func (s *Server) handleReset(w http.ResponseWriter, _ *http.Request) {
	s.engine.ResetChat()
	w.WriteHeader(http.StatusNoContent)
}

type enabledRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req enabledRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decode body: "+err.Error())
		return
	}
	s.engine.SetEnabled(req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

// recordEvent appends a switch outcome to the audit log. History is best
// effort; a store failure never fails the request that caused it.
func (s *Server) recordEvent(ctx context.Context, ev *engine.Event) {
	if ev == nil || ev.Type != "switch" {
		return
	}
	err := s.store.RecordSwitch(ctx, store.SwitchEvent{
		Session: ev.Session,
		Name:    ev.Name,
		Folder:  ev.Folder,
		Reason:  ev.Reason,
	})
	if err != nil {
		s.log.Warn("record switch event", "err", err)
	}
}
