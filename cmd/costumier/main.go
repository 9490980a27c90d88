// Command costumier is the speaker-attribution server: it watches
// streaming chat generations for character mentions and drives costume
// switches on the connected host.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/engine"
	"github.com/sceneloom/costumier/internal/observe"
	"github.com/sceneloom/costumier/internal/resilience"
	"github.com/sceneloom/costumier/internal/server"
	"github.com/sceneloom/costumier/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "costumier: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "costumier: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("costumier starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		slog.Error("failed to initialise metrics", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownMetrics(sctx); err != nil {
			slog.Warn("metrics shutdown error", "err", err)
		}
	}()

	st, err := newStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open store", "err", err)
		return 1
	}
	defer st.Close()

	// The store's settings record wins over the config file: it holds the
	// host UI's last edit. The file seeds the store on first run.
	settings := &cfg.Settings
	if persisted, err := st.LoadSettings(ctx); err == nil {
		settings = persisted
		slog.Info("loaded persisted settings", "profiles", len(settings.Profiles))
	} else if errors.Is(err, store.ErrNotFound) {
		if err := st.SaveSettings(ctx, settings); err != nil {
			slog.Warn("failed to seed settings store", "err", err)
		}
	} else {
		slog.Error("failed to load settings", "err", err)
		return 1
	}

	// The breaker fails switches fast while the host is not acking, so a
	// dead host costs one ack timeout instead of one per scan.
	hub := server.NewHub()
	breaker := resilience.New(resilience.Config{Name: "switch"}, nil)
	switchFn := func(ctx context.Context, folder string) error {
		return breaker.Do(func() error { return hub.Switch(ctx, folder) })
	}
	eng, err := engine.New(settings, switchFn)
	if err != nil {
		// Detection stays disabled until a corrected profile arrives; the
		// server still runs so the profile can be fixed over the API.
		slog.Warn("active profile failed to compile", "err", err)
	}

	watcher, err := config.NewWatcher(*configPath, func(_, next *config.Config) {
		if err := eng.ApplySettings(&next.Settings); err != nil {
			slog.Error("reloaded config failed to compile", "err", err)
			return
		}
		if err := st.SaveSettings(ctx, &next.Settings); err != nil {
			slog.Warn("failed to persist reloaded settings", "err", err)
		}
		slog.Info("config reloaded", "profiles", len(next.Settings.Profiles))
	})
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	srv := server.New(eng, st, hub, cfg.Server, logger)
	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8689"
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready — press Ctrl+C to shut down", "addr", addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping…")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newStore opens the PostgreSQL store when a DSN is configured and falls
// back to the in-memory store otherwise.
func newStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if dsn := cfg.Store.PostgresDSN; dsn != "" {
		st, err := store.NewPostgres(ctx, dsn)
		if err != nil {
			return nil, err
		}
		slog.Info("using postgres store")
		return st, nil
	}
	slog.Info("using in-memory store; settings will not survive restarts")
	return store.NewMemory(), nil
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
