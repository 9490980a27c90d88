package config_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sceneloom/costumier/internal/config"
)

var mtimeBump atomic.Int64

func writeConfig(t *testing.T, path, listenAddr string) {
	t.Helper()
	doc := "server:\n  listen_addr: \"" + listenAddr + "\"\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	// Force a visible mtime change; some filesystems round to the second.
	bump := time.Now().Add(time.Duration(mtimeBump.Add(1)) * time.Second)
	if err := os.Chtimes(path, bump, bump); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

func TestWatcherInitialLoad(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, ":1001")

	w, err := config.NewWatcher(path, nil, config.WithInterval(time.Hour))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if got := w.Current().Server.ListenAddr; got != ":1001" {
		t.Errorf("Current().ListenAddr = %q, want :1001", got)
	}
}

func TestWatcherInitialLoadFailure(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("NewWatcher() = nil error for a missing file")
	}
}

func TestWatcherDetectsChange(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, ":1001")

	changed := make(chan *config.Config, 1)
	w, err := config.NewWatcher(path, func(_, next *config.Config) {
		changed <- next
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	writeConfig(t, path, ":2002")

	select {
	case next := <-changed:
		if next.Server.ListenAddr != ":2002" {
			t.Errorf("onChange ListenAddr = %q, want :2002", next.Server.ListenAddr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("onChange not called after file modification")
	}
	if got := w.Current().Server.ListenAddr; got != ":2002" {
		t.Errorf("Current().ListenAddr = %q, want :2002", got)
	}
}

func TestWatcherKeepsPreviousOnBrokenEdit(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, ":1001")

	w, err := config.NewWatcher(path, func(_, _ *config.Config) {
		t.Error("onChange called for an invalid config")
	}, config.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher() error = %v", err)
	}
	defer w.Stop()

	if err := os.WriteFile(path, []byte("server:\n  log_level: loud\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	bump := time.Now().Add(time.Minute)
	if err := os.Chtimes(path, bump, bump); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	time.Sleep(200 * time.Millisecond)
	if got := w.Current().Server.ListenAddr; got != ":1001" {
		t.Errorf("Current().ListenAddr = %q, want the previous valid config", got)
	}
}
