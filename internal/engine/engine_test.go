package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/engine"
	"github.com/sceneloom/costumier/internal/observe"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type switchRecorder struct {
	mu      sync.Mutex
	folders []string
	err     error
}

func (r *switchRecorder) fn(_ context.Context, folder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.folders = append(r.folders, folder)
	return nil
}

func (r *switchRecorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.folders))
	copy(out, r.folders)
	return out
}

func testSettings(mutate func(*config.Profile)) *config.Settings {
	p := config.DefaultProfile()
	p.Patterns = []string{"Alice", "Bob"}
	p.Stream.TokenProcessThreshold = 1
	if mutate != nil {
		mutate(p)
	}
	p.Normalize()
	return &config.Settings{
		Version:       config.SchemaVersion,
		Enabled:       true,
		ActiveProfile: "Default",
		Profiles:      map[string]*config.Profile{"Default": p},
	}
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestEngine(t *testing.T, s *config.Settings, sw *switchRecorder, clock *fakeClock) *engine.Engine {
	t.Helper()
	e, err := engine.New(s, sw.fn,
		engine.WithClock(clock.now),
		engine.WithMetrics(testMetrics(t)),
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestStreamAttributionSwitch(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	e := newTestEngine(t, testSettings(nil), sw, newFakeClock())
	ctx := context.Background()

	e.StartMessage("gen-1")
	ev := e.Token(ctx, "gen-1", `Alice said, "Hello there."`)
	if ev == nil || ev.Type != "switch" {
		t.Fatalf("Token() = %+v, want a switch event", ev)
	}
	if ev.Name != "Alice" || ev.Folder != "Alice" {
		t.Errorf("Token() name/folder = %q/%q, want Alice/Alice", ev.Name, ev.Folder)
	}
	if ev.Kind != "attribution" {
		t.Errorf("Token() kind = %q, want attribution", ev.Kind)
	}
	if got := sw.calls(); len(got) != 1 || got[0] != "Alice" {
		t.Errorf("switch calls = %v, want [Alice]", got)
	}
}

func TestStreamMappedFolder(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	s := testSettings(func(p *config.Profile) {
		p.Mappings = []config.Mapping{{Name: "Alice", Folder: "chars/alice"}}
	})
	e := newTestEngine(t, s, sw, newFakeClock())

	ev := e.Token(context.Background(), "gen-1", "Alice nodded.")
	if ev == nil || ev.Folder != "chars/alice" {
		t.Fatalf("Token() = %+v, want mapped folder chars/alice", ev)
	}
}

func TestStreamVetoLatch(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	s := testSettings(func(p *config.Profile) {
		p.VetoPhrases = []string{"OOC:"}
	})
	e := newTestEngine(t, s, sw, newFakeClock())
	ctx := context.Background()

	ev := e.Token(ctx, "gen-1", "OOC: ignore this. Alice said hi.")
	if ev == nil || ev.Reason != "veto" {
		t.Fatalf("Token() = %+v, want veto skip", ev)
	}
	// The latch is permanent for the message.
	if ev := e.Token(ctx, "gen-1", " Bob shouted loudly."); ev != nil {
		t.Fatalf("Token() after veto = %+v, want nil", ev)
	}
	if got := sw.calls(); len(got) != 0 {
		t.Errorf("switch calls = %v, want none after veto", got)
	}
}

func TestStreamRepeatSuppression(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	clock := newFakeClock()
	e := newTestEngine(t, testSettings(nil), sw, clock)
	ctx := context.Background()

	if ev := e.Token(ctx, "gen-1", "Alice said hi."); ev == nil {
		t.Fatal("Token() first scan = nil, want switch")
	}
	clock.advance(50 * time.Millisecond)
	if ev := e.Token(ctx, "gen-1", " And Alice smiled warmly at everyone."); ev != nil {
		t.Fatalf("Token() = %+v, want repeat suppressed", ev)
	}
}

func TestStreamLockSuppressesDetection(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	e := newTestEngine(t, testSettings(nil), sw, newFakeClock())
	ctx := context.Background()

	if _, err := e.Lock(ctx, "Bob"); err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if got := e.Locked(); got != "Bob" {
		t.Fatalf("Locked() = %q, want Bob", got)
	}
	if ev := e.Token(ctx, "gen-1", "Alice said hi."); ev != nil {
		t.Fatalf("Token() while locked = %+v, want nil", ev)
	}

	e.Unlock()
	if ev := e.Token(ctx, "gen-1", " Alice said more."); ev == nil {
		t.Fatal("Token() after Unlock = nil, want detection resumed")
	}
}

func TestStreamDisabled(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	e := newTestEngine(t, testSettings(nil), sw, newFakeClock())

	e.SetEnabled(false)
	if ev := e.Token(context.Background(), "gen-1", "Alice said hi."); ev != nil {
		t.Fatalf("Token() while disabled = %+v, want nil", ev)
	}
}

func TestStreamUnknownSessionSelfHeals(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	e := newTestEngine(t, testSettings(nil), sw, newFakeClock())

	// No StartMessage for this id.
	if ev := e.Token(context.Background(), "missing", "Alice said hi."); ev == nil {
		t.Fatal("Token() for unknown session = nil, want lazily created state")
	}
}

func TestStreamBufferTrimKeepsTail(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	s := testSettings(func(p *config.Profile) {
		p.Stream.MaxBufferChars = 60
		p.Stream.TokenProcessThreshold = 1
	})
	e := newTestEngine(t, s, sw, newFakeClock())
	ctx := context.Background()

	// Push well past the cap with filler, then a fresh signal near the
	// tail; the trimmed prefix must not break detection.
	e.Token(ctx, "gen-1", "tell tale quiet filler text with nothing of interest at all..")
	ev := e.Token(ctx, "gen-1", " Bob said hello.")
	if ev == nil || ev.Name != "Bob" {
		t.Fatalf("Token() after trim = %+v, want Bob detected in the kept tail", ev)
	}
}

func TestSwitchFailureBacksOff(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{err: errors.New("host rejected")}
	clock := newFakeClock()
	e := newTestEngine(t, testSettings(nil), sw, clock)
	ctx := context.Background()

	ev := e.Token(ctx, "gen-1", "Alice said hi.")
	if ev == nil || ev.Type != "skip" || ev.Reason != "switch-failed" {
		t.Fatalf("Token() = %+v, want switch-failed skip", ev)
	}

	// Within the failed-trigger window the folder is not retried even
	// after repeat suppression lapses.
	sw.err = nil
	clock.advance(3 * time.Second)
	e.StartMessage("gen-2")
	ev = e.Token(ctx, "gen-2", "Alice said hi again to the group.")
	if ev == nil || ev.Reason != "failed-trigger-cooldown" {
		t.Fatalf("Token() = %+v, want failed-trigger-cooldown", ev)
	}
}

func TestEndMessageStatsAndRoster(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	e := newTestEngine(t, testSettings(nil), sw, newFakeClock())
	ctx := context.Background()

	e.StartMessage("gen-1")
	e.Token(ctx, "gen-1", "Alice said hi. Bob nodded back.")
	e.EndMessage(ctx, "gen-1")

	stats := e.LastMessageStats()
	if stats["Alice"] == 0 || stats["Bob"] == 0 {
		t.Fatalf("LastMessageStats() = %v, want counts for Alice and Bob", stats)
	}

	names := e.SceneNames()
	if len(names) != 2 {
		t.Fatalf("SceneNames() = %v, want both characters in the roster", names)
	}
}

func TestTopCharactersClamp(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	e := newTestEngine(t, testSettings(nil), sw, newFakeClock())
	ctx := context.Background()

	e.Token(ctx, "gen-1", "Alice said hi. Bob nodded.")
	top := e.TopCharacters(10)
	if len(top) > 4 {
		t.Fatalf("TopCharacters(10) returned %d entries, want at most 4", len(top))
	}
	if len(top) == 0 || top[0].Name == "" {
		t.Fatalf("TopCharacters() = %+v, want ranked names", top)
	}
}

func TestTriggerByName(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	s := testSettings(func(p *config.Profile) {
		p.Triggers = []config.TriggerEntry{{
			Trigger: "Beach",
			Aliases: []string{"summer"},
			Folder:  "/alice/beach/",
		}}
	})
	e := newTestEngine(t, s, sw, newFakeClock())
	ctx := context.Background()

	ev, err := e.TriggerByName(ctx, "SUMMER")
	if err != nil {
		t.Fatalf("TriggerByName() error = %v", err)
	}
	if ev.Folder != "alice/beach" {
		t.Errorf("TriggerByName() folder = %q, want normalized alice/beach", ev.Folder)
	}

	if _, err := e.TriggerByName(ctx, "nope"); !errors.Is(err, engine.ErrNoTrigger) {
		t.Errorf("TriggerByName(nope) error = %v, want ErrNoTrigger", err)
	}
}

func TestApplySettingsCompileFailureDisablesDetection(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	e := newTestEngine(t, testSettings(nil), sw, newFakeClock())
	ctx := context.Background()

	bad := testSettings(func(p *config.Profile) {
		p.OutfitsEnabled = true
		p.Mappings = []config.Mapping{{
			Name: "Alice", Folder: "alice",
			Variants: []config.Variant{{Folder: "alice/x", Triggers: []string{"/("}}},
		}}
	})
	if err := e.ApplySettings(bad); err == nil {
		t.Fatal("ApplySettings() with invalid regex trigger = nil error")
	}
	if e.CompileErr() == nil {
		t.Fatal("CompileErr() = nil after failed compile")
	}
	if ev := e.Token(ctx, "gen-1", "Alice said hi."); ev != nil {
		t.Fatalf("Token() with broken profile = %+v, want detection disabled", ev)
	}

	// A corrected profile restores detection.
	if err := e.ApplySettings(testSettings(nil)); err != nil {
		t.Fatalf("ApplySettings() recovery error = %v", err)
	}
	if ev := e.Token(ctx, "gen-1", "Alice said hi."); ev == nil {
		t.Fatal("Token() after recovery = nil, want detection restored")
	}
}

func TestResetChatClearsState(t *testing.T) {
	t.Parallel()
	sw := &switchRecorder{}
	e := newTestEngine(t, testSettings(nil), sw, newFakeClock())
	ctx := context.Background()

	e.Token(ctx, "gen-1", "Alice said hi.")
	e.EndMessage(ctx, "gen-1")
	e.ResetChat()

	if got := e.SceneNames(); len(got) != 0 {
		t.Errorf("SceneNames() after reset = %v, want empty", got)
	}
	if got := e.LastMessageStats(); len(got) != 0 {
		t.Errorf("LastMessageStats() after reset = %v, want empty", got)
	}

	// Cooldowns are gone too: the same character switches again at the
	// same instant.
	if ev := e.Token(ctx, "gen-2", "Alice said hi."); ev == nil || ev.Type != "switch" {
		t.Fatalf("Token() after reset = %+v, want fresh switch", ev)
	}
}
