// Package engine wires the detection pipeline into per-message stream
// sessions: it owns the active profile snapshot (compiled bundle, scanner,
// resolver, corrector), the decision runtime, the conversation-level scene
// roster, and the analytics projections queried by the HTTP surface.
//
// All methods are safe for concurrent use; one mutex serialises the state,
// matching the single-threaded semantics of the original event loop. The
// only asynchronous boundary is the external switch command, whose result
// updates cooldown bookkeeping after the fact.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/decision"
	"github.com/sceneloom/costumier/internal/detect"
	"github.com/sceneloom/costumier/internal/engine/correct"
	"github.com/sceneloom/costumier/internal/observe"
	"github.com/sceneloom/costumier/internal/outfit"
	"github.com/sceneloom/costumier/internal/pattern"
	"github.com/sceneloom/costumier/internal/roster"
	"github.com/sceneloom/costumier/internal/score"
)

// SwitchFunc issues the external costume-switch command for a folder. It
// maps 1:1 to the host's switch command; the error return drives the
// failed-trigger cooldown.
type SwitchFunc func(ctx context.Context, folder string) error

// ErrNoTrigger is returned by [Engine.TriggerByName] for an unknown key.
var ErrNoTrigger = errors.New("engine: no trigger with that name")

// ErrDisabled is returned by manual operations while switching is disabled.
var ErrDisabled = errors.New("engine: switching is disabled")

// Event is the engine's per-scan outcome, forwarded to stream clients.
type Event struct {
	// Type is "switch" or "skip".
	Type string `json:"type"`

	// Session is the generation key the event belongs to, when any.
	Session string `json:"session,omitempty"`

	// Name is the winning character, normalized to configured casing.
	Name string `json:"name,omitempty"`

	// Folder is the resolved costume folder.
	Folder string `json:"folder,omitempty"`

	// Reason is the decision (or veto) reason code.
	Reason string `json:"reason"`

	// Kind is the winning detection's signal kind.
	Kind string `json:"kind,omitempty"`

	// Score is the winning detection's computed score.
	Score float64 `json:"score,omitempty"`

	// OutfitReason explains the folder resolution, when resolution ran.
	OutfitReason string `json:"outfit_reason,omitempty"`

	// Label is the matched outfit variant's label, if any.
	Label string `json:"label,omitempty"`

	// pending carries a should-switch decision from a scan to the issue
	// step, which runs outside the engine lock.
	pending decision.Decision
}

// Option configures an [Engine].
type Option func(*Engine)

// WithClock injects the time source. Tests use a fake; the default is
// [time.Now].
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// WithMetrics injects the metric instruments. The default is
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithLogger injects the logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// Engine is the streaming speaker-attribution engine.
type Engine struct {
	clock    func() time.Time
	metrics  *observe.Metrics
	log      *slog.Logger
	switchFn SwitchFunc

	mu sync.Mutex

	settings *config.Settings
	profile  *config.Profile

	bundle     *pattern.Bundle
	scanner    *detect.Scanner
	resolver   *outfit.Resolver
	corrector  *correct.Corrector
	compileErr error

	locked string // focus-locked character, "" when unlocked

	runtime *decision.Runtime
	scene   *roster.Roster

	sessions  map[string]*session
	lastStats map[string]int
	lastRanks []score.SceneRank
}

// New builds an engine from the given settings. A settings bundle whose
// active profile fails to compile still yields a working engine with
// detection disabled; the compile error is returned so the caller can
// surface it.
func New(settings *config.Settings, switchFn SwitchFunc, opts ...Option) (*Engine, error) {
	e := &Engine{
		clock:    time.Now,
		metrics:  observe.DefaultMetrics(),
		log:      slog.Default(),
		switchFn: switchFn,
		sessions: make(map[string]*session),
	}
	for _, o := range opts {
		o(e)
	}
	e.runtime = decision.NewRuntime(e.clock)
	e.scene = roster.New(1)

	err := e.ApplySettings(settings)
	return e, err
}

// ApplySettings swaps in a new settings bundle. The active profile is
// recompiled only when the diff requires it; tuning-only edits keep the
// compiled bundle and rebuild the cheap scanner state. A compile failure
// disables detection (every scan reports nothing) until a corrected
// profile arrives, and never tears down the previous session state.
func (e *Engine) ApplySettings(settings *config.Settings) error {
	if settings == nil {
		settings = config.DefaultSettings()
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.profile
	next := settings.Active()
	e.settings = settings
	e.profile = next

	if next == nil {
		e.bundle, e.scanner, e.resolver, e.corrector = nil, nil, nil, nil
		e.compileErr = nil
		return nil
	}

	diff := config.DiffProfiles(old, next)
	if e.bundle != nil && e.compileErr == nil && !diff.RecompileNeeded {
		if diff.TuningChanged {
			e.scanner = detect.NewScanner(e.bundle, next)
		}
		if diff.MappingsChanged {
			res, err := outfit.NewResolver(next)
			if err != nil {
				return e.failCompile(err)
			}
			e.resolver = res
		}
		return nil
	}
	return e.compileLocked(next)
}

// compileLocked rebuilds every per-profile artifact. Caller holds e.mu.
func (e *Engine) compileLocked(p *config.Profile) error {
	b, err := pattern.Compile(p)
	if err != nil {
		return e.failCompile(err)
	}
	res, err := outfit.NewResolver(p)
	if err != nil {
		return e.failCompile(err)
	}

	e.bundle = b
	e.scanner = detect.NewScanner(b, p)
	e.resolver = res
	e.compileErr = nil
	if p.Detection.FuzzyNames {
		e.corrector = correct.New(b.Names)
	} else {
		e.corrector = nil
	}
	e.scene = roster.New(p.Roster.TTL)
	e.log.Info("profile compiled", "names", len(b.Names))
	return nil
}

// failCompile records a compile failure and disables detection.
func (e *Engine) failCompile(err error) error {
	e.bundle, e.scanner, e.resolver, e.corrector = nil, nil, nil, nil
	e.compileErr = err
	e.metrics.CompileErrors.Add(context.Background(), 1)
	e.log.Error("profile compile failed; detection disabled", "err", err)
	return fmt.Errorf("engine: compile profile: %w", err)
}

// Settings returns a snapshot of the current settings bundle. The profile
// map is shared; profiles are immutable between compiles.
func (e *Engine) Settings() *config.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settings == nil {
		return nil
	}
	snapshot := *e.settings
	return &snapshot
}

// CompileErr returns the active profile's compile error, if any.
func (e *Engine) CompileErr() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.compileErr
}

// Enabled reports whether automatic switching is on.
func (e *Engine) Enabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings != nil && e.settings.Enabled
}

// SetEnabled toggles automatic switching.
func (e *Engine) SetEnabled(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.settings != nil {
		e.settings.Enabled = on
	}
}

// Lock pins a character's outfit: the switch is issued once, immediately
// and unconditionally, and automatic switching is suspended until
// [Engine.Unlock]. The switch command runs synchronously.
func (e *Engine) Lock(ctx context.Context, name string) (Event, error) {
	e.mu.Lock()
	d := e.runtime.Decide(e.profile, e.resolver, name, outfit.Context{Roster: e.scene}, true)
	e.mu.Unlock()
	if !d.ShouldSwitch {
		return Event{Type: "skip", Reason: string(d.Reason)},
			fmt.Errorf("engine: lock %q: %s", name, d.Reason)
	}

	ev := e.issue(ctx, "", d)
	if ev.Type == "switch" {
		e.mu.Lock()
		e.locked = d.Name
		e.mu.Unlock()
	}
	return ev, nil
}

// Unlock releases the focus lock.
func (e *Engine) Unlock() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.locked = ""
}

// Locked returns the focus-locked character, or "".
func (e *Engine) Locked() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locked
}

// TriggerByName resolves a named manual trigger (primary name or alias,
// case-insensitive) to its folder and issues the switch immediately,
// bypassing cooldowns like a focus-lock switch, but without holding a lock
// afterwards.
func (e *Engine) TriggerByName(ctx context.Context, key string) (Event, error) {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return Event{}, ErrNoTrigger
	}

	e.mu.Lock()
	p := e.profile
	enabled := e.settings != nil && e.settings.Enabled
	e.mu.Unlock()
	if p == nil {
		return Event{}, ErrNoTrigger
	}
	if !enabled {
		return Event{}, ErrDisabled
	}

	for _, t := range p.Triggers {
		for _, name := range t.AllTriggers() {
			if strings.ToLower(name) != key {
				continue
			}
			folder := config.NormalizeFolder(t.Folder)
			if folder == "" {
				return Event{}, ErrNoTrigger
			}
			d := decision.Decision{
				ShouldSwitch: true,
				Reason:       decision.ReasonSwitch,
				Name:         t.Trigger,
				Folder:       folder,
			}
			return e.issue(ctx, "", d), nil
		}
	}
	return Event{}, ErrNoTrigger
}

// ResetChat clears all per-chat state: cooldown runtime, scene roster,
// sessions, and analytics. The compiled profile survives.
func (e *Engine) ResetChat() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for range e.sessions {
		e.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	e.runtime.Reset()
	e.scene.Reset()
	e.sessions = make(map[string]*session)
	e.lastStats = nil
	e.lastRanks = nil
	e.locked = ""
}

const maxTopCharacters = 4

// TopCharacters returns the current scene's top-n ranked characters from
// the most recent scan. n is clamped to 1..4.
func (e *Engine) TopCharacters(n int) []score.SceneRank {
	if n < 1 {
		n = 1
	}
	if n > maxTopCharacters {
		n = maxTopCharacters
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.lastRanks) < n {
		n = len(e.lastRanks)
	}
	out := make([]score.SceneRank, n)
	copy(out, e.lastRanks[:n])
	return out
}

// LastMessageStats returns the name-to-mention-count table for the most
// recently completed message.
func (e *Engine) LastMessageStats() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]int, len(e.lastStats))
	for k, v := range e.lastStats {
		out[k] = v
	}
	return out
}

// SceneNames returns the conversation roster, freshest first.
func (e *Engine) SceneNames() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scene.Names()
}

// issue runs the external switch command and updates the cooldown
// bookkeeping from its outcome.
func (e *Engine) issue(ctx context.Context, sessionID string, d decision.Decision) Event {
	ev := Event{
		Type: "switch", Session: sessionID,
		Name: d.Name, Folder: d.Folder, Reason: string(d.Reason),
		OutfitReason: string(d.Outfit.Reason), Label: d.Outfit.Label,
	}
	if err := e.switchFn(ctx, d.Folder); err != nil {
		e.mu.Lock()
		e.runtime.RecordFailure(d.Folder)
		e.mu.Unlock()
		e.metrics.RecordSwitch(ctx, "error")
		e.log.Warn("costume switch failed", "name", d.Name, "folder", d.Folder, "err", err)
		ev.Type = "skip"
		ev.Reason = "switch-failed"
		return ev
	}
	e.mu.Lock()
	e.runtime.RecordSuccess(d.Name, d.Folder)
	e.mu.Unlock()
	e.metrics.RecordSwitch(ctx, "ok")
	e.log.Info("costume switch", "name", d.Name, "folder", d.Folder, "reason", ev.OutfitReason)
	return ev
}
