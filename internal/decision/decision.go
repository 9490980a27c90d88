// Package decision is the switch state machine: it turns a winning
// character name into a throttled, deduplicated costume-switch verdict.
// All cooldown and last-issued bookkeeping lives in an explicit [Runtime]
// so sessions stay isolated and tests control the clock.
package decision

import (
	"strings"
	"time"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/outfit"
	"github.com/sceneloom/costumier/internal/roster"
)

// Reason is the decision verdict code. Exactly one reason accompanies
// every decision, switch or skip.
type Reason string

const (
	// ReasonSwitch means the switch should be issued.
	ReasonSwitch Reason = "switch"

	// ReasonNoProfile means no active profile was available.
	ReasonNoProfile Reason = "no-profile"

	// ReasonNoName means the candidate name was empty.
	ReasonNoName Reason = "no-name"

	// ReasonAlreadyActive means the candidate is already the issued costume.
	ReasonAlreadyActive Reason = "already-active"

	// ReasonOutfitUnchanged means the resolved folder equals the character's
	// cached outfit.
	ReasonOutfitUnchanged Reason = "outfit-unchanged"

	// ReasonGlobalCooldown means any switch happened too recently.
	ReasonGlobalCooldown Reason = "global-cooldown"

	// ReasonPerTriggerCooldown means this folder was switched to too
	// recently.
	ReasonPerTriggerCooldown Reason = "per-trigger-cooldown"

	// ReasonFailedTriggerCooldown means a switch to this folder failed too
	// recently.
	ReasonFailedTriggerCooldown Reason = "failed-trigger-cooldown"
)

// Decision is the engine's per-call verdict.
type Decision struct {
	// ShouldSwitch reports whether the caller should issue the external
	// switch command.
	ShouldSwitch bool

	// Reason explains the verdict.
	Reason Reason

	// Name is the candidate character, normalized to configured casing.
	Name string

	// Folder is the resolved costume folder. Set whenever resolution ran,
	// even for skips, so callers can keep outfit bookkeeping current.
	Folder string

	// Outfit is the full resolver verdict backing Folder.
	Outfit outfit.Resolution
}

// Runtime is the mutable cooldown and cache state behind decisions. One
// Runtime serves one chat session; it is reset on chat change. Runtime is
// not safe for concurrent use; the owning session serialises access.
type Runtime struct {
	now func() time.Time

	lastName   string
	lastFolder string
	lastSwitch time.Time

	success map[string]time.Time
	failure map[string]time.Time
	outfits *roster.Outfits // last issued folder per character
}

// NewRuntime returns an empty runtime. clock may be nil, in which case
// [time.Now] is used; tests inject a fake.
func NewRuntime(clock func() time.Time) *Runtime {
	if clock == nil {
		clock = time.Now
	}
	r := &Runtime{now: clock}
	r.Reset()
	return r
}

// Reset clears all bookkeeping, as on a chat change.
func (r *Runtime) Reset() {
	r.lastName = ""
	r.lastFolder = ""
	r.lastSwitch = time.Time{}
	r.success = make(map[string]time.Time)
	r.failure = make(map[string]time.Time)
	r.outfits = roster.NewOutfits()
}

// Last returns the last successfully issued name, folder, and time.
func (r *Runtime) Last() (name, folder string, at time.Time) {
	return r.lastName, r.lastFolder, r.lastSwitch
}

// RecordSuccess updates the bookkeeping after the external switch command
// succeeded: last-issued state, the per-folder success timestamp, and the
// character's cached outfit.
func (r *Runtime) RecordSuccess(name, folder string) {
	now := r.now()
	r.lastName = name
	r.lastFolder = folder
	r.lastSwitch = now
	r.success[folder] = now
	r.outfits.Note(name, folder)
}

// RecordFailure updates only the per-folder failure timestamp after the
// external switch command failed.
func (r *Runtime) RecordFailure(folder string) {
	r.failure[folder] = r.now()
}

// CachedOutfit returns the character's last issued folder, if any.
func (r *Runtime) CachedOutfit(name string) (string, bool) {
	return r.outfits.Folder(name)
}

// Decide runs the decision chain for one candidate. The first applicable
// rule wins; the resolved folder is reported even for skips. lock marks a
// manual focus-lock switch, which bypasses every throttle and dedupe rule
// and only keeps the hard preconditions.
func (r *Runtime) Decide(p *config.Profile, res *outfit.Resolver, name string, ctx outfit.Context, lock bool) Decision {
	if p == nil || res == nil {
		return Decision{Reason: ReasonNoProfile, Name: name}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Decision{Reason: ReasonNoName}
	}

	o := res.Resolve(name, ctx)
	d := Decision{Name: name, Folder: o.Folder, Outfit: o}

	if !lock {
		if skip, reason := r.skipReason(p, name, o.Folder); skip {
			d.Reason = reason
			return d
		}
	}

	d.ShouldSwitch = true
	d.Reason = ReasonSwitch
	return d
}

// skipReason applies the dedupe and cooldown rules in order.
func (r *Runtime) skipReason(p *config.Profile, name, folder string) (bool, Reason) {
	if p.OutfitsEnabled {
		if strings.EqualFold(name, r.lastName) && folder == r.lastFolder {
			return true, ReasonAlreadyActive
		}
		if cached, ok := r.CachedOutfit(name); ok && cached == folder {
			return true, ReasonOutfitUnchanged
		}
	} else if strings.EqualFold(name, r.lastName) {
		return true, ReasonAlreadyActive
	}

	now := r.now()
	cd := p.Cooldowns
	if !r.lastSwitch.IsZero() && now.Sub(r.lastSwitch) < cd.Global() {
		return true, ReasonGlobalCooldown
	}
	if at, ok := r.success[folder]; ok && now.Sub(at) < cd.PerTrigger() {
		return true, ReasonPerTriggerCooldown
	}
	if at, ok := r.failure[folder]; ok && now.Sub(at) < cd.FailedTrigger() {
		return true, ReasonFailedTriggerCooldown
	}
	return false, ""
}
