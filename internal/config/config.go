// Package config provides the configuration schema, loader, settings
// migration, and file watcher for the Costumier switching engine.
package config

import (
	"strings"
	"time"

	"github.com/sceneloom/costumier/internal/vocab"
)

// SchemaVersion is the current persisted-settings schema version.
// See migrate.go for the upgrade chain from older versions.
const SchemaVersion = 2

// LogLevel controls log verbosity for the Costumier server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// PronounFallback selects what happens to a pronoun detection when no prior
// subject is known in the message.
type PronounFallback string

const (
	// PronounDrop suppresses the detection entirely. This matches the
	// historical behaviour and is the default.
	PronounDrop PronounFallback = "drop"

	// PronounEmit produces a detection with an empty name, which the scorer
	// discards but analytics still count.
	PronounEmit PronounFallback = "emit"
)

// IsValid reports whether f is a recognised pronoun fallback mode.
func (f PronounFallback) IsValid() bool {
	return f == PronounDrop || f == PronounEmit
}

// Config is the root configuration structure for the Costumier server.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server   ServerConfig `yaml:"server"`
	Store    StoreConfig  `yaml:"store"`
	Settings Settings     `yaml:"settings"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// RateLimitRPS is the per-client request budget for mutating HTTP
	// routes. Zero disables rate limiting.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`

	// RateLimitBurst is the burst size paired with RateLimitRPS.
	RateLimitBurst int `yaml:"rate_limit_burst"`
}

// StoreConfig holds persistence settings.
type StoreConfig struct {
	// PostgresDSN is the PostgreSQL connection string for the profile and
	// switch-event store. When empty, an in-memory store is used and
	// profiles live only as long as the process.
	PostgresDSN string `yaml:"postgres_dsn"`
}

// Settings is the persisted settings bundle: a named set of profiles plus
// the selection of which one is active. This is the record shape the host
// chat UI reads and writes.
type Settings struct {
	// Version is the settings schema version. See [SchemaVersion].
	Version int `yaml:"version"`

	// Enabled globally switches automatic detection on or off.
	Enabled bool `yaml:"enabled"`

	// ActiveProfile names the profile in Profiles driving detection.
	ActiveProfile string `yaml:"active_profile"`

	// Profiles maps profile names to their configuration.
	Profiles map[string]*Profile `yaml:"profiles"`
}

// Active returns the currently selected profile, or nil when the selection
// is missing or dangling.
func (s *Settings) Active() *Profile {
	if s == nil || s.Profiles == nil {
		return nil
	}
	return s.Profiles[s.ActiveProfile]
}

// Profile is one named detection configuration. The engine treats a Profile
// as an immutable snapshot per compile cycle; edits require recompilation
// (see [DiffProfiles]).
type Profile struct {
	// Patterns lists the character names to detect. Entries are literal
	// names; regex metacharacters are escaped during compilation.
	Patterns []string `yaml:"patterns"`

	// IgnorePatterns lists names that must never produce a detection,
	// regardless of signal kind.
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// VetoPhrases lists substrings that permanently stop detection for the
	// rest of the message once seen (e.g. "OOC:").
	VetoPhrases []string `yaml:"veto_phrases"`

	Detection  Detection    `yaml:"detection"`
	Weights    Weights      `yaml:"weights"`
	Roster     RosterConfig `yaml:"roster"`
	Cooldowns  Cooldowns    `yaml:"cooldowns"`
	Stream     StreamTuning `yaml:"stream"`
	Vocabulary Vocabulary   `yaml:"vocabulary"`

	// OutfitsEnabled turns variant resolution on. When false, every switch
	// targets the mapping's default folder.
	OutfitsEnabled bool `yaml:"outfits_enabled"`

	// Mappings maps detected character names to costume folders.
	Mappings []Mapping `yaml:"mappings"`

	// Triggers are named manual triggers for the host's switch-by-name
	// command surface. They do not participate in stream detection.
	Triggers []TriggerEntry `yaml:"triggers"`
}

// Detection holds the per-signal-kind toggles.
type Detection struct {
	Speaker     bool `yaml:"speaker"`
	Attribution bool `yaml:"attribution"`
	Action      bool `yaml:"action"`
	Pronoun     bool `yaml:"pronoun"`
	Vocative    bool `yaml:"vocative"`
	Possessive  bool `yaml:"possessive"`
	GeneralName bool `yaml:"general_name"`

	// FuzzyNames enables phonetic correction of near-miss name tokens
	// before general-name matching.
	FuzzyNames bool `yaml:"fuzzy_names"`

	// PronounsWithoutSubject selects pronoun behaviour when no subject is
	// known. Default: drop.
	PronounsWithoutSubject PronounFallback `yaml:"pronouns_without_subject"`
}

// Weights holds the priority ranks per signal kind and the scoring tuning
// knobs. Changing weights does not require recompilation.
type Weights struct {
	Speaker     int `yaml:"speaker"`
	Attribution int `yaml:"attribution"`
	Action      int `yaml:"action"`
	Pronoun     int `yaml:"pronoun"`
	Vocative    int `yaml:"vocative"`
	Possessive  int `yaml:"possessive"`
	GeneralName int `yaml:"general_name"`

	// PriorityMultiplier scales the priority rank into score space.
	PriorityMultiplier float64 `yaml:"priority_multiplier"`

	// DistancePenalty is the per-character score penalty for distance from
	// the trailing edge of the buffer.
	DistancePenalty float64 `yaml:"distance_penalty"`

	// DetectionBias is a global nudge added to active-tier matches. May be
	// negative.
	DetectionBias float64 `yaml:"detection_bias"`

	// RosterBonus is added when the matched name is in the scene roster.
	RosterBonus float64 `yaml:"roster_bonus"`

	// RosterPriorityDropoff attenuates RosterBonus for active-tier matches
	// so roster presence cannot override strong fresh signals outright.
	RosterPriorityDropoff float64 `yaml:"roster_priority_dropoff"`
}

// RosterConfig holds scene-roster settings.
type RosterConfig struct {
	// Enabled turns the recency roster (and its score bonus) on.
	Enabled bool `yaml:"enabled"`

	// TTL is the number of messages a character stays "active" in the
	// roster after their last detection.
	TTL int `yaml:"ttl"`
}

// Cooldowns holds the switch throttling windows, in milliseconds.
type Cooldowns struct {
	// GlobalMs is the minimum gap between any two switches.
	GlobalMs int `yaml:"global_ms"`

	// PerTriggerMs is the minimum gap between successful switches to the
	// same folder.
	PerTriggerMs int `yaml:"per_trigger_ms"`

	// FailedTriggerMs is the back-off after a failed switch to a folder.
	FailedTriggerMs int `yaml:"failed_trigger_ms"`

	// RepeatSuppressMs drops a detection outright when the same name was
	// accepted within this window.
	RepeatSuppressMs int `yaml:"repeat_suppress_ms"`
}

// Global returns the global cooldown as a duration.
func (c Cooldowns) Global() time.Duration { return time.Duration(c.GlobalMs) * time.Millisecond }

// PerTrigger returns the per-folder cooldown as a duration.
func (c Cooldowns) PerTrigger() time.Duration {
	return time.Duration(c.PerTriggerMs) * time.Millisecond
}

// FailedTrigger returns the failed-switch back-off as a duration.
func (c Cooldowns) FailedTrigger() time.Duration {
	return time.Duration(c.FailedTriggerMs) * time.Millisecond
}

// RepeatSuppress returns the repeat-suppression window as a duration.
func (c Cooldowns) RepeatSuppress() time.Duration {
	return time.Duration(c.RepeatSuppressMs) * time.Millisecond
}

// StreamTuning holds buffer and throughput settings for stream sessions.
type StreamTuning struct {
	// MaxBufferChars caps the rolling message buffer; the oldest content is
	// dropped beyond this.
	MaxBufferChars int `yaml:"max_buffer_chars"`

	// TokenProcessThreshold is the number of new characters that must
	// accumulate before the buffer is rescanned.
	TokenProcessThreshold int `yaml:"token_process_threshold"`

	// MaxTrackedMessages bounds how many finished message states are kept
	// for analytics before LRU eviction.
	MaxTrackedMessages int `yaml:"max_tracked_messages"`
}

// Vocabulary holds the configurable word tables. Empty lists fall back to
// the defaults in [vocab].
type Vocabulary struct {
	Pronouns         []string          `yaml:"pronouns"`
	AttributionVerbs []vocab.VerbForms `yaml:"attribution_verbs"`
	ActionVerbs      []vocab.VerbForms `yaml:"action_verbs"`
}

// PronounsOrDefault returns the configured pronoun list or the default set.
func (v Vocabulary) PronounsOrDefault() []string {
	if len(v.Pronouns) > 0 {
		return vocab.NormalizeWords(v.Pronouns)
	}
	return vocab.DefaultPronouns()
}

// AttributionOrDefault returns the configured attribution verbs or the
// default set.
func (v Vocabulary) AttributionOrDefault() []vocab.VerbForms {
	if len(v.AttributionVerbs) > 0 {
		return v.AttributionVerbs
	}
	return vocab.DefaultAttributionVerbs()
}

// ActionOrDefault returns the configured action verbs or the default set.
func (v Vocabulary) ActionOrDefault() []vocab.VerbForms {
	if len(v.ActionVerbs) > 0 {
		return v.ActionVerbs
	}
	return vocab.DefaultActionVerbs()
}

// Mapping binds one character name to a default costume folder plus
// optional outfit variants.
type Mapping struct {
	// Name is the character name as it appears in Patterns.
	Name string `yaml:"name"`

	// Folder is the default costume folder for the character.
	Folder string `yaml:"folder"`

	// Variants are evaluated in declared order; the first satisfied variant
	// wins over Folder.
	Variants []Variant `yaml:"variants"`
}

// Variant is an alternate costume folder selected by trigger phrases and/or
// scene-awareness predicates.
type Variant struct {
	// Label is an optional display name for the variant.
	Label string `yaml:"label"`

	// Folder is the costume folder this variant switches to. Variants with
	// an empty folder are skipped.
	Folder string `yaml:"folder"`

	// Triggers are literal phrases or /regex/ patterns tested against the
	// scene text. A variant with no triggers matches by default, subject to
	// the awareness predicates.
	Triggers []string `yaml:"triggers"`

	// MatchKinds restricts the variant to specific detection kinds
	// ("speaker", "attribution", ...). Empty means any kind.
	MatchKinds []string `yaml:"match_kinds"`

	// Requires lists characters that must all be in the scene roster.
	Requires []string `yaml:"requires"`

	// RequiresAny lists characters of which at least one must be present.
	RequiresAny []string `yaml:"requires_any"`

	// Excludes lists characters none of which may be present.
	Excludes []string `yaml:"excludes"`
}

// TriggerEntry is a named manual trigger: invoking it by name (or any
// alias) switches to Folder immediately.
type TriggerEntry struct {
	// Trigger is the primary name of the trigger.
	Trigger string `yaml:"trigger"`

	// Aliases are alternative names resolving to the same folder.
	Aliases []string `yaml:"aliases"`

	// Patterns is a legacy comma- or newline-separated alias list, merged
	// into Aliases by [Profile.Normalize].
	Patterns string `yaml:"patterns"`

	// Folder is the costume folder to switch to.
	Folder string `yaml:"folder"`
}

// AllTriggers returns the primary trigger plus all aliases, trimmed and
// deduplicated case-insensitively, preserving order.
func (t TriggerEntry) AllTriggers() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		key := strings.ToLower(s)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	add(t.Trigger)
	for _, a := range t.Aliases {
		add(a)
	}
	for _, p := range splitPatterns(t.Patterns) {
		add(p)
	}
	return out
}

// splitPatterns splits a comma- or newline-separated alias list.
func splitPatterns(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

// DefaultProfile returns a profile with every signal kind enabled and the
// standard tuning values. Name patterns and mappings start empty.
func DefaultProfile() *Profile {
	p := &Profile{
		Detection: Detection{
			Speaker:                true,
			Attribution:            true,
			Action:                 true,
			Pronoun:                true,
			Vocative:               true,
			Possessive:             true,
			GeneralName:            true,
			PronounsWithoutSubject: PronounDrop,
		},
		Roster: RosterConfig{Enabled: true},
	}
	p.Normalize()
	return p
}

// DefaultSettings returns an enabled settings bundle containing a single
// "Default" profile.
func DefaultSettings() *Settings {
	return &Settings{
		Version:       SchemaVersion,
		Enabled:       true,
		ActiveProfile: "Default",
		Profiles:      map[string]*Profile{"Default": DefaultProfile()},
	}
}

// Normalize trims user-supplied strings and fills zero tuning values with
// their defaults, in place. Loaders call this after decoding so the rest of
// the engine never sees half-empty tuning.
func (p *Profile) Normalize() {
	p.Patterns = trimAll(p.Patterns)
	p.IgnorePatterns = trimAll(p.IgnorePatterns)
	p.VetoPhrases = trimAll(p.VetoPhrases)

	if !p.Detection.PronounsWithoutSubject.IsValid() {
		p.Detection.PronounsWithoutSubject = PronounDrop
	}

	w := &p.Weights
	if w.Speaker == 0 {
		w.Speaker = 5
	}
	if w.Attribution == 0 {
		w.Attribution = 4
	}
	if w.Action == 0 {
		w.Action = 4
	}
	if w.Pronoun == 0 {
		w.Pronoun = 2
	}
	if w.Vocative == 0 {
		w.Vocative = 2
	}
	if w.Possessive == 0 {
		w.Possessive = 1
	}
	// GeneralName stays at 0: the weakest signal.
	if w.PriorityMultiplier == 0 {
		w.PriorityMultiplier = 10
	}
	if w.DistancePenalty == 0 {
		w.DistancePenalty = 0.1
	}
	if w.RosterBonus == 0 {
		w.RosterBonus = 15
	}
	if w.RosterPriorityDropoff == 0 {
		w.RosterPriorityDropoff = 5
	}

	if p.Roster.TTL == 0 {
		p.Roster.TTL = 3
	}

	c := &p.Cooldowns
	if c.GlobalMs == 0 {
		c.GlobalMs = 1200
	}
	if c.PerTriggerMs == 0 {
		c.PerTriggerMs = 250
	}
	if c.FailedTriggerMs == 0 {
		c.FailedTriggerMs = 5000
	}
	if c.RepeatSuppressMs == 0 {
		c.RepeatSuppressMs = 2000
	}

	s := &p.Stream
	if s.MaxBufferChars == 0 {
		s.MaxBufferChars = 2000
	}
	if s.TokenProcessThreshold == 0 {
		s.TokenProcessThreshold = 60
	}
	if s.MaxTrackedMessages == 0 {
		s.MaxTrackedMessages = 8
	}

	for i := range p.Mappings {
		m := &p.Mappings[i]
		m.Name = strings.TrimSpace(m.Name)
		m.Folder = strings.TrimSpace(m.Folder)
		for j := range m.Variants {
			v := &m.Variants[j]
			v.Label = strings.TrimSpace(v.Label)
			v.Folder = strings.TrimSpace(v.Folder)
			v.Triggers = trimAll(v.Triggers)
		}
	}

	for i := range p.Triggers {
		t := &p.Triggers[i]
		all := t.AllTriggers()
		if len(all) > 0 {
			t.Trigger = all[0]
			t.Aliases = all[1:]
		} else {
			t.Trigger = ""
			t.Aliases = nil
		}
		t.Patterns = ""
		t.Folder = strings.TrimSpace(t.Folder)
	}
}

// MappingFor returns the mapping whose name equals name case-insensitively,
// or nil.
func (p *Profile) MappingFor(name string) *Mapping {
	for i := range p.Mappings {
		if strings.EqualFold(p.Mappings[i].Name, name) {
			return &p.Mappings[i]
		}
	}
	return nil
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
