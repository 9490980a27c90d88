package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// validMatchKinds lists the detection kinds a variant's match_kinds filter
// may reference. Kept here so config validation does not depend on the
// detector package.
var validMatchKinds = []string{
	"speaker", "attribution", "action", "pronoun", "vocative", "possessive", "name",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, normalizes every profile,
// and validates the result. Useful in tests where configs are constructed
// from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	if cfg.Settings.Version == 0 {
		cfg.Settings.Version = SchemaVersion
	}
	if cfg.Settings.Profiles == nil {
		cfg.Settings.Profiles = map[string]*Profile{}
	}
	for _, p := range cfg.Settings.Profiles {
		p.Normalize()
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("server.rate_limit_rps %.2f must not be negative", cfg.Server.RateLimitRPS))
	}

	s := &cfg.Settings
	if s.Version > SchemaVersion {
		errs = append(errs, fmt.Errorf("settings.version %d is newer than supported version %d", s.Version, SchemaVersion))
	}
	if s.ActiveProfile != "" {
		if _, ok := s.Profiles[s.ActiveProfile]; !ok {
			errs = append(errs, fmt.Errorf("settings.active_profile %q does not name a profile", s.ActiveProfile))
		}
	} else if len(s.Profiles) > 0 {
		slog.Warn("settings.active_profile is empty; detection stays idle until a profile is selected")
	}

	for name, p := range s.Profiles {
		errs = append(errs, validateProfile(name, p)...)
	}

	return errors.Join(errs...)
}

// validateProfile checks a single profile. Compile-level failures (bad
// /regex/ triggers) are the pattern compiler's job and are reported there;
// validation covers structural mistakes only.
func validateProfile(name string, p *Profile) []error {
	var errs []error
	prefix := fmt.Sprintf("profiles[%q]", name)

	if len(p.Patterns) == 0 && len(p.Mappings) > 0 {
		slog.Warn("profile has mappings but no name patterns; nothing will be detected", "profile", name)
	}

	mappingSeen := make(map[string]int, len(p.Mappings))
	for i, m := range p.Mappings {
		mp := fmt.Sprintf("%s.mappings[%d]", prefix, i)
		if m.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", mp))
			continue
		}
		key := strings.ToLower(m.Name)
		if prev, ok := mappingSeen[key]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of mappings[%d]", mp, m.Name, prev))
		}
		mappingSeen[key] = i

		for j, v := range m.Variants {
			vp := fmt.Sprintf("%s.variants[%d]", mp, j)
			for _, k := range v.MatchKinds {
				if !isValidMatchKind(k) {
					errs = append(errs, fmt.Errorf("%s.match_kinds %q is invalid; valid values: %s",
						vp, k, strings.Join(validMatchKinds, ", ")))
				}
			}
		}
	}

	triggerSeen := make(map[string]int, len(p.Triggers))
	for i, t := range p.Triggers {
		tp := fmt.Sprintf("%s.triggers[%d]", prefix, i)
		if t.Trigger == "" {
			errs = append(errs, fmt.Errorf("%s.trigger is required", tp))
			continue
		}
		if t.Folder == "" {
			slog.Warn("trigger has no folder and will never switch", "profile", name, "trigger", t.Trigger)
		}
		for _, alias := range t.AllTriggers() {
			key := strings.ToLower(alias)
			if prev, ok := triggerSeen[key]; ok && prev != i {
				errs = append(errs, fmt.Errorf("%s: alias %q is already used by triggers[%d]", tp, alias, prev))
			}
			triggerSeen[key] = i
		}
	}

	if p.Roster.TTL < 0 {
		errs = append(errs, fmt.Errorf("%s.roster.ttl must not be negative", prefix))
	}
	if p.Stream.MaxBufferChars < p.Stream.TokenProcessThreshold {
		errs = append(errs, fmt.Errorf("%s.stream.max_buffer_chars (%d) must be at least token_process_threshold (%d)",
			prefix, p.Stream.MaxBufferChars, p.Stream.TokenProcessThreshold))
	}

	return errs
}

func isValidMatchKind(k string) bool {
	for _, v := range validMatchKinds {
		if strings.EqualFold(k, v) {
			return true
		}
	}
	return false
}
