package config

import (
	"fmt"
	"strings"
)

// MigrateSettings upgrades a raw settings record — as persisted by the host
// chat UI in any historical schema version — into the current [Settings]
// shape. It is a pure function: raw is not modified, and the same input
// always produces the same output.
//
// Version detection: records carrying a "profiles" map are treated as v2;
// anything else is the v1 flat shape (characterName/defaultCostume plus a
// trigger table). An explicit "version" field wins when present.
func MigrateSettings(raw map[string]any) (*Settings, error) {
	if raw == nil {
		return DefaultSettings(), nil
	}

	version := intValue(raw["version"])
	if version == 0 {
		if _, ok := raw["profiles"]; ok {
			version = 2
		} else {
			version = 1
		}
	}
	if version > SchemaVersion {
		return nil, fmt.Errorf("config: settings version %d is newer than supported version %d", version, SchemaVersion)
	}

	var s *Settings
	switch version {
	case 1:
		s = migrateV1(raw)
	case 2:
		s = decodeV2(raw)
	}

	s.Version = SchemaVersion
	if s.Profiles == nil {
		s.Profiles = map[string]*Profile{}
	}
	if s.ActiveProfile == "" && len(s.Profiles) > 0 {
		if _, ok := s.Profiles["Default"]; ok {
			s.ActiveProfile = "Default"
		}
	}
	for _, p := range s.Profiles {
		p.Normalize()
	}
	return s, nil
}

// migrateV1 upgrades the flat v1 shape:
//
//	{enabled, characterName, defaultCostume, triggers: [{trigger, costume}]}
//
// into a single "Default" profile.
func migrateV1(raw map[string]any) *Settings {
	name := stringValue(raw, "characterName", "character")
	folder := stringValue(raw, "defaultCostume", "baseFolder")

	p := DefaultProfile()
	if name != "" {
		p.Patterns = []string{name}
		p.Mappings = []Mapping{{Name: name, Folder: folder}}
	}
	p.Triggers = decodeTriggers(raw["triggers"], "")

	return &Settings{
		Enabled:       boolValue(raw["enabled"]),
		ActiveProfile: "Default",
		Profiles:      map[string]*Profile{"Default": p},
	}
}

// decodeV2 reads the v2 host shape: a profiles map whose entries carry the
// legacy JS field names (character, baseFolder, variants, triggers).
func decodeV2(raw map[string]any) *Settings {
	s := &Settings{
		Enabled:       boolValue(raw["enabled"]),
		ActiveProfile: stringValue(raw, "activeProfile", "active_profile"),
		Profiles:      map[string]*Profile{},
	}

	profiles, _ := raw["profiles"].(map[string]any)
	for name, rawProfile := range profiles {
		entry, _ := rawProfile.(map[string]any)
		s.Profiles[name] = decodeProfile(entry)
	}
	return s
}

// decodeProfile converts one legacy profile record into a [Profile].
// Unknown keys are ignored; the legacy shape only ever carried a single
// character with a base folder, variant rows, and a trigger table.
func decodeProfile(raw map[string]any) *Profile {
	p := DefaultProfile()
	if raw == nil {
		return p
	}

	character := stringValue(raw, "character", "characterName")
	base := stringValue(raw, "baseFolder", "base_folder")

	if character != "" {
		p.Patterns = []string{character}
		m := Mapping{Name: character, Folder: base}
		for _, v := range listValue(raw["variants"]) {
			entry, _ := v.(map[string]any)
			if entry == nil {
				continue
			}
			m.Variants = append(m.Variants, Variant{
				Label:  stringValue(entry, "name", "label"),
				Folder: ComposePath(base, stringValue(entry, "folder")),
			})
		}
		p.Mappings = []Mapping{m}
	}

	p.Triggers = decodeTriggers(raw["triggers"], base)
	return p
}

// decodeTriggers converts a legacy trigger table. The folder historically
// lived in either "folder" or "costume"; aliases in "triggers" (list) or
// "patterns" (comma/newline separated). In the profile shape trigger
// folders are subfolders of the record's base folder; the flat shape
// carried full costume paths, so its callers pass an empty base.
func decodeTriggers(raw any, base string) []TriggerEntry {
	var out []TriggerEntry
	for _, item := range listValue(raw) {
		entry, _ := item.(map[string]any)
		if entry == nil {
			continue
		}
		t := TriggerEntry{
			Trigger:  stringValue(entry, "trigger"),
			Patterns: stringValue(entry, "patterns"),
			Folder:   ComposePath(base, stringValue(entry, "folder", "costume")),
		}
		for _, alias := range listValue(entry["triggers"]) {
			if s, ok := alias.(string); ok && strings.TrimSpace(s) != "" {
				t.Aliases = append(t.Aliases, strings.TrimSpace(s))
			}
		}
		if t.Trigger == "" && len(t.Aliases) == 0 && t.Patterns == "" {
			continue
		}
		out = append(out, t)
	}
	return out
}

func stringValue(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

func boolValue(v any) bool {
	b, _ := v.(bool)
	return b
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func listValue(v any) []any {
	l, _ := v.([]any)
	return l
}
