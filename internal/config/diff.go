package config

import "slices"

// ProfileDiff describes what changed between two profile snapshots, split
// by what the change requires of the engine: a pattern recompile, a tuning
// refresh (applied on the next scan without recompiling), or a mapping
// refresh for the outfit resolver.
type ProfileDiff struct {
	// RecompileNeeded is true when name patterns, the ignore list, veto
	// phrases, vocabulary tables, or detection toggles changed. The
	// compiled bundle is stale and must be rebuilt before the next scan.
	RecompileNeeded bool

	// TuningChanged is true when weights, cooldowns, roster settings, or
	// stream tuning changed. No recompilation is required.
	TuningChanged bool

	// MappingsChanged is true when the mapping list, variants, manual
	// triggers, or the outfits toggle changed.
	MappingsChanged bool
}

// Changed reports whether any difference was found.
func (d ProfileDiff) Changed() bool {
	return d.RecompileNeeded || d.TuningChanged || d.MappingsChanged
}

// DiffProfiles compares two profiles and reports what the engine must do to
// pick up the change. Either argument may be nil; a nil-to-profile (or
// reverse) transition requires recompilation.
func DiffProfiles(old, new *Profile) ProfileDiff {
	if old == nil || new == nil {
		if old == new {
			return ProfileDiff{}
		}
		return ProfileDiff{RecompileNeeded: true, TuningChanged: true, MappingsChanged: true}
	}

	d := ProfileDiff{}

	if !slices.Equal(old.Patterns, new.Patterns) ||
		!slices.Equal(old.IgnorePatterns, new.IgnorePatterns) ||
		!slices.Equal(old.VetoPhrases, new.VetoPhrases) ||
		old.Detection != new.Detection ||
		!vocabularyEqual(old.Vocabulary, new.Vocabulary) {
		d.RecompileNeeded = true
	}

	if old.Weights != new.Weights ||
		old.Cooldowns != new.Cooldowns ||
		old.Roster != new.Roster ||
		old.Stream != new.Stream {
		d.TuningChanged = true
	}

	if old.OutfitsEnabled != new.OutfitsEnabled ||
		!mappingsEqual(old.Mappings, new.Mappings) ||
		!triggersEqual(old.Triggers, new.Triggers) {
		d.MappingsChanged = true
	}

	return d
}

func vocabularyEqual(a, b Vocabulary) bool {
	return slices.Equal(a.Pronouns, b.Pronouns) &&
		slices.Equal(a.AttributionVerbs, b.AttributionVerbs) &&
		slices.Equal(a.ActionVerbs, b.ActionVerbs)
}

func mappingsEqual(a, b []Mapping) bool {
	return slices.EqualFunc(a, b, func(x, y Mapping) bool {
		return x.Name == y.Name && x.Folder == y.Folder && variantsEqual(x.Variants, y.Variants)
	})
}

func variantsEqual(a, b []Variant) bool {
	return slices.EqualFunc(a, b, func(x, y Variant) bool {
		return x.Label == y.Label && x.Folder == y.Folder &&
			slices.Equal(x.Triggers, y.Triggers) &&
			slices.Equal(x.MatchKinds, y.MatchKinds) &&
			slices.Equal(x.Requires, y.Requires) &&
			slices.Equal(x.RequiresAny, y.RequiresAny) &&
			slices.Equal(x.Excludes, y.Excludes)
	})
}

func triggersEqual(a, b []TriggerEntry) bool {
	return slices.EqualFunc(a, b, func(x, y TriggerEntry) bool {
		return x.Trigger == y.Trigger && x.Folder == y.Folder &&
			x.Patterns == y.Patterns && slices.Equal(x.Aliases, y.Aliases)
	})
}
