// Package outfit resolves a detected character to a costume folder via the
// variant resolver: triggers, match-kind filters, and scene-awareness
// predicates evaluated over one profile snapshot.
package outfit

import (
	"strings"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/detect"
	"github.com/sceneloom/costumier/internal/pattern"
)

// Reason explains why the resolver picked a folder.
type Reason string

const (
	// ReasonDefaultFolder means the mapping's default folder was used:
	// variants are disabled, absent, or none of them matched.
	ReasonDefaultFolder Reason = "default-folder"

	// ReasonTriggerMatch means a variant trigger fired on the scene text.
	ReasonTriggerMatch Reason = "trigger-match"

	// ReasonAwarenessMatch means a triggerless variant was selected by its
	// scene-awareness predicates.
	ReasonAwarenessMatch Reason = "awareness-match"

	// ReasonVariantDefault means a variant with neither triggers nor
	// awareness predicates matched by default.
	ReasonVariantDefault Reason = "variant-default"
)

// Roster answers scene-membership queries for awareness predicates.
type Roster interface {
	Contains(name string) bool
}

// Context carries the match-time inputs to a resolution.
type Context struct {
	// Text is the scene text the winning detection came from.
	Text string

	// Kind is the detection kind that produced the candidate.
	Kind detect.Kind

	// Roster is the current scene roster; nil means an empty scene.
	Roster Roster
}

// Resolution is the resolver's verdict.
type Resolution struct {
	// Folder is the normalized costume folder to switch to. Falls back to
	// the normalized character name when no mapping exists.
	Folder string

	// Reason explains the pick.
	Reason Reason

	// Mapping is the character name of the mapping used, if any.
	Mapping string

	// Label is the matched variant's label, if a variant won.
	Label string

	// Trigger is the raw trigger that fired, for trigger matches.
	Trigger string
}

type compiledVariant struct {
	variant  config.Variant
	folder   string
	triggers []pattern.Trigger
	kinds    map[detect.Kind]struct{}
}

type compiledMapping struct {
	name     string
	folder   string
	variants []compiledVariant
}

// Resolver picks costume folders for one profile snapshot. Build it once
// per profile compile; it is read-only afterwards and safe for concurrent
// use.
type Resolver struct {
	variantsOn bool
	mappings   map[string]compiledMapping // lowercased character name
}

// NewResolver compiles the profile's mappings. Invalid /regex/ variant
// triggers surface here as a [pattern.CompileError].
func NewResolver(p *config.Profile) (*Resolver, error) {
	r := &Resolver{
		variantsOn: p.OutfitsEnabled,
		mappings:   make(map[string]compiledMapping, len(p.Mappings)),
	}
	for _, m := range p.Mappings {
		cm := compiledMapping{name: m.Name, folder: config.NormalizeFolder(m.Folder)}
		for _, v := range m.Variants {
			ts, err := pattern.ParseTriggers(v.Triggers)
			if err != nil {
				return nil, err
			}
			cv := compiledVariant{variant: v, folder: config.NormalizeFolder(v.Folder), triggers: ts}
			if len(v.MatchKinds) > 0 {
				cv.kinds = make(map[detect.Kind]struct{}, len(v.MatchKinds))
				for _, k := range v.MatchKinds {
					cv.kinds[detect.Kind(strings.ToLower(k))] = struct{}{}
				}
			}
			cm.variants = append(cm.variants, cv)
		}
		r.mappings[strings.ToLower(m.Name)] = cm
	}
	return r, nil
}

// Resolve picks the folder for a character. With variants disabled or no
// variants configured it returns the mapping's default folder; otherwise
// variants are evaluated in declared order and the first one whose
// match-kind filter, trigger list, and awareness predicates all pass wins.
// When no mapping exists, the normalized character name itself is used as
// the folder.
func (r *Resolver) Resolve(name string, ctx Context) Resolution {
	m, ok := r.mappings[strings.ToLower(name)]
	if !ok {
		return Resolution{Folder: config.NormalizeFolder(name), Reason: ReasonDefaultFolder}
	}

	res := Resolution{Folder: m.folder, Reason: ReasonDefaultFolder, Mapping: m.name}
	if m.folder == "" {
		res.Folder = config.NormalizeFolder(name)
	}
	if !r.variantsOn || len(m.variants) == 0 {
		return res
	}

	for _, v := range m.variants {
		if v.folder == "" {
			continue
		}
		if v.kinds != nil {
			if _, ok := v.kinds[ctx.Kind]; !ok {
				continue
			}
		}
		if !awarenessSatisfied(v.variant, ctx.Roster) {
			continue
		}

		if len(v.triggers) == 0 {
			reason := ReasonVariantDefault
			if hasAwareness(v.variant) {
				reason = ReasonAwarenessMatch
			}
			return Resolution{Folder: v.folder, Reason: reason, Mapping: m.name, Label: v.variant.Label}
		}
		for _, t := range v.triggers {
			if t.Matches(ctx.Text) {
				return Resolution{Folder: v.folder, Reason: ReasonTriggerMatch,
					Mapping: m.name, Label: v.variant.Label, Trigger: t.Raw}
			}
		}
	}
	return res
}

func hasAwareness(v config.Variant) bool {
	return len(v.Requires) > 0 || len(v.RequiresAny) > 0 || len(v.Excludes) > 0
}

// awarenessSatisfied checks requires (all present), requiresAny (at least
// one), and excludes (none present) against the scene roster. A nil roster
// behaves as an empty scene.
func awarenessSatisfied(v config.Variant, roster Roster) bool {
	contains := func(name string) bool {
		return roster != nil && roster.Contains(name)
	}
	for _, n := range v.Requires {
		if !contains(n) {
			return false
		}
	}
	if len(v.RequiresAny) > 0 {
		any := false
		for _, n := range v.RequiresAny {
			if contains(n) {
				any = true
				break
			}
		}
		if !any {
			return false
		}
	}
	for _, n := range v.Excludes {
		if contains(n) {
			return false
		}
	}
	return true
}
