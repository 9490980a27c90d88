// Package pattern compiles a profile snapshot into the regex bundle the
// detector scans with. Compilation happens once per profile edit, never on
// the per-token hot path.
//
// All user-supplied names are embedded as escaped literals; the only inputs
// that can fail to compile are explicit /regex/ trigger patterns, and those
// failures are reported loudly as a [CompileError] so the caller can
// disable detection until the profile is corrected.
package pattern

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/vocab"
)

// Word-boundary fragments built on Unicode classes instead of \b, so names
// with diacritics or non-Latin scripts keep working.
const (
	wordStart = `(?:^|[^\p{L}\p{N}_])`
	wordEnd   = `(?:[^\p{L}\p{N}_]|$)`
)

// CompileError reports which part of a profile failed to compile.
type CompileError struct {
	// Part names the failing pattern group (e.g. "veto", "variant trigger").
	Part string

	// Source is the offending user input.
	Source string

	// Err is the underlying regexp error.
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("pattern: compile %s %q: %v", e.Part, e.Source, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Bundle is the compiled output of one profile snapshot. Fields for
// disabled signal kinds are nil. A Bundle is immutable after compilation
// and safe for concurrent use.
type Bundle struct {
	// Veto matches any configured veto phrase. Nil when no phrases are set.
	Veto *regexp.Regexp

	// Speaker matches a "Name:" speaker tag at the start of a line.
	Speaker *regexp.Regexp

	// AttributionPre matches "Name said"-style attribution (name first).
	AttributionPre *regexp.Regexp

	// AttributionPost matches "said Name"-style attribution (verb first).
	AttributionPost *regexp.Regexp

	// Action matches "Name nodded"-style narration.
	Action *regexp.Regexp

	// Vocative matches a name set off by trailing punctuation.
	Vocative *regexp.Regexp

	// Possessive matches "Name's".
	Possessive *regexp.Regexp

	// Pronoun matches a configured pronoun as a whole word.
	Pronoun *regexp.Regexp

	// Name matches any configured name as a whole word.
	Name *regexp.Regexp

	// Ignored holds lowercased names that must never produce a detection.
	Ignored map[string]struct{}

	// Names holds the configured name patterns after trimming, in profile
	// order and original casing. Used for fuzzy correction and ranking.
	Names []string
}

// IsIgnored reports whether name is on the profile's ignore list.
func (b *Bundle) IsIgnored(name string) bool {
	_, ok := b.Ignored[strings.ToLower(name)]
	return ok
}

// Compile builds a [Bundle] from a normalized profile. Variant triggers are
// parsed here as well so that a bad /regex/ surfaces at compile time rather
// than mid-stream; the parsed forms are discarded (the outfit resolver
// keeps its own copies).
func Compile(p *config.Profile) (*Bundle, error) {
	if p == nil {
		return nil, fmt.Errorf("pattern: nil profile")
	}

	b := &Bundle{
		Ignored: make(map[string]struct{}, len(p.IgnorePatterns)),
		Names:   slices.Clone(p.Patterns),
	}
	for _, n := range p.IgnorePatterns {
		b.Ignored[strings.ToLower(n)] = struct{}{}
	}

	nameAlt := literalAlternation(p.Patterns)
	var err error

	if len(p.VetoPhrases) > 0 {
		if b.Veto, err = compilePart("veto", `(?i)`+literalAlternation(p.VetoPhrases)); err != nil {
			return nil, err
		}
	}

	if nameAlt != "" {
		d := p.Detection
		if d.Speaker {
			if b.Speaker, err = compilePart("speaker",
				`(?i)(?:^|\n)\s*(`+nameAlt+`)\s*[:：]`); err != nil {
				return nil, err
			}
		}
		if d.Attribution {
			verbAlt := formAlternation(p.Vocabulary.AttributionOrDefault())
			if b.AttributionPre, err = compilePart("attribution",
				`(?i)`+wordStart+`(`+nameAlt+`)\s+(?:\p{L}+ly\s+)?(?:`+verbAlt+`)`+wordEnd); err != nil {
				return nil, err
			}
			if b.AttributionPost, err = compilePart("attribution",
				`(?i)`+wordStart+`(?:`+verbAlt+`)\s+(`+nameAlt+`)`+wordEnd); err != nil {
				return nil, err
			}
		}
		if d.Action {
			verbAlt := formAlternation(p.Vocabulary.ActionOrDefault())
			if b.Action, err = compilePart("action",
				`(?i)`+wordStart+`(`+nameAlt+`)\s+(?:\p{L}+ly\s+)?(?:`+verbAlt+`)`+wordEnd); err != nil {
				return nil, err
			}
		}
		if d.Vocative {
			if b.Vocative, err = compilePart("vocative",
				`(?i)`+wordStart+`(`+nameAlt+`)[,.!?;…]`); err != nil {
				return nil, err
			}
		}
		if d.Possessive {
			if b.Possessive, err = compilePart("possessive",
				`(?i)`+wordStart+`(`+nameAlt+`)['’]s`+wordEnd); err != nil {
				return nil, err
			}
		}
		if d.GeneralName {
			if b.Name, err = compilePart("name",
				`(?i)`+wordStart+`(`+nameAlt+`)`+wordEnd); err != nil {
				return nil, err
			}
		}
	}

	if p.Detection.Pronoun {
		proAlt := literalAlternation(p.Vocabulary.PronounsOrDefault())
		if proAlt != "" {
			if b.Pronoun, err = compilePart("pronoun",
				`(?i)`+wordStart+`(`+proAlt+`)`+wordEnd); err != nil {
				return nil, err
			}
		}
	}

	// Validate variant and manual triggers now so errors surface at
	// compile time.
	for _, m := range p.Mappings {
		for _, v := range m.Variants {
			for _, raw := range v.Triggers {
				if _, err := ParseTrigger(raw); err != nil {
					return nil, err
				}
			}
		}
	}

	return b, nil
}

func compilePart(part, expr string) (*regexp.Regexp, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &CompileError{Part: part, Source: expr, Err: err}
	}
	return re, nil
}

// literalAlternation escapes the given literals and joins them into a regex
// alternation ordered longest-first, so more specific names win at a given
// position. Returns "" for an empty list.
func literalAlternation(literals []string) string {
	if len(literals) == 0 {
		return ""
	}
	sorted := slices.Clone(literals)
	slices.SortStableFunc(sorted, func(a, b string) int {
		return len(b) - len(a)
	})
	quoted := make([]string, 0, len(sorted))
	for _, l := range sorted {
		if l != "" {
			quoted = append(quoted, regexp.QuoteMeta(l))
		}
	}
	return strings.Join(quoted, "|")
}

// formAlternation merges all verb inflections into one alternation.
func formAlternation(verbs []vocab.VerbForms) string {
	forms := vocab.Alternation(verbs)
	quoted := make([]string, len(forms))
	for i, f := range forms {
		quoted[i] = regexp.QuoteMeta(f)
	}
	return strings.Join(quoted, "|")
}
