// Package vocab holds the verb and pronoun vocabularies used by the pattern
// compiler. Each verb carries its full inflection set so that a single
// configured lemma matches every tense that appears in streamed prose
// ("says", "said", "saying", ...).
//
// The package is pure data plus a couple of merge helpers; profiles may
// replace any table wholesale, in which case the defaults here are ignored.
package vocab

import (
	"slices"
	"strings"
)

// VerbForms holds the inflections of a single verb lemma. Empty fields are
// skipped when building alternations, so irregular verbs can leave gaps.
type VerbForms struct {
	// Base is the bare infinitive (e.g. "say").
	Base string `yaml:"base"`

	// ThirdPerson is the third-person singular present (e.g. "says").
	ThirdPerson string `yaml:"third_person"`

	// Past is the simple past (e.g. "said").
	Past string `yaml:"past"`

	// PastParticiple is the past participle (e.g. "said").
	PastParticiple string `yaml:"past_participle"`

	// PresentParticiple is the -ing form (e.g. "saying").
	PresentParticiple string `yaml:"present_participle"`
}

// Forms returns the non-empty, lowercased inflections of v in declaration
// order without deduplication.
func (v VerbForms) Forms() []string {
	out := make([]string, 0, 5)
	for _, f := range []string{v.Base, v.ThirdPerson, v.Past, v.PastParticiple, v.PresentParticiple} {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// regular builds a VerbForms for a regular verb from its base form.
// doubled is the stem used before -ed/-ing when the final consonant doubles
// ("nod" → "nodd"); pass "" to use the base unchanged.
func regular(base, doubled string) VerbForms {
	stem := base
	if doubled != "" {
		stem = doubled
	}
	edStem, ingStem := stem, stem
	if strings.HasSuffix(base, "e") && doubled == "" {
		edStem = strings.TrimSuffix(base, "e")
		ingStem = edStem
	}
	third := base + "s"
	switch {
	case strings.HasSuffix(base, "s"), strings.HasSuffix(base, "sh"), strings.HasSuffix(base, "ch"):
		third = base + "es"
	case strings.HasSuffix(base, "y") && len(base) > 1 && !strings.ContainsRune("aeiou", rune(base[len(base)-2])):
		third = base[:len(base)-1] + "ies"
		edStem = base[:len(base)-1] + "i"
		ingStem = base
	}
	past := edStem + "ed"
	return VerbForms{
		Base:              base,
		ThirdPerson:       third,
		Past:              past,
		PastParticiple:    past,
		PresentParticiple: ingStem + "ing",
	}
}

// irregular builds a VerbForms with explicit past forms.
func irregular(base, third, past, pastPart, presPart string) VerbForms {
	return VerbForms{
		Base:              base,
		ThirdPerson:       third,
		Past:              past,
		PastParticiple:    pastPart,
		PresentParticiple: presPart,
	}
}

// DefaultAttributionVerbs lists speech-attribution verbs ("Alice said ...").
// The set is tuned for short-form roleplay prose rather than completeness.
func DefaultAttributionVerbs() []VerbForms {
	return []VerbForms{
		irregular("say", "says", "said", "said", "saying"),
		irregular("speak", "speaks", "spoke", "spoken", "speaking"),
		irregular("tell", "tells", "told", "told", "telling"),
		regular("whisper", ""),
		regular("reply", ""),
		regular("ask", ""),
		regular("answer", ""),
		regular("shout", ""),
		regular("yell", ""),
		regular("murmur", ""),
		regular("mutter", ""),
		regular("mumble", ""),
		regular("exclaim", ""),
		regular("call", ""),
		regular("add", "add"),
		regular("continue", ""),
		regular("interject", ""),
		regular("declare", ""),
		regular("announce", ""),
		regular("respond", ""),
		regular("state", ""),
		regular("remark", ""),
		regular("growl", ""),
		regular("hiss", ""),
		regular("snap", "snapp"),
		regular("purr", ""),
	}
}

// DefaultActionVerbs lists narration verbs that mark a character as the one
// acting in the scene ("Alice nodded ...").
func DefaultActionVerbs() []VerbForms {
	return []VerbForms{
		regular("nod", "nodd"),
		regular("smile", ""),
		regular("laugh", ""),
		regular("sigh", ""),
		regular("shrug", "shrugg"),
		regular("frown", ""),
		regular("grin", "grinn"),
		regular("gasp", ""),
		regular("blink", ""),
		regular("chuckle", ""),
		regular("giggle", ""),
		regular("smirk", ""),
		regular("wince", ""),
		regular("glance", ""),
		regular("stare", ""),
		regular("gaze", ""),
		regular("turn", ""),
		regular("step", "stepp"),
		regular("walk", ""),
		regular("pause", ""),
		irregular("lean", "leans", "leaned", "leaned", "leaning"),
		irregular("rise", "rises", "rose", "risen", "rising"),
		irregular("stand", "stands", "stood", "stood", "standing"),
		irregular("sit", "sits", "sat", "sat", "sitting"),
		irregular("shake", "shakes", "shook", "shaken", "shaking"),
		irregular("take", "takes", "took", "taken", "taking"),
		regular("reach", ""),
		regular("point", ""),
		regular("gesture", ""),
		regular("tilt", ""),
		regular("stretch", ""),
		regular("cross", ""),
	}
}

// DefaultPronouns lists the third-person pronoun surface forms the detector
// resolves against the last known subject.
func DefaultPronouns() []string {
	return []string{
		"he", "him", "his", "himself",
		"she", "her", "hers", "herself",
		"they", "them", "their", "theirs", "themselves",
	}
}

// Alternation merges the inflections of all verbs into a single deduplicated
// list ordered by descending length, so a regex alternation built from it
// prefers the longest form at any position ("whispered" before "whisper").
func Alternation(verbs []VerbForms) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, v := range verbs {
		for _, f := range v.Forms() {
			if _, ok := seen[f]; ok {
				continue
			}
			seen[f] = struct{}{}
			out = append(out, f)
		}
	}
	slices.SortStableFunc(out, func(a, b string) int {
		if d := len(b) - len(a); d != 0 {
			return d
		}
		return strings.Compare(a, b)
	})
	return out
}

// NormalizeWords lowercases, trims, and deduplicates a word list, dropping
// empties. Used for pronoun tables and ignore lists from profiles.
func NormalizeWords(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}
