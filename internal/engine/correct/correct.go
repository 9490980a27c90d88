// Package correct rewrites near-miss name tokens in streamed text onto the
// configured character names, so a model that misspells "Alyce" still
// drives detection for "Alice".
//
// Matching runs in two stages: Double Metaphone codes filter phonetic
// candidates, then Jaro-Winkler similarity ranks them. A candidate with
// phonetic overlap is accepted above a lower threshold; without overlap a
// stricter pure-similarity threshold applies.
package correct

import (
	"regexp"
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.90

	// Tokens shorter than this are never corrected; short words collide
	// phonetically with too many names.
	minTokenLen = 3
)

var wordToken = regexp.MustCompile(`[\p{L}][\p{L}'’]*`)

// Option configures a [Corrector].
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a
// phonetically-overlapping candidate. Default: 0.80.
func WithPhoneticThreshold(t float64) Option {
	return func(c *Corrector) { c.phoneticThreshold = t }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate overlaps. Default: 0.90.
func WithFuzzyThreshold(t float64) Option {
	return func(c *Corrector) { c.fuzzyThreshold = t }
}

type target struct {
	name  string
	lower string
	codes map[string]struct{}
}

// Corrector maps misspelled tokens onto a fixed set of character names.
// Read-only after construction and safe for concurrent use.
type Corrector struct {
	phoneticThreshold float64
	fuzzyThreshold    float64

	targets []target
	exact   map[string]struct{} // lowercased names, left untouched
}

// New builds a corrector for the given character names. Multi-word names
// are matched token-wise against their individual words.
func New(names []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
		exact:             make(map[string]struct{}, len(names)),
	}
	for _, o := range opts {
		o(c)
	}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		lower := strings.ToLower(name)
		c.exact[lower] = struct{}{}
		t := target{name: name, lower: lower, codes: make(map[string]struct{}, 2)}
		for _, tok := range strings.Fields(lower) {
			c.exact[tok] = struct{}{}
			p, s := matchr.DoubleMetaphone(tok)
			if p != "" {
				t.codes[p] = struct{}{}
			}
			if s != "" {
				t.codes[s] = struct{}{}
			}
		}
		c.targets = append(c.targets, t)
	}
	return c
}

// Match finds the configured name closest to word. When matched is false,
// corrected equals word unchanged and confidence is 0.
func (c *Corrector) Match(word string) (corrected string, confidence float64, matched bool) {
	lower := strings.ToLower(strings.TrimSpace(word))
	if len([]rune(lower)) < minTokenLen {
		return word, 0, false
	}
	if _, ok := c.exact[lower]; ok {
		return word, 0, false
	}

	p, s := matchr.DoubleMetaphone(lower)

	type candidate struct {
		name     string
		score    float64
		phonetic bool
	}
	var best candidate

	for _, t := range c.targets {
		_, pOK := t.codes[p]
		_, sOK := t.codes[s]
		phonetic := (p != "" && pOK) || (s != "" && sOK)
		score := jwScore(lower, t)

		if phonetic {
			if score >= c.phoneticThreshold && (!best.phonetic || score > best.score) {
				best = candidate{name: t.name, score: score, phonetic: true}
			}
		} else if !best.phonetic && score >= c.fuzzyThreshold && score > best.score {
			best = candidate{name: t.name, score: score}
		}
	}

	if best.name == "" {
		return word, 0, false
	}
	return best.name, best.score, true
}

// Apply rewrites every correctable token in text and returns the result.
// Tokens that already equal a configured name (or one of its words) are
// left untouched. Apply is deterministic: identical input always yields
// identical output.
func (c *Corrector) Apply(text string) string {
	if len(c.targets) == 0 {
		return text
	}
	return wordToken.ReplaceAllStringFunc(text, func(tok string) string {
		corrected, _, ok := c.Match(tok)
		if !ok {
			return tok
		}
		return corrected
	})
}

// jwScore is the best Jaro-Winkler similarity between the token and the
// full name or any of its words.
func jwScore(lower string, t target) float64 {
	score := matchr.JaroWinkler(lower, t.lower, false)
	if strings.ContainsRune(t.lower, ' ') {
		for _, w := range strings.Fields(t.lower) {
			if s := matchr.JaroWinkler(lower, w, false); s > score {
				score = s
			}
		}
	}
	return score
}
