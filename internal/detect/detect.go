// Package detect turns a compiled pattern bundle and a text buffer into the
// set of candidate speaker detections. It is the per-token hot path: one
// scan walks every enabled signal kind over the buffer and reports each
// name occurrence with its kind, position, and priority rank.
package detect

import (
	"regexp"
	"strings"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/pattern"
)

// Kind is the linguistic signal category of a detection.
type Kind string

const (
	// KindSpeaker is a "Name:" speaker tag at the start of a line.
	KindSpeaker Kind = "speaker"

	// KindAttribution is a speech attribution ("Name said", "said Name").
	KindAttribution Kind = "attribution"

	// KindAction is a narration action ("Name nodded").
	KindAction Kind = "action"

	// KindPronoun is a pronoun resolved against the last known subject.
	KindPronoun Kind = "pronoun"

	// KindVocative is a name set off by punctuation ("Hello, Name!").
	KindVocative Kind = "vocative"

	// KindPossessive is a possessive form ("Name's").
	KindPossessive Kind = "possessive"

	// KindName is a plain name mention with no stronger signal.
	KindName Kind = "name"
)

// IsValid reports whether k is a recognised detection kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindSpeaker, KindAttribution, KindAction, KindPronoun, KindVocative, KindPossessive, KindName:
		return true
	}
	return false
}

// ActiveTier is the priority rank at or above which a detection counts as
// an "active" signal (speaking or acting, rather than merely mentioned).
const ActiveTier = 3

// Detection is one candidate name occurrence found by a scan. Detections
// are ephemeral: produced fresh per scan and never persisted.
type Detection struct {
	// Name is the canonical configured character name. Empty only for
	// unresolved pronouns under the "emit" fallback.
	Name string

	// Kind is the signal category that produced the detection.
	Kind Kind

	// Index is the byte offset of the name within the scanned buffer.
	Index int

	// Priority is the configured rank for Kind.
	Priority int
}

// PriorityFor returns the configured priority rank for a detection kind.
func PriorityFor(w config.Weights, k Kind) int {
	switch k {
	case KindSpeaker:
		return w.Speaker
	case KindAttribution:
		return w.Attribution
	case KindAction:
		return w.Action
	case KindPronoun:
		return w.Pronoun
	case KindVocative:
		return w.Vocative
	case KindPossessive:
		return w.Possessive
	default:
		return w.GeneralName
	}
}

// Scanner runs detection scans against one compiled bundle. It is
// read-only after construction and safe for concurrent use.
type Scanner struct {
	bundle    *pattern.Bundle
	weights   config.Weights
	fallback  config.PronounFallback
	canonical map[string]string // lowercased name -> configured casing
}

// NewScanner pairs a compiled bundle with the profile's weights and
// pronoun-fallback mode.
func NewScanner(b *pattern.Bundle, p *config.Profile) *Scanner {
	s := &Scanner{
		bundle:    b,
		weights:   p.Weights,
		fallback:  p.Detection.PronounsWithoutSubject,
		canonical: make(map[string]string, len(b.Names)),
	}
	for _, n := range b.Names {
		s.canonical[strings.ToLower(n)] = n
	}
	return s
}

// VetoIndex returns the byte offset of the first veto-phrase match in text,
// or -1 when no veto phrase is present (or none is configured).
func (s *Scanner) VetoIndex(text string) int {
	if s.bundle.Veto == nil {
		return -1
	}
	loc := s.bundle.Veto.FindStringIndex(text)
	if loc == nil {
		return -1
	}
	return loc[0]
}

// Scan reports every candidate detection in text. lastSubject is the most
// recent non-pronoun subject, used to resolve pronoun detections; when it
// is empty, pronouns are dropped (or emitted nameless, per the profile's
// fallback mode). The result is unordered; callers sort as needed.
func (s *Scanner) Scan(text, lastSubject string) []Detection {
	var out []Detection
	b := s.bundle

	out = s.appendNameMatches(out, b.Speaker, KindSpeaker, text)
	out = s.appendNameMatches(out, b.AttributionPre, KindAttribution, text)
	out = s.appendNameMatches(out, b.AttributionPost, KindAttribution, text)
	out = s.appendNameMatches(out, b.Action, KindAction, text)
	out = s.appendNameMatches(out, b.Vocative, KindVocative, text)
	out = s.appendNameMatches(out, b.Possessive, KindPossessive, text)
	out = s.appendNameMatches(out, b.Name, KindName, text)
	out = s.appendPronounMatches(out, text, lastSubject)

	return out
}

// appendNameMatches appends one detection per occurrence of re's first
// capture group, skipping ignore-listed names.
func (s *Scanner) appendNameMatches(dst []Detection, re *regexp.Regexp, kind Kind, text string) []Detection {
	if re == nil {
		return dst
	}
	for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
		start, end := m[2], m[3]
		if start < 0 {
			continue
		}
		raw := text[start:end]
		if s.bundle.IsIgnored(raw) {
			continue
		}
		dst = append(dst, Detection{
			Name:     s.canonicalName(raw),
			Kind:     kind,
			Index:    start,
			Priority: PriorityFor(s.weights, kind),
		})
	}
	return dst
}

// appendPronounMatches resolves pronoun occurrences against lastSubject.
func (s *Scanner) appendPronounMatches(dst []Detection, text, lastSubject string) []Detection {
	if s.bundle.Pronoun == nil {
		return dst
	}
	if lastSubject != "" && s.bundle.IsIgnored(lastSubject) {
		return dst
	}
	resolved := s.canonicalName(lastSubject)
	for _, m := range s.bundle.Pronoun.FindAllStringSubmatchIndex(text, -1) {
		start := m[2]
		if start < 0 {
			continue
		}
		if resolved == "" && s.fallback == config.PronounDrop {
			continue
		}
		dst = append(dst, Detection{
			Name:     resolved,
			Kind:     KindPronoun,
			Index:    start,
			Priority: PriorityFor(s.weights, KindPronoun),
		})
	}
	return dst
}

// canonicalName maps a raw match back to the configured casing. Unknown
// names (possible via pronoun subjects) pass through unchanged.
func (s *Scanner) canonicalName(raw string) string {
	if c, ok := s.canonical[strings.ToLower(raw)]; ok {
		return c
	}
	return raw
}
