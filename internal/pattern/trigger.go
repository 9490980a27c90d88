package pattern

import (
	"errors"
	"regexp"
	"strings"
)

// errUnterminated reports a /regex trigger with no closing slash.
var errUnterminated = errors.New("unterminated regex (missing closing /)")

// Trigger is a parsed variant trigger: either a case-insensitive literal
// substring or an explicit /regex/ pattern.
type Trigger struct {
	// Raw is the trigger exactly as configured.
	Raw string

	// Literal is the lowercased literal form. Empty when Regex is set.
	Literal string

	// Regex is the compiled pattern for /regex/ triggers. Nil for literals.
	Regex *regexp.Regexp
}

// Matches reports whether the trigger fires on text. Literal triggers use a
// case-insensitive substring test; regex triggers always carry an implicit
// case-insensitive flag.
func (t Trigger) Matches(text string) bool {
	if t.Regex != nil {
		return t.Regex.MatchString(text)
	}
	if t.Literal == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), t.Literal)
}

// ParseTrigger parses a raw trigger string. A value of the form /body/flags
// is compiled as a regex (supported flags: i, m, s; i is always merged in).
// Anything else is a literal. An unterminated or invalid regex returns a
// [CompileError].
func ParseTrigger(raw string) (Trigger, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) >= 2 && strings.HasPrefix(trimmed, "/") {
		end := strings.LastIndex(trimmed, "/")
		if end == 0 {
			return Trigger{}, &CompileError{Part: "variant trigger", Source: raw,
				Err: errUnterminated}
		}
		body := trimmed[1:end]
		flags := trimmed[end+1:]

		flagSet := "i"
		for _, f := range flags {
			switch f {
			case 'i':
				// already implied
			case 'm', 's':
				flagSet += string(f)
			default:
				// Unknown flags (e.g. the JS-only "g") are ignored.
			}
		}

		re, err := regexp.Compile("(?" + flagSet + ")" + body)
		if err != nil {
			return Trigger{}, &CompileError{Part: "variant trigger", Source: raw, Err: err}
		}
		return Trigger{Raw: raw, Regex: re}, nil
	}

	return Trigger{Raw: raw, Literal: strings.ToLower(trimmed)}, nil
}

// ParseTriggers parses every entry, failing on the first invalid one.
func ParseTriggers(raw []string) ([]Trigger, error) {
	out := make([]Trigger, 0, len(raw))
	for _, r := range raw {
		t, err := ParseTrigger(r)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
