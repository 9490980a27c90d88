package pattern_test

import (
	"errors"
	"testing"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/pattern"
)

func testProfile(names ...string) *config.Profile {
	p := config.DefaultProfile()
	p.Patterns = names
	p.Normalize()
	return p
}

func compile(t *testing.T, p *config.Profile) *pattern.Bundle {
	t.Helper()
	b, err := pattern.Compile(p)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	return b
}

func TestCompileSpeakerTag(t *testing.T) {
	t.Parallel()
	b := compile(t, testProfile("Alice"))

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"line start", "Alice: we should go", true},
		{"after newline", "narration\nAlice: fine", true},
		{"indented", "\n  Alice: fine", true},
		{"fullwidth colon", "Alice： fine", true},
		{"mid line", "and then Alice: said", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := b.Speaker.MatchString(tt.text); got != tt.want {
				t.Errorf("Speaker.MatchString(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestCompileAttribution(t *testing.T) {
	t.Parallel()
	b := compile(t, testProfile("Alice"))

	for _, text := range []string{
		"Alice said it was late.",
		"Alice softly whispered the name.",
		`"Go," said Alice.`,
	} {
		pre := b.AttributionPre.MatchString(text)
		post := b.AttributionPost.MatchString(text)
		if !pre && !post {
			t.Errorf("no attribution match in %q", text)
		}
	}

	if b.AttributionPre.MatchString("Malice said nothing.") {
		t.Error("attribution matched inside a longer word")
	}
}

func TestCompileLongestNameWinsAtPosition(t *testing.T) {
	t.Parallel()
	b := compile(t, testProfile("Ali", "Alice"))

	m := b.Name.FindStringSubmatch("Alice waved.")
	if m == nil || m[1] != "Alice" {
		t.Fatalf("Name match = %v, want the longer name captured", m)
	}
}

func TestCompileNameUnicodeBoundaries(t *testing.T) {
	t.Parallel()
	b := compile(t, testProfile("Žofie"))

	if !b.Name.MatchString("Then Žofie smiled.") {
		t.Error("name with diacritics not matched")
	}
	if b.Name.MatchString("Žofiela entered.") {
		t.Error("name matched inside a longer word")
	}
}

func TestCompileVetoEscapesMetacharacters(t *testing.T) {
	t.Parallel()
	p := testProfile("Alice")
	p.VetoPhrases = []string{"(OOC)"}
	b := compile(t, p)

	if !b.Veto.MatchString("(ooc) pausing here") {
		t.Error("veto phrase not matched case-insensitively")
	}
	if b.Veto.MatchString("OOC without parens") {
		t.Error("veto metacharacters were not escaped")
	}
}

func TestCompileDisabledKindsAreNil(t *testing.T) {
	t.Parallel()
	p := testProfile("Alice")
	p.Detection.Speaker = false
	p.Detection.Possessive = false
	b := compile(t, p)

	if b.Speaker != nil {
		t.Error("Speaker compiled despite being disabled")
	}
	if b.Possessive != nil {
		t.Error("Possessive compiled despite being disabled")
	}
	if b.AttributionPre == nil {
		t.Error("Attribution missing despite being enabled")
	}
}

func TestCompileIgnoredNames(t *testing.T) {
	t.Parallel()
	p := testProfile("Alice", "Narrator")
	p.IgnorePatterns = []string{"Narrator"}
	b := compile(t, p)

	if !b.IsIgnored("narrator") || !b.IsIgnored("NARRATOR") {
		t.Error("IsIgnored() not case-insensitive")
	}
	if b.IsIgnored("Alice") {
		t.Error("IsIgnored() flagged a configured name")
	}
}

func TestCompileNoNames(t *testing.T) {
	t.Parallel()
	b := compile(t, testProfile())

	if b.Name != nil || b.Speaker != nil || b.AttributionPre != nil {
		t.Error("name-based patterns compiled without any configured names")
	}
}

func TestCompileBadVariantTrigger(t *testing.T) {
	t.Parallel()
	p := testProfile("Alice")
	p.Mappings = []config.Mapping{{
		Name:   "Alice",
		Folder: "alice",
		Variants: []config.Variant{
			{Folder: "alice/winter", Triggers: []string{"/("}},
		},
	}}

	_, err := pattern.Compile(p)
	var ce *pattern.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("Compile() error = %v, want *CompileError", err)
	}
	if ce.Part != "variant trigger" {
		t.Errorf("CompileError.Part = %q, want variant trigger", ce.Part)
	}
}

func TestCompileNilProfile(t *testing.T) {
	t.Parallel()
	if _, err := pattern.Compile(nil); err == nil {
		t.Fatal("Compile(nil) = nil error")
	}
}
