package outfit_test

import (
	"errors"
	"testing"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/detect"
	"github.com/sceneloom/costumier/internal/outfit"
	"github.com/sceneloom/costumier/internal/pattern"
	"github.com/sceneloom/costumier/internal/roster"
)

func newResolver(t *testing.T, p *config.Profile) *outfit.Resolver {
	t.Helper()
	p.Normalize()
	r, err := outfit.NewResolver(p)
	if err != nil {
		t.Fatalf("NewResolver() error = %v", err)
	}
	return r
}

func winterProfile() *config.Profile {
	p := config.DefaultProfile()
	p.Patterns = []string{"Alice"}
	p.OutfitsEnabled = true
	p.Mappings = []config.Mapping{{
		Name:   "Alice",
		Folder: "alice/base",
		Variants: []config.Variant{{
			Label:    "Winter",
			Folder:   "alice/winter",
			Triggers: []string{"winter"},
		}},
	}}
	return p
}

func TestResolveTriggerMatch(t *testing.T) {
	t.Parallel()
	r := newResolver(t, winterProfile())

	res := r.Resolve("Alice", outfit.Context{Text: "Snow fell; winter had come.", Kind: detect.KindAttribution})
	if res.Folder != "alice/winter" || res.Reason != outfit.ReasonTriggerMatch {
		t.Fatalf("Resolve() = %+v, want alice/winter via trigger-match", res)
	}
	if res.Trigger != "winter" || res.Label != "Winter" {
		t.Errorf("Resolve() trigger/label = %q/%q, want winter/Winter", res.Trigger, res.Label)
	}
}

func TestResolveDefaultWhenNoTriggerFires(t *testing.T) {
	t.Parallel()
	r := newResolver(t, winterProfile())

	res := r.Resolve("Alice", outfit.Context{Text: "A sunny afternoon.", Kind: detect.KindAttribution})
	if res.Folder != "alice/base" || res.Reason != outfit.ReasonDefaultFolder {
		t.Fatalf("Resolve() = %+v, want alice/base via default-folder", res)
	}
}

func TestResolveOutfitsDisabled(t *testing.T) {
	t.Parallel()
	p := winterProfile()
	p.OutfitsEnabled = false
	r := newResolver(t, p)

	res := r.Resolve("Alice", outfit.Context{Text: "winter winter winter"})
	if res.Folder != "alice/base" || res.Reason != outfit.ReasonDefaultFolder {
		t.Fatalf("Resolve() = %+v, want default folder with variants disabled", res)
	}
}

func TestResolveUnmappedName(t *testing.T) {
	t.Parallel()
	r := newResolver(t, winterProfile())

	res := r.Resolve("Bob", outfit.Context{})
	if res.Folder != "Bob" || res.Reason != outfit.ReasonDefaultFolder {
		t.Fatalf("Resolve() = %+v, want the name itself as folder", res)
	}
}

func TestResolveMatchKindFilter(t *testing.T) {
	t.Parallel()
	p := winterProfile()
	p.Mappings[0].Variants[0].MatchKinds = []string{"speaker"}
	r := newResolver(t, p)

	ctx := outfit.Context{Text: "winter", Kind: detect.KindName}
	if res := r.Resolve("Alice", ctx); res.Reason != outfit.ReasonDefaultFolder {
		t.Fatalf("Resolve() = %+v, want kind-filtered variant skipped", res)
	}
	ctx.Kind = detect.KindSpeaker
	if res := r.Resolve("Alice", ctx); res.Reason != outfit.ReasonTriggerMatch {
		t.Fatalf("Resolve() = %+v, want variant to fire for allowed kind", res)
	}
}

func TestResolveRegexTrigger(t *testing.T) {
	t.Parallel()
	p := winterProfile()
	p.Mappings[0].Variants[0].Triggers = []string{`/sno(w|wy)/`}
	r := newResolver(t, p)

	res := r.Resolve("Alice", outfit.Context{Text: "A SNOWY evening."})
	if res.Reason != outfit.ReasonTriggerMatch {
		t.Fatalf("Resolve() = %+v, want case-insensitive regex trigger match", res)
	}
}

func TestResolveAwarenessPredicates(t *testing.T) {
	t.Parallel()
	p := winterProfile()
	p.Mappings[0].Variants = []config.Variant{{
		Label:    "Duet",
		Folder:   "alice/duet",
		Requires: []string{"Bob"},
		Excludes: []string{"Carol"},
	}}
	r := newResolver(t, p)

	scene := roster.New(3)

	// Bob absent: requires fails.
	if res := r.Resolve("Alice", outfit.Context{Roster: scene}); res.Reason != outfit.ReasonDefaultFolder {
		t.Fatalf("Resolve() = %+v, want default with requires unmet", res)
	}

	scene.Note("Bob")
	res := r.Resolve("Alice", outfit.Context{Roster: scene})
	if res.Folder != "alice/duet" || res.Reason != outfit.ReasonAwarenessMatch {
		t.Fatalf("Resolve() = %+v, want awareness-match with Bob present", res)
	}

	scene.Note("Carol")
	if res := r.Resolve("Alice", outfit.Context{Roster: scene}); res.Reason != outfit.ReasonDefaultFolder {
		t.Fatalf("Resolve() = %+v, want default with excluded Carol present", res)
	}
}

func TestResolveRequiresAny(t *testing.T) {
	t.Parallel()
	p := winterProfile()
	p.Mappings[0].Variants = []config.Variant{{
		Folder:      "alice/party",
		RequiresAny: []string{"Bob", "Carol"},
	}}
	r := newResolver(t, p)

	if res := r.Resolve("Alice", outfit.Context{}); res.Reason != outfit.ReasonDefaultFolder {
		t.Fatalf("Resolve() = %+v, want default with empty scene", res)
	}
	scene := roster.New(3)
	scene.Note("carol")
	if res := r.Resolve("Alice", outfit.Context{Roster: scene}); res.Folder != "alice/party" {
		t.Fatalf("Resolve() = %+v, want requiresAny satisfied by Carol", res)
	}
}

func TestResolveVariantByDefault(t *testing.T) {
	t.Parallel()
	p := winterProfile()
	p.Mappings[0].Variants = []config.Variant{{Folder: "alice/always"}}
	r := newResolver(t, p)

	res := r.Resolve("Alice", outfit.Context{Text: "anything"})
	if res.Folder != "alice/always" || res.Reason != outfit.ReasonVariantDefault {
		t.Fatalf("Resolve() = %+v, want triggerless variant matched by default", res)
	}
}

func TestResolveSkipsEmptyFolderVariant(t *testing.T) {
	t.Parallel()
	p := winterProfile()
	p.Mappings[0].Variants = append([]config.Variant{{Triggers: []string{"winter"}}}, p.Mappings[0].Variants...)
	r := newResolver(t, p)

	res := r.Resolve("Alice", outfit.Context{Text: "deep winter"})
	if res.Folder != "alice/winter" {
		t.Fatalf("Resolve() = %+v, want empty-folder variant skipped", res)
	}
}

func TestNewResolverBadRegexTrigger(t *testing.T) {
	t.Parallel()
	p := winterProfile()
	p.Mappings[0].Variants[0].Triggers = []string{"/unterminated"}

	_, err := outfit.NewResolver(p)
	var ce *pattern.CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("NewResolver() error = %v, want *pattern.CompileError", err)
	}
}
