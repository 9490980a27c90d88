package vocab_test

import (
	"slices"
	"testing"

	"github.com/sceneloom/costumier/internal/vocab"
)

func TestVerbFormsForms(t *testing.T) {
	t.Parallel()
	v := vocab.VerbForms{Base: "Say", ThirdPerson: "says", Past: "said", PastParticiple: "said", PresentParticiple: "saying"}
	got := v.Forms()
	want := []string{"say", "says", "said", "said", "saying"}
	if !slices.Equal(got, want) {
		t.Errorf("Forms() = %v, want %v", got, want)
	}
}

func TestVerbFormsSkipsEmpty(t *testing.T) {
	t.Parallel()
	v := vocab.VerbForms{Base: "nod", Past: "nodded"}
	got := v.Forms()
	want := []string{"nod", "nodded"}
	if !slices.Equal(got, want) {
		t.Errorf("Forms() = %v, want %v", got, want)
	}
}

func TestDefaultAttributionVerbsInflections(t *testing.T) {
	t.Parallel()
	forms := vocab.Alternation(vocab.DefaultAttributionVerbs())
	for _, want := range []string{"said", "says", "whispered", "whispering", "replied", "replies", "snapped", "exclaimed"} {
		if !slices.Contains(forms, want) {
			t.Errorf("attribution alternation missing %q", want)
		}
	}
}

func TestDefaultActionVerbsInflections(t *testing.T) {
	t.Parallel()
	forms := vocab.Alternation(vocab.DefaultActionVerbs())
	for _, want := range []string{"nodded", "nodding", "smiled", "shrugged", "shook", "sat", "stepped", "crosses"} {
		if !slices.Contains(forms, want) {
			t.Errorf("action alternation missing %q", want)
		}
	}
}

func TestAlternationDedupesAndOrdersByLength(t *testing.T) {
	t.Parallel()
	verbs := []vocab.VerbForms{
		{Base: "say", Past: "said", PastParticiple: "said"},
		{Base: "whisper", Past: "whispered"},
	}
	got := vocab.Alternation(verbs)

	count := 0
	for _, f := range got {
		if f == "said" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected exactly one %q entry, got %d", "said", count)
	}

	for i := 1; i < len(got); i++ {
		if len(got[i]) > len(got[i-1]) {
			t.Errorf("alternation not ordered by descending length: %v", got)
			break
		}
	}
	if got[0] != "whispered" {
		t.Errorf("expected longest form first, got %q", got[0])
	}
}

func TestNormalizeWords(t *testing.T) {
	t.Parallel()
	got := vocab.NormalizeWords([]string{" He ", "she", "HE", "", "they"})
	want := []string{"he", "she", "they"}
	if !slices.Equal(got, want) {
		t.Errorf("NormalizeWords() = %v, want %v", got, want)
	}
}
