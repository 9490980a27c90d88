package engine

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/sceneloom/costumier/internal/config"
)

func TestTrimKeepsRuneBoundaries(t *testing.T) {
	t.Parallel()

	p := config.DefaultProfile()
	p.Patterns = []string{"Zed"}
	p.Mappings = []config.Mapping{{Name: "Zed", Folder: "zed"}}
	p.Stream.MaxBufferChars = 80
	p.Normalize()
	settings := &config.Settings{
		Version:       config.SchemaVersion,
		Enabled:       true,
		ActiveProfile: "p",
		Profiles:      map[string]*config.Profile{"p": p},
	}

	e, err := New(settings, func(context.Context, string) error { return nil })
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	// 30 three-byte runes overflow an 80-byte cap at a byte offset that
	// falls inside a rune.
	e.StartMessage("m")
	e.Token(context.Background(), "m", strings.Repeat("世", 30))

	e.mu.Lock()
	s := e.sessions["m"]
	buf := s.buf.String()
	processed := s.processed
	e.mu.Unlock()

	if !utf8.ValidString(buf) {
		t.Fatalf("buffer after trim is not valid UTF-8: %q", buf)
	}
	if len(buf) > p.Stream.MaxBufferChars {
		t.Errorf("buffer len = %d, want at most %d", len(buf), p.Stream.MaxBufferChars)
	}
	if processed < 0 || processed > len(buf) {
		t.Errorf("processed cursor = %d out of range for buffer len %d", processed, len(buf))
	}
}
