// Package simulate replays a static text blob through the full streaming
// pipeline as if its characters arrived one at a time on a simulated
// clock. It exists for configuration validation: profile authors can see
// every detection outcome, switch, and skip their settings would produce,
// without touching production traffic.
package simulate

import (
	"context"
	"fmt"
	"time"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/engine"
	"github.com/sceneloom/costumier/internal/score"
)

// CharInterval is the simulated gap between streamed characters.
const CharInterval = 25 * time.Millisecond

// Report is the structured outcome of one replay.
type Report struct {
	// Events lists every switch and explained skip, in stream order.
	Events []engine.Event `json:"events"`

	// Switches counts events that issued a switch command.
	Switches int `json:"switches"`

	// Skips counts explained skips (cooldowns, veto, dedupe).
	Skips int `json:"skips"`

	// Folders lists the folders switched to, in order.
	Folders []string `json:"folders"`

	// Mentions is the final name-to-mention-count table.
	Mentions map[string]int `json:"mentions"`

	// Roster is the final scene roster, freshest first.
	Roster []string `json:"roster"`

	// Top is the final scene ranking (up to four characters).
	Top []score.SceneRank `json:"top"`
}

// Run replays text against the profile, one character per simulated tick.
// The switch command always succeeds; cooldown behaviour is driven purely
// by the simulated clock. A profile that fails to compile returns an
// error.
func Run(ctx context.Context, p *config.Profile, text string) (*Report, error) {
	if p == nil {
		return nil, fmt.Errorf("simulate: nil profile")
	}

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	report := &Report{Mentions: map[string]int{}}
	switchFn := func(context.Context, string) error { return nil }

	settings := &config.Settings{
		Version:       config.SchemaVersion,
		Enabled:       true,
		ActiveProfile: "sim",
		Profiles:      map[string]*config.Profile{"sim": p},
	}

	eng, err := engine.New(settings, switchFn, engine.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	const id = "simulation"
	eng.StartMessage(id)
	for _, r := range text {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		now = now.Add(CharInterval)
		record(report, eng.Token(ctx, id, string(r)))
	}
	now = now.Add(CharInterval)
	record(report, eng.EndMessage(ctx, id))

	report.Mentions = eng.LastMessageStats()
	report.Roster = eng.SceneNames()
	report.Top = eng.TopCharacters(4)
	return report, nil
}

func record(r *Report, ev *engine.Event) {
	if ev == nil {
		return
	}
	r.Events = append(r.Events, *ev)
	switch ev.Type {
	case "switch":
		r.Switches++
		r.Folders = append(r.Folders, ev.Folder)
	default:
		r.Skips++
	}
}
