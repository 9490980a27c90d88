package config_test

import (
	"testing"

	"github.com/sceneloom/costumier/internal/config"
)

func diffProfile() *config.Profile {
	p := config.DefaultProfile()
	p.Patterns = []string{"Alice"}
	p.Mappings = []config.Mapping{{Name: "Alice", Folder: "alice"}}
	p.Normalize()
	return p
}

func TestDiffProfilesIdentical(t *testing.T) {
	t.Parallel()
	a, b := diffProfile(), diffProfile()
	if d := config.DiffProfiles(a, b); d.Changed() {
		t.Errorf("DiffProfiles() = %+v, want no change", d)
	}
}

func TestDiffProfilesNilTransitions(t *testing.T) {
	t.Parallel()

	if d := config.DiffProfiles(nil, nil); d.Changed() {
		t.Errorf("DiffProfiles(nil, nil) = %+v, want no change", d)
	}
	d := config.DiffProfiles(nil, diffProfile())
	if !d.RecompileNeeded || !d.TuningChanged || !d.MappingsChanged {
		t.Errorf("DiffProfiles(nil, p) = %+v, want everything changed", d)
	}
}

func TestDiffProfilesClassification(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*config.Profile)
		want   config.ProfileDiff
	}{
		{
			"patterns change forces recompile",
			func(p *config.Profile) { p.Patterns = append(p.Patterns, "Bob") },
			config.ProfileDiff{RecompileNeeded: true},
		},
		{
			"veto change forces recompile",
			func(p *config.Profile) { p.VetoPhrases = []string{"OOC:"} },
			config.ProfileDiff{RecompileNeeded: true},
		},
		{
			"detection toggle forces recompile",
			func(p *config.Profile) { p.Detection.Possessive = !p.Detection.Possessive },
			config.ProfileDiff{RecompileNeeded: true},
		},
		{
			"weight change is tuning only",
			func(p *config.Profile) { p.Weights.RosterBonus += 5 },
			config.ProfileDiff{TuningChanged: true},
		},
		{
			"cooldown change is tuning only",
			func(p *config.Profile) { p.Cooldowns.GlobalMs += 100 },
			config.ProfileDiff{TuningChanged: true},
		},
		{
			"mapping folder change is mappings only",
			func(p *config.Profile) { p.Mappings[0].Folder = "elsewhere" },
			config.ProfileDiff{MappingsChanged: true},
		},
		{
			"outfits toggle is mappings only",
			func(p *config.Profile) { p.OutfitsEnabled = !p.OutfitsEnabled },
			config.ProfileDiff{MappingsChanged: true},
		},
		{
			"manual trigger patterns change is mappings only",
			func(p *config.Profile) {
				p.Triggers = []config.TriggerEntry{{Trigger: "x", Patterns: "a,b", Folder: "f"}}
			},
			config.ProfileDiff{MappingsChanged: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			old, next := diffProfile(), diffProfile()
			tt.mutate(next)
			if got := config.DiffProfiles(old, next); got != tt.want {
				t.Errorf("DiffProfiles() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
