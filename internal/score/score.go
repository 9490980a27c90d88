// Package score ranks detections into a single winning speaker and ranks
// scene characters for awareness queries. Scoring is pure arithmetic over
// the detection set, the buffer geometry, and roster membership; it holds
// no state of its own.
package score

import (
	"math"
	"slices"
	"strings"

	"github.com/sceneloom/costumier/internal/config"
	"github.com/sceneloom/costumier/internal/detect"
)

// Roster answers scene-membership queries. A nil Roster means no bonus.
type Roster interface {
	Contains(name string) bool
}

// Scored is one detection with its computed score.
type Scored struct {
	detect.Detection
	Score float64
}

// Winner is the result of picking the best detection in a buffer.
type Winner struct {
	Scored

	// Runner is the second-best scored detection, if any. Useful for
	// diagnostics and the simulator report.
	Runner *Scored
}

// Pick scores every detection and returns the best one, or false when no
// detection survives. textLen is the length of the scanned buffer, used
// for the recency term. Detections at offsets at or below minIndex are
// skipped; the caller uses that to exclude buffer regions already consumed
// by earlier incremental scans. Pass -1 to consider the whole buffer.
// Detections without a name never win.
//
// On a score tie the detection that appears earliest in the buffer wins,
// so results do not depend on scan order.
func Pick(ds []detect.Detection, textLen, minIndex int, w config.Weights, roster Roster) (Winner, bool) {
	scored := make([]Scored, 0, len(ds))
	for _, d := range ds {
		if d.Index <= minIndex || d.Name == "" {
			continue
		}
		scored = append(scored, Scored{Detection: d, Score: scoreOne(d, textLen, w, roster)})
	}
	if len(scored) == 0 {
		return Winner{}, false
	}

	slices.SortStableFunc(scored, func(a, b Scored) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		return a.Index - b.Index
	})

	win := Winner{Scored: scored[0]}
	if len(scored) > 1 {
		win.Runner = &scored[1]
	}
	return win, true
}

// scoreOne computes the score for a single detection:
// a priority term, minus a distance-from-tail penalty, plus the global
// bias for active-tier signals, plus the roster recency bonus (attenuated
// for active-tier signals, floored at zero).
func scoreOne(d detect.Detection, textLen int, w config.Weights, roster Roster) float64 {
	s := float64(d.Priority) * w.PriorityMultiplier
	s -= w.DistancePenalty * float64(textLen-d.Index)

	active := d.Priority >= detect.ActiveTier
	if active {
		s += w.DetectionBias
	}
	if roster != nil && roster.Contains(d.Name) {
		bonus := w.RosterBonus
		if active {
			bonus = math.Max(0, bonus-w.RosterPriorityDropoff)
		}
		s += bonus
	}
	return s
}

// SceneRank is one character's aggregate standing in the current scene.
// The JSON shape is served verbatim by the scene query endpoint.
type SceneRank struct {
	Name string `json:"name"`

	// Count is the number of detections for the name.
	Count int `json:"count"`

	// BestPriority is the highest priority rank among them.
	BestPriority int `json:"best_priority"`

	// EarliestIndex is the offset of the first detection.
	EarliestIndex int `json:"earliest_index"`

	// InRoster reports roster membership at ranking time.
	InRoster bool `json:"in_roster"`

	// Score is the aggregate ranking score.
	Score float64 `json:"score"`
}

// RankScene aggregates detections per character and orders them by scene
// prominence. Mention volume dominates, then signal strength, then roster
// presence; position only breaks near-ties. Nameless detections are
// excluded. Ordering is fully deterministic: score, then count, then best
// priority, then earliest offset, then name.
func RankScene(ds []detect.Detection, w config.Weights, roster Roster) []SceneRank {
	byName := make(map[string]*SceneRank)
	var order []string
	for _, d := range ds {
		if d.Name == "" {
			continue
		}
		r, ok := byName[d.Name]
		if !ok {
			r = &SceneRank{Name: d.Name, EarliestIndex: d.Index}
			byName[d.Name] = r
			order = append(order, d.Name)
		}
		r.Count++
		if d.Priority > r.BestPriority {
			r.BestPriority = d.Priority
		}
		if d.Index < r.EarliestIndex {
			r.EarliestIndex = d.Index
		}
	}

	out := make([]SceneRank, 0, len(order))
	for _, name := range order {
		r := byName[name]
		r.InRoster = roster != nil && roster.Contains(name)
		r.Score = float64(r.Count)*1000 + float64(r.BestPriority)*100 - float64(r.EarliestIndex)*w.DistancePenalty
		if r.InRoster {
			r.Score += w.RosterBonus
		}
		out = append(out, *r)
	}

	slices.SortStableFunc(out, func(a, b SceneRank) int {
		if a.Score != b.Score {
			if a.Score > b.Score {
				return -1
			}
			return 1
		}
		if a.Count != b.Count {
			return b.Count - a.Count
		}
		if a.BestPriority != b.BestPriority {
			return b.BestPriority - a.BestPriority
		}
		if a.EarliestIndex != b.EarliestIndex {
			return a.EarliestIndex - b.EarliestIndex
		}
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out
}
