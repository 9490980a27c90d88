// Package roster tracks which characters are currently "active" in a
// conversation. The scene roster is a recency set with a time-to-live
// measured in messages; the outfit roster remembers the last issued
// costume folder per character. Neither type locks; callers serialise
// access through the owning session or runtime.
package roster

import (
	"slices"
	"strings"
)

type entry struct {
	canonical string
	remaining int
}

// Roster is the scene recency set. Membership is keyed case-insensitively;
// the casing of the first sighting is reported back.
type Roster struct {
	ttl     int
	entries map[string]entry
}

// New returns an empty roster whose members live for ttl messages after
// their last sighting. A ttl below 1 is treated as 1.
func New(ttl int) *Roster {
	if ttl < 1 {
		ttl = 1
	}
	return &Roster{ttl: ttl, entries: make(map[string]entry)}
}

// Note marks name as seen in the current message, refreshing its TTL.
// Empty names are ignored.
func (r *Roster) Note(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	key := strings.ToLower(name)
	e, ok := r.entries[key]
	if !ok {
		e.canonical = name
	}
	e.remaining = r.ttl
	r.entries[key] = e
}

// Contains reports membership, case-insensitively.
func (r *Roster) Contains(name string) bool {
	_, ok := r.entries[strings.ToLower(name)]
	return ok
}

// Advance ages every member by one message, evicting those whose TTL ran
// out. Called once per completed message.
func (r *Roster) Advance() {
	for key, e := range r.entries {
		e.remaining--
		if e.remaining <= 0 {
			delete(r.entries, key)
		} else {
			r.entries[key] = e
		}
	}
}

// Len returns the number of active members.
func (r *Roster) Len() int { return len(r.entries) }

// Names returns the active members ordered by freshness (highest remaining
// TTL first), ties alphabetically, in their first-seen casing.
func (r *Roster) Names() []string {
	type pair struct {
		name      string
		remaining int
	}
	pairs := make([]pair, 0, len(r.entries))
	for _, e := range r.entries {
		pairs = append(pairs, pair{e.canonical, e.remaining})
	}
	slices.SortFunc(pairs, func(a, b pair) int {
		if a.remaining != b.remaining {
			return b.remaining - a.remaining
		}
		return strings.Compare(strings.ToLower(a.name), strings.ToLower(b.name))
	})
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.name
	}
	return out
}

// Clone returns an independent copy. Sessions clone the conversation
// roster when seeding a fresh message scan so mid-message detections do
// not leak into the shared state until the message completes.
func (r *Roster) Clone() *Roster {
	c := &Roster{ttl: r.ttl, entries: make(map[string]entry, len(r.entries))}
	for k, v := range r.entries {
		c.entries[k] = v
	}
	return c
}

// Reset drops all members, keeping the TTL.
func (r *Roster) Reset() { clear(r.entries) }

// Outfits remembers the last issued costume folder per character, keyed
// case-insensitively. It backs the "outfit-unchanged" skip.
type Outfits struct {
	folders map[string]string
}

// NewOutfits returns an empty outfit roster.
func NewOutfits() *Outfits {
	return &Outfits{folders: make(map[string]string)}
}

// Note records folder as name's current outfit.
func (o *Outfits) Note(name, folder string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	o.folders[strings.ToLower(name)] = folder
}

// Folder returns name's last resolved folder, if any.
func (o *Outfits) Folder(name string) (string, bool) {
	f, ok := o.folders[strings.ToLower(name)]
	return f, ok
}

// Reset drops all entries.
func (o *Outfits) Reset() { clear(o.folders) }
