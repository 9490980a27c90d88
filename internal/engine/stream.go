package engine

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sceneloom/costumier/internal/detect"
	"github.com/sceneloom/costumier/internal/outfit"
	"github.com/sceneloom/costumier/internal/roster"
	"github.com/sceneloom/costumier/internal/score"
)

// defaultMaxSessions bounds concurrently tracked in-flight messages when
// the profile does not say otherwise; beyond it the stalest session is
// evicted. Hosts normally stream one generation at a time, so this only
// guards against clients that never send an end event.
const defaultMaxSessions = 16

// session is the per in-flight message state. Offsets (processed,
// lastAcceptedIndex) always refer to the current normalized buffer and are
// rebased whenever the buffer is trimmed.
type session struct {
	id  string
	buf strings.Builder

	// processed is the buffer length at the last scan; the gap to the
	// current length is the pending token budget.
	processed int

	vetoed bool

	scene *roster.Roster

	lastSubject string

	lastAcceptedName  string
	lastAcceptedAt    time.Time
	lastAcceptedIndex int

	mentions map[string]int
	touched  time.Time
}

// StartMessage begins tracking a generation. Starting an id that is
// already tracked resets it.
func (e *Engine) StartMessage(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.sessions[id]; !ok {
		e.metrics.ActiveSessions.Add(context.Background(), 1)
	}
	e.sessions[id] = e.newSessionLocked(id)
}

// newSessionLocked creates a session seeded with a clone of the
// conversation roster. Caller holds e.mu.
func (e *Engine) newSessionLocked(id string) *session {
	e.evictStaleLocked()
	return &session{
		id:                id,
		scene:             e.scene.Clone(),
		lastAcceptedIndex: -1,
		mentions:          make(map[string]int),
		touched:           e.clock(),
	}
}

// evictStaleLocked drops the least recently touched session once the cap
// is reached. Caller holds e.mu.
func (e *Engine) evictStaleLocked() {
	limit := defaultMaxSessions
	if e.profile != nil && e.profile.Stream.MaxTrackedMessages > 0 {
		limit = e.profile.Stream.MaxTrackedMessages
	}
	if len(e.sessions) < limit {
		return
	}
	var oldest *session
	for _, s := range e.sessions {
		if oldest == nil || s.touched.Before(oldest.touched) {
			oldest = s
		}
	}
	if oldest != nil {
		delete(e.sessions, oldest.id)
		e.metrics.ActiveSessions.Add(context.Background(), -1)
		e.log.Warn("evicted stale stream session", "session", oldest.id)
	}
}

// Token appends one streamed token to a message and, when enough new text
// has accumulated, runs a detection scan. It returns a non-nil event when
// the scan produced a switch or an explained skip. Unknown generation ids
// lazily create a fresh session, so a missed start event self-heals.
//
// Token never returns an error: malformed input cannot abort an in-flight
// generation, it can only fail to produce detections.
func (e *Engine) Token(ctx context.Context, id, token string) *Event {
	e.mu.Lock()

	if e.settings == nil || !e.settings.Enabled || e.profile == nil ||
		e.scanner == nil || e.locked != "" {
		e.mu.Unlock()
		return nil
	}

	s, ok := e.sessions[id]
	if !ok {
		e.metrics.ActiveSessions.Add(context.Background(), 1)
		s = e.newSessionLocked(id)
		e.sessions[id] = s
	}
	s.touched = e.clock()

	s.buf.WriteString(detect.NormalizeText(token))
	e.trimLocked(s)

	if s.vetoed || s.buf.Len()-s.processed < e.profile.Stream.TokenProcessThreshold {
		e.mu.Unlock()
		return nil
	}

	ev := e.scanLocked(ctx, s)
	e.mu.Unlock()

	return e.finishSwitch(ctx, ev)
}

// EndMessage finishes a generation: it runs one final scan over the
// remaining text, folds the message's scene roster and mention stats into
// the conversation state, ages the roster by one message, and stops
// tracking the session.
func (e *Engine) EndMessage(ctx context.Context, id string) *Event {
	e.mu.Lock()

	s, ok := e.sessions[id]
	if !ok {
		e.mu.Unlock()
		return nil
	}

	var ev *Event
	enabled := e.settings != nil && e.settings.Enabled &&
		e.profile != nil && e.scanner != nil && e.locked == ""
	if enabled && !s.vetoed && s.buf.Len() > s.processed {
		ev = e.scanLocked(ctx, s)
	}

	e.scene = s.scene
	e.scene.Advance()
	e.lastStats = s.mentions
	delete(e.sessions, id)
	e.metrics.ActiveSessions.Add(context.Background(), -1)
	e.mu.Unlock()

	return e.finishSwitch(ctx, ev)
}

// finishSwitch issues a pending switch decision outside the engine lock,
// preserving the scan's kind and score on the resulting event.
func (e *Engine) finishSwitch(ctx context.Context, ev *Event) *Event {
	if ev == nil || ev.Type != "switch" {
		return ev
	}
	out := e.issue(ctx, ev.Session, ev.pending)
	out.Kind, out.Score = ev.Kind, ev.Score
	return &out
}

// trimLocked enforces the buffer cap by dropping the oldest content and
// rebasing every cursor by the trimmed amount. The cut point advances to
// the next rune boundary so the kept prefix stays valid UTF-8. Caller
// holds e.mu.
func (e *Engine) trimLocked(s *session) {
	maxChars := e.profile.Stream.MaxBufferChars
	over := s.buf.Len() - maxChars
	if over <= 0 {
		return
	}
	text := s.buf.String()
	for over < len(text) && !utf8.RuneStart(text[over]) {
		over++
	}
	tail := text[over:]
	s.buf.Reset()
	s.buf.WriteString(tail)

	s.processed = max(0, s.processed-over)
	if s.lastAcceptedIndex >= 0 {
		s.lastAcceptedIndex = max(-1, s.lastAcceptedIndex-over)
	}
}

// scanLocked runs one detector pass over the session buffer. It returns
// nil when nothing actionable was found, a veto/skip event, or an event
// with Type "switch" whose pending decision the caller must issue after
// releasing the lock. Caller holds e.mu.
func (e *Engine) scanLocked(ctx context.Context, s *session) *Event {
	start := e.clock()
	defer func() {
		e.metrics.ScanDuration.Record(ctx, e.clock().Sub(start).Seconds())
	}()

	text := s.buf.String()
	s.processed = len(text)
	if e.corrector != nil {
		text = e.corrector.Apply(text)
	}

	if idx := e.scanner.VetoIndex(text); idx >= 0 {
		s.vetoed = true
		e.log.Debug("veto phrase tripped", "session", s.id, "index", idx)
		return &Event{Type: "skip", Session: s.id, Reason: "veto"}
	}

	ds := e.scanner.Scan(text, s.lastSubject)
	if len(ds) == 0 {
		return nil
	}
	for _, d := range ds {
		e.metrics.RecordDetection(ctx, string(d.Kind))
		if d.Name != "" {
			s.mentions[d.Name]++
			s.scene.Note(d.Name)
		}
	}
	s.lastSubject = latestSubject(ds, s.lastSubject)

	var sceneRoster score.Roster
	if e.profile.Roster.Enabled {
		sceneRoster = s.scene
	}
	e.lastRanks = score.RankScene(ds, e.profile.Weights, sceneRoster)

	win, ok := score.Pick(ds, len(text), s.lastAcceptedIndex, e.profile.Weights, sceneRoster)
	if !ok {
		return nil
	}

	now := e.clock()
	if strings.EqualFold(win.Name, s.lastAcceptedName) &&
		now.Sub(s.lastAcceptedAt) < e.profile.Cooldowns.RepeatSuppress() {
		return nil
	}

	d := e.runtime.Decide(e.profile, e.resolver, win.Name, outfit.Context{
		Text:   text,
		Kind:   win.Kind,
		Roster: s.scene,
	}, false)

	s.lastAcceptedName = win.Name
	s.lastAcceptedAt = now
	s.lastAcceptedIndex = win.Index

	ev := &Event{
		Type: "skip", Session: s.id,
		Name: d.Name, Folder: d.Folder, Reason: string(d.Reason),
		Kind: string(win.Kind), Score: win.Score,
		OutfitReason: string(d.Outfit.Reason), Label: d.Outfit.Label,
	}
	if d.ShouldSwitch {
		ev.Type = "switch"
		ev.pending = d
	} else {
		e.metrics.RecordSkip(ctx, string(d.Reason))
	}
	return ev
}

// latestSubject returns the name of the non-pronoun detection closest to
// the buffer tail, falling back to the previous subject.
func latestSubject(ds []detect.Detection, prev string) string {
	best := -1
	subject := prev
	for _, d := range ds {
		if d.Kind == detect.KindPronoun || d.Name == "" {
			continue
		}
		if d.Index > best {
			best = d.Index
			subject = d.Name
		}
	}
	return subject
}
