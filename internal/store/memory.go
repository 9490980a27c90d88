package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sceneloom/costumier/internal/config"
)

// maxMemoryEvents bounds the in-memory switch history.
const maxMemoryEvents = 512

var _ Store = (*Memory)(nil)

// Memory is an in-process [Store]. It backs tests and runs without a
// configured PostgreSQL DSN; everything is lost when the process exits.
type Memory struct {
	mu       sync.Mutex
	settings []byte
	events   []SwitchEvent
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// SaveSettings implements [Store]. The bundle is serialized on write so
// later mutations of s do not leak into the store.
func (m *Memory) SaveSettings(_ context.Context, s *config.Settings) error {
	doc, err := encodeSettings(s)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.settings = doc
	m.mu.Unlock()
	return nil
}

// LoadSettings implements [Store].
func (m *Memory) LoadSettings(_ context.Context) (*config.Settings, error) {
	m.mu.Lock()
	doc := m.settings
	m.mu.Unlock()
	if doc == nil {
		return nil, ErrNotFound
	}
	return decodeSettings(doc)
}

// RecordSwitch implements [Store]. Once the history cap is reached the
// oldest events are dropped.
func (m *Memory) RecordSwitch(_ context.Context, ev SwitchEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	m.mu.Lock()
	m.events = append(m.events, ev)
	if over := len(m.events) - maxMemoryEvents; over > 0 {
		m.events = append(m.events[:0:0], m.events[over:]...)
	}
	m.mu.Unlock()
	return nil
}

// RecentSwitches implements [Store].
func (m *Memory) RecentSwitches(_ context.Context, limit int) ([]SwitchEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit <= 0 || limit > len(m.events) {
		limit = len(m.events)
	}
	out := make([]SwitchEvent, 0, limit)
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

// Ping implements [Store]; an in-memory store is always reachable.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements [Store].
func (m *Memory) Close() {}
