// Package store persists the settings bundle and the switch-event history.
//
// Two implementations exist: [Memory] for tests and DSN-less runs, and
// [Postgres] backed by a pgx connection pool. Both persist settings as the
// native YAML document so a round trip preserves every profile field;
// legacy host records enter through [config.MigrateSettings] at the API
// layer before they ever reach a store.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/sceneloom/costumier/internal/config"
)

// ErrNotFound is returned by LoadSettings when no settings record has been
// saved yet.
var ErrNotFound = errors.New("store: not found")

// SwitchEvent is one executed or attempted costume switch, kept for the
// history endpoint and post-hoc debugging of detection behaviour.
type SwitchEvent struct {
	ID      uuid.UUID `json:"id"`
	Session string    `json:"session"`
	Name    string    `json:"name"`
	Folder  string    `json:"folder"`
	Reason  string    `json:"reason"`
	At      time.Time `json:"at"`
}

// Store is the persistence boundary. All methods are safe for concurrent
// use.
type Store interface {
	// SaveSettings replaces the persisted settings bundle.
	SaveSettings(ctx context.Context, s *config.Settings) error

	// LoadSettings returns the persisted settings bundle, or [ErrNotFound]
	// when nothing has been saved.
	LoadSettings(ctx context.Context) (*config.Settings, error)

	// RecordSwitch appends one switch event. A zero ID is assigned one.
	RecordSwitch(ctx context.Context, ev SwitchEvent) error

	// RecentSwitches returns up to limit events, newest first.
	RecentSwitches(ctx context.Context, limit int) ([]SwitchEvent, error)

	// Ping reports whether the backing storage is reachable.
	Ping(ctx context.Context) error

	// Close releases the store's resources.
	Close()
}

// encodeSettings serializes s to the YAML document shape shared by both
// store implementations.
func encodeSettings(s *config.Settings) ([]byte, error) {
	doc, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("store: encode settings: %w", err)
	}
	return doc, nil
}

// decodeSettings is the inverse of encodeSettings. Profiles are normalized
// so defaults added since the document was written take effect.
func decodeSettings(doc []byte) (*config.Settings, error) {
	s := &config.Settings{}
	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil {
		return nil, fmt.Errorf("store: decode settings: %w", err)
	}
	if s.Profiles == nil {
		s.Profiles = map[string]*config.Profile{}
	}
	for _, p := range s.Profiles {
		p.Normalize()
	}
	return s, nil
}
