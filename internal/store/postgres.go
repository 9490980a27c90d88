package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sceneloom/costumier/internal/config"
)

// Settings live in a single-row table so concurrent writers serialize on
// the row rather than racing over files. Switch history is append-only.
const ddl = `
CREATE TABLE IF NOT EXISTS settings (
    id          INT          PRIMARY KEY CHECK (id = 1),
    document    TEXT         NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS switch_events (
    id       UUID         PRIMARY KEY,
    session  TEXT         NOT NULL,
    name     TEXT         NOT NULL,
    folder   TEXT         NOT NULL,
    reason   TEXT         NOT NULL,
    at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_switch_events_at ON switch_events (at DESC);
`

var _ Store = (*Postgres)(nil)

// Postgres is a [Store] backed by a PostgreSQL database via a shared
// [pgxpool.Pool].
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects to dsn, verifies the connection, and creates the
// schema if it does not exist yet.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// SaveSettings implements [Store].
func (p *Postgres) SaveSettings(ctx context.Context, s *config.Settings) error {
	doc, err := encodeSettings(s)
	if err != nil {
		return err
	}
	const q = `
		INSERT INTO settings (id, document, updated_at)
		VALUES (1, $1, now())
		ON CONFLICT (id) DO UPDATE SET document = $1, updated_at = now()`
	if _, err := p.pool.Exec(ctx, q, string(doc)); err != nil {
		return fmt.Errorf("store: save settings: %w", err)
	}
	return nil
}

// LoadSettings implements [Store].
func (p *Postgres) LoadSettings(ctx context.Context) (*config.Settings, error) {
	var doc string
	err := p.pool.QueryRow(ctx, `SELECT document FROM settings WHERE id = 1`).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: load settings: %w", err)
	}
	return decodeSettings([]byte(doc))
}

// RecordSwitch implements [Store].
func (p *Postgres) RecordSwitch(ctx context.Context, ev SwitchEvent) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	const q = `
		INSERT INTO switch_events (id, session, name, folder, reason, at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := p.pool.Exec(ctx, q, ev.ID, ev.Session, ev.Name, ev.Folder, ev.Reason, ev.At); err != nil {
		return fmt.Errorf("store: record switch: %w", err)
	}
	return nil
}

// RecentSwitches implements [Store].
func (p *Postgres) RecentSwitches(ctx context.Context, limit int) ([]SwitchEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `
		SELECT id, session, name, folder, reason, at
		FROM   switch_events
		ORDER  BY at DESC
		LIMIT  $1`
	rows, err := p.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("store: recent switches: %w", err)
	}
	defer rows.Close()

	var out []SwitchEvent
	for rows.Next() {
		var ev SwitchEvent
		if err := rows.Scan(&ev.ID, &ev.Session, &ev.Name, &ev.Folder, &ev.Reason, &ev.At); err != nil {
			return nil, fmt.Errorf("store: scan switch event: %w", err)
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: recent switches: %w", err)
	}
	return out, nil
}

// Ping implements [Store].
func (p *Postgres) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close implements [Store].
func (p *Postgres) Close() {
	p.pool.Close()
}
