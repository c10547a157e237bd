package history

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createMirrorTable = `CREATE TABLE IF NOT EXISTS fault_history_mirror (
	key        TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

	selectMirror = `SELECT payload FROM fault_history_mirror WHERE key = $1`

	upsertMirror = `INSERT INTO fault_history_mirror (key, payload, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (key) DO UPDATE SET
	payload = EXCLUDED.payload,
	updated_at = EXCLUDED.updated_at`

	deleteMirror = `DELETE FROM fault_history_mirror WHERE key = $1`
)

// pgExecutor is the part of *pgxpool.Pool the mirror uses.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresMirror keeps the log as a JSONB row per key.
type PostgresMirror struct {
	db    pgExecutor
	close func()
}

// DialPostgresMirror opens a pool for dsn and ensures the table exists.
func DialPostgresMirror(ctx context.Context, dsn string) (*PostgresMirror, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("history: parse database url: %w", err)
	}
	cfg.MaxConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("history: open pool: %w", err)
	}
	m, err := newPostgresMirror(ctx, pool, pool.Close)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return m, nil
}

func newPostgresMirror(ctx context.Context, db pgExecutor, closeFn func()) (*PostgresMirror, error) {
	if _, err := db.Exec(ctx, createMirrorTable); err != nil {
		return nil, fmt.Errorf("history: create table: %w", err)
	}
	return &PostgresMirror{db: db, close: closeFn}, nil
}

// Load returns the payload stored under key.
func (m *PostgresMirror) Load(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := m.db.QueryRow(ctx, selectMirror, key).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Store upserts data under key. data must be valid JSON.
func (m *PostgresMirror) Store(ctx context.Context, key string, data []byte) error {
	_, err := m.db.Exec(ctx, upsertMirror, key, data)
	return err
}

// Delete removes the row for key.
func (m *PostgresMirror) Delete(ctx context.Context, key string) error {
	_, err := m.db.Exec(ctx, deleteMirror, key)
	return err
}

// Close closes the pool.
func (m *PostgresMirror) Close() error {
	if m.close != nil {
		m.close()
	}
	return nil
}
