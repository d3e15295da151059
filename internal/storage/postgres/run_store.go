// Package postgres persists finished runs in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/lead-enrichment/internal/leads"
)

const defaultTable = "lead_runs"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for runs.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// RunStore writes one row per run. The full result is kept as JSONB next to
// a few columns useful for reporting.
type RunStore struct {
	pool  pool
	table string
}

// NewRunStore opens a pool from cfg.
func NewRunStore(ctx context.Context, cfg Config) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewRunStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewRunStoreWithPool wraps an existing pool (primarily for testing).
func NewRunStoreWithPool(p pool, table string) (*RunStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RunStore{pool: p, table: table}, nil
}

// EnsureSchema creates the runs table when it is missing.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	id           TEXT PRIMARY KEY,
	started_at   TIMESTAMPTZ NOT NULL,
	finished_at  TIMESTAMPTZ NOT NULL,
	stop_reason  TEXT NOT NULL,
	lead_count   INTEGER NOT NULL,
	spent_micros BIGINT NOT NULL,
	payload      JSONB NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// Close releases the pool.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveRun upserts run.
func (s *RunStore) SaveRun(ctx context.Context, run leads.RunResult) error {
	if run.ID == "" {
		return fmt.Errorf("save run: id is required")
	}
	payload, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run %s: %w", run.ID, err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (id, started_at, finished_at, stop_reason, lead_count, spent_micros, payload)
VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (id) DO UPDATE SET
	finished_at = EXCLUDED.finished_at,
	stop_reason = EXCLUDED.stop_reason,
	lead_count = EXCLUDED.lead_count,
	spent_micros = EXCLUDED.spent_micros,
	payload = EXCLUDED.payload`, s.table)

	args := []any{
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		string(run.Usage.StopReason),
		len(run.Leads),
		int64(run.Usage.Spent),
		payload,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun loads a run by ID.
func (s *RunStore) GetRun(ctx context.Context, runID string) (leads.RunResult, error) {
	query := fmt.Sprintf(`SELECT payload FROM %s WHERE id = $1`, s.table)
	var payload []byte
	if err := s.pool.QueryRow(ctx, query, runID).Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leads.RunResult{}, fmt.Errorf("get run %s: %w", runID, leads.ErrRunNotFound)
		}
		return leads.RunResult{}, fmt.Errorf("get run %s: %w", runID, err)
	}
	var run leads.RunResult
	if err := json.Unmarshal(payload, &run); err != nil {
		return leads.RunResult{}, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return run, nil
}
