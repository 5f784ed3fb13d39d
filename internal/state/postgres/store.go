// Package postgres provides a Postgres-backed StateStore.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/stockwatch/internal/state"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for state rows.
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

// Store writes state rows into Postgres.
type Store struct {
	pool  pool
	table string
}

// New connects to Postgres and ensures the state table exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("state.dsn is required")
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
	s, err := NewWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, table string) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "stock_state"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Store{pool: p, table: table}, nil
}

// EnsureSchema creates the state table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	identity     TEXT PRIMARY KEY,
	availability TEXT NOT NULL CHECK (availability IN ('in', 'out')),
	observed_at  TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}

// Get returns the stored record for identity.
func (s *Store) Get(ctx context.Context, identity string) (stock.StateRecord, bool, error) {
	query := fmt.Sprintf(`SELECT availability, observed_at FROM %s WHERE identity = $1`, s.table)
	var (
		avail    string
		observed time.Time
	)
	err := s.pool.QueryRow(ctx, query, identity).Scan(&avail, &observed)
	if errors.Is(err, pgx.ErrNoRows) {
		return stock.StateRecord{}, false, nil
	}
	if err != nil {
		return stock.StateRecord{}, false, state.Unavailable("select state", err)
	}
	availability, err := stock.ParseAvailability(avail)
	if err != nil {
		return stock.StateRecord{}, false, state.Unavailable("decode state", err)
	}
	return stock.StateRecord{Identity: identity, Availability: availability, ObservedAt: observed.UTC()}, true, nil
}

// Put upserts the record.
func (s *Store) Put(ctx context.Context, record stock.StateRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (identity, availability, observed_at) VALUES ($1, $2, $3)
ON CONFLICT (identity) DO UPDATE SET
	availability = EXCLUDED.availability,
	observed_at  = EXCLUDED.observed_at`, s.table)
	if _, err := s.pool.Exec(ctx, query, record.Identity, string(record.Availability), record.ObservedAt); err != nil {
		return state.Unavailable("upsert state", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}
