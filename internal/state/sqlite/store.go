// Package sqlite provides the default embedded StateStore backed by a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/stockwatch/internal/state"
	"github.com/JakeFAU/stockwatch/internal/stock"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls where the database lives.
type Config struct {
	Path  string
	Table string
}

// Store persists state records in a single SQLite table.
type Store struct {
	db    *sql.DB
	table string
}

// Open creates (if needed) and opens the database at cfg.Path.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("state.path is required")
	}
	table := cfg.Table
	if table == "" {
		table = "stock_state"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
			return nil, fmt.Errorf("create state directory: %w", err)
		}
	}
	dsn := cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time keeps SQLITE_BUSY out of concurrent cycles.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, table: table}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	identity     TEXT PRIMARY KEY,
	availability TEXT NOT NULL,
	observed_at  TEXT NOT NULL
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Get returns the stored record for identity.
func (s *Store) Get(ctx context.Context, identity string) (stock.StateRecord, bool, error) {
	query := fmt.Sprintf(`SELECT availability, observed_at FROM %s WHERE identity = ?`, s.table)
	var (
		avail    string
		observed string
	)
	err := s.db.QueryRowContext(ctx, query, identity).Scan(&avail, &observed)
	if errors.Is(err, sql.ErrNoRows) {
		return stock.StateRecord{}, false, nil
	}
	if err != nil {
		return stock.StateRecord{}, false, state.Unavailable("select state", err)
	}
	availability, err := stock.ParseAvailability(avail)
	if err != nil {
		return stock.StateRecord{}, false, state.Unavailable("decode state", err)
	}
	ts, err := time.Parse(time.RFC3339Nano, observed)
	if err != nil {
		return stock.StateRecord{}, false, state.Unavailable("decode observed_at", err)
	}
	return stock.StateRecord{Identity: identity, Availability: availability, ObservedAt: ts}, true, nil
}

// Put upserts the record.
func (s *Store) Put(ctx context.Context, record stock.StateRecord) error {
	query := fmt.Sprintf(`
INSERT INTO %s (identity, availability, observed_at) VALUES (?, ?, ?)
ON CONFLICT(identity) DO UPDATE SET
	availability = excluded.availability,
	observed_at  = excluded.observed_at`, s.table)
	_, err := s.db.ExecContext(ctx, query,
		record.Identity,
		string(record.Availability),
		record.ObservedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return state.Unavailable("upsert state", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}
