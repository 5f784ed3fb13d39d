// Package memory provides an in-memory StateStore for development/testing.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/stockwatch/internal/stock"
)

// Store keeps state records in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	records map[string]stock.StateRecord
}

// New constructs a Store.
func New() *Store {
	return &Store{records: make(map[string]stock.StateRecord)}
}

// Get returns the record for identity, if any.
func (s *Store) Get(_ context.Context, identity string) (stock.StateRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[identity]
	return rec, ok, nil
}

// Put overwrites the record for its identity.
func (s *Store) Put(_ context.Context, record stock.StateRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Identity] = record
	return nil
}

// Snapshot returns a copy of all records.
func (s *Store) Snapshot() map[string]stock.StateRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]stock.StateRecord, len(s.records))
	for k, v := range s.records {
		out[k] = v
	}
	return out
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
