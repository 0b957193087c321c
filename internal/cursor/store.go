// Package cursor tracks the last consumed event sequence per venue.
package cursor

import (
	"context"
	"fmt"
	"sync"

	"market-feed/internal/domain"
	"market-feed/internal/storage"
)

// Store is an in-memory cursor map backed by a storage.CursorRepository.
// Cursors only move forward.
type Store struct {
	repo storage.CursorRepository

	mu      sync.RWMutex
	cursors map[string]uint64
	dirty   bool
}

// NewStore creates a store over repo. Call LoadAll before use to pick up
// persisted positions.
func NewStore(repo storage.CursorRepository) *Store {
	return &Store{
		repo:    repo,
		cursors: make(map[string]uint64),
	}
}

// LoadAll reads the persisted record and merges it into memory.
func (s *Store) LoadAll(ctx context.Context) (map[string]uint64, error) {
	persisted, err := s.repo.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cursors: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range persisted {
		if cur, ok := s.cursors[k]; !ok || v > cur {
			s.cursors[k] = v
		}
	}
	return copyMap(s.cursors), nil
}

// Get returns the last consumed sequence for key. seen is false when the
// venue has never been consumed, in which case seq is 0.
func (s *Store) Get(key domain.VenueKey) (seq uint64, seen bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, seen = s.cursors[key.String()]
	return seq, seen
}

// Next returns the first sequence number still to be consumed for key.
func (s *Store) Next(key domain.VenueKey) uint64 {
	seq, seen := s.Get(key)
	if !seen {
		return 0
	}
	return seq + 1
}

// Set advances key to seq. A seq at or below the stored value is a no-op
// and returns false.
func (s *Store) Set(key domain.VenueKey, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	if cur, ok := s.cursors[k]; ok && seq <= cur {
		return false
	}
	s.cursors[k] = seq
	s.dirty = true
	return true
}

// Persist writes the whole mapping if anything changed since the last
// successful persist. Returns whether a write happened.
func (s *Store) Persist(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if !s.dirty {
		s.mu.Unlock()
		return false, nil
	}
	snapshot := copyMap(s.cursors)
	s.dirty = false
	s.mu.Unlock()

	if err := s.repo.Save(ctx, snapshot); err != nil {
		s.mu.Lock()
		s.dirty = true
		s.mu.Unlock()
		return false, fmt.Errorf("persist cursors: %w", err)
	}
	return true, nil
}

// Snapshot returns a copy of the current mapping.
func (s *Store) Snapshot() map[string]uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyMap(s.cursors)
}

func copyMap(m map[string]uint64) map[string]uint64 {
	out := make(map[string]uint64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
