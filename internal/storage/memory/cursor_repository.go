package memory

import (
	"context"
	"sync"

	"market-feed/internal/storage"
)

// CursorRepository is an in-memory implementation of storage.CursorRepository.
type CursorRepository struct {
	mu      sync.RWMutex
	cursors map[string]uint64
	saves   int
}

// NewCursorRepository creates a new in-memory cursor repository.
func NewCursorRepository() *CursorRepository {
	return &CursorRepository{
		cursors: make(map[string]uint64),
	}
}

// Load returns a copy of the stored mapping.
func (r *CursorRepository) Load(_ context.Context) (map[string]uint64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]uint64, len(r.cursors))
	for k, v := range r.cursors {
		out[k] = v
	}
	return out, nil
}

// Save merges the mapping, keeping the higher sequence per key.
func (r *CursorRepository) Save(_ context.Context, cursors map[string]uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for k, v := range cursors {
		if cur, ok := r.cursors[k]; !ok || v > cur {
			r.cursors[k] = v
		}
	}
	r.saves++
	return nil
}

// Saves returns how many times Save was called.
func (r *CursorRepository) Saves() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

var _ storage.CursorRepository = (*CursorRepository)(nil)
