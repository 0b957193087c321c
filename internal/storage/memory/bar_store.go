package memory

import (
	"context"
	"sort"
	"sync"

	"market-feed/internal/domain"
	"market-feed/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string]*storage.BarRecord // keyed by bar ID
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string]*storage.BarRecord),
	}
}

// InsertBars adds bars, replacing any with the same ID.
func (s *BarStore) InsertBars(_ context.Context, bars []*storage.BarRecord) error {
	for _, b := range bars {
		if b == nil || b.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range bars {
		recCopy := *b
		s.data[b.ID] = &recCopy
	}
	return nil
}

// GetBars returns bars of a venue and resolution within [start, end], ordered by time ASC.
func (s *BarStore) GetBars(_ context.Context, venue domain.VenueKey, res domain.Resolution, start, end int64) ([]*storage.BarRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.BarRecord
	for _, b := range s.data {
		if b.Bar.Venue == venue && b.Bar.Resolution == res && b.Bar.Time >= start && b.Bar.Time <= end {
			recCopy := *b
			result = append(result, &recCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Bar.Time < result[j].Bar.Time
	})

	return result, nil
}

var _ storage.BarStore = (*BarStore)(nil)
