package memory

import (
	"context"
	"sort"
	"sync"

	"market-feed/internal/domain"
	"market-feed/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*storage.TradeRecord // keyed by trade ID
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*storage.TradeRecord),
	}
}

// InsertTrades adds trades, replacing any with the same ID.
func (s *TradeStore) InsertTrades(_ context.Context, trades []*storage.TradeRecord) error {
	for _, tr := range trades {
		if tr == nil || tr.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, tr := range trades {
		recCopy := *tr
		s.data[tr.ID] = &recCopy
	}
	return nil
}

// GetTrades returns trades of a venue within [start, end], ordered by sequence ASC.
func (s *TradeStore) GetTrades(_ context.Context, venue domain.VenueKey, start, end int64) ([]*storage.TradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.TradeRecord
	for _, tr := range s.data {
		if tr.Trade.Venue == venue && tr.Trade.Time >= start && tr.Trade.Time <= end {
			recCopy := *tr
			result = append(result, &recCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Trade.Sequence < result[j].Trade.Sequence
	})

	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
