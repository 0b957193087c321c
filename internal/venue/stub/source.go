// Package stub provides an in-memory venue.Source for tests and local runs.
package stub

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"market-feed/internal/domain"
	"market-feed/internal/venue"
)

type streamKey struct {
	venue domain.VenueKey
	kind  domain.EventKind
}

// Source implements venue.Source over in-memory event logs.
type Source struct {
	mu       sync.RWMutex
	venues   []domain.Venue
	streams  map[streamKey][]domain.Event
	books    map[domain.VenueKey]*domain.OrderBook
	failures map[domain.VenueKey]error
	// eventFailures fail EventsSince only; snapshots keep working.
	eventFailures map[domain.VenueKey]error
	corrupt       map[streamKey]map[uint64]bool
	calls         map[streamKey]int
}

// NewSource creates an empty stub source.
func NewSource() *Source {
	return &Source{
		streams:  make(map[streamKey][]domain.Event),
		books:    make(map[domain.VenueKey]*domain.OrderBook),
		failures:      make(map[domain.VenueKey]error),
		eventFailures: make(map[domain.VenueKey]error),
		corrupt:       make(map[streamKey]map[uint64]bool),
		calls:         make(map[streamKey]int),
	}
}

// AddVenue registers a venue. Venues are listed in registration order.
func (s *Source) AddVenue(v domain.Venue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.venues = append(s.venues, v)
}

// RemoveVenue unlists a venue; later calls for it fail with ErrVenueNotFound.
func (s *Source) RemoveVenue(key domain.VenueKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range s.venues {
		if v.Key == key {
			s.venues = append(s.venues[:i], s.venues[i+1:]...)
			return
		}
	}
}

// AppendEvents adds events to a stream, keeping it ordered by sequence.
func (s *Source) AppendEvents(key domain.VenueKey, kind domain.EventKind, events ...domain.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := streamKey{venue: key, kind: kind}
	stream := append(s.streams[sk], events...)
	sort.SliceStable(stream, func(i, j int) bool {
		return stream[i].Sequence() < stream[j].Sequence()
	})
	s.streams[sk] = stream
}

// SetBook sets the snapshot returned for a market.
func (s *Source) SetBook(key domain.VenueKey, book *domain.OrderBook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.books[key] = book
}

// Fail makes every call for key return err until Recover is called.
func (s *Source) Fail(key domain.VenueKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[key] = err
}

// FailEvents makes EventsSince for key return err until Recover is called.
func (s *Source) FailEvents(key domain.VenueKey, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventFailures[key] = err
}

// Recover clears injected failures.
func (s *Source) Recover(key domain.VenueKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, key)
	delete(s.eventFailures, key)
}

// Corrupt marks events of a stream as undecodable. EventsSince leaves them
// out and reports them through a *venue.DecodeError.
func (s *Source) Corrupt(key domain.VenueKey, kind domain.EventKind, sequences ...uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := streamKey{venue: key, kind: kind}
	if s.corrupt[sk] == nil {
		s.corrupt[sk] = make(map[uint64]bool)
	}
	for _, seq := range sequences {
		s.corrupt[sk][seq] = true
	}
}

// Calls returns how many EventsSince calls reached a stream.
func (s *Source) Calls(key domain.VenueKey, kind domain.EventKind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[streamKey{venue: key, kind: kind}]
}

// ListVenues returns registered venues in registration order.
func (s *Source) ListVenues(_ context.Context) ([]domain.Venue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Venue, len(s.venues))
	copy(out, s.venues)
	return out, nil
}

// EventsSince returns events with sequence >= from, at most limit.
// Corrupted events count against limit but are reported instead of returned.
func (s *Source) EventsSince(_ context.Context, key domain.VenueKey, kind domain.EventKind, from uint64, limit int) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.check(key); err != nil {
		return nil, err
	}
	if err, ok := s.eventFailures[key]; ok {
		return nil, fmt.Errorf("stub %s events: %w", key, err)
	}

	sk := streamKey{venue: key, kind: kind}
	s.calls[sk]++

	var (
		out       []domain.Event
		decodeErr *venue.DecodeError
		n         int
	)
	for _, e := range s.streams[sk] {
		if e.Sequence() < from {
			continue
		}
		if limit > 0 && n == limit {
			break
		}
		n++
		if s.corrupt[sk][e.Sequence()] {
			if decodeErr == nil {
				decodeErr = &venue.DecodeError{Key: key, Kind: kind, Err: errors.New("stub: corrupted event")}
			}
			decodeErr.Sequences = append(decodeErr.Sequences, e.Sequence())
			continue
		}
		out = append(out, e)
	}
	if decodeErr != nil {
		return out, decodeErr
	}
	return out, nil
}

// Snapshot returns a copy of the book set for key, or an empty book.
func (s *Source) Snapshot(_ context.Context, key domain.VenueKey) (*domain.OrderBook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.check(key); err != nil {
		return nil, err
	}

	book := &domain.OrderBook{Venue: key}
	if b, ok := s.books[key]; ok {
		book.Bids = append([]domain.Level(nil), b.Bids...)
		book.Asks = append([]domain.Level(nil), b.Asks...)
		book.Time = b.Time
	}
	return book, nil
}

// check must be called with s.mu held.
func (s *Source) check(key domain.VenueKey) error {
	if err, ok := s.failures[key]; ok {
		return fmt.Errorf("stub %s: %w", key, err)
	}
	for _, v := range s.venues {
		if v.Key == key {
			return nil
		}
	}
	return fmt.Errorf("stub %s: %w", key, venue.ErrVenueNotFound)
}

var _ venue.Source = (*Source)(nil)
