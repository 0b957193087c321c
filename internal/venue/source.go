// Package venue enumerates markets and pools and reads their event streams.
package venue

import (
	"context"
	"errors"
	"fmt"

	"market-feed/internal/domain"
)

// Source errors.
var (
	// ErrVenueUnavailable is a transient read failure. The venue is retried
	// on the next tick.
	ErrVenueUnavailable = errors.New("venue unavailable")

	// ErrVenueNotFound means the venue no longer exists or is misconfigured.
	// The venue is dropped until it is listed again.
	ErrVenueNotFound = errors.New("venue not found")

	// ErrEventDecode marks ledger events that could not be decoded. They are
	// skipped and never retried.
	ErrEventDecode = errors.New("undecodable event")
)

// DecodeError reports the events of one EventsSince page that were skipped
// because they could not be decoded. It matches ErrEventDecode.
type DecodeError struct {
	Key       domain.VenueKey
	Kind      domain.EventKind
	Sequences []uint64 // ascending
	Err       error    // first decode failure
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("events %s %s: %d skipped (first %d): %v", e.Key, e.Kind, len(e.Sequences), e.Sequences[0], e.Err)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrEventDecode, e.Err} }

// Last returns the highest skipped sequence.
func (e *DecodeError) Last() uint64 { return e.Sequences[len(e.Sequences)-1] }

// DefaultPageLimit bounds how many events one EventsSince call returns.
const DefaultPageLimit = 100

// Source reads venues and their ledger events.
type Source interface {
	// ListVenues returns the configured markets and pools in a stable order.
	ListVenues(ctx context.Context) ([]domain.Venue, error)

	// EventsSince returns events of one stream with sequence >= from, in
	// ascending order, at most limit of them. Undecodable events are left
	// out and reported through a *DecodeError returned next to the events
	// that did decode; callers treat the skipped sequences as consumed.
	EventsSince(ctx context.Context, key domain.VenueKey, kind domain.EventKind, from uint64, limit int) ([]domain.Event, error)

	// Snapshot returns the current L2 book of a market.
	Snapshot(ctx context.Context, key domain.VenueKey) (*domain.OrderBook, error)
}
