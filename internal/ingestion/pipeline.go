// Package ingestion drives the polling pipelines that turn ledger events
// into published facts.
package ingestion

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"market-feed/internal/domain"
	"market-feed/internal/observability"
	"market-feed/internal/publish"
	"market-feed/internal/venue"
)

// Pipeline is one independently scheduled polling loop.
type Pipeline interface {
	Name() string
	Interval() time.Duration
	// SetVenues replaces the polled venue set. Venues of the wrong kind are
	// ignored.
	SetVenues(venues []domain.Venue)
	// Tick processes every venue once and returns when all are done.
	Tick(ctx context.Context, now time.Time)
	Status() []VenueStatus
}

// Phase is the per-venue state within a tick.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseAggregating
	PhasePublishing
)

func (p Phase) String() string {
	switch p {
	case PhaseFetching:
		return "fetching"
	case PhaseAggregating:
		return "aggregating"
	case PhasePublishing:
		return "publishing"
	default:
		return "idle"
	}
}

// VenueStatus describes a polled venue.
type VenueStatus struct {
	Venue    domain.Venue `json:"venue"`
	Pipeline string       `json:"pipeline"`
	Phase    string       `json:"phase"`
	// Cursor is the last consumed sequence per stream, absent before the
	// first event.
	Cursor map[domain.EventKind]uint64 `json:"cursor,omitempty"`
}

type phaseTracker struct{ v atomic.Int32 }

func (t *phaseTracker) set(p Phase) { t.v.Store(int32(p)) }
func (t *phaseTracker) get() Phase  { return Phase(t.v.Load()) }

// Default configuration values.
const (
	DefaultInterval             = time.Second
	DefaultVenueRefreshInterval = time.Minute
)

// failureKind classifies a venue read error for metrics and the drop decision.
func failureKind(err error) string {
	switch {
	case errors.Is(err, venue.ErrVenueNotFound):
		return "not_found"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "unavailable"
	}
}

func recordVenueError(pipeline string, err error) string {
	kind := failureKind(err)
	observability.RecordVenueError(pipeline, kind)
	return kind
}

// readStream pages one event stream. Undecodable events are logged, counted
// and reported through skipped so the caller can move its cursor past them;
// the events that did decode are returned as usual.
func readStream(ctx context.Context, src venue.Source, pipeline string, log *zap.Logger,
	key domain.VenueKey, kind domain.EventKind, from uint64, limit int,
) (events []domain.Event, skipped *venue.DecodeError, err error) {
	events, err = src.EventsSince(ctx, key, kind, from, limit)
	if err != nil && !errors.As(err, &skipped) {
		return nil, nil, err
	}
	observability.RecordEventsFetched(string(kind), len(events))
	if skipped != nil {
		observability.RecordVenueError(pipeline, "decode")
		log.Error("skipping undecodable events",
			zap.String("stream", string(kind)),
			zap.Uint64s("sequences", skipped.Sequences),
			zap.Error(skipped.Err),
		)
	}
	return events, skipped, nil
}

// emitter returns a function publishing the result of a message builder.
// Build errors are logged and the message is skipped.
func emitter(ctx context.Context, pub publish.Publisher, log *zap.Logger) func(publish.Message, error) {
	return func(msg publish.Message, err error) {
		if err != nil {
			log.Error("failed to build message", zap.Error(err))
			return
		}
		pub.Publish(ctx, msg)
	}
}
