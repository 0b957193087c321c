package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market-feed/internal/domain"
	"market-feed/internal/observability"
	"market-feed/internal/publish"
	"market-feed/internal/venue"
)

// PipelineAmm names the liquidity pool pipeline in logs and metrics.
const PipelineAmm = "amm"

// AmmOptions contains configuration for creating an AmmPipeline.
type AmmOptions struct {
	Source    venue.Source
	Publisher publish.Publisher
	PageLimit int           // Default: venue.DefaultPageLimit
	Interval  time.Duration // Default: 1s
	Logger    *zap.Logger
}

// AmmPipeline polls liquidity pools and republishes their swap and
// liquidity events. Its cursors live in memory for the process lifetime.
type AmmPipeline struct {
	source    venue.Source
	publisher publish.Publisher
	pageLimit int
	interval  time.Duration
	logger    *zap.Logger

	mu    sync.Mutex
	pools map[domain.VenueKey]*poolState
	order []domain.VenueKey
}

type poolState struct {
	// venue is replaced by SetVenues while a tick may be reading it.
	venue atomic.Pointer[domain.Venue]
	phase phaseTracker

	mu      sync.Mutex
	cursors map[domain.EventKind]uint64
}

func (s *poolState) cursor(kind domain.EventKind) (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.cursors[kind]
	return seq, ok
}

func (s *poolState) advance(kind domain.EventKind, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.cursors[kind]; !ok || seq > cur {
		s.cursors[kind] = seq
	}
}

// NewAmmPipeline creates a pipeline with no pools.
func NewAmmPipeline(opts AmmOptions) *AmmPipeline {
	pageLimit := opts.PageLimit
	if pageLimit <= 0 {
		pageLimit = venue.DefaultPageLimit
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AmmPipeline{
		source:    opts.Source,
		publisher: opts.Publisher,
		pageLimit: pageLimit,
		interval:  interval,
		logger:    logger.With(zap.String("pipeline", PipelineAmm)),
		pools:     make(map[domain.VenueKey]*poolState),
	}
}

func (p *AmmPipeline) Name() string            { return PipelineAmm }
func (p *AmmPipeline) Interval() time.Duration { return p.interval }

// SetVenues replaces the pool set. Cursors of pools that stay listed are kept.
func (p *AmmPipeline) SetVenues(venues []domain.Venue) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[domain.VenueKey]*poolState)
	order := make([]domain.VenueKey, 0, len(venues))
	for _, v := range venues {
		if v.Kind != domain.VenuePool {
			continue
		}
		v := v
		st, ok := p.pools[v.Key]
		if !ok {
			st = &poolState{cursors: make(map[domain.EventKind]uint64)}
			p.logger.Info("pool added", zap.Stringer("venue", v.Key))
		}
		st.venue.Store(&v)
		next[v.Key] = st
		order = append(order, v.Key)
	}
	p.pools = next
	p.order = order
	observability.SetActiveVenues(PipelineAmm, len(order))
}

func (p *AmmPipeline) drop(key domain.VenueKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.pools[key]; !ok {
		return
	}
	delete(p.pools, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i:i], p.order[i+1:]...)
			break
		}
	}
	observability.SetActiveVenues(PipelineAmm, len(p.order))
}

func (p *AmmPipeline) active() []*poolState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*poolState, 0, len(p.order))
	for _, k := range p.order {
		out = append(out, p.pools[k])
	}
	return out
}

// Status returns every polled pool with its per-stream cursors.
func (p *AmmPipeline) Status() []VenueStatus {
	states := p.active()
	out := make([]VenueStatus, 0, len(states))
	for _, st := range states {
		s := VenueStatus{Venue: *st.venue.Load(), Pipeline: PipelineAmm, Phase: st.phase.get().String()}
		for _, kind := range domain.PoolEventKinds {
			if seq, ok := st.cursor(kind); ok {
				if s.Cursor == nil {
					s.Cursor = make(map[domain.EventKind]uint64)
				}
				s.Cursor[kind] = seq
			}
		}
		out = append(out, s)
	}
	return out
}

// Tick processes every pool concurrently.
func (p *AmmPipeline) Tick(ctx context.Context, now time.Time) {
	start := time.Now()

	var g errgroup.Group
	for _, st := range p.active() {
		st := st
		g.Go(func() error {
			p.tickPool(ctx, st)
			return nil
		})
	}
	_ = g.Wait()

	observability.RecordTick(PipelineAmm, time.Since(start).Seconds(), now.Unix())
}

func (p *AmmPipeline) tickPool(ctx context.Context, st *poolState) {
	v := *st.venue.Load()
	log := p.logger.With(zap.Stringer("venue", v.Key))
	defer st.phase.set(PhaseIdle)

	for _, kind := range domain.PoolEventKinds {
		st.phase.set(PhaseFetching)
		last, seen := st.cursor(kind)
		from := uint64(0)
		if seen {
			from = last + 1
		}

		events, skipped, err := readStream(ctx, p.source, PipelineAmm, log, v.Key, kind, from, p.pageLimit)
		if err != nil {
			kindLabel := recordVenueError(PipelineAmm, err)
			if errors.Is(err, venue.ErrVenueNotFound) {
				p.drop(v.Key)
				log.Warn("pool not found, dropped until relisted", zap.Error(err))
				return
			}
			log.Warn("pool stream skipped this tick",
				zap.String("stream", string(kind)),
				zap.String("kind", kindLabel),
				zap.Error(err),
			)
			continue
		}

		st.phase.set(PhasePublishing)
		emit := emitter(ctx, p.publisher, log)
		for _, e := range events {
			// A source may re-deliver the tail event; everything at or
			// below the cursor was already published.
			if seen && e.Sequence() <= last {
				continue
			}
			emit(publish.PoolMessage(v, e))
			st.advance(kind, e.Sequence())
		}
		if skipped != nil && skipped.Last() >= from {
			st.advance(kind, skipped.Last())
		}
	}
}

var _ Pipeline = (*AmmPipeline)(nil)
