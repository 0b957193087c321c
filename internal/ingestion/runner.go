package ingestion

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market-feed/internal/domain"
	"market-feed/internal/venue"
)

// Runner schedules the pipelines and keeps their venue sets current.
type Runner struct {
	source          venue.Source
	clob            *ClobPipeline
	amm             *AmmPipeline
	clock           Clock
	refreshInterval time.Duration
	shutdownTimeout time.Duration
	logger          *zap.Logger
}

// RunnerOptions contains configuration for creating a Runner.
type RunnerOptions struct {
	Source venue.Source
	// Clob and Amm are optional; a nil pipeline is not scheduled.
	Clob                 *ClobPipeline
	Amm                  *AmmPipeline
	Clock                Clock         // Default: wall clock
	VenueRefreshInterval time.Duration // Default: 1m
	ShutdownTimeout      time.Duration // Default: 10s - bound for the final cursor persist
	Logger               *zap.Logger
}

// NewRunner creates a new ingestion runner.
func NewRunner(opts RunnerOptions) *Runner {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	refresh := opts.VenueRefreshInterval
	if refresh <= 0 {
		refresh = DefaultVenueRefreshInterval
	}
	shutdown := opts.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Runner{
		source:          opts.Source,
		clob:            opts.Clob,
		amm:             opts.Amm,
		clock:           clock,
		refreshInterval: refresh,
		shutdownTimeout: shutdown,
		logger:          logger,
	}
}

// Run loads cursors, lists venues and runs every pipeline until ctx is
// cancelled. An in-flight tick always completes, then cursors are persisted.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("starting ingestion runner",
		zap.Bool("clob", r.clob != nil),
		zap.Bool("amm", r.amm != nil),
		zap.Duration("venue_refresh", r.refreshInterval),
	)

	if r.clob != nil {
		r.clob.Init(ctx)
	}
	r.Refresh(ctx)

	var g errgroup.Group
	for _, p := range r.pipelines() {
		p := p
		g.Go(func() error {
			r.loop(ctx, p)
			return nil
		})
	}
	g.Go(func() error {
		ticker := r.clock.NewTicker(r.refreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C():
				r.Refresh(ctx)
			}
		}
	})
	_ = g.Wait()

	if r.clob != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.shutdownTimeout)
		r.clob.Shutdown(shutdownCtx)
		cancel()
	}

	r.logger.Info("ingestion runner stopped")
	return ctx.Err()
}

// loop ticks p on its interval. Tick work is detached from ctx so a
// shutdown never interrupts a tick halfway.
func (r *Runner) loop(ctx context.Context, p Pipeline) {
	ticker := r.clock.NewTicker(p.Interval())
	defer ticker.Stop()

	r.logger.Info("pipeline started", zap.String("pipeline", p.Name()), zap.Duration("interval", p.Interval()))
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("pipeline stopping", zap.String("pipeline", p.Name()))
			return
		case now := <-ticker.C():
			p.Tick(context.WithoutCancel(ctx), now)
		}
	}
}

// Refresh re-reads the venue list. On failure the current sets are kept.
func (r *Runner) Refresh(ctx context.Context) {
	venues, err := r.source.ListVenues(ctx)
	if err != nil {
		r.logger.Warn("failed to list venues, keeping current set", zap.Error(err))
		return
	}
	for _, p := range r.pipelines() {
		p.SetVenues(venues)
	}
	r.logger.Debug("venues refreshed", zap.Int("count", len(venues)))
}

// Status returns the polled venues of every pipeline.
func (r *Runner) Status() []VenueStatus {
	var out []VenueStatus
	for _, p := range r.pipelines() {
		out = append(out, p.Status()...)
	}
	return out
}

// Venue returns a polled venue by key.
func (r *Runner) Venue(key domain.VenueKey) (VenueStatus, bool) {
	for _, s := range r.Status() {
		if s.Venue.Key == key {
			return s, true
		}
	}
	return VenueStatus{}, false
}

func (r *Runner) pipelines() []Pipeline {
	var out []Pipeline
	if r.clob != nil {
		out = append(out, r.clob)
	}
	if r.amm != nil {
		out = append(out, r.amm)
	}
	return out
}
