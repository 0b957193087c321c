package ingestion

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market-feed/internal/bar"
	"market-feed/internal/cursor"
	"market-feed/internal/domain"
	"market-feed/internal/observability"
	"market-feed/internal/publish"
	"market-feed/internal/venue"
	"market-feed/internal/window"
)

// PipelineClob names the order-book pipeline in logs and metrics.
const PipelineClob = "clob"

// ClobOptions contains configuration for creating a ClobPipeline.
type ClobOptions struct {
	Source    venue.Source
	Cursors   *cursor.Store
	Windows   *window.Buffer
	Publisher publish.Publisher
	PageLimit int           // Default: venue.DefaultPageLimit
	Interval  time.Duration // Default: 1s
	Logger    *zap.Logger
}

// ClobPipeline polls order-book markets: snapshots, fills, bars.
type ClobPipeline struct {
	source    venue.Source
	cursors   *cursor.Store
	windows   *window.Buffer
	publisher publish.Publisher
	pageLimit int
	interval  time.Duration
	logger    *zap.Logger

	mu      sync.Mutex
	markets map[domain.VenueKey]*marketState
	order   []domain.VenueKey
}

// marketState is touched only by the goroutine processing its market
// within a tick, apart from venue and phase.
type marketState struct {
	// venue is replaced by SetVenues while a tick may be reading it.
	venue atomic.Pointer[domain.Venue]
	phase phaseTracker
	// lastBucket is the open bucket start per resolution.
	lastBucket map[domain.Resolution]int64
}

// NewClobPipeline creates a pipeline with no markets. Call Init before the
// first tick.
func NewClobPipeline(opts ClobOptions) *ClobPipeline {
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

	return &ClobPipeline{
		source:    opts.Source,
		cursors:   opts.Cursors,
		windows:   opts.Windows,
		publisher: opts.Publisher,
		pageLimit: pageLimit,
		interval:  interval,
		logger:    logger.With(zap.String("pipeline", PipelineClob)),
		markets:   make(map[domain.VenueKey]*marketState),
	}
}

func (p *ClobPipeline) Name() string            { return PipelineClob }
func (p *ClobPipeline) Interval() time.Duration { return p.interval }

// Init loads persisted cursors. A store failure is logged and the pipeline
// starts from in-memory state.
func (p *ClobPipeline) Init(ctx context.Context) {
	loaded, err := p.cursors.LoadAll(ctx)
	if err != nil {
		observability.RecordVenueError(PipelineClob, "store")
		p.logger.Warn("failed to load cursors, starting from scratch", zap.Error(err))
		return
	}
	p.logger.Info("cursors loaded", zap.Int("count", len(loaded)))
}

// SetVenues replaces the market set. Bucket state of markets that stay
// listed is kept.
func (p *ClobPipeline) SetVenues(venues []domain.Venue) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := make(map[domain.VenueKey]*marketState)
	order := make([]domain.VenueKey, 0, len(venues))
	for _, v := range venues {
		if v.Kind != domain.VenueMarket {
			continue
		}
		v := v
		st, ok := p.markets[v.Key]
		if !ok {
			st = &marketState{lastBucket: make(map[domain.Resolution]int64)}
			p.logger.Info("market added", zap.Stringer("venue", v.Key))
		}
		st.venue.Store(&v)
		next[v.Key] = st
		order = append(order, v.Key)
	}
	p.markets = next
	p.order = order
	observability.SetActiveVenues(PipelineClob, len(order))
}

// drop removes a market until the next SetVenues lists it again.
func (p *ClobPipeline) drop(key domain.VenueKey) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.markets[key]; !ok {
		return
	}
	delete(p.markets, key)
	for i, k := range p.order {
		if k == key {
			p.order = append(p.order[:i:i], p.order[i+1:]...)
			break
		}
	}
	observability.SetActiveVenues(PipelineClob, len(p.order))
}

func (p *ClobPipeline) active() []*marketState {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*marketState, 0, len(p.order))
	for _, k := range p.order {
		out = append(out, p.markets[k])
	}
	return out
}

// Status returns every polled market with its fill cursor and phase.
func (p *ClobPipeline) Status() []VenueStatus {
	states := p.active()
	out := make([]VenueStatus, 0, len(states))
	for _, st := range states {
		v := *st.venue.Load()
		s := VenueStatus{Venue: v, Pipeline: PipelineClob, Phase: st.phase.get().String()}
		if seq, seen := p.cursors.Get(v.Key); seen {
			s.Cursor = map[domain.EventKind]uint64{domain.EventFill: seq}
		}
		out = append(out, s)
	}
	return out
}

// Tick processes every market concurrently, then persists cursors once.
// A failing read affects its market for this tick only.
func (p *ClobPipeline) Tick(ctx context.Context, now time.Time) {
	start := time.Now()
	nowMs := now.UnixMilli()

	var g errgroup.Group
	for _, st := range p.active() {
		st := st
		g.Go(func() error {
			p.tickMarket(ctx, st, nowMs)
			return nil
		})
	}
	_ = g.Wait()

	p.persist(ctx)
	observability.RecordTick(PipelineClob, time.Since(start).Seconds(), now.Unix())
}

// Shutdown persists cursors one last time.
func (p *ClobPipeline) Shutdown(ctx context.Context) {
	p.persist(ctx)
}

func (p *ClobPipeline) persist(ctx context.Context) {
	written, err := p.cursors.Persist(ctx)
	if err != nil {
		observability.RecordCursorPersist(err)
		p.logger.Warn("failed to persist cursors", zap.Error(err))
		return
	}
	if written {
		observability.RecordCursorPersist(nil)
	}
}

// tickMarket runs one market through fetch, aggregate and publish. A failed
// snapshot or fill read only withholds what it would have produced: bars
// keep closing on schedule.
func (p *ClobPipeline) tickMarket(ctx context.Context, st *marketState, now int64) {
	v := *st.venue.Load()
	key := v.Key
	log := p.logger.With(zap.Stringer("venue", key))
	defer st.phase.set(PhaseIdle)

	// Fetching
	st.phase.set(PhaseFetching)
	book, err := p.source.Snapshot(ctx, key)
	if err != nil {
		if p.fail(log, key, "snapshot", err) {
			return
		}
		book = nil
	} else {
		book.Venue = key
		book.Time = now
	}

	from := p.cursors.Next(key)
	var (
		fills    []*domain.Fill
		consumed uint64
		advance  bool
	)
	events, skipped, err := readStream(ctx, p.source, PipelineClob, log, key, domain.EventFill, from, p.pageLimit)
	if err != nil {
		if p.fail(log, key, "fills", err) {
			return
		}
	} else {
		fills = collectFills(log, events, from)
		if n := len(fills); n > 0 {
			consumed, advance = fills[n-1].SequenceNumber, true
		}
		if skipped != nil && skipped.Last() >= from && (!advance || skipped.Last() > consumed) {
			consumed, advance = skipped.Last(), true
		}
	}
	if ctx.Err() != nil {
		return
	}

	// Aggregating
	st.phase.set(PhaseAggregating)
	bars := p.closeBuckets(ctx, log, st, key, now)

	if book != nil {
		if bbo, ok := book.Best(); ok {
			if err := p.windows.AppendBBO(ctx, key, domain.WindowResolutions, bbo); err != nil {
				p.storeFailure(log, "append bbo", err)
			}
		}
	}

	trades := make([]domain.Trade, 0, len(fills))
	for _, f := range fills {
		if !f.Visible() {
			continue
		}
		trade := venue.TradeFromFill(v, f)
		trades = append(trades, trade)
		if err := p.windows.AppendTrade(ctx, key, domain.WindowResolutions, trade.Sample(now)); err != nil {
			p.storeFailure(log, "append trade", err)
		}
	}

	cutoff := now - bar.RollingWindow.Milliseconds()
	if _, err := p.windows.TrimBefore(ctx, key, domain.Res24h, cutoff); err != nil {
		p.storeFailure(log, "trim rolling window", err)
	}

	// Publishing
	st.phase.set(PhasePublishing)
	emit := emitter(ctx, p.publisher, log)
	for _, b := range bars {
		emit(publish.BarMessage(b))
	}
	if book != nil {
		emit(publish.OrderBookMessage(book))
	}
	for _, t := range trades {
		emit(publish.TradeMessage(t))
		emit(publish.LastTradePriceMessage(t))
	}

	if advance {
		p.cursors.Set(key, consumed)
	}
}

// closeBuckets drains every resolution whose bucket changed since the last
// tick and returns one bar per closed bucket. The first tick of a market only
// records the open buckets.
func (p *ClobPipeline) closeBuckets(ctx context.Context, log *zap.Logger, st *marketState, key domain.VenueKey, now int64) []domain.Bar {
	var bars []domain.Bar
	for _, res := range domain.BarResolutions {
		bucket := res.BucketStart(now)
		last, ok := st.lastBucket[res]
		st.lastBucket[res] = bucket
		if !ok || bucket <= last {
			continue
		}

		bbos, trades, err := p.windows.Drain(ctx, key, res)
		if err != nil {
			p.storeFailure(log.With(zap.String("resolution", string(res))), "drain window", err)
			continue
		}
		b := bar.Aggregate(key, res, last, bbos, trades)
		observability.RecordBar(string(res), b.IsEmpty())
		bars = append(bars, b)
	}
	return bars
}

// fail records a read failure and reports whether the market was dropped.
func (p *ClobPipeline) fail(log *zap.Logger, key domain.VenueKey, op string, err error) bool {
	kind := recordVenueError(PipelineClob, err)
	if errors.Is(err, venue.ErrVenueNotFound) {
		p.drop(key)
		log.Warn("market not found, dropped until relisted", zap.String("op", op), zap.Error(err))
		return true
	}
	log.Warn("market read failed, retrying next tick", zap.String("op", op), zap.String("kind", kind), zap.Error(err))
	return false
}

func (p *ClobPipeline) storeFailure(log *zap.Logger, op string, err error) {
	observability.RecordVenueError(PipelineClob, "store")
	log.Warn("window store failure", zap.String("op", op), zap.Error(err))
}

// collectFills keeps the fills of a batch with sequence >= from, in order.
func collectFills(log *zap.Logger, events []domain.Event, from uint64) []*domain.Fill {
	c := &fillCollector{log: log}
	for _, e := range events {
		if e.Sequence() < from {
			continue
		}
		e.Accept(c)
	}
	return c.fills
}

type fillCollector struct {
	log   *zap.Logger
	fills []*domain.Fill
}

func (c *fillCollector) VisitFill(e *domain.Fill) { c.fills = append(c.fills, e) }

func (c *fillCollector) VisitSwap(e *domain.Swap) { c.unexpected(e) }

func (c *fillCollector) VisitAddLiquidity(e *domain.AddLiquidity) { c.unexpected(e) }

func (c *fillCollector) VisitRemoveLiquidity(e *domain.RemoveLiquidity) { c.unexpected(e) }

func (c *fillCollector) unexpected(e domain.Event) {
	c.log.Warn("ignoring non-fill event in fill stream",
		zap.String("kind", string(e.Kind())),
		zap.Uint64("sequence", e.Sequence()),
	)
}

var _ Pipeline = (*ClobPipeline)(nil)
