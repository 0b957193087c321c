package venue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-feed/internal/aptos"
	"market-feed/internal/domain"
	"market-feed/internal/observability"
)

// Move names of the venue resources and their event handle fields.
const (
	marketModule = "clob_market"
	marketStruct = "Market"
	poolModule   = "amm"
	poolStruct   = "Pool"
	lpStruct     = "LP"

	// l2View returns the aggregated book of Market<B, Q> as
	// [{bids: [{price, quantity}], asks: [...]}] in atomic units.
	l2View = "clob_market::l2"

	coinInfoTag = "0x1::coin::CoinInfo<%s>"
)

var eventFields = map[domain.EventKind]string{
	domain.EventFill:            "fill_events",
	domain.EventSwap:            "swap_events",
	domain.EventAddLiquidity:    "add_liquidity_events",
	domain.EventRemoveLiquidity: "remove_liquidity_events",
}

// AptosOptions configures AptosSource.
type AptosOptions struct {
	Client        aptos.Client
	ModuleAddress string           // account that owns the market and pool resources
	Now           func() time.Time // defaults to time.Now
	Logger        *zap.Logger
}

// AptosSource implements Source over the node REST API.
type AptosSource struct {
	client aptos.Client
	module string
	now    func() time.Time
	logger *zap.Logger

	mu       sync.RWMutex
	venues   map[domain.VenueKey]domain.Venue
	decimals map[string]int32 // coin type -> decimals
}

// NewAptosSource creates a source reading venues under opts.ModuleAddress.
func NewAptosSource(opts AptosOptions) *AptosSource {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AptosSource{
		client:   opts.Client,
		module:   opts.ModuleAddress,
		now:      now,
		logger:   logger,
		venues:   make(map[domain.VenueKey]domain.Venue),
		decimals: make(map[string]int32),
	}
}

// ListVenues scans the module account for Market<B, Q> and Pool<X, Y>
// resources. Markets come first, each group ordered by key. A venue whose
// coin info cannot be read is logged and left out; only a failure to read
// the account fails the listing.
func (s *AptosSource) ListVenues(ctx context.Context) ([]domain.Venue, error) {
	resources, err := s.client.AccountResources(ctx, s.module)
	if err != nil {
		return nil, fmt.Errorf("list venues: %w: %w", ErrVenueUnavailable, err)
	}

	var venues []domain.Venue
	for _, r := range resources {
		tag, err := aptos.ParseStructTag(r.Type)
		if err != nil || !strings.EqualFold(tag.Address, s.module) || len(tag.TypeArgs) != 2 {
			continue
		}

		var kind domain.VenueKind
		switch {
		case tag.Module == marketModule && tag.Name == marketStruct:
			kind = domain.VenueMarket
		case tag.Module == poolModule && tag.Name == poolStruct:
			kind = domain.VenuePool
		default:
			continue
		}

		v := domain.Venue{
			Key:  domain.VenueKey{Base: tag.TypeArgs[0], Quote: tag.TypeArgs[1]},
			Kind: kind,
		}
		if err := s.resolveDecimals(ctx, &v); err != nil {
			kind := "unavailable"
			if errors.Is(err, ErrVenueNotFound) {
				kind = "not_found"
			}
			observability.RecordVenueError("listing", kind)
			s.logger.Warn("skipping venue with unreadable coin info",
				zap.Stringer("venue", v.Key),
				zap.String("kind", string(v.Kind)),
				zap.Error(err),
			)
			continue
		}
		venues = append(venues, v)
	}

	sort.SliceStable(venues, func(i, j int) bool {
		if venues[i].Kind != venues[j].Kind {
			return venues[i].Kind == domain.VenueMarket
		}
		return venues[i].Key.String() < venues[j].Key.String()
	})

	s.mu.Lock()
	s.venues = make(map[domain.VenueKey]domain.Venue, len(venues))
	for _, v := range venues {
		s.venues[v.Key] = v
	}
	s.mu.Unlock()

	return venues, nil
}

// EventsSince pages one event handle of a listed venue.
func (s *AptosSource) EventsSince(ctx context.Context, key domain.VenueKey, kind domain.EventKind, from uint64, limit int) ([]domain.Event, error) {
	v, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	field, ok := eventFields[kind]
	if !ok {
		return nil, fmt.Errorf("events %s: unknown event kind %q", key, kind)
	}
	if (kind == domain.EventFill) != (v.Kind == domain.VenueMarket) {
		return nil, fmt.Errorf("events %s: %s stream on %s: %w", key, kind, v.Kind, ErrVenueNotFound)
	}
	if limit <= 0 {
		limit = DefaultPageLimit
	}

	raw, err := s.client.EventsByHandle(ctx, s.module, s.handle(v), field, from, limit)
	if err != nil {
		return nil, classify("events", key, err)
	}

	events := make([]domain.Event, 0, len(raw))
	var decodeErr *DecodeError
	for _, e := range raw {
		if uint64(e.SequenceNumber) < from {
			continue
		}
		ev, err := decodeEvent(v, kind, e)
		if err != nil {
			if decodeErr == nil {
				decodeErr = &DecodeError{Key: key, Kind: kind, Err: err}
			}
			decodeErr.Sequences = append(decodeErr.Sequences, uint64(e.SequenceNumber))
			continue
		}
		events = append(events, ev)
	}
	sort.Slice(events, func(i, j int) bool {
		return events[i].Sequence() < events[j].Sequence()
	})
	if decodeErr != nil {
		sort.Slice(decodeErr.Sequences, func(i, j int) bool { return decodeErr.Sequences[i] < decodeErr.Sequences[j] })
		return events, decodeErr
	}
	return events, nil
}

// Snapshot reads the L2 book through the market's view function.
func (s *AptosSource) Snapshot(ctx context.Context, key domain.VenueKey) (*domain.OrderBook, error) {
	v, err := s.lookup(key)
	if err != nil {
		return nil, err
	}
	if v.Kind != domain.VenueMarket {
		return nil, fmt.Errorf("snapshot %s: not a market: %w", key, ErrVenueNotFound)
	}

	out, err := s.client.View(ctx, aptos.ViewRequest{
		Function:      s.module + "::" + l2View,
		TypeArguments: []string{key.Base, key.Quote},
	})
	if err != nil {
		return nil, classify("snapshot", key, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("snapshot %s: empty view result: %w", key, ErrVenueUnavailable)
	}

	var l2 struct {
		Bids []rawLevel `json:"bids"`
		Asks []rawLevel `json:"asks"`
	}
	if err := json.Unmarshal(out[0], &l2); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w: decode: %w", key, ErrVenueUnavailable, err)
	}

	book := &domain.OrderBook{
		Venue: key,
		Bids:  scaleLevels(v, l2.Bids),
		Asks:  scaleLevels(v, l2.Asks),
		Time:  s.now().UnixMilli(),
	}
	sort.SliceStable(book.Bids, func(i, j int) bool { return book.Bids[i].Price > book.Bids[j].Price })
	sort.SliceStable(book.Asks, func(i, j int) bool { return book.Asks[i].Price < book.Asks[j].Price })
	return book, nil
}

// Venue returns a venue seen by the last ListVenues.
func (s *AptosSource) Venue(key domain.VenueKey) (domain.Venue, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.venues[key]
	return v, ok
}

func (s *AptosSource) lookup(key domain.VenueKey) (domain.Venue, error) {
	v, ok := s.Venue(key)
	if !ok {
		return domain.Venue{}, fmt.Errorf("venue %s: %w", key, ErrVenueNotFound)
	}
	return v, nil
}

func (s *AptosSource) handle(v domain.Venue) string {
	tag := aptos.StructTag{Address: s.module, TypeArgs: []string{v.Key.Base, v.Key.Quote}}
	if v.Kind == domain.VenueMarket {
		tag.Module, tag.Name = marketModule, marketStruct
	} else {
		tag.Module, tag.Name = poolModule, poolStruct
	}
	return tag.String()
}

// resolveDecimals fills the coin decimals of v. Pools also need their LP coin,
// {module}::amm::LP<X, Y>.
func (s *AptosSource) resolveDecimals(ctx context.Context, v *domain.Venue) error {
	var err error
	if v.BaseDecimals, err = s.coinDecimals(ctx, v.Key.Base); err != nil {
		return err
	}
	if v.QuoteDecimals, err = s.coinDecimals(ctx, v.Key.Quote); err != nil {
		return err
	}
	if v.Kind == domain.VenuePool {
		lp := aptos.StructTag{Address: s.module, Module: poolModule, Name: lpStruct, TypeArgs: []string{v.Key.Base, v.Key.Quote}}
		if v.LPDecimals, err = s.coinDecimals(ctx, lp.String()); err != nil {
			return err
		}
	}
	return nil
}

// coinDecimals reads CoinInfo<T>.decimals from the coin's publisher account.
// A coin without CoinInfo makes its venues misconfigured (ErrVenueNotFound).
func (s *AptosSource) coinDecimals(ctx context.Context, coinType string) (int32, error) {
	s.mu.RLock()
	d, ok := s.decimals[coinType]
	s.mu.RUnlock()
	if ok {
		return d, nil
	}

	tag, err := aptos.ParseStructTag(coinType)
	if err != nil {
		return 0, fmt.Errorf("coin %s: %w: %w", coinType, ErrVenueNotFound, err)
	}

	res, err := s.client.AccountResource(ctx, tag.Address, fmt.Sprintf(coinInfoTag, coinType))
	if err != nil {
		if errors.Is(err, aptos.ErrNotFound) {
			return 0, fmt.Errorf("coin info %s: %w: %w", coinType, ErrVenueNotFound, err)
		}
		return 0, fmt.Errorf("coin info %s: %w: %w", coinType, ErrVenueUnavailable, err)
	}

	var info struct {
		Decimals int32 `json:"decimals"`
	}
	if err := json.Unmarshal(res.Data, &info); err != nil {
		return 0, fmt.Errorf("decode coin info %s: %w: %w", coinType, ErrVenueNotFound, err)
	}

	s.mu.Lock()
	s.decimals[coinType] = info.Decimals
	s.mu.Unlock()
	return info.Decimals, nil
}

func classify(op string, key domain.VenueKey, err error) error {
	if errors.Is(err, aptos.ErrNotFound) {
		return fmt.Errorf("%s %s: %w: %w", op, key, ErrVenueNotFound, err)
	}
	return fmt.Errorf("%s %s: %w: %w", op, key, ErrVenueUnavailable, err)
}

var _ Source = (*AptosSource)(nil)
