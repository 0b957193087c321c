// Package window buffers ticks per venue and resolution until a bar closes.
package window

import (
	"context"
	"encoding/json"
	"fmt"

	"market-feed/internal/domain"
	"market-feed/internal/storage"
)

// ListKey names the list holding one metric of one venue at one resolution.
// Format: "{base}-{quote}-{metric}-{resolution}".
func ListKey(venue domain.VenueKey, metric domain.Metric, res domain.Resolution) string {
	return fmt.Sprintf("%s-%s-%s", venue.String(), metric, res)
}

// Buffer stores ticks in a storage.WindowStore.
type Buffer struct {
	store storage.WindowStore
}

// NewBuffer creates a buffer over store.
func NewBuffer(store storage.WindowStore) *Buffer {
	return &Buffer{store: store}
}

// AppendBBO writes the sample once into each resolution's BBO list.
func (b *Buffer) AppendBBO(ctx context.Context, venue domain.VenueKey, resolutions []domain.Resolution, s domain.BboSample) error {
	return b.append(ctx, venue, domain.MetricBBO, resolutions, s)
}

// AppendTrade writes the sample once into each resolution's trade list.
func (b *Buffer) AppendTrade(ctx context.Context, venue domain.VenueKey, resolutions []domain.Resolution, s domain.TradeSample) error {
	return b.append(ctx, venue, domain.MetricTrade, resolutions, s)
}

func (b *Buffer) append(ctx context.Context, venue domain.VenueKey, metric domain.Metric, resolutions []domain.Resolution, tick any) error {
	entry, err := json.Marshal(tick)
	if err != nil {
		return fmt.Errorf("encode %s tick: %w", metric, err)
	}

	keys := make([]string, len(resolutions))
	for i, res := range resolutions {
		keys[i] = ListKey(venue, metric, res)
	}
	return b.store.Append(ctx, keys, entry)
}

// Drain empties both lists of (venue, res) and returns their ticks in
// insertion order. Each list is cleared by one atomic store call.
func (b *Buffer) Drain(ctx context.Context, venue domain.VenueKey, res domain.Resolution) ([]domain.BboSample, []domain.TradeSample, error) {
	rawBBO, err := b.store.Drain(ctx, ListKey(venue, domain.MetricBBO, res))
	if err != nil {
		return nil, nil, err
	}
	rawTrades, err := b.store.Drain(ctx, ListKey(venue, domain.MetricTrade, res))
	if err != nil {
		return nil, nil, err
	}
	return decode(rawBBO, rawTrades)
}

// Range reads both lists of (venue, res) without clearing them.
func (b *Buffer) Range(ctx context.Context, venue domain.VenueKey, res domain.Resolution) ([]domain.BboSample, []domain.TradeSample, error) {
	rawBBO, err := b.store.Range(ctx, ListKey(venue, domain.MetricBBO, res))
	if err != nil {
		return nil, nil, err
	}
	rawTrades, err := b.store.Range(ctx, ListKey(venue, domain.MetricTrade, res))
	if err != nil {
		return nil, nil, err
	}
	return decode(rawBBO, rawTrades)
}

// trimChunk bounds how many ticks TrimBefore reads per round trip.
const trimChunk = 256

// TrimBefore drops the leading ticks of (venue, res) stamped before cutoff.
// Ticks are appended in time order, so the stale ones form a prefix; only
// that prefix and one chunk past it are read.
// Returns the number of ticks removed.
func (b *Buffer) TrimBefore(ctx context.Context, venue domain.VenueKey, res domain.Resolution, cutoff int64) (int, error) {
	nBBO, err := b.trimList(ctx, ListKey(venue, domain.MetricBBO, res), cutoff, func(raw []byte) (int64, error) {
		var s domain.BboSample
		err := json.Unmarshal(raw, &s)
		return s.Time, err
	})
	if err != nil {
		return nBBO, err
	}
	nTrades, err := b.trimList(ctx, ListKey(venue, domain.MetricTrade, res), cutoff, func(raw []byte) (int64, error) {
		var s domain.TradeSample
		err := json.Unmarshal(raw, &s)
		return s.Time, err
	})
	return nBBO + nTrades, err
}

func (b *Buffer) trimList(ctx context.Context, key string, cutoff int64, stamp func([]byte) (int64, error)) (int, error) {
	removed := 0
	for {
		head, err := b.store.Head(ctx, key, trimChunk)
		if err != nil {
			return removed, err
		}

		stale := 0
		for stale < len(head) {
			t, err := stamp(head[stale])
			if err != nil {
				return removed, fmt.Errorf("decode tick %s: %w", key, err)
			}
			if t >= cutoff {
				break
			}
			stale++
		}

		if err := b.store.TrimPrefix(ctx, key, stale); err != nil {
			return removed, err
		}
		removed += stale
		if stale < trimChunk {
			return removed, nil
		}
	}
}

func decode(rawBBO, rawTrades [][]byte) ([]domain.BboSample, []domain.TradeSample, error) {
	bbos := make([]domain.BboSample, 0, len(rawBBO))
	for _, raw := range rawBBO {
		var s domain.BboSample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, fmt.Errorf("decode bbo tick: %w", err)
		}
		bbos = append(bbos, s)
	}

	trades := make([]domain.TradeSample, 0, len(rawTrades))
	for _, raw := range rawTrades {
		var s domain.TradeSample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, fmt.Errorf("decode trade tick: %w", err)
		}
		trades = append(trades, s)
	}
	return bbos, trades, nil
}
