package storage

import (
	"context"

	"market-feed/internal/domain"
)

// CursorRepository persists the cursor record: one mapping of
// "{base}-{quote}" venue keys to the last consumed sequence number.
type CursorRepository interface {
	// Load returns the persisted mapping. A missing record yields an empty map.
	Load(ctx context.Context) (map[string]uint64, error)

	// Save writes the whole mapping. Implementations must never move a
	// persisted sequence backwards.
	Save(ctx context.Context, cursors map[string]uint64) error
}

// WindowStore is an append/drain list store. Lists are created on first
// append and hold opaque encoded ticks in insertion order.
type WindowStore interface {
	// Append adds entry to the tail of every named list.
	Append(ctx context.Context, keys []string, entry []byte) error

	// Drain atomically returns all entries of a list and clears it.
	// An entry appended concurrently lands either in this drain or in the
	// list afterwards, never both and never neither.
	Drain(ctx context.Context, key string) ([][]byte, error)

	// Range returns all entries of a list without removing them.
	Range(ctx context.Context, key string) ([][]byte, error)

	// Head returns at most the first n entries of a list.
	Head(ctx context.Context, key string, n int) ([][]byte, error)

	// TrimPrefix removes the first n entries of a list.
	TrimPrefix(ctx context.Context, key string, n int) error
}

// BarStore persists closed bars.
type BarStore interface {
	// InsertBars adds bars. Re-inserting a bar with the same ID is idempotent.
	InsertBars(ctx context.Context, bars []*BarRecord) error

	// GetBars returns bars of a venue and resolution with bucket start in
	// [start, end], ordered by time ASC.
	GetBars(ctx context.Context, venue domain.VenueKey, res domain.Resolution, start, end int64) ([]*BarRecord, error)
}

// TradeStore persists published trades.
type TradeStore interface {
	// InsertTrades adds trades. Re-inserting a trade with the same ID is idempotent.
	InsertTrades(ctx context.Context, trades []*TradeRecord) error

	// GetTrades returns trades of a venue within [start, end], ordered by
	// sequence ASC.
	GetTrades(ctx context.Context, venue domain.VenueKey, start, end int64) ([]*TradeRecord, error)
}

// BarRecord is a bar with its event ID.
type BarRecord struct {
	ID  string
	Bar domain.Bar
}

// TradeRecord is a trade with its event ID.
type TradeRecord struct {
	ID    string
	Trade domain.Trade
}
