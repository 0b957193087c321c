package clickhouse

import (
	"context"
	"fmt"

	"market-feed/internal/domain"
	"market-feed/internal/storage"
)

// TradeStore implements storage.TradeStore using ClickHouse.
type TradeStore struct {
	conn *Conn
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(conn *Conn) *TradeStore {
	return &TradeStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

// InsertTrades adds trades in one batch.
func (s *TradeStore) InsertTrades(ctx context.Context, trades []*storage.TradeRecord) error {
	if len(trades) == 0 {
		return nil
	}
	for _, tr := range trades {
		if tr == nil || tr.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trades (
			id, venue, sequence, side, price, quantity, value, time_ms
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tr := range trades {
		t := tr.Trade
		err = batch.Append(
			tr.ID, t.Venue.String(), t.Sequence, string(t.Side),
			t.Price, t.Quantity, t.Value, uint64(t.Time),
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetTrades returns trades of a venue within [start, end], ordered by sequence ASC.
func (s *TradeStore) GetTrades(ctx context.Context, venue domain.VenueKey, start, end int64) ([]*storage.TradeRecord, error) {
	query := `
		SELECT id, venue, sequence, side, price, quantity, value, time_ms
		FROM trades FINAL
		WHERE venue = ? AND time_ms >= ? AND time_ms <= ?
		ORDER BY sequence ASC
	`

	rows, err := s.conn.Query(ctx, query, venue.String(), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// scanTrades scans multiple rows.
func scanTrades(rows chRows) ([]*storage.TradeRecord, error) {
	var trades []*storage.TradeRecord

	for rows.Next() {
		var (
			rec         storage.TradeRecord
			venue, side string
			timeMs      uint64
		)

		err := rows.Scan(
			&rec.ID, &venue, &rec.Trade.Sequence, &side,
			&rec.Trade.Price, &rec.Trade.Quantity, &rec.Trade.Value, &timeMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}

		key, err := domain.ParseVenueKey(venue)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		rec.Trade.Venue = key
		rec.Trade.Side = domain.Side(side)
		rec.Trade.Time = int64(timeMs)
		trades = append(trades, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
