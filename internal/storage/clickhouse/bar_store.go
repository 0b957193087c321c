package clickhouse

import (
	"context"
	"fmt"

	"market-feed/internal/domain"
	"market-feed/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
// The bars table is a ReplacingMergeTree keyed by (venue, resolution, time_ms),
// so re-delivered bars collapse on merge and reads use FINAL.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBars adds bars in one batch.
func (s *BarStore) InsertBars(ctx context.Context, bars []*storage.BarRecord) error {
	if len(bars) == 0 {
		return nil
	}
	for _, b := range bars {
		if b == nil || b.ID == "" {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (
			id, venue, resolution, time_ms, open, high, low, close, volume
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		var open, high, low, closePx, volume *float64
		if o := b.Bar.OHLCV; o != nil {
			open, high, low, closePx, volume = &o.Open, &o.High, &o.Low, &o.Close, &o.Volume
		}

		err = batch.Append(
			b.ID, b.Bar.Venue.String(), string(b.Bar.Resolution), uint64(b.Bar.Time),
			open, high, low, closePx, volume,
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

// GetBars returns bars within [start, end], ordered by time ASC.
func (s *BarStore) GetBars(ctx context.Context, venue domain.VenueKey, res domain.Resolution, start, end int64) ([]*storage.BarRecord, error) {
	query := `
		SELECT id, venue, resolution, time_ms, open, high, low, close, volume
		FROM bars FINAL
		WHERE venue = ? AND resolution = ? AND time_ms >= ? AND time_ms <= ?
		ORDER BY time_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, venue.String(), string(res), uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// scanBars scans multiple rows.
func scanBars(rows chRows) ([]*storage.BarRecord, error) {
	var bars []*storage.BarRecord

	for rows.Next() {
		var (
			rec                           storage.BarRecord
			venue, res                    string
			timeMs                        uint64
			open, high, low, closePx, vol *float64
		)

		if err := rows.Scan(&rec.ID, &venue, &res, &timeMs, &open, &high, &low, &closePx, &vol); err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}

		key, err := domain.ParseVenueKey(venue)
		if err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}

		rec.Bar = domain.Bar{
			Venue:      key,
			Resolution: domain.Resolution(res),
			Time:       int64(timeMs),
		}
		if open != nil && high != nil && low != nil && closePx != nil && vol != nil {
			rec.Bar.OHLCV = &domain.OHLCV{Open: *open, High: *high, Low: *low, Close: *closePx, Volume: *vol}
		}
		bars = append(bars, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	return bars, nil
}
