// Package bar turns drained window ticks into OHLCV bars.
package bar

import (
	"time"

	"market-feed/internal/domain"
)

// RollingWindow is the span summarized by Rolling.
const RollingWindow = 24 * time.Hour

// Aggregate builds the bar for the bucket starting at bucketStart.
// Ticks stamped before bucketStart are ignored. Samples are read in
// insertion order: open is the first midpoint and close the last.
func Aggregate(venue domain.VenueKey, res domain.Resolution, bucketStart int64, bbos []domain.BboSample, trades []domain.TradeSample) domain.Bar {
	return domain.Bar{
		Venue:      venue,
		Resolution: res,
		Time:       bucketStart,
		OHLCV:      summarize(bucketStart, bbos, trades),
	}
}

// Rolling summarizes the trailing 24 hours ending at now (Unix ms).
func Rolling(venue domain.VenueKey, now int64, bbos []domain.BboSample, trades []domain.TradeSample) domain.Bar {
	start := now - RollingWindow.Milliseconds()
	return Aggregate(venue, domain.Res24h, start, bbos, trades)
}

func summarize(from int64, bbos []domain.BboSample, trades []domain.TradeSample) *domain.OHLCV {
	var (
		ohlcv *domain.OHLCV
		n     int
	)
	for _, s := range bbos {
		if s.Time < from {
			continue
		}
		mid := s.Mid()
		if n == 0 {
			ohlcv = &domain.OHLCV{Open: mid, High: s.Ask, Low: s.Bid}
		}
		n++
		ohlcv.Close = mid
		if s.Ask > ohlcv.High {
			ohlcv.High = s.Ask
		}
		if s.Bid < ohlcv.Low {
			ohlcv.Low = s.Bid
		}
	}
	if ohlcv == nil {
		return nil
	}

	for _, t := range trades {
		if t.Time < from {
			continue
		}
		ohlcv.Volume += t.Value()
	}
	return ohlcv
}
