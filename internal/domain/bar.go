package domain

// OHLCV is the price summary of one bucket.
type OHLCV struct {
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Bar is a closed bucket for one venue and resolution.
// OHLCV is nil when the bucket held no BBO samples.
type Bar struct {
	Venue      VenueKey   `json:"-"`
	Resolution Resolution `json:"resolution"`
	Time       int64      `json:"time"` // bucket start, Unix ms
	OHLCV      *OHLCV     `json:"ohlcv"`
}

// IsEmpty reports whether the bar carries no price data.
func (b Bar) IsEmpty() bool {
	return b.OHLCV == nil
}
