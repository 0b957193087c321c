package domain

// Side is the taker side of a trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Metric names a window list family.
type Metric string

const (
	MetricBBO   Metric = "bbo"
	MetricTrade Metric = "trade"
)

// BboSample is a best-bid/best-ask observation. Prices are decimal-scaled.
type BboSample struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Time int64   `json:"time"` // Unix ms
}

// Mid returns the midpoint of bid and ask.
func (s BboSample) Mid() float64 {
	return (s.Bid + s.Ask) / 2
}

// TradeSample is a visible fill as recorded in a window.
type TradeSample struct {
	Side     Side    `json:"side"`
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
	Time     int64   `json:"time"` // Unix ms
}

// Value returns price * quantity.
func (s TradeSample) Value() float64 {
	return s.Price * s.Quantity
}
