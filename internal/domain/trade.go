package domain

// Trade is a visible fill rendered for subscribers.
type Trade struct {
	Venue    VenueKey `json:"-"`
	Sequence uint64   `json:"sequence"`
	Side     Side     `json:"side"`
	Price    float64  `json:"price"`
	Quantity float64  `json:"quantity"`
	Value    float64  `json:"value"`
	Time     int64    `json:"time"` // Unix ms
}

// Sample converts the trade into a window sample stamped at the given time.
func (t Trade) Sample(at int64) TradeSample {
	return TradeSample{Side: t.Side, Price: t.Price, Quantity: t.Quantity, Time: at}
}
