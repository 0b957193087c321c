package domain

// Level is one price level of an order book.
type Level struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBook is an L2 snapshot. Bids are sorted descending, asks ascending.
type OrderBook struct {
	Venue VenueKey `json:"-"`
	Bids  []Level  `json:"bids"`
	Asks  []Level  `json:"asks"`
	Time  int64    `json:"time"` // observation time, Unix ms
}

// Best returns the top-of-book sample. ok is false when either side is empty.
func (b *OrderBook) Best() (BboSample, bool) {
	if b == nil || len(b.Bids) == 0 || len(b.Asks) == 0 {
		return BboSample{}, false
	}
	return BboSample{Bid: b.Bids[0].Price, Ask: b.Asks[0].Price, Time: b.Time}, true
}
