package publish

import (
	"encoding/json"
	"fmt"

	"market-feed/internal/domain"
	"market-feed/internal/idhash"
	"market-feed/internal/venue"
)

// Message is the envelope handed to every subscriber.
// ID is deterministic for a given fact so consumers can de-duplicate
// re-deliveries after a restart.
type Message struct {
	ID       string          `json:"id"`
	Topic    Topic           `json:"topic"`
	Venue    domain.VenueKey `json:"venue"`
	Sequence uint64          `json:"sequence,omitempty"`
	Time     int64           `json:"time"` // Unix ms
	Payload  json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Topic, err)
	}
	return nil
}

// OrderBookPayload is the ORDERBOOK fact.
type OrderBookPayload struct {
	Venue domain.VenueKey `json:"venue"`
	Bids  []domain.Level  `json:"bids"`
	Asks  []domain.Level  `json:"asks"`
}

// TradePayload is the TRADE fact.
type TradePayload struct {
	Venue    domain.VenueKey `json:"venue"`
	Sequence uint64          `json:"sequence"`
	Side     domain.Side     `json:"side"`
	Price    float64         `json:"price"`
	Quantity float64         `json:"quantity"`
	Value    float64         `json:"value"`
	Time     int64           `json:"time"`
}

// Trade converts the payload back to a domain trade.
func (p TradePayload) Trade() domain.Trade {
	return domain.Trade{
		Venue:    p.Venue,
		Sequence: p.Sequence,
		Side:     p.Side,
		Price:    p.Price,
		Quantity: p.Quantity,
		Value:    p.Value,
		Time:     p.Time,
	}
}

// LastTradePricePayload is the LAST_TRADE_PRICE fact.
type LastTradePricePayload struct {
	Venue    domain.VenueKey `json:"venue"`
	Price    float64         `json:"price"`
	Time     int64           `json:"time"`
	Sequence uint64          `json:"sequence"`
}

// BarPayload is the BAR fact. OHLCV encodes as null for an empty bucket.
type BarPayload struct {
	Venue      domain.VenueKey   `json:"venue"`
	Resolution domain.Resolution `json:"resolution"`
	Time       int64             `json:"time"`
	OHLCV      *domain.OHLCV     `json:"ohlcv"`
}

// Bar converts the payload back to a domain bar.
func (p BarPayload) Bar() domain.Bar {
	return domain.Bar{Venue: p.Venue, Resolution: p.Resolution, Time: p.Time, OHLCV: p.OHLCV}
}

// SwapPayload is the SWAP fact: raw event fields plus scaled amounts.
type SwapPayload struct {
	Venue domain.VenueKey `json:"venue"`
	*domain.Swap
	AmountIn  float64 `json:"amountIn"`
	AmountOut float64 `json:"amountOut"`
}

// AddLiquidityPayload is the ADD_LIQUIDITY fact.
type AddLiquidityPayload struct {
	Venue domain.VenueKey `json:"venue"`
	*domain.AddLiquidity
	AmountAddedX   float64 `json:"amountAddedX"`
	AmountAddedY   float64 `json:"amountAddedY"`
	AmountMintedLP float64 `json:"amountMintedLP"`
}

// RemoveLiquidityPayload is the REMOVE_LIQUIDITY fact.
type RemoveLiquidityPayload struct {
	Venue domain.VenueKey `json:"venue"`
	*domain.RemoveLiquidity
	AmountRemovedX float64 `json:"amountRemovedX"`
	AmountRemovedY float64 `json:"amountRemovedY"`
	AmountBurnedLP float64 `json:"amountBurnedLP"`
}

// OrderBookMessage builds the ORDERBOOK fact of a snapshot.
func OrderBookMessage(book *domain.OrderBook) (Message, error) {
	bids, asks := book.Bids, book.Asks
	if bids == nil {
		bids = []domain.Level{}
	}
	if asks == nil {
		asks = []domain.Level{}
	}
	return build(Message{
		ID:    idhash.ComputeSnapshotID(book.Venue, string(TopicOrderBook), book.Time),
		Topic: TopicOrderBook,
		Venue: book.Venue,
		Time:  book.Time,
	}, OrderBookPayload{Venue: book.Venue, Bids: bids, Asks: asks})
}

// TradeMessage builds the TRADE fact of a visible fill.
func TradeMessage(t domain.Trade) (Message, error) {
	return build(Message{
		ID:       idhash.ComputeEventID(t.Venue, string(TopicTrade), t.Sequence),
		Topic:    TopicTrade,
		Venue:    t.Venue,
		Sequence: t.Sequence,
		Time:     t.Time,
	}, TradePayload{
		Venue:    t.Venue,
		Sequence: t.Sequence,
		Side:     t.Side,
		Price:    t.Price,
		Quantity: t.Quantity,
		Value:    t.Value,
		Time:     t.Time,
	})
}

// LastTradePriceMessage builds the LAST_TRADE_PRICE fact derived from a trade.
func LastTradePriceMessage(t domain.Trade) (Message, error) {
	return build(Message{
		ID:       idhash.ComputeEventID(t.Venue, string(TopicLastTradePrice), t.Sequence),
		Topic:    TopicLastTradePrice,
		Venue:    t.Venue,
		Sequence: t.Sequence,
		Time:     t.Time,
	}, LastTradePricePayload{Venue: t.Venue, Price: t.Price, Time: t.Time, Sequence: t.Sequence})
}

// BarMessage builds the BAR fact of a closed bucket.
func BarMessage(b domain.Bar) (Message, error) {
	return build(Message{
		ID:    idhash.ComputeBarID(b.Venue, b.Resolution, b.Time),
		Topic: TopicBar,
		Venue: b.Venue,
		Time:  b.Time,
	}, BarPayload{Venue: b.Venue, Resolution: b.Resolution, Time: b.Time, OHLCV: b.OHLCV})
}

// PoolMessage builds the SWAP, ADD_LIQUIDITY or REMOVE_LIQUIDITY fact of a
// pool event. Fills are not pool events and yield an error.
func PoolMessage(v domain.Venue, e domain.Event) (Message, error) {
	b := &poolBuilder{venue: v}
	e.Accept(b)
	if b.err != nil {
		return Message{}, b.err
	}
	return build(Message{
		ID:       idhash.ComputeEventID(v.Key, string(b.topic), e.Sequence()),
		Topic:    b.topic,
		Venue:    v.Key,
		Sequence: e.Sequence(),
		Time:     e.TimeMs(),
	}, b.payload)
}

// poolBuilder renders pool events with amounts scaled by the pool's coin
// decimals.
type poolBuilder struct {
	venue   domain.Venue
	topic   Topic
	payload any
	err     error
}

func (b *poolBuilder) VisitSwap(e *domain.Swap) {
	inDec, outDec := b.venue.BaseDecimals, b.venue.QuoteDecimals
	if e.InCoinType == b.venue.Key.Quote {
		inDec, outDec = outDec, inDec
	}
	b.topic = TopicSwap
	b.payload = SwapPayload{
		Venue:     b.venue.Key,
		Swap:      e,
		AmountIn:  venue.Scale(e.In, inDec),
		AmountOut: venue.Scale(e.Out, outDec),
	}
}

func (b *poolBuilder) VisitAddLiquidity(e *domain.AddLiquidity) {
	b.topic = TopicAddLiquidity
	b.payload = AddLiquidityPayload{
		Venue:          b.venue.Key,
		AddLiquidity:   e,
		AmountAddedX:   venue.Scale(e.XAdded, b.venue.BaseDecimals),
		AmountAddedY:   venue.Scale(e.YAdded, b.venue.QuoteDecimals),
		AmountMintedLP: venue.Scale(e.LPMinted, b.venue.LPDecimals),
	}
}

func (b *poolBuilder) VisitRemoveLiquidity(e *domain.RemoveLiquidity) {
	b.topic = TopicRemoveLiquidity
	b.payload = RemoveLiquidityPayload{
		Venue:           b.venue.Key,
		RemoveLiquidity: e,
		AmountRemovedX:  venue.Scale(e.XRemoved, b.venue.BaseDecimals),
		AmountRemovedY:  venue.Scale(e.YRemoved, b.venue.QuoteDecimals),
		AmountBurnedLP:  venue.Scale(e.LPBurned, b.venue.LPDecimals),
	}
}

func (b *poolBuilder) VisitFill(e *domain.Fill) {
	b.err = fmt.Errorf("fill %d of %s is not a pool event", e.SequenceNumber, e.Key)
}

func build(m Message, payload any) (Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("encode %s payload: %w", m.Topic, err)
	}
	m.Payload = data
	return m, nil
}
