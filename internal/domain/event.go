package domain

// EventKind names one on-chain event stream of a venue.
type EventKind string

const (
	EventSwap            EventKind = "swap"
	EventAddLiquidity    EventKind = "add_liquidity"
	EventRemoveLiquidity EventKind = "remove_liquidity"
	EventFill            EventKind = "fill"
)

// PoolEventKinds are the streams consumed by the AMM pipeline, in scan order.
var PoolEventKinds = []EventKind{EventSwap, EventAddLiquidity, EventRemoveLiquidity}

// Event is a decoded ledger event. The set of implementations is closed:
// Swap, AddLiquidity, RemoveLiquidity and Fill. Consumers dispatch through
// Accept so a new kind fails to compile until every visitor handles it.
type Event interface {
	Kind() EventKind
	Venue() VenueKey
	Sequence() uint64
	TimeMs() int64
	Accept(v EventVisitor)
}

// EventVisitor has one method per event kind.
type EventVisitor interface {
	VisitSwap(e *Swap)
	VisitAddLiquidity(e *AddLiquidity)
	VisitRemoveLiquidity(e *RemoveLiquidity)
	VisitFill(e *Fill)
}

// EventHeader holds the fields shared by every event.
type EventHeader struct {
	Key            VenueKey `json:"-"`
	SequenceNumber uint64   `json:"sequenceNumber"`
	Timestamp      int64    `json:"timestamp"` // Unix ms
	Version        uint64   `json:"version"`   // ledger transaction version
}

func (h EventHeader) Venue() VenueKey  { return h.Key }
func (h EventHeader) Sequence() uint64 { return h.SequenceNumber }
func (h EventHeader) TimeMs() int64    { return h.Timestamp }

// Swap is an AMM swap. Amounts are atomic units.
type Swap struct {
	EventHeader
	Sender      string `json:"senderAddr"`
	InCoinType  string `json:"inCoinType"`
	OutCoinType string `json:"outCoinType"`
	In          uint64 `json:"in"`
	Out         uint64 `json:"out"`
	InReserve   uint64 `json:"inReserve"`
	OutReserve  uint64 `json:"outReserve"`
	FeeBps      uint64 `json:"feeBps"`
}

func (e *Swap) Kind() EventKind        { return EventSwap }
func (e *Swap) Accept(v EventVisitor) { v.VisitSwap(e) }

// AddLiquidity is a pool deposit.
type AddLiquidity struct {
	EventHeader
	XAdded   uint64 `json:"xAdded"`
	YAdded   uint64 `json:"yAdded"`
	LPMinted uint64 `json:"lpMinted"`
}

func (e *AddLiquidity) Kind() EventKind        { return EventAddLiquidity }
func (e *AddLiquidity) Accept(v EventVisitor) { v.VisitAddLiquidity(e) }

// RemoveLiquidity is a pool withdrawal.
type RemoveLiquidity struct {
	EventHeader
	XRemoved uint64 `json:"xRemoved"`
	YRemoved uint64 `json:"yRemoved"`
	LPBurned uint64 `json:"lpBurned"`
}

func (e *RemoveLiquidity) Kind() EventKind        { return EventRemoveLiquidity }
func (e *RemoveLiquidity) Accept(v EventVisitor) { v.VisitRemoveLiquidity(e) }

// Fill is one side of an order-book match. Each match emits a maker and a
// taker fill with consecutive sequence numbers.
type Fill struct {
	EventHeader
	OrderID  string `json:"orderId"`
	Owner    string `json:"owner"`
	IsBid    bool   `json:"isBid"`
	Price    uint64 `json:"price"`    // quote atomic units per whole base coin
	BaseQty  uint64 `json:"baseQty"`  // filled base atomic units
	QuoteQty uint64 `json:"quoteQty"` // filled quote atomic units
	Fee      uint64 `json:"fee"`
}

func (e *Fill) Kind() EventKind        { return EventFill }
func (e *Fill) Accept(v EventVisitor) { v.VisitFill(e) }

// Side returns the taker-facing side of the fill.
func (e *Fill) Side() Side {
	if e.IsBid {
		return SideBuy
	}
	return SideSell
}

// Visible reports whether the fill is rendered as a public trade. Only the
// even-sequence fill of each maker/taker pair is shown.
func (e *Fill) Visible() bool {
	return e.SequenceNumber%2 == 0
}
