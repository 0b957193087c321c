package publish

import (
	"context"
	"fmt"

	"market-feed/internal/storage"
)

// StoreSink persists BAR and TRADE facts. Records are keyed by message ID,
// so re-delivered facts overwrite rather than duplicate.
type StoreSink struct {
	bars   storage.BarStore
	trades storage.TradeStore
}

// NewStoreSink creates a sink over the history stores.
func NewStoreSink(bars storage.BarStore, trades storage.TradeStore) *StoreSink {
	return &StoreSink{bars: bars, trades: trades}
}

func (s *StoreSink) Name() string    { return "store" }
func (s *StoreSink) Topics() []Topic { return []Topic{TopicBar, TopicTrade} }

// Deliver writes one record.
func (s *StoreSink) Deliver(ctx context.Context, msg Message) error {
	switch msg.Topic {
	case TopicBar:
		var p BarPayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if err := s.bars.InsertBars(ctx, []*storage.BarRecord{{ID: msg.ID, Bar: p.Bar()}}); err != nil {
			return fmt.Errorf("insert bar: %w", err)
		}
	case TopicTrade:
		var p TradePayload
		if err := msg.Decode(&p); err != nil {
			return err
		}
		if err := s.trades.InsertTrades(ctx, []*storage.TradeRecord{{ID: msg.ID, Trade: p.Trade()}}); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}
	return nil
}

var _ Subscriber = (*StoreSink)(nil)
