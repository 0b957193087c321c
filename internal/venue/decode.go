package venue

import (
	"encoding/json"
	"fmt"

	"market-feed/internal/aptos"
	"market-feed/internal/domain"
)

// On-chain event payloads. Amounts are atomic units; timestamps are
// microseconds since the Unix epoch.

type rawLevel struct {
	Price    aptos.U64 `json:"price"`
	Quantity aptos.U64 `json:"quantity"`
}

type fillData struct {
	OrderID   string    `json:"order_id"`
	Owner     string    `json:"owner"`
	IsBid     bool      `json:"is_bid"`
	BaseQty   aptos.U64 `json:"base_qty"`
	Price     aptos.U64 `json:"price"`
	Fee       aptos.U64 `json:"fee"`
	Timestamp aptos.U64 `json:"timestamp"`
}

type swapData struct {
	SenderAddr  string    `json:"sender_addr"`
	InCoinType  string    `json:"in_coin_type"`
	OutCoinType string    `json:"out_coin_type"`
	InAu        aptos.U64 `json:"in_au"`
	OutAu       aptos.U64 `json:"out_au"`
	InReserve   aptos.U64 `json:"in_reserve"`
	OutReserve  aptos.U64 `json:"out_reserve"`
	FeeBps      aptos.U64 `json:"fee_bps"`
	Timestamp   aptos.U64 `json:"timestamp"`
}

type addLiquidityData struct {
	XAddedAu   aptos.U64 `json:"x_added_au"`
	YAddedAu   aptos.U64 `json:"y_added_au"`
	LPMintedAu aptos.U64 `json:"lp_minted_au"`
	Timestamp  aptos.U64 `json:"timestamp"`
}

type removeLiquidityData struct {
	XRemovedAu aptos.U64 `json:"x_removed_au"`
	YRemovedAu aptos.U64 `json:"y_removed_au"`
	LPBurnedAu aptos.U64 `json:"lp_burned_au"`
	Timestamp  aptos.U64 `json:"timestamp"`
}

func decodeEvent(v domain.Venue, kind domain.EventKind, e aptos.Event) (domain.Event, error) {
	header := func(micros aptos.U64) domain.EventHeader {
		return domain.EventHeader{
			Key:            v.Key,
			SequenceNumber: uint64(e.SequenceNumber),
			Timestamp:      int64(micros) / 1000,
			Version:        uint64(e.Version),
		}
	}

	switch kind {
	case domain.EventFill:
		var d fillData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return nil, fmt.Errorf("decode fill %d: %w", e.SequenceNumber, err)
		}
		return &domain.Fill{
			EventHeader: header(d.Timestamp),
			OrderID:     d.OrderID,
			Owner:       d.Owner,
			IsBid:       d.IsBid,
			Price:       uint64(d.Price),
			BaseQty:     uint64(d.BaseQty),
			QuoteQty:    quoteAtomic(uint64(d.Price), uint64(d.BaseQty), v.BaseDecimals),
			Fee:         uint64(d.Fee),
		}, nil

	case domain.EventSwap:
		var d swapData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return nil, fmt.Errorf("decode swap %d: %w", e.SequenceNumber, err)
		}
		return &domain.Swap{
			EventHeader: header(d.Timestamp),
			Sender:      d.SenderAddr,
			InCoinType:  d.InCoinType,
			OutCoinType: d.OutCoinType,
			In:          uint64(d.InAu),
			Out:         uint64(d.OutAu),
			InReserve:   uint64(d.InReserve),
			OutReserve:  uint64(d.OutReserve),
			FeeBps:      uint64(d.FeeBps),
		}, nil

	case domain.EventAddLiquidity:
		var d addLiquidityData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return nil, fmt.Errorf("decode add liquidity %d: %w", e.SequenceNumber, err)
		}
		return &domain.AddLiquidity{
			EventHeader: header(d.Timestamp),
			XAdded:      uint64(d.XAddedAu),
			YAdded:      uint64(d.YAddedAu),
			LPMinted:    uint64(d.LPMintedAu),
		}, nil

	case domain.EventRemoveLiquidity:
		var d removeLiquidityData
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return nil, fmt.Errorf("decode remove liquidity %d: %w", e.SequenceNumber, err)
		}
		return &domain.RemoveLiquidity{
			EventHeader: header(d.Timestamp),
			XRemoved:    uint64(d.XRemovedAu),
			YRemoved:    uint64(d.YRemovedAu),
			LPBurned:    uint64(d.LPBurnedAu),
		}, nil
	}

	return nil, fmt.Errorf("unknown event kind %q", kind)
}

func scaleLevels(v domain.Venue, raw []rawLevel) []domain.Level {
	levels := make([]domain.Level, 0, len(raw))
	for _, l := range raw {
		levels = append(levels, domain.Level{
			Price:    Scale(uint64(l.Price), v.QuoteDecimals),
			Quantity: Scale(uint64(l.Quantity), v.BaseDecimals),
		})
	}
	return levels
}
