package domain

import (
	"fmt"
	"strings"
	"time"
)

// Side is the direction of an order or trade.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "buy":
		return SideBuy, nil
	case "sell":
		return SideSell, nil
	}
	return "", fmt.Errorf("domain.ParseSide: unknown side %q", s)
}

// Sign returns +1 for buys and -1 for sells.
func (s Side) Sign() float64 {
	if s == SideSell {
		return -1
	}
	return 1
}

// Liquidity tells whether a fill added (maker) or removed (taker) liquidity.
type Liquidity string

const (
	LiquidityMaker Liquidity = "maker"
	LiquidityTaker Liquidity = "taker"
)

// Fill is an own-trade event delivered by the live fill stream.
type Fill struct {
	TradeID    string
	OrderID    string
	Instrument string
	Side       Side
	Price      float64
	Amount     float64
	Timestamp  time.Time
}

// SignedAmount is +Amount for buys and -Amount for sells.
func (f Fill) SignedAmount() float64 {
	return f.Side.Sign() * f.Amount
}

// Trade is an executed own trade as archived in the trade store.
// ID is the idempotency key.
type Trade struct {
	ID          string
	TimestampMs int64
	Symbol      string
	Side        Side
	Price       float64
	Amount      float64
	Fee         float64
	Liquidity   Liquidity
}

// Time converts the millisecond timestamp.
func (t Trade) Time() time.Time {
	return time.UnixMilli(t.TimestampMs).UTC()
}

// TradeSummary aggregates archived trades for reporting.
type TradeSummary struct {
	Count      int
	BuyVolume  float64
	SellVolume float64
	TotalFees  float64
	MakerCount int
	First      time.Time
	Last       time.Time
}

// NetInventory is buy volume minus sell volume.
func (s TradeSummary) NetInventory() float64 {
	return s.BuyVolume - s.SellVolume
}

// Summarize builds a TradeSummary.
func Summarize(trades []Trade) TradeSummary {
	var s TradeSummary
	for _, t := range trades {
		s.Count++
		switch t.Side {
		case SideBuy:
			s.BuyVolume += t.Amount
		case SideSell:
			s.SellVolume += t.Amount
		}
		s.TotalFees += t.Fee
		if t.Liquidity == LiquidityMaker {
			s.MakerCount++
		}
		ts := t.Time()
		if s.First.IsZero() || ts.Before(s.First) {
			s.First = ts
		}
		if ts.After(s.Last) {
			s.Last = ts
		}
	}
	return s
}
