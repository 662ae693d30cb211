package deribit

import (
	"strings"
	"time"

	"github.com/alejandrodnm/skewmm/internal/domain"
)

// mapPosition convierte private/get_position a domain.Position. Una posición
// con size 0 se trata como inexistente (flat).
func mapPosition(r positionResult) (domain.Position, bool) {
	if r.Size == 0 {
		return domain.Position{}, false
	}
	return domain.Position{
		Instrument:    r.InstrumentName,
		Size:          r.Size,
		AveragePrice:  r.AveragePrice,
		UnrealizedPnL: r.FloatingProfitLoss,
	}, true
}

func mapBalance(r accountSummary) domain.Balance {
	return domain.Balance{
		Currency: strings.ToUpper(r.Currency),
		Equity:   r.Equity,
		Balance:  r.Balance,
	}
}

func mapOrder(r orderInfo) domain.PlacedOrder {
	side, _ := domain.ParseSide(r.Direction)
	return domain.PlacedOrder{
		OrderID: r.OrderID,
		State:   r.OrderState,
		Side:    side,
		Price:   r.Price,
		Amount:  r.Amount,
		Label:   r.Label,
	}
}

func mapLiquidity(s string) domain.Liquidity {
	switch strings.ToUpper(s) {
	case "M":
		return domain.LiquidityMaker
	case "T":
		return domain.LiquidityTaker
	}
	return domain.Liquidity(s)
}

// mapTrades convierte trades propios al formato del archivo. Trades con
// dirección desconocida se descartan.
func mapTrades(raw []userTrade) []domain.Trade {
	trades := make([]domain.Trade, 0, len(raw))
	for _, r := range raw {
		side, err := domain.ParseSide(r.Direction)
		if err != nil {
			continue
		}
		trades = append(trades, domain.Trade{
			ID:          r.TradeID,
			TimestampMs: r.Timestamp,
			Symbol:      r.InstrumentName,
			Side:        side,
			Price:       r.Price,
			Amount:      r.Amount,
			Fee:         r.Fee,
			Liquidity:   mapLiquidity(r.Liquidity),
		})
	}
	return trades
}

// mapFills convierte el payload de user.trades.{instrument}.raw a fills.
func mapFills(raw []userTrade) []domain.Fill {
	fills := make([]domain.Fill, 0, len(raw))
	for _, r := range raw {
		side, err := domain.ParseSide(r.Direction)
		if err != nil {
			continue
		}
		fills = append(fills, domain.Fill{
			TradeID:    r.TradeID,
			OrderID:    r.OrderID,
			Instrument: r.InstrumentName,
			Side:       side,
			Price:      r.Price,
			Amount:     r.Amount,
			Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		})
	}
	return fills
}

func mapTicker(q quoteData) domain.Ticker {
	return domain.Ticker{
		Instrument: q.InstrumentName,
		BestBid:    q.BestBidPrice,
		BestAsk:    q.BestAskPrice,
		BidAmount:  q.BestBidAmount,
		AskAmount:  q.BestAskAmount,
		Timestamp:  time.UnixMilli(q.Timestamp).UTC(),
	}
}
