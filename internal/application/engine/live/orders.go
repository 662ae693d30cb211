package live

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/skewmm/internal/application/engine"
	"github.com/alejandrodnm/skewmm/internal/domain"
)

// OrderStatus is the outcome of one side of a replace step.
type OrderStatus string

const (
	OrderPlaced     OrderStatus = "placed"
	OrderSuppressed OrderStatus = "suppressed" // inventory cap reached
	OrderRejected   OrderStatus = "rejected"   // invalid price, never sent
	OrderFailed     OrderStatus = "failed"     // gateway error
)

// SideOutcome is what happened to one side.
type SideOutcome struct {
	Status  OrderStatus
	OrderID string
	Price   float64
	Err     error
}

// ExecutionReport summarizes one replace step.
type ExecutionReport struct {
	Label     string
	Buy       SideOutcome
	Sell      SideOutcome
	Cancelled int
}

// executeQuotes applies the inventory caps and places the allowed sides in
// parallel. inv is the inventory read at decision time; a fill landing
// between that read and the submission can push the position past the cap
// until the next cycle.
func (le *Engine) executeQuotes(ctx context.Context, q domain.Quote, inv float64) ExecutionReport {
	report := ExecutionReport{Label: le.newLabel()}
	var g errgroup.Group

	if inv < le.cfg.MaxInventory {
		g.Go(func() error {
			report.Buy = le.placeSide(ctx, domain.SideBuy, q.Bid, report.Label)
			return nil
		})
	} else {
		slog.Warn("live: max long inventory, stopping buys", "inventory", inv, "max", le.cfg.MaxInventory)
		report.Buy = SideOutcome{Status: OrderSuppressed}
		le.metrics.OrderOutcome(string(domain.SideBuy), string(OrderSuppressed))
	}

	if inv > -le.cfg.MaxInventory {
		g.Go(func() error {
			report.Sell = le.placeSide(ctx, domain.SideSell, q.Ask, report.Label)
			return nil
		})
	} else {
		slog.Warn("live: max short inventory, stopping sells", "inventory", inv, "max", le.cfg.MaxInventory)
		report.Sell = SideOutcome{Status: OrderSuppressed}
		le.metrics.OrderOutcome(string(domain.SideSell), string(OrderSuppressed))
	}

	_ = g.Wait()
	return report
}

// placeSide validates the price and submits one post-only limit order.
// Failures are logged and reported, never propagated.
func (le *Engine) placeSide(ctx context.Context, side domain.Side, price float64, label string) SideOutcome {
	px, err := roundToTick(side, price, le.cfg.TickSize)
	if err != nil {
		slog.Warn("live: order rejected before submission", "side", side, "price", price, "err", err)
		le.metrics.OrderOutcome(string(side), string(OrderRejected))
		return SideOutcome{Status: OrderRejected, Price: price, Err: err}
	}

	placed, err := le.exchange.PlaceLimitOrder(ctx, domain.OrderRequest{
		Instrument: le.cfg.Instrument,
		Side:       side,
		Amount:     le.cfg.PositionSize,
		Price:      px,
		PostOnly:   true,
		Label:      label,
	})
	if err != nil {
		slog.Warn("live: order failed", "side", side, "price", px, "err", err)
		le.metrics.OrderOutcome(string(side), string(OrderFailed))
		return SideOutcome{Status: OrderFailed, Price: px, Err: err}
	}

	slog.Debug("live: order placed",
		"side", side,
		"price", px,
		"amount", le.cfg.PositionSize,
		"order_id", engine.TruncateStr(placed.OrderID, 16),
		"state", placed.State,
	)
	le.metrics.OrderOutcome(string(side), string(OrderPlaced))
	return SideOutcome{Status: OrderPlaced, OrderID: placed.OrderID, Price: px}
}

// roundToTick snaps a quote onto the tick grid away from the touch: bids
// round down, asks round up, so rounding never makes a post-only order more
// aggressive. Non-positive or non-finite prices are rejected.
func roundToTick(side domain.Side, price, tick float64) (float64, error) {
	if price <= 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("price %v: %w", price, domain.ErrInvalidPrice)
	}
	if tick <= 0 {
		return price, nil
	}

	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	steps := p.Div(t)
	if side == domain.SideSell {
		steps = steps.Ceil()
	} else {
		steps = steps.Floor()
	}

	rounded := steps.Mul(t)
	if !rounded.IsPositive() {
		return 0, fmt.Errorf("price %v rounds to %s: %w", price, rounded, domain.ErrInvalidPrice)
	}
	return rounded.InexactFloat64(), nil
}
