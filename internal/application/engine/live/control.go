package live

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/skewmm/internal/domain"
	"github.com/alejandrodnm/skewmm/internal/ports"
)

// controlLoop consumes the ticker stream and requotes on significant mid
// moves. Cycles are strictly sequential: a replace step completes before
// the next update is read, so at most one replace is ever in flight.
//
// Stream failures are retried after a fixed delay. Any other error ends
// the loop and the engine shuts down.
func (le *Engine) controlLoop(ctx context.Context) error {
	for ctx.Err() == nil {
		stream, err := le.exchange.SubscribeTicker(ctx, le.cfg.Instrument)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("live: ticker subscribe failed", "err", err)
			le.metrics.TaskError("control")
			sleepCtx(ctx, le.cfg.StreamRetryDelay)
			continue
		}

		fatal := le.consumeTickers(ctx, stream)
		stream.Close()
		if fatal != nil {
			return fatal
		}
		if ctx.Err() != nil {
			return nil
		}
		sleepCtx(ctx, le.cfg.StreamRetryDelay)
	}
	return nil
}

// consumeTickers returns nil when the stream breaks (caller resubscribes)
// and an error only when a cycle fails unexpectedly.
func (le *Engine) consumeTickers(ctx context.Context, stream ports.TickerStream) error {
	for {
		t, err := stream.Recv(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("live: ticker stream error", "err", err)
				le.metrics.TaskError("control")
			}
			return nil
		}
		if err := le.handleTicker(ctx, t); err != nil {
			return err
		}
	}
}

// handleTicker runs one decision cycle. A panic inside the cycle is turned
// into an error so the engine can cancel orders before exiting.
func (le *Engine) handleTicker(ctx context.Context, t domain.Ticker) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("live.handleTicker: panic: %v", r)
		}
	}()

	if !t.Valid() {
		slog.Debug("live: ignoring one-sided ticker", "bid", t.BestBid, "ask", t.BestAsk)
		return nil
	}

	mid := t.Mid()
	if math.Abs(mid-le.lastQuotedMid) < le.cfg.PriceUpdateThreshold {
		return nil
	}

	start := time.Now()

	snap, err := le.state.Snapshot(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("live.handleTicker: inventory snapshot: %w", err)
	}

	q, err := le.quoter.Quote(snap.Inventory, mid)
	if err != nil {
		slog.Warn("live: quote failed", "mid", mid, "err", err)
		return nil
	}

	slog.Info("live: market move detected",
		"mid", fmt.Sprintf("%.2f", mid),
		"book_spread", fmt.Sprintf("%.2f", t.Spread()),
		"inventory", snap.Inventory,
		"skew", fmt.Sprintf("%.2f", q.Skew),
		"bid", fmt.Sprintf("%.2f", q.Bid),
		"ask", fmt.Sprintf("%.2f", q.Ask),
		"session_pnl", fmt.Sprintf("%+.5f %s", snap.CumulativePnL, le.currency),
		"session_pnl_usd", fmt.Sprintf("$%+.2f", snap.CumulativePnL*mid),
		"upnl", fmt.Sprintf("%+.5f %s", snap.UnrealizedPnL, le.currency),
		"upnl_usd", fmt.Sprintf("$%+.2f", snap.UnrealizedPnL*mid),
	)

	report := le.replaceQuotes(ctx, q, snap.Inventory)

	le.lastQuotedMid = mid
	latency := time.Since(start)
	le.metrics.ObserveRequote(latency)

	slog.Info("live: requote complete",
		"latency_ms", fmt.Sprintf("%.2f", float64(latency.Microseconds())/1000),
		"cancelled", report.Cancelled,
		"buy", report.Buy.Status,
		"sell", report.Sell.Status,
		"label", report.Label,
	)
	return nil
}

// replaceQuotes issues cancel-all and the risk-gated placements at the same
// time and waits for both. Ordering between the cancel and the new orders
// on the venue side is left to the gateway.
func (le *Engine) replaceQuotes(ctx context.Context, q domain.Quote, inv float64) ExecutionReport {
	var (
		g         errgroup.Group
		cancelled int
		report    ExecutionReport
	)

	g.Go(func() error {
		n, err := le.exchange.CancelAll(ctx, le.cfg.Instrument)
		if err != nil {
			slog.Warn("live: cancel all failed", "err", err)
			return nil
		}
		cancelled = n
		return nil
	})
	g.Go(func() error {
		report = le.executeQuotes(ctx, q, inv)
		return nil
	})
	_ = g.Wait()

	report.Cancelled = cancelled
	return report
}
