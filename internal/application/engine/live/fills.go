package live

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alejandrodnm/skewmm/internal/ports"
)

// runFillListener applies own fills to inventory as they arrive. A failed
// subscription or a broken stream is logged and retried after a fixed
// delay; the listener only stops when ctx is done.
func (le *Engine) runFillListener(ctx context.Context) {
	for ctx.Err() == nil {
		stream, err := le.exchange.SubscribeFills(ctx, le.cfg.Instrument)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("live: fills subscribe failed", "err", err)
			le.metrics.TaskError("fills")
			sleepCtx(ctx, le.cfg.StreamRetryDelay)
			continue
		}

		err = le.consumeFills(ctx, stream)
		stream.Close()
		if ctx.Err() != nil {
			return
		}
		slog.Warn("live: fill stream error", "err", err)
		le.metrics.TaskError("fills")
		sleepCtx(ctx, le.cfg.StreamRetryDelay)
	}
}

func (le *Engine) consumeFills(ctx context.Context, stream ports.FillStream) error {
	for {
		fills, err := stream.Recv(ctx)
		if err != nil {
			return fmt.Errorf("live.consumeFills: recv: %w", err)
		}

		for _, f := range fills {
			inv, err := le.state.ApplyFill(ctx, f)
			if err != nil {
				return fmt.Errorf("live.consumeFills: apply %s: %w", f.TradeID, err)
			}
			slog.Info("live: fill",
				"side", f.Side,
				"amount", f.Amount,
				"price", f.Price,
				"trade_id", f.TradeID,
				"inventory", inv,
			)
			le.metrics.Fill(string(f.Side), inv)
		}
	}
}
