package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alejandrodnm/skewmm/internal/application/engine/inventory"
)

// runReconciler overwrites inventory and PnL with the venue's view at a
// fixed interval. Failures keep the previous state; the next attempt runs
// at the same interval.
func (le *Engine) runReconciler(ctx context.Context) {
	ticker := time.NewTicker(le.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := le.reconcileOnce(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("live: reconcile failed", "err", err)
				le.metrics.TaskError("reconcile")
			}
		}
	}
}

// reconcileOnce fetches position then balance. A failed position fetch
// aborts the cycle with state untouched. A failed balance fetch still
// applies the position and leaves the PnL fields as they were.
func (le *Engine) reconcileOnce(ctx context.Context) error {
	pos, hasPos, err := le.exchange.FetchPosition(ctx, le.cfg.Instrument)
	if err != nil {
		return fmt.Errorf("live.reconcileOnce: fetch position: %w", err)
	}

	var rec inventory.Reconciliation
	if hasPos {
		rec.Position = &pos
	}

	bal, hasBal, balErr := le.exchange.FetchBalance(ctx, le.currency)
	if balErr == nil {
		rec.BalanceFetched = true
		if hasBal {
			eq := bal.Equity
			rec.Equity = &eq
		}
	}

	snap, err := le.state.Reconcile(ctx, rec)
	if err != nil {
		return fmt.Errorf("live.reconcileOnce: apply: %w", err)
	}

	slog.Debug("live: reconcile",
		"inventory", snap.Inventory,
		"upnl", snap.UnrealizedPnL,
		"cum_pnl", snap.CumulativePnL,
		"currency", le.currency,
	)
	le.metrics.Reconciled(snap.Inventory, snap.UnrealizedPnL, snap.CumulativePnL)

	if balErr != nil {
		return fmt.Errorf("live.reconcileOnce: fetch balance: %w", balErr)
	}
	return nil
}
