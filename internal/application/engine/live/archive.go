package live

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// runArchiver forwards recent own trades to the trade store at a fixed
// interval. The store deduplicates by trade id; the archiver does not.
func (le *Engine) runArchiver(ctx context.Context) {
	ticker := time.NewTicker(le.cfg.ArchiveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := le.archiveOnce(ctx)
			if err != nil {
				if ctx.Err() == nil {
					slog.Warn("live: trade archive failed", "err", err)
					le.metrics.TaskError("archive")
				}
				continue
			}
			if n > 0 {
				slog.Info("live: archived trades", "new", n)
			}
		}
	}
}

// archiveOnce fetches trades over the lookback window and returns how many
// the store inserted.
func (le *Engine) archiveOnce(ctx context.Context) (int, error) {
	now, err := le.exchange.ServerTime(ctx)
	if err != nil {
		slog.Debug("live: server time unavailable, using local clock", "err", err)
		now = time.Now()
	}
	since := now.Add(-le.cfg.ArchiveLookback)

	trades, err := le.exchange.FetchTrades(ctx, le.cfg.Instrument, since, le.cfg.ArchiveLimit)
	if err != nil {
		return 0, fmt.Errorf("live.archiveOnce: fetch trades: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	n, err := le.store.SaveTrades(ctx, trades)
	if err != nil {
		return 0, fmt.Errorf("live.archiveOnce: save %d trades: %w", len(trades), err)
	}
	le.metrics.Archived(n)
	return n, nil
}
