package main

import (
	"context"
	"fmt"

	"github.com/alejandrodnm/skewmm/internal/adapters/notify"
	"github.com/alejandrodnm/skewmm/internal/ports"
)

// runTradeReport imprime los últimos n trades archivados.
func runTradeReport(ctx context.Context, store ports.TradeStore, console *notify.Console, n int) error {
	trades, err := store.RecentTrades(ctx, n)
	if err != nil {
		return fmt.Errorf("runTradeReport: recent: %w", err)
	}
	total, err := store.CountTrades(ctx)
	if err != nil {
		return fmt.Errorf("runTradeReport: count: %w", err)
	}
	console.PrintTrades(trades, total)
	return nil
}
