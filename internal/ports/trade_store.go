package ports

import (
	"context"

	"github.com/alejandrodnm/skewmm/internal/domain"
)

// TradeStore persists own trades idempotently, keyed by trade id.
type TradeStore interface {
	// SaveTrades inserts the trades whose id is not yet stored and returns
	// how many were newly inserted.
	SaveTrades(ctx context.Context, trades []domain.Trade) (int, error)

	// RecentTrades returns the latest trades, newest first.
	RecentTrades(ctx context.Context, limit int) ([]domain.Trade, error)

	// CountTrades returns how many trades are archived in total.
	CountTrades(ctx context.Context) (int, error)

	// Close cierra la conexión a la base de datos limpiamente.
	Close() error
}
