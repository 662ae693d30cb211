package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/skewmm/internal/domain"
)

// TickerStream yields top-of-book updates for one instrument.
type TickerStream interface {
	// Recv blocks until the next update arrives, the stream fails or ctx is done.
	Recv(ctx context.Context) (domain.Ticker, error)
	Close() error
}

// FillStream yields batches of own fills for one instrument.
type FillStream interface {
	// Recv blocks until the next batch arrives, the stream fails or ctx is done.
	Recv(ctx context.Context) ([]domain.Fill, error)
	Close() error
}

// MarketData exposes the public subscriptions of the venue.
type MarketData interface {
	SubscribeTicker(ctx context.Context, instrument string) (TickerStream, error)
}

// Exchange is the gateway to the trading venue. Every call may fail; callers
// own the retry policy.
type Exchange interface {
	MarketData

	// SubscribeFills opens the own-fill stream for an instrument.
	SubscribeFills(ctx context.Context, instrument string) (FillStream, error)

	// FetchPosition returns the open position for an instrument. ok is false
	// when the venue reports no position record.
	FetchPosition(ctx context.Context, instrument string) (pos domain.Position, ok bool, err error)

	// FetchBalance returns the account summary for a currency. ok is false
	// when the account holds no balance in that currency.
	FetchBalance(ctx context.Context, currency string) (bal domain.Balance, ok bool, err error)

	// PlaceLimitOrder submits a limit order.
	PlaceLimitOrder(ctx context.Context, req domain.OrderRequest) (domain.PlacedOrder, error)

	// CancelAll cancels every resting order for an instrument and returns how many were cancelled.
	CancelAll(ctx context.Context, instrument string) (int, error)

	// FetchTrades returns own trades for an instrument since the given time, at most limit records.
	FetchTrades(ctx context.Context, instrument string, since time.Time, limit int) ([]domain.Trade, error)

	// ServerTime returns the venue clock.
	ServerTime(ctx context.Context) (time.Time, error)

	// Close releases connections held by the gateway.
	Close() error
}
