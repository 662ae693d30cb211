package paper_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/skewmm/internal/adapters/paper"
	"github.com/alejandrodnm/skewmm/internal/domain"
	"github.com/alejandrodnm/skewmm/internal/ports"
)

var _ ports.Exchange = (*paper.Exchange)(nil)

const inst = "BTC-PERPETUAL"

// fakeMarket sirve un ticker stream alimentado desde el test.
type fakeMarket struct {
	ch     chan domain.Ticker
	closed bool
}

func (m *fakeMarket) SubscribeTicker(_ context.Context, _ string) (ports.TickerStream, error) {
	return &fakeTickerStream{ch: m.ch}, nil
}

func (m *fakeMarket) Close() error {
	m.closed = true
	return nil
}

type fakeTickerStream struct{ ch chan domain.Ticker }

func (s *fakeTickerStream) Recv(ctx context.Context) (domain.Ticker, error) {
	select {
	case t := <-s.ch:
		return t, nil
	case <-ctx.Done():
		return domain.Ticker{}, ctx.Err()
	}
}

func (s *fakeTickerStream) Close() error { return nil }

func tk(bid, ask float64) domain.Ticker {
	return domain.Ticker{Instrument: inst, BestBid: bid, BestAsk: ask, Timestamp: time.Now()}
}

func order(side domain.Side, amount, price float64) domain.OrderRequest {
	return domain.OrderRequest{Instrument: inst, Side: side, Amount: amount, Price: price, PostOnly: true, Label: "mm-test"}
}

func newExchange(t *testing.T) (*paper.Exchange, *fakeMarket) {
	t.Helper()
	m := &fakeMarket{ch: make(chan domain.Ticker, 8)}
	ex := paper.New(m, paper.Config{Instrument: inst, InitialEquity: 1})
	t.Cleanup(func() { ex.Close() })
	return ex, m
}

func TestPlaceLimitOrder_PostOnlyReject(t *testing.T) {
	ex, _ := newExchange(t)
	ctx := context.Background()
	ex.OnTicker(tk(100, 101))

	_, err := ex.PlaceLimitOrder(ctx, order(domain.SideBuy, 10, 101))
	assert.ErrorIs(t, err, paper.ErrPostOnlyReject)

	_, err = ex.PlaceLimitOrder(ctx, order(domain.SideSell, 10, 100))
	assert.ErrorIs(t, err, paper.ErrPostOnlyReject)

	placed, err := ex.PlaceLimitOrder(ctx, order(domain.SideBuy, 10, 100))
	require.NoError(t, err)
	assert.Equal(t, "open", placed.State)
	assert.Equal(t, "mm-test", placed.Label)
	assert.NotEmpty(t, placed.OrderID)

	n, err := ex.CancelAll(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "rejected orders never rest")
}

func TestPlaceLimitOrder_InvalidPrice(t *testing.T) {
	ex, _ := newExchange(t)

	_, err := ex.PlaceLimitOrder(context.Background(), order(domain.SideBuy, 10, -1))
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestTickerStream_FillsCrossedOrders(t *testing.T) {
	ex, m := newExchange(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	fills, err := ex.SubscribeFills(ctx, inst)
	require.NoError(t, err)
	stream, err := ex.SubscribeTicker(ctx, inst)
	require.NoError(t, err)

	m.ch <- tk(49999.5, 50000.5)
	_, err = stream.Recv(ctx)
	require.NoError(t, err)

	_, err = ex.PlaceLimitOrder(ctx, order(domain.SideBuy, 1000, 49989.5))
	require.NoError(t, err)
	_, err = ex.PlaceLimitOrder(ctx, order(domain.SideSell, 1000, 50009.5))
	require.NoError(t, err)

	// el ask baja hasta el bid: solo se llena la compra
	m.ch <- tk(49980, 49989.5)
	_, err = stream.Recv(ctx)
	require.NoError(t, err)

	batch, err := fills.Recv(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, domain.SideBuy, batch[0].Side)
	assert.Equal(t, 49989.5, batch[0].Price)
	assert.Equal(t, 1000.0, batch[0].Amount)

	pos, found, err := ex.FetchPosition(ctx, inst)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1000.0, pos.Size)
	assert.Equal(t, 49989.5, pos.AveragePrice)

	trades, err := ex.FetchTrades(ctx, inst, time.Now().Add(-time.Hour), 50)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, batch[0].TradeID, trades[0].ID)
	assert.Equal(t, domain.LiquidityMaker, trades[0].Liquidity)

	// la venta sigue en reposo
	n, err := ex.CancelAll(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRoundTrip_RealizesInversePnL(t *testing.T) {
	ex, _ := newExchange(t)
	ctx := context.Background()

	ex.OnTicker(tk(50000.5, 50001))
	_, err := ex.PlaceLimitOrder(ctx, order(domain.SideBuy, 1000, 50000))
	require.NoError(t, err)
	ex.OnTicker(tk(49999, 50000))

	ex.OnTicker(tk(50990, 50999))
	_, err = ex.PlaceLimitOrder(ctx, order(domain.SideSell, 1000, 51000))
	require.NoError(t, err)
	ex.OnTicker(tk(51000, 51001))

	_, found, err := ex.FetchPosition(ctx, inst)
	require.NoError(t, err)
	assert.False(t, found, "flat after round trip")

	bal, found, err := ex.FetchBalance(ctx, "BTC")
	require.NoError(t, err)
	require.True(t, found)
	// 1000 * (1/50000 - 1/51000)
	assert.InDelta(t, 1.000392156862745, bal.Equity, 1e-12)
	assert.InDelta(t, bal.Balance, bal.Equity, 1e-15)
}

func TestPositionFlip_ReopensAtFillPrice(t *testing.T) {
	ex, _ := newExchange(t)
	ctx := context.Background()

	ex.OnTicker(tk(99, 101))
	_, err := ex.PlaceLimitOrder(ctx, order(domain.SideSell, 100, 100))
	require.NoError(t, err)
	ex.OnTicker(tk(100, 102))

	ex.OnTicker(tk(79, 81))
	_, err = ex.PlaceLimitOrder(ctx, order(domain.SideBuy, 300, 80))
	require.NoError(t, err)
	ex.OnTicker(tk(78, 80))

	pos, found, err := ex.FetchPosition(ctx, inst)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 200.0, pos.Size)
	assert.Equal(t, 80.0, pos.AveragePrice)
}

func TestCancelAll(t *testing.T) {
	ex, _ := newExchange(t)
	ctx := context.Background()
	ex.OnTicker(tk(100, 101))

	for _, p := range []float64{98, 99, 100} {
		_, err := ex.PlaceLimitOrder(ctx, order(domain.SideBuy, 10, p))
		require.NoError(t, err)
	}

	n, err := ex.CancelAll(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = ex.CancelAll(ctx, inst)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// nada que llenar después de cancelar
	ex.OnTicker(tk(90, 91))
	_, found, err := ex.FetchPosition(ctx, inst)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFetchBalance_UnknownCurrency(t *testing.T) {
	ex, _ := newExchange(t)

	_, found, err := ex.FetchBalance(context.Background(), "ETH")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestClose_EndsFillStreamsAndMarket(t *testing.T) {
	ex, m := newExchange(t)
	ctx := context.Background()

	fills, err := ex.SubscribeFills(ctx, inst)
	require.NoError(t, err)

	require.NoError(t, ex.Close())
	_, err = fills.Recv(ctx)
	assert.ErrorIs(t, err, domain.ErrStreamClosed)
	assert.True(t, m.closed)

	_, err = ex.SubscribeFills(ctx, inst)
	assert.Error(t, err)
}
