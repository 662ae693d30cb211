package live

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/skewmm/internal/domain"
)

func quote(bid, ask float64) domain.Quote {
	return domain.Quote{Bid: bid, Ask: ask}
}

func TestExecuteQuotes_BothSidesWithinCap(t *testing.T) {
	ex := &mockExchange{}
	le, state := newTestEngine(ex, newMockStore(), testConfig())
	defer state.Close()

	report := le.executeQuotes(context.Background(), quote(49989.5, 50009.5), 10000)

	assert.Equal(t, OrderPlaced, report.Buy.Status)
	assert.Equal(t, OrderPlaced, report.Sell.Status)
	assert.Equal(t, "mm-test", report.Label)

	placed := ex.placedOrders()
	require.Len(t, placed, 2)
	for _, o := range placed {
		assert.True(t, o.PostOnly)
		assert.Equal(t, 1000.0, o.Amount)
		assert.Equal(t, "BTC-PERPETUAL", o.Instrument)
		assert.Equal(t, "mm-test", o.Label)
		if o.Side == domain.SideBuy {
			assert.Equal(t, 49989.5, o.Price)
		} else {
			assert.Equal(t, 50009.5, o.Price)
		}
	}
}

func TestExecuteQuotes_BuySuppressedAtOrAboveMax(t *testing.T) {
	for _, inv := range []float64{50000, 50000.01, 75000, 1e9} {
		ex := &mockExchange{}
		le, state := newTestEngine(ex, newMockStore(), testConfig())

		report := le.executeQuotes(context.Background(), quote(100, 101), inv)
		state.Close()

		assert.Equal(t, OrderSuppressed, report.Buy.Status, "inventory %v", inv)
		assert.Equal(t, OrderPlaced, report.Sell.Status, "inventory %v", inv)
		placed := ex.placedOrders()
		require.Len(t, placed, 1)
		assert.Equal(t, domain.SideSell, placed[0].Side)
	}
}

func TestExecuteQuotes_SellSuppressedAtOrBelowNegativeMax(t *testing.T) {
	for _, inv := range []float64{-50000, -50000.01, -1e9} {
		ex := &mockExchange{}
		le, state := newTestEngine(ex, newMockStore(), testConfig())

		report := le.executeQuotes(context.Background(), quote(100, 101), inv)
		state.Close()

		assert.Equal(t, OrderPlaced, report.Buy.Status, "inventory %v", inv)
		assert.Equal(t, OrderSuppressed, report.Sell.Status, "inventory %v", inv)
		placed := ex.placedOrders()
		require.Len(t, placed, 1)
		assert.Equal(t, domain.SideBuy, placed[0].Side)
	}
}

func TestExecuteQuotes_OneSideFailureDoesNotAffectOther(t *testing.T) {
	ex := &mockExchange{placeErr: map[domain.Side]error{domain.SideBuy: errors.New("post_only_reject")}}
	le, state := newTestEngine(ex, newMockStore(), testConfig())
	defer state.Close()

	report := le.executeQuotes(context.Background(), quote(100, 101), 0)

	assert.Equal(t, OrderFailed, report.Buy.Status)
	assert.Error(t, report.Buy.Err)
	assert.Equal(t, OrderPlaced, report.Sell.Status)
	assert.Len(t, ex.placedOrders(), 1)
}

func TestExecuteQuotes_PlacementsRunInParallel(t *testing.T) {
	ex := &mockExchange{placeDelay: 100 * time.Millisecond}
	le, state := newTestEngine(ex, newMockStore(), testConfig())
	defer state.Close()

	start := time.Now()
	report := le.executeQuotes(context.Background(), quote(100, 101), 0)
	elapsed := time.Since(start)

	assert.Equal(t, OrderPlaced, report.Buy.Status)
	assert.Equal(t, OrderPlaced, report.Sell.Status)
	assert.Less(t, elapsed, 190*time.Millisecond)
}

func TestExecuteQuotes_NonPositiveBidIsRejected(t *testing.T) {
	ex := &mockExchange{}
	le, state := newTestEngine(ex, newMockStore(), testConfig())
	defer state.Close()

	report := le.executeQuotes(context.Background(), quote(-3, 12), 0)

	assert.Equal(t, OrderRejected, report.Buy.Status)
	assert.ErrorIs(t, report.Buy.Err, domain.ErrInvalidPrice)
	assert.Equal(t, OrderPlaced, report.Sell.Status)
}

func TestRoundToTick(t *testing.T) {
	tests := []struct {
		name  string
		side  domain.Side
		price float64
		tick  float64
		want  float64
	}{
		{"bid on grid", domain.SideBuy, 49989.5, 0.5, 49989.5},
		{"bid rounds down", domain.SideBuy, 49989.74, 0.5, 49989.5},
		{"ask rounds up", domain.SideSell, 50009.26, 0.5, 50009.5},
		{"ask on grid", domain.SideSell, 50009.5, 0.5, 50009.5},
		{"no tick", domain.SideBuy, 123.456, 0, 123.456},
		{"small tick", domain.SideBuy, 0.123456, 0.0001, 0.1234},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := roundToTick(tt.side, tt.price, tt.tick)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRoundToTick_Invalid(t *testing.T) {
	_, err := roundToTick(domain.SideBuy, 0, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)

	_, err = roundToTick(domain.SideBuy, 0.3, 0.5)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice, "bid rounding down to zero")
}
