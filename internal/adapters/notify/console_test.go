package notify_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/alejandrodnm/skewmm/internal/adapters/notify"
	"github.com/alejandrodnm/skewmm/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestConsole_PrintTrades(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	c.PrintTrades([]domain.Trade{
		{ID: "T-2", TimestampMs: 1709291005000, Symbol: "BTC-PERPETUAL", Side: domain.SideSell,
			Price: 50009.5, Amount: 400, Fee: 0.00001, Liquidity: domain.LiquidityTaker},
		{ID: "T-1", TimestampMs: 1709291000000, Symbol: "BTC-PERPETUAL", Side: domain.SideBuy,
			Price: 49989.5, Amount: 1000, Fee: -0.000005, Liquidity: domain.LiquidityMaker},
	}, 7)

	out := buf.String()
	assert.Contains(t, out, "ARCHIVED TRADES")
	assert.Contains(t, out, "Showing 2 of 7 archived trades")
	assert.Contains(t, out, "49989.50")
	assert.Contains(t, out, "50009.50")
	assert.Contains(t, out, "2024-03-01 11:03:20")
	assert.Contains(t, out, "Trades:      2 (1 maker)")
	assert.Contains(t, out, "Net:         +600")
	assert.Contains(t, out, "Fees:        +0.00000500")
}

func TestConsole_PrintTrades_Empty(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintTrades(nil, 0)

	assert.Contains(t, buf.String(), "no trades archived yet")
}

func TestConsole_PrintSession(t *testing.T) {
	var buf bytes.Buffer
	c := notify.NewConsoleWriter(&buf)

	initial := 1.5
	c.PrintSession("BTC-PERPETUAL", domain.InventorySnapshot{
		Inventory:     -2000,
		UnrealizedPnL: 0.0001,
		CumulativePnL: 0.25,
		InitialEquity: &initial,
		Fills:         4,
		Reconciles:    12,
	}, 90*time.Second)

	out := buf.String()
	assert.Contains(t, out, "SESSION BTC-PERPETUAL (1m30s)")
	assert.Contains(t, out, "-2000")
	assert.Contains(t, out, "+0.25000000 BTC")
	assert.Contains(t, out, "Reconciles: 12")
}

func TestConsole_PrintSession_NoEquity(t *testing.T) {
	var buf bytes.Buffer
	notify.NewConsoleWriter(&buf).PrintSession("ETH-PERPETUAL", domain.InventorySnapshot{}, time.Second)

	out := buf.String()
	assert.True(t, strings.Contains(out, "n/a"))
}
