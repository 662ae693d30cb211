package metrics_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/skewmm/internal/metrics"
)

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequote(time.Millisecond)
		m.OrderOutcome("buy", "placed")
		m.Fill("sell", -10)
		m.TaskError("fills")
		m.Archived(3)
		m.Reconciled(1, 2, 3)
	})
}

func TestMetrics_ServeExposesCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveRequote(20 * time.Millisecond)
	m.Fill("buy", 100)
	m.Archived(7)

	n, err := testutil.GatherAndCount(reg, "skewmm_requotes_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr, err := metrics.Serve(ctx, "127.0.0.1:0", reg)
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr.String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "skewmm_inventory 100")
	assert.Contains(t, string(body), "skewmm_trades_archived_total 7")
	assert.Contains(t, string(body), `skewmm_fills_total{side="buy"} 1`)
}
