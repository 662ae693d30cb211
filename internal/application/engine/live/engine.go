package live

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/skewmm/internal/application/engine"
	"github.com/alejandrodnm/skewmm/internal/application/engine/inventory"
	"github.com/alejandrodnm/skewmm/internal/metrics"
	"github.com/alejandrodnm/skewmm/internal/ports"
	"github.com/alejandrodnm/skewmm/internal/strategy"
)

const (
	defaultReconcileInterval = 5 * time.Second
	defaultArchiveInterval   = 30 * time.Second
	defaultArchiveLookback   = time.Hour
	defaultArchiveLimit      = 50
	defaultStreamRetryDelay  = time.Second
	defaultShutdownTimeout   = 10 * time.Second
)

// Config holds configuration for the live market making engine. It is
// copied into the engine and never changes afterwards.
type Config struct {
	Instrument           string
	PositionSize         float64
	MaxInventory         float64
	PriceUpdateThreshold float64
	TickSize             float64

	ReconcileInterval time.Duration
	ArchiveInterval   time.Duration
	ArchiveLookback   time.Duration
	ArchiveLimit      int
	StreamRetryDelay  time.Duration
	ShutdownTimeout   time.Duration
}

func (c *Config) setDefaults() {
	if c.ReconcileInterval <= 0 {
		c.ReconcileInterval = defaultReconcileInterval
	}
	if c.ArchiveInterval <= 0 {
		c.ArchiveInterval = defaultArchiveInterval
	}
	if c.ArchiveLookback <= 0 {
		c.ArchiveLookback = defaultArchiveLookback
	}
	if c.ArchiveLimit <= 0 {
		c.ArchiveLimit = defaultArchiveLimit
	}
	if c.StreamRetryDelay <= 0 {
		c.StreamRetryDelay = defaultStreamRetryDelay
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
}

// Engine quotes both sides of one instrument around mid, skewed by
// inventory. Four long-lived tasks share the inventory state: the fill
// listener, the reconciler, the trade archiver and the control loop.
type Engine struct {
	exchange ports.Exchange
	store    ports.TradeStore
	quoter   strategy.Quoter
	state    *inventory.State
	metrics  *metrics.Metrics
	cfg      Config
	currency string

	// owned by the control loop
	lastQuotedMid float64

	newLabel func() string
}

// New creates a market making engine. m may be nil.
func New(
	exchange ports.Exchange,
	store ports.TradeStore,
	quoter strategy.Quoter,
	state *inventory.State,
	m *metrics.Metrics,
	cfg Config,
) *Engine {
	cfg.setDefaults()
	return &Engine{
		exchange: exchange,
		store:    store,
		quoter:   quoter,
		state:    state,
		metrics:  m,
		cfg:      cfg,
		currency: engine.BaseCurrency(cfg.Instrument),
		newLabel: func() string { return "mm-" + uuid.NewString() },
	}
}

// Run starts the background tasks and blocks in the control loop until ctx
// is cancelled or the loop fails. The whole engine is torn down as one unit:
// background tasks are cancelled together, resting orders are cancelled and
// the gateway is closed. Returns nil on interrupt.
func (le *Engine) Run(ctx context.Context) error {
	slog.Info("live: starting engine",
		"instrument", le.cfg.Instrument,
		"strategy", le.quoter.Name(),
		"position_size", le.cfg.PositionSize,
		"max_inventory", le.cfg.MaxInventory,
		"threshold", le.cfg.PriceUpdateThreshold,
	)

	if n, err := le.exchange.CancelAll(ctx, le.cfg.Instrument); err != nil {
		slog.Warn("live: initial cancel all failed", "err", err)
	} else {
		slog.Info("live: cleared resting orders", "cancelled", n)
	}

	bgCtx, cancelBg := context.WithCancel(ctx)
	var wg sync.WaitGroup
	for _, task := range []func(context.Context){
		le.runFillListener,
		le.runReconciler,
		le.runArchiver,
	} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			task(bgCtx)
		}()
	}

	err := le.controlLoop(ctx)
	if err != nil {
		slog.Error("live: control loop failed, shutting down", "err", err)
	} else {
		slog.Info("live: shutting down")
	}

	cancelBg()
	wg.Wait()
	le.shutdown()
	return err
}

// shutdown cancels resting orders and closes the gateway with a fresh
// context, since the run context is usually already cancelled.
func (le *Engine) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), le.cfg.ShutdownTimeout)
	defer cancel()

	if n, err := le.exchange.CancelAll(ctx, le.cfg.Instrument); err != nil {
		slog.Error("live: cancel all on shutdown failed", "err", err)
	} else {
		slog.Info("live: cancelled resting orders", "cancelled", n)
	}

	slog.Info("live: closing exchange connections")
	if err := le.exchange.Close(); err != nil {
		slog.Warn("live: close exchange", "err", err)
	}
}

// sleepCtx waits d or until ctx is done. Returns false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
