package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/alejandrodnm/skewmm/config"
	"github.com/alejandrodnm/skewmm/internal/adapters/deribit"
	"github.com/alejandrodnm/skewmm/internal/adapters/notify"
	"github.com/alejandrodnm/skewmm/internal/adapters/paper"
	"github.com/alejandrodnm/skewmm/internal/application/engine/inventory"
	"github.com/alejandrodnm/skewmm/internal/application/engine/live"
	"github.com/alejandrodnm/skewmm/internal/metrics"
	"github.com/alejandrodnm/skewmm/internal/ports"
	"github.com/alejandrodnm/skewmm/internal/strategy"
)

// runMarketMaker monta el engine con el gateway real o el simulado y
// bloquea hasta que ctx se cancela o el control loop falla.
func runMarketMaker(ctx context.Context, cfg *config.Config, store ports.TradeStore, console *notify.Console, paperMode bool) error {
	exchange := newExchange(cfg, paperMode)

	var m *metrics.Metrics
	if cfg.Metrics.Listen != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)
		addr, err := metrics.Serve(ctx, cfg.Metrics.Listen, reg)
		if err != nil {
			exchange.Close()
			return fmt.Errorf("runMarketMaker: metrics: %w", err)
		}
		slog.Info("metrics listening", "addr", addr.String())
	}

	state := inventory.New()
	defer state.Close()

	quoter := strategy.NewInventorySkew(strategy.InventorySkewConfig{
		Spread:     cfg.Strategy.Spread,
		SkewFactor: cfg.SkewFactor(),
	})

	eng := live.New(exchange, store, quoter, state, m, live.Config{
		Instrument:           cfg.Strategy.Symbol,
		PositionSize:         cfg.Strategy.PositionSize,
		MaxInventory:         cfg.Strategy.MaxInventory,
		PriceUpdateThreshold: cfg.Strategy.PriceUpdateThreshold,
		TickSize:             cfg.Strategy.TickSize,
		ReconcileInterval:    cfg.ReconcileInterval(),
		ArchiveInterval:      cfg.ArchiveInterval(),
		ArchiveLookback:      cfg.ArchiveLookback(),
		ArchiveLimit:         cfg.Engine.ArchiveLimit,
		StreamRetryDelay:     cfg.StreamRetryDelay(),
		ShutdownTimeout:      cfg.ShutdownTimeout(),
	})

	start := time.Now()
	runErr := eng.Run(ctx)

	// el contexto de ejecución ya puede estar cancelado
	snapCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if snap, err := state.Snapshot(snapCtx); err == nil {
		console.PrintSession(cfg.Strategy.Symbol, snap, time.Since(start))
	}
	return runErr
}

func newExchange(cfg *config.Config, paperMode bool) ports.Exchange {
	if paperMode {
		// solo datos públicos: el venue simulado no necesita credenciales
		market := deribit.NewClient(deribit.Config{
			RESTBase:   cfg.Exchange.RESTBase,
			WSBase:     cfg.Exchange.WSBase,
			RatePerSec: cfg.Exchange.RatePerSec,
		})
		return paper.New(market, paper.Config{
			Instrument:    cfg.Strategy.Symbol,
			InitialEquity: cfg.Paper.InitialEquity,
			MakerFeeRate:  cfg.Paper.MakerFeeRate,
		})
	}
	return deribit.NewClient(deribit.Config{
		RESTBase:     cfg.Exchange.RESTBase,
		WSBase:       cfg.Exchange.WSBase,
		ClientID:     cfg.Exchange.APIKey,
		ClientSecret: cfg.Exchange.APISecret,
		RatePerSec:   cfg.Exchange.RatePerSec,
	})
}
