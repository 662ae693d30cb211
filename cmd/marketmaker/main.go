package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/skewmm/config"
	"github.com/alejandrodnm/skewmm/internal/adapters/notify"
	"github.com/alejandrodnm/skewmm/internal/adapters/storage"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	paperMode := flag.Bool("paper", false, "quote against a simulated venue fed by live prices (no credentials)")
	trades := flag.Int("trades", 0, "print the last N archived trades and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	closeLog := setupLogger(cfg.Log)
	defer closeLog()

	store, err := storage.NewSQLiteStorage(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	console := notify.NewConsole()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *trades > 0 {
		if err := runTradeReport(ctx, store, console, *trades); err != nil {
			slog.Error("trade report failed", "err", err)
			os.Exit(1)
		}
		return
	}

	if !*paperMode && !cfg.HasCredentials() {
		slog.Error("missing API credentials: set DERIBIT_API_KEY and DERIBIT_API_SECRET (or run with -paper)")
		os.Exit(1)
	}

	slog.Info("skewmm starting",
		"config", *configPath,
		"symbol", cfg.Strategy.Symbol,
		"testnet", cfg.Testnet(),
		"paper", *paperMode,
		"dsn", cfg.Storage.DSN,
	)

	if err := runMarketMaker(ctx, cfg, store, console, *paperMode); err != nil {
		slog.Error("market maker exited with error", "err", err)
		closeLog()
		os.Exit(1)
	}

	slog.Info("skewmm stopped cleanly")
}
