package main

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alejandrodnm/skewmm/config"
)

// setupLogger instala el logger por defecto. Si hay log.file, la salida va
// también a un archivo rotado. Devuelve la función que lo cierra.
func setupLogger(cfg config.LogConfig) func() {
	w, closeFn := logWriter(cfg)
	slog.SetDefault(slog.New(newHandler(w, cfg)))
	return closeFn
}

func newHandler(w io.Writer, cfg config.LogConfig) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if cfg.Format == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func logWriter(cfg config.LogConfig) (io.Writer, func()) {
	if cfg.File == "" {
		return os.Stdout, func() {}
	}
	if dir := filepath.Dir(cfg.File); dir != "." {
		_ = os.MkdirAll(dir, 0o755)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	return io.MultiWriter(os.Stdout, rotator), func() { rotator.Close() }
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
