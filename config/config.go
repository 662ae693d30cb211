package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del market maker.
type Config struct {
	Strategy StrategyConfig `yaml:"strategy"`
	Engine   EngineConfig   `yaml:"engine"`
	Exchange ExchangeConfig `yaml:"exchange"`
	Paper    PaperConfig    `yaml:"paper"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// StrategyConfig son los parámetros de cotización.
type StrategyConfig struct {
	Symbol               string   `yaml:"symbol"`
	PositionSize         float64  `yaml:"position_size"`          // USD por orden
	Spread               float64  `yaml:"spread"`                 // fracción por lado (0.0002 = 2 bps)
	MaxInventory         float64  `yaml:"max_inventory"`          // USD, simétrico
	SkewFactor           *float64 `yaml:"skew_factor"`            // precio por unidad de inventario; 0 = sin skew
	PriceUpdateThreshold float64  `yaml:"price_update_threshold"` // mínimo movimiento de mid para recotizar
	TickSize             float64  `yaml:"tick_size"`
}

// EngineConfig controla los intervalos de las tareas de fondo.
type EngineConfig struct {
	ReconcileIntervalSeconds int `yaml:"reconcile_interval_seconds"`
	ArchiveIntervalSeconds   int `yaml:"archive_interval_seconds"`
	ArchiveLookbackMinutes   int `yaml:"archive_lookback_minutes"`
	ArchiveLimit             int `yaml:"archive_limit"`
	StreamRetrySeconds       int `yaml:"stream_retry_seconds"`
	ShutdownTimeoutSeconds   int `yaml:"shutdown_timeout_seconds"`
}

// ExchangeConfig contiene los endpoints de Deribit. Las credenciales solo
// se leen del entorno.
type ExchangeConfig struct {
	RESTBase   string  `yaml:"rest_base"`
	WSBase     string  `yaml:"ws_base"`
	Testnet    *bool   `yaml:"testnet"` // default true
	RatePerSec float64 `yaml:"rate_per_sec"`

	APIKey    string `yaml:"-"`
	APISecret string `yaml:"-"`
}

// PaperConfig configura el venue simulado (-paper).
type PaperConfig struct {
	InitialEquity float64 `yaml:"initial_equity"` // en moneda base
	MakerFeeRate  float64 `yaml:"maker_fee_rate"`
}

// StorageConfig controla dónde se persisten los trades.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// LogConfig controla el formato, nivel y rotación del logging.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug | info | warn | error
	Format     string `yaml:"format"` // text | json
	File       string `yaml:"file"`   // vacío = solo stdout
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig: si Listen no está vacío se sirve /metrics.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Con path vacío solo se aplican entorno y defaults.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// Validate rechaza parámetros que harían cotizar sin sentido.
func (c *Config) Validate() error {
	var errs []error
	s := c.Strategy
	if s.Symbol == "" {
		errs = append(errs, errors.New("strategy.symbol is empty"))
	}
	if s.PositionSize <= 0 {
		errs = append(errs, fmt.Errorf("strategy.position_size must be > 0, got %v", s.PositionSize))
	}
	if s.Spread <= 0 || s.Spread >= 1 {
		errs = append(errs, fmt.Errorf("strategy.spread must be in (0, 1), got %v", s.Spread))
	}
	if s.MaxInventory <= 0 {
		errs = append(errs, fmt.Errorf("strategy.max_inventory must be > 0, got %v", s.MaxInventory))
	}
	if c.SkewFactor() < 0 {
		errs = append(errs, fmt.Errorf("strategy.skew_factor must be >= 0, got %v", c.SkewFactor()))
	}
	if s.PriceUpdateThreshold <= 0 {
		errs = append(errs, fmt.Errorf("strategy.price_update_threshold must be > 0, got %v", s.PriceUpdateThreshold))
	}
	if s.TickSize < 0 {
		errs = append(errs, fmt.Errorf("strategy.tick_size must be >= 0, got %v", s.TickSize))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// SkewFactor devuelve el factor de skew (0 si se desactivó explícitamente).
func (c *Config) SkewFactor() float64 {
	if c.Strategy.SkewFactor == nil {
		return 0
	}
	return *c.Strategy.SkewFactor
}

// HasCredentials indica si hay API key y secret.
func (c *Config) HasCredentials() bool {
	return c.Exchange.APIKey != "" && c.Exchange.APISecret != ""
}

// Testnet indica si se opera contra test.deribit.com.
func (c *Config) Testnet() bool {
	return c.Exchange.Testnet == nil || *c.Exchange.Testnet
}

func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.Engine.ReconcileIntervalSeconds) * time.Second
}

func (c *Config) ArchiveInterval() time.Duration {
	return time.Duration(c.Engine.ArchiveIntervalSeconds) * time.Second
}

func (c *Config) ArchiveLookback() time.Duration {
	return time.Duration(c.Engine.ArchiveLookbackMinutes) * time.Minute
}

func (c *Config) StreamRetryDelay() time.Duration {
	return time.Duration(c.Engine.StreamRetrySeconds) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Engine.ShutdownTimeoutSeconds) * time.Second
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	cfg.Exchange.APIKey = os.Getenv("DERIBIT_API_KEY")
	cfg.Exchange.APISecret = os.Getenv("DERIBIT_API_SECRET")

	if v := os.Getenv("DERIBIT_TESTNET"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Exchange.Testnet = &b
		}
	}
	if v := os.Getenv("MM_SYMBOL"); v != "" {
		cfg.Strategy.Symbol = strings.ToUpper(v)
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Strategy.Symbol == "" {
		cfg.Strategy.Symbol = "BTC-PERPETUAL"
	}
	if cfg.Strategy.PositionSize == 0 {
		cfg.Strategy.PositionSize = 1000
	}
	if cfg.Strategy.Spread == 0 {
		cfg.Strategy.Spread = 0.0002
	}
	if cfg.Strategy.MaxInventory == 0 {
		cfg.Strategy.MaxInventory = 50000
	}
	if cfg.Strategy.SkewFactor == nil {
		skew := 0.00005
		cfg.Strategy.SkewFactor = &skew
	}
	if cfg.Strategy.PriceUpdateThreshold == 0 {
		cfg.Strategy.PriceUpdateThreshold = 1.0
	}
	if cfg.Strategy.TickSize == 0 {
		cfg.Strategy.TickSize = 0.5 // BTC-PERPETUAL
	}

	if cfg.Engine.ReconcileIntervalSeconds <= 0 {
		cfg.Engine.ReconcileIntervalSeconds = 5
	}
	if cfg.Engine.ArchiveIntervalSeconds <= 0 {
		cfg.Engine.ArchiveIntervalSeconds = 30
	}
	if cfg.Engine.ArchiveLookbackMinutes <= 0 {
		cfg.Engine.ArchiveLookbackMinutes = 60
	}
	if cfg.Engine.ArchiveLimit <= 0 {
		cfg.Engine.ArchiveLimit = 50
	}
	if cfg.Engine.StreamRetrySeconds <= 0 {
		cfg.Engine.StreamRetrySeconds = 1
	}
	if cfg.Engine.ShutdownTimeoutSeconds <= 0 {
		cfg.Engine.ShutdownTimeoutSeconds = 10
	}

	if cfg.Exchange.RESTBase == "" {
		if cfg.Testnet() {
			cfg.Exchange.RESTBase = "https://test.deribit.com/api/v2"
		} else {
			cfg.Exchange.RESTBase = "https://www.deribit.com/api/v2"
		}
	}
	if cfg.Exchange.WSBase == "" {
		if cfg.Testnet() {
			cfg.Exchange.WSBase = "wss://test.deribit.com/ws/api/v2"
		} else {
			cfg.Exchange.WSBase = "wss://www.deribit.com/ws/api/v2"
		}
	}
	if cfg.Exchange.RatePerSec <= 0 {
		cfg.Exchange.RatePerSec = 10
	}

	if cfg.Paper.InitialEquity <= 0 {
		cfg.Paper.InitialEquity = 1.0
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "trading_data.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 50
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 14
	}
}
