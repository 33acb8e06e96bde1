package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"futuresscreener/pkg/binance"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Binance  BinanceConfig  `mapstructure:"binance"`
	Market   MarketConfig   `mapstructure:"market"`
	Seed     SeedConfig     `mapstructure:"seed"`
	Symbols  SymbolsConfig  `mapstructure:"symbols"`
	Alert    AlertConfig    `mapstructure:"alert"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Log      LogConfig      `mapstructure:"log"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type BinanceConfig struct {
	REST RESTConfig `mapstructure:"rest"`
	WS   WSConfig   `mapstructure:"ws"`
}

type RESTConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type WSConfig struct {
	URL                  string        `mapstructure:"url"`
	StreamsPerConnection int           `mapstructure:"streams_per_connection"`
	ReconnectDelay       time.Duration `mapstructure:"reconnect_delay"`
	Backoff              string        `mapstructure:"backoff"` // "fixed" or "exponential"
	MaxReconnectDelay    time.Duration `mapstructure:"max_reconnect_delay"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"` // 0 disables the read deadline
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout"`
}

// MarketConfig selects the tracked universe and the intervals streamed for it.
type MarketConfig struct {
	QuoteAsset string   `mapstructure:"quote_asset"`
	Intervals  []string `mapstructure:"intervals"`
}

type SeedConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Limit         int           `mapstructure:"limit"` // 1 = current candle, 2 = previous open / current close
	BatchSize     int           `mapstructure:"batch_size"`
	BatchInterval time.Duration `mapstructure:"batch_interval"`
	Poll          bool          `mapstructure:"poll"` // periodic REST refresh of every tracked interval
}

type SymbolsConfig struct {
	// RefreshInterval of 0 refreshes daily at UTC midnight, a negative value never refreshes.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`
}

type AlertConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Threshold     float64  `mapstructure:"threshold"`
	Intervals     []string `mapstructure:"intervals"`
	QueueSize     int      `mapstructure:"queue_size"`
	RatePerSecond float64  `mapstructure:"rate_per_second"`
	Burst         int      `mapstructure:"burst"`
}

type TelegramConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Token        string        `mapstructure:"token"`
	ChatID       int64         `mapstructure:"chat_id"`
	APIEndpoint  string        `mapstructure:"api_endpoint"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SSMTokenName string        `mapstructure:"ssm_token_name"`
}

type RedisConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Addr           string        `mapstructure:"addr"`
	Password       string        `mapstructure:"password"`
	DB             int           `mapstructure:"db"`
	KeyPrefix      string        `mapstructure:"key_prefix"`
	MirrorInterval time.Duration `mapstructure:"mirror_interval"`
}

type HTTPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Options defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	var paths []string
	ex, _ := os.Executable()
	if strings.Contains(ex, "go-build") {
		pwd, _ := os.Getwd()
		paths = append(paths, filepath.Join(pwd, "../../config"))
	} else {
		paths = append(paths, filepath.Join(filepath.Dir(ex), "../config"))
	}
	paths = append(paths, "config")

	cfg, err := LoadFrom(paths...)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

// LoadFrom reads config.yaml from the first matching path. A missing file is not
// an error: defaults and environment variables still apply.
func LoadFrom(paths ...string) (*Config, error) {
	// .env is optional; it only seeds the process environment for local runs
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	// Support environment variables with dot notation (e.g., BINANCE_WS_URL)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Binance.WS.StreamsPerConnection <= 0 {
		return fmt.Errorf("binance.ws.streams_per_connection must be positive, got %d", c.Binance.WS.StreamsPerConnection)
	}
	if c.Seed.Limit != 1 && c.Seed.Limit != 2 {
		return fmt.Errorf("seed.limit must be 1 or 2, got %d", c.Seed.Limit)
	}
	if c.Seed.BatchSize <= 0 {
		return fmt.Errorf("seed.batch_size must be positive, got %d", c.Seed.BatchSize)
	}
	if len(c.Market.Intervals) == 0 {
		return errors.New("market.intervals must not be empty")
	}
	for _, iv := range c.Market.Intervals {
		if !binance.Interval(iv).IsValid() {
			return fmt.Errorf("market.intervals: unknown interval %q", iv)
		}
	}
	switch c.Binance.WS.Backoff {
	case "fixed":
	case "exponential":
		if c.Binance.WS.MaxReconnectDelay < c.Binance.WS.ReconnectDelay {
			return fmt.Errorf("binance.ws.max_reconnect_delay %v is below reconnect_delay %v",
				c.Binance.WS.MaxReconnectDelay, c.Binance.WS.ReconnectDelay)
		}
	default:
		return fmt.Errorf("binance.ws.backoff must be fixed or exponential, got %q", c.Binance.WS.Backoff)
	}
	if c.Redis.Enabled && c.Redis.MirrorInterval <= 0 {
		return fmt.Errorf("redis.mirror_interval must be positive, got %v", c.Redis.MirrorInterval)
	}
	if c.Postgres.Enabled && c.Postgres.Retention > 0 && c.Postgres.PruneInterval <= 0 {
		return fmt.Errorf("postgres.prune_interval must be positive, got %v", c.Postgres.PruneInterval)
	}
	return nil
}

func intervalNames(intervals []binance.Interval) []string {
	out := make([]string, len(intervals))
	for i, iv := range intervals {
		out[i] = string(iv)
	}
	return out
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("binance.rest.base_url", "https://fapi.binance.com")
	v.SetDefault("binance.rest.timeout", 10*time.Second)
	v.SetDefault("binance.ws.url", "wss://fstream.binance.com")
	v.SetDefault("binance.ws.streams_per_connection", 200)
	v.SetDefault("binance.ws.reconnect_delay", 5*time.Second)
	v.SetDefault("binance.ws.backoff", "fixed")
	v.SetDefault("binance.ws.max_reconnect_delay", time.Minute)
	v.SetDefault("binance.ws.read_timeout", 0)
	v.SetDefault("binance.ws.handshake_timeout", 10*time.Second)

	v.SetDefault("market.quote_asset", "USDT")
	v.SetDefault("market.intervals", intervalNames(binance.ShortIntervals))

	v.SetDefault("seed.enabled", true)
	v.SetDefault("seed.limit", 1)
	v.SetDefault("seed.batch_size", 100)
	v.SetDefault("seed.batch_interval", 100*time.Millisecond)
	v.SetDefault("seed.poll", false)

	v.SetDefault("symbols.refresh_interval", 0)

	v.SetDefault("alert.enabled", true)
	v.SetDefault("alert.threshold", 5.0)
	v.SetDefault("alert.intervals", []string{"5m", "15m", "30m", "1h"})
	v.SetDefault("alert.queue_size", 256)
	v.SetDefault("alert.rate_per_second", 20.0)
	v.SetDefault("alert.burst", 5)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.api_endpoint", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("telegram.timeout", 10*time.Second)
	v.SetDefault("telegram.ssm_token_name", "SCREENER_TELEGRAM_TOKEN")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.environment", "dev")

	v.SetDefault("postgres.enabled", false)
	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.dbname", "futuresscreener")
	v.SetDefault("postgres.sslmode", "disable")
	v.SetDefault("postgres.timezone", "UTC")
	v.SetDefault("postgres.max_open_conns", 10)
	v.SetDefault("postgres.max_idle_conns", 5)
	v.SetDefault("postgres.conn_max_lifetime", time.Hour)
	v.SetDefault("postgres.retention", 30*24*time.Hour)
	v.SetDefault("postgres.prune_interval", time.Hour)
	v.SetDefault("postgres.ssm.host", "SCREENER_DB_HOST")
	v.SetDefault("postgres.ssm.user", "SCREENER_DB_USER")
	v.SetDefault("postgres.ssm.password", "SCREENER_DB_PASSWORD")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.key_prefix", "screener")
	v.SetDefault("redis.mirror_interval", 2*time.Second)

	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", ":8080")
}
