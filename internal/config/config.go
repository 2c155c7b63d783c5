// Package config defines the top-level configuration for the coinrush game
// server and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by COINRUSH_* environment variables.
type Config struct {
	Game     GameConfig     `toml:"game"`
	Upbit    UpbitConfig    `toml:"upbit"`
	Sim      SimConfig      `toml:"sim"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// GameConfig holds the rules of the investment game. Capital tiers are
// decimal strings so KRW amounts never pass through float64.
type GameConfig struct {
	TierLarge    string   `toml:"tier_large"`
	TierMedium   string   `toml:"tier_medium"`
	TierSmall    string   `toml:"tier_small"`
	MinLeverage  int64    `toml:"min_leverage"`
	MaxLeverage  int64    `toml:"max_leverage"`
	MaxTicks     int      `toml:"max_ticks"`
	TickInterval duration `toml:"tick_interval"`
	RankLimit    int      `toml:"rank_limit"`
}

// UpbitConfig holds the Upbit REST API endpoint.
type UpbitConfig struct {
	BaseURL string `toml:"base_url"`
}

// SimConfig holds parameters for the offline simulated quote source.
type SimConfig struct {
	Seed       int64    `toml:"seed"`
	StartPrice string   `toml:"start_price"`
	Codes      []string `toml:"codes"`
	Leverage   int64    `toml:"leverage"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config holds S3-compatible object storage parameters for the session
// archive. Archiving is optional; an empty bucket disables it.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "1s", "500ms").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Game: GameConfig{
			TierLarge:    "1000000000",
			TierMedium:   "500000000",
			TierSmall:    "100000000",
			MinLeverage:  1,
			MaxLeverage:  20,
			MaxTicks:     90,
			TickInterval: duration{time.Second},
			RankLimit:    50,
		},
		Upbit: UpbitConfig{
			BaseURL: "https://api.upbit.com",
		},
		Sim: SimConfig{
			Seed:       1,
			StartPrice: "100000",
			Codes:      []string{"KRW-BTC", "KRW-ETH", "KRW-XRP"},
			Leverage:   10,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "coinrush",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   20,
			MaxRetries: 3,
			TLSEnabled: false,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "ap-northeast-2",
			Bucket:         "",
			UseSSL:         false,
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Notify: NotifyConfig{
			Events: []string{"session_completed", "error"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// Tiers parses the three capital tiers into decimals keyed by tier name.
func (g GameConfig) Tiers() (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, 3)
	for name, raw := range map[string]string{
		"large":  g.TierLarge,
		"medium": g.TierMedium,
		"small":  g.TierSmall,
	} {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("config: tier_%s %q: %w", name, raw, err)
		}
		if !d.IsPositive() {
			return nil, fmt.Errorf("config: tier_%s must be positive, got %s", name, d)
		}
		out[name] = d
	}
	return out, nil
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":   true,
	"simulate": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, simulate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Game rules
	if _, err := c.Game.Tiers(); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Game.MinLeverage < 1 {
		errs = append(errs, "game: min_leverage must be >= 1")
	}
	if c.Game.MaxLeverage < c.Game.MinLeverage {
		errs = append(errs, "game: max_leverage must not be below min_leverage")
	}
	if c.Game.MaxTicks < 1 {
		errs = append(errs, "game: max_ticks must be >= 1")
	}
	if c.Game.TickInterval.Duration <= 0 {
		errs = append(errs, "game: tick_interval must be positive")
	}
	if c.Game.RankLimit < 1 {
		errs = append(errs, "game: rank_limit must be >= 1")
	}

	// Upbit
	if c.Mode == "server" && c.Upbit.BaseURL == "" {
		errs = append(errs, "upbit: base_url must not be empty")
	}

	// Sim
	if c.Mode == "simulate" {
		if len(c.Sim.Codes) != 3 {
			errs = append(errs, fmt.Sprintf("sim: exactly 3 codes required, got %d", len(c.Sim.Codes)))
		}
		if d, err := decimal.NewFromString(c.Sim.StartPrice); err != nil || !d.IsPositive() {
			errs = append(errs, fmt.Sprintf("sim: start_price %q must be a positive decimal", c.Sim.StartPrice))
		}
		if c.Sim.Leverage < c.Game.MinLeverage || c.Sim.Leverage > c.Game.MaxLeverage {
			errs = append(errs, fmt.Sprintf("sim: leverage %d outside [%d, %d]", c.Sim.Leverage, c.Game.MinLeverage, c.Game.MaxLeverage))
		}
	}

	// The external services below only matter in server mode.
	if c.Mode == "server" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}

		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}

		// S3 is optional, but when a bucket is set the endpoint must be too.
		if c.S3.Bucket != "" && c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty when bucket is set")
		}

		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
