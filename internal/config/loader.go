package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies COINRUSH_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known COINRUSH_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Game ──
	setStr(&cfg.Game.TierLarge, "COINRUSH_GAME_TIER_LARGE")
	setStr(&cfg.Game.TierMedium, "COINRUSH_GAME_TIER_MEDIUM")
	setStr(&cfg.Game.TierSmall, "COINRUSH_GAME_TIER_SMALL")
	setInt64(&cfg.Game.MinLeverage, "COINRUSH_GAME_MIN_LEVERAGE")
	setInt64(&cfg.Game.MaxLeverage, "COINRUSH_GAME_MAX_LEVERAGE")
	setInt(&cfg.Game.MaxTicks, "COINRUSH_GAME_MAX_TICKS")
	setDuration(&cfg.Game.TickInterval, "COINRUSH_GAME_TICK_INTERVAL")
	setInt(&cfg.Game.RankLimit, "COINRUSH_GAME_RANK_LIMIT")

	// ── Upbit ──
	setStr(&cfg.Upbit.BaseURL, "COINRUSH_UPBIT_BASE_URL")

	// ── Sim ──
	setInt64(&cfg.Sim.Seed, "COINRUSH_SIM_SEED")
	setStr(&cfg.Sim.StartPrice, "COINRUSH_SIM_START_PRICE")
	setStringSlice(&cfg.Sim.Codes, "COINRUSH_SIM_CODES")
	setInt64(&cfg.Sim.Leverage, "COINRUSH_SIM_LEVERAGE")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "COINRUSH_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "COINRUSH_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "COINRUSH_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "COINRUSH_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "COINRUSH_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "COINRUSH_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "COINRUSH_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "COINRUSH_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "COINRUSH_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "COINRUSH_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "COINRUSH_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COINRUSH_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COINRUSH_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COINRUSH_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COINRUSH_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COINRUSH_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "COINRUSH_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "COINRUSH_S3_REGION")
	setStr(&cfg.S3.Bucket, "COINRUSH_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "COINRUSH_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "COINRUSH_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "COINRUSH_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "COINRUSH_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "COINRUSH_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "COINRUSH_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "COINRUSH_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "COINRUSH_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "COINRUSH_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "COINRUSH_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "COINRUSH_MODE")
	setStr(&cfg.LogLevel, "COINRUSH_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
