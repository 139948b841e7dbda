// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Fixture
	FixtureFile string

	// Digest
	DigestMaxSize            int
	DigestLookbackDays       int
	DigestSectorOnlyMinScore int
	DigestMaxConcurrent      int
	DigestDeliveryInterval   time.Duration
	DigestRunTimeout         time.Duration
	DigestSchedule           string
	DigestTimezone           string
	DigestLocation           *time.Location

	// Articles
	ArticleFreshness time.Duration

	// Ledger
	LedgerRetentionDays int

	// Delivery
	DeliveryWebhookURL   string
	DeliveryTimeout      time.Duration
	DeliveryMaxRetries   int
	DeliveryRetryBackoff time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や、値の組み合わせが不正な場合はエラーを返す。
// 数値や期間の形式が不正な場合はデフォルト値を使用する。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.FixtureFile = os.Getenv("DIGEST_FIXTURE_FILE")

	// Required fields
	var missing []string

	if cfg.DatabaseURL == "" && cfg.FixtureFile == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DigestMaxSize = getEnvPositiveInt("DIGEST_MAX_SIZE", 20)
	cfg.DigestLookbackDays = getEnvPositiveInt("DIGEST_LOOKBACK_DAYS", 3)
	cfg.DigestSectorOnlyMinScore = getEnvPositiveInt("DIGEST_SECTOR_ONLY_MIN_SCORE", 70)
	cfg.DigestMaxConcurrent = getEnvPositiveInt("DIGEST_MAX_CONCURRENT", 4)
	cfg.DigestDeliveryInterval = getEnvDuration("DIGEST_DELIVERY_INTERVAL", 200*time.Millisecond)
	cfg.DigestRunTimeout = getEnvDuration("DIGEST_RUN_TIMEOUT", 10*time.Minute)
	cfg.DigestSchedule = getEnvString("DIGEST_SCHEDULE", "0 0 7 * * *")
	cfg.DigestTimezone = getEnvString("DIGEST_TIMEZONE", "UTC")
	cfg.ArticleFreshness = getEnvDuration("ARTICLE_FRESHNESS", 72*time.Hour)
	cfg.LedgerRetentionDays = getEnvPositiveInt("LEDGER_RETENTION_DAYS", 7)
	cfg.DeliveryWebhookURL = getEnvString("DELIVERY_WEBHOOK_URL", "")
	cfg.DeliveryTimeout = getEnvDuration("DELIVERY_TIMEOUT", 10*time.Second)
	cfg.DeliveryMaxRetries = getEnvInt("DELIVERY_MAX_RETRIES", 2)
	if cfg.DeliveryMaxRetries < 0 {
		cfg.DeliveryMaxRetries = 2
	}
	cfg.DeliveryRetryBackoff = getEnvDuration("DELIVERY_RETRY_BACKOFF", 500*time.Millisecond)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")

	loc, err := time.LoadLocation(cfg.DigestTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid DIGEST_TIMEZONE %q: %w", cfg.DigestTimezone, err)
	}
	cfg.DigestLocation = loc

	if cfg.LedgerRetentionDays < cfg.DigestLookbackDays {
		return nil, fmt.Errorf("LEDGER_RETENTION_DAYS (%d) must not be shorter than DIGEST_LOOKBACK_DAYS (%d)",
			cfg.LedgerRetentionDays, cfg.DigestLookbackDays)
	}

	return cfg, nil
}

// FixtureMode はデータベースの代わりにフィクスチャファイルを使用するかを返す。
func (c *Config) FixtureMode() bool {
	return c.FixtureFile != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

// getEnvPositiveInt は0以下の値もデフォルト値として扱う。
func getEnvPositiveInt(key string, defaultVal int) int {
	if i := getEnvInt(key, defaultVal); i > 0 {
		return i
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return defaultVal
	}
	return d
}
