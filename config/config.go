// config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// R2Config holds the Cloudflare R2 (S3-compatible) credentials used for proof images.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether enough of the R2 settings are present to build a client.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.AccessKeyID != "" && r.AccessKeySecret != "" && r.Bucket != ""
}

// Config is resolved once at process start and passed explicitly to every component.
type Config struct {
	Port           string
	DatabaseURL    string
	ServiceToken   string
	AllowedOrigins []string
	LogLevel       logrus.Level

	SyncServiceURL string
	SyncInterval   time.Duration

	RedisAddr         string
	RedisPassword     string
	RedisDB           int
	NotificationQueue string

	R2 R2Config

	// AccrualHour/AccrualMinute are the UTC wall-clock time of the daily return accrual.
	AccrualHour   uint
	AccrualMinute uint

	ReferralRewardPercent float64
	ReferralExpiryDays    int
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("⚠️  No .env file found, reading environment variables directly")
	}

	cfg := &Config{
		Port:              getEnv("PORT", "5200"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		ServiceToken:      os.Getenv("SERVICE_TOKEN"),
		SyncServiceURL:    os.Getenv("SYNC_SERVICE_URL"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		NotificationQueue: getEnv("NOTIFICATION_QUEUE", "notification_queue"),
		R2: R2Config{
			AccountID:       os.Getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: os.Getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          os.Getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      os.Getenv("CDN_BASE_URL"),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}
	if cfg.ServiceToken == "" {
		return nil, fmt.Errorf("SERVICE_TOKEN environment variable not set")
	}

	origins := getEnv("ALLOWED_ORIGINS", "http://localhost:3000")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if cfg.SyncInterval, err = time.ParseDuration(getEnv("SYNC_INTERVAL", "1m")); err != nil {
		return nil, fmt.Errorf("invalid SYNC_INTERVAL: %w", err)
	}
	if cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0")); err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.AccrualHour, cfg.AccrualMinute, err = parseClock(getEnv("ACCRUAL_TIME", "00:00")); err != nil {
		return nil, fmt.Errorf("invalid ACCRUAL_TIME: %w", err)
	}
	if cfg.ReferralRewardPercent, err = strconv.ParseFloat(getEnv("REFERRAL_REWARD_PERCENT", "5"), 64); err != nil {
		return nil, fmt.Errorf("invalid REFERRAL_REWARD_PERCENT: %w", err)
	}
	if cfg.ReferralRewardPercent < 0 || cfg.ReferralRewardPercent > 100 {
		return nil, fmt.Errorf("REFERRAL_REWARD_PERCENT must be within 0..100, got %v", cfg.ReferralRewardPercent)
	}
	if cfg.ReferralExpiryDays, err = strconv.Atoi(getEnv("REFERRAL_EXPIRY_DAYS", "30")); err != nil {
		return nil, fmt.Errorf("invalid REFERRAL_EXPIRY_DAYS: %w", err)
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseClock parses "HH:MM".
func parseClock(s string) (uint, uint, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, 0, err
	}
	return uint(t.Hour()), uint(t.Minute()), nil
}
