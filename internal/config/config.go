// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Venue
	VenueCode string
	Timezone  string

	// Lock
	LockTimeout          time.Duration
	LockReclaimInterval  time.Duration
	OptimisticMaxRetries int

	// Registration
	RegistrationFee int
	MonthlyFee      int
	BillingDay      int
	ExpiryGraceDays int
	ExpireInterval  time.Duration

	// Session
	SessionMaxAge int

	// Rate Limit
	RateLimitGeneral int
	RateLimitCheckIn int

	// Notification
	RedisURL       string
	WebhookURLs    []string
	WebhookTimeout time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合や値が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.VenueCode = os.Getenv("VENUE_CODE")
	if cfg.VenueCode == "" {
		missing = append(missing, "VENUE_CODE")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Timezone = getEnvString("TIMEZONE", "Asia/Tokyo")
	cfg.LockTimeout = getEnvDuration("LOCK_TIMEOUT", 5*time.Second)
	cfg.LockReclaimInterval = getEnvDuration("LOCK_RECLAIM_INTERVAL", time.Hour)
	cfg.OptimisticMaxRetries = getEnvInt("OPTIMISTIC_MAX_RETRIES", 3)
	cfg.RegistrationFee = getEnvInt("REGISTRATION_FEE", 5000)
	cfg.MonthlyFee = getEnvInt("MONTHLY_FEE", 3000)
	cfg.BillingDay = getEnvInt("BILLING_DAY", 5)
	cfg.ExpiryGraceDays = getEnvInt("REGISTRATION_EXPIRY_GRACE_DAYS", 7)
	cfg.ExpireInterval = getEnvDuration("EXPIRE_INTERVAL", 10*time.Minute)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitCheckIn = getEnvInt("RATE_LIMIT_CHECKIN", 10)
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.WebhookURLs = splitCommaList(os.Getenv("WEBHOOK_URLS"))
	cfg.WebhookTimeout = getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	// 請求日は月によらず存在する日に制限する
	if cfg.BillingDay < 1 || cfg.BillingDay > 28 {
		return nil, fmt.Errorf("BILLING_DAY must be between 1 and 28, got %d", cfg.BillingDay)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

// splitCommaList はカンマ区切りの文字列を要素のリストに分割する。
// 空要素は除外する。
func splitCommaList(v string) []string {
	if v == "" {
		return nil
	}
	var result []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
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

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
