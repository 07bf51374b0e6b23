// Package config は環境変数からのアプリケーション設定読み込みを提供する。
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

	// Session
	// SessionDatabaseURLが設定されている場合はストア型セッション、
	// 未設定の場合は署名付きトークンを使用する。デプロイ内で戦略が混在することはない。
	SessionDatabaseURL string
	SessionMaxAge      int

	// Token
	TokenSecret string
	TokenTTL    time.Duration

	// Identity Provider
	ProviderLoginURL string
	ProviderTimeout  time.Duration

	// Login
	DisableLogin   bool
	RateLimitLogin int // req/min/IP

	// Notification
	CourierAPIURL    string
	CourierToken     string
	NotifyQueueSize  int
	NotifyMaxRetries int

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ProviderLoginURL = os.Getenv("PROVIDER_LOGIN_URL")
	if cfg.ProviderLoginURL == "" {
		missing = append(missing, "PROVIDER_LOGIN_URL")
	}

	cfg.TokenSecret = os.Getenv("TOKEN_SECRET")
	if cfg.TokenSecret == "" {
		missing = append(missing, "TOKEN_SECRET")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionDatabaseURL = os.Getenv("SESSION_DATABASE_URL")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.TokenTTL = getEnvDuration("TOKEN_TTL", 24*time.Hour)
	cfg.ProviderTimeout = getEnvDuration("PROVIDER_TIMEOUT", 10*time.Second)
	cfg.DisableLogin = getEnvBool("DISABLE_LOGIN", false)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.CourierAPIURL = getEnvString("COURIER_API_URL", "https://api.courier.com")
	cfg.CourierToken = os.Getenv("COURIER_TOKEN")
	cfg.NotifyQueueSize = getEnvInt("NOTIFY_QUEUE_SIZE", 256)
	cfg.NotifyMaxRetries = getEnvInt("NOTIFY_MAX_RETRIES", 5)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// SessionStoreEnabled はストア型セッション戦略が選択されているかを返す。
func (c *Config) SessionStoreEnabled() bool {
	return c.SessionDatabaseURL != ""
}

// NotifyEnabled は通知ディスパッチが有効かを返す。
// トークン未設定の場合、通知は送信されない。
func (c *Config) NotifyEnabled() bool {
	return c.CourierToken != ""
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
