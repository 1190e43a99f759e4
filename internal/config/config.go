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

	// Redis（決済Webhookの冪等キー保存に使用。未設定の場合はインメモリにフォールバック）
	RedisURL string

	// Session
	SessionMaxAge        int
	SessionSweepInterval time.Duration

	// Rate Limit
	RateLimitGeneral  int
	RateLimitAnalysis int

	// AI分析プロバイダー
	AnalysisURL     string
	AnalysisAPIKey  string
	AnalysisTimeout time.Duration

	// 決済プロバイダー照会エンドポイント
	MercadoPagoAPIURL string
	MercadoPagoToken  string
	StripeAPIURL      string
	StripeToken       string

	// Upload
	MaxUploadSize int64

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

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

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.RedisURL = getEnvString("REDIS_URL", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionSweepInterval = getEnvDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitAnalysis = getEnvInt("RATE_LIMIT_ANALYSIS", 10)
	cfg.AnalysisURL = getEnvString("ANALYSIS_URL", "")
	cfg.AnalysisAPIKey = getEnvString("ANALYSIS_API_KEY", "")
	cfg.AnalysisTimeout = getEnvDuration("ANALYSIS_TIMEOUT", 30*time.Second)
	cfg.MercadoPagoAPIURL = getEnvString("MERCADOPAGO_API_URL", "https://api.mercadopago.com")
	cfg.MercadoPagoToken = getEnvString("MERCADOPAGO_ACCESS_TOKEN", "")
	cfg.StripeAPIURL = getEnvString("STRIPE_API_URL", "https://api.stripe.com")
	cfg.StripeToken = getEnvString("STRIPE_SECRET_KEY", "")
	cfg.MaxUploadSize = getEnvInt64("MAX_UPLOAD_SIZE", 10485760)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
