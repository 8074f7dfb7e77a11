package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string

	StoragePath    string
	StorageBaseURL string
	GeoIPDBPath    string

	PayPalClientID    string
	PayPalSecret      string
	PayPalEnvironment string

	TryOnBaseURL string
	TryOnAPIKey  string
	TryOnModel   string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	FallbackPlanID   int64
	AllowedOrigins   []string

	DBMaxConns int32
	DBMinConns int32
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:            getEnv("APP_ENV", "development"),
		Port:              getEnv("PORT", "8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		StoragePath:       getEnv("STORAGE_PATH", "./storage"),
		StorageBaseURL:    getEnv("STORAGE_BASE_URL", "http://localhost:8080/static"),
		GeoIPDBPath:       os.Getenv("GEOIP_DB_PATH"),
		PayPalClientID:    os.Getenv("PAYPAL_CLIENT_ID"),
		PayPalSecret:      os.Getenv("PAYPAL_CLIENT_SECRET"),
		PayPalEnvironment: getEnv("PAYPAL_ENVIRONMENT", "SANDBOX"),
		TryOnBaseURL:      getEnv("TRYON_BASE_URL", "https://fal.run"),
		TryOnAPIKey:       os.Getenv("TRYON_API_KEY"),
		TryOnModel:        getEnv("TRYON_MODEL", "easel-ai/fashion-tryon"),
		HTTPReadTimeout:   time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:  time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:   time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:   getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		FallbackPlanID:    int64(getEnvInt("PAYMENT_FALLBACK_PLAN_ID", 1)),
		DBMaxConns:        int32(getEnvInt("DB_MAX_CONNS", 10)),
		DBMinConns:        int32(getEnvInt("DB_MIN_CONNS", 1)),
	}

	for _, origin := range strings.Split(getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
