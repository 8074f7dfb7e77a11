package infra

import (
	"testing"
	"time"
)

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("JWT_SECRET", "test-secret")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("LoadConfig() expected error for missing DATABASE_URL")
	}
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatalf("LoadConfig() expected error for missing JWT_SECRET")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "")
	t.Setenv("PAYPAL_ENVIRONMENT", "")
	t.Setenv("TRYON_MODEL", "")
	t.Setenv("HTTP_READ_TIMEOUT_SECONDS", "")
	t.Setenv("PAYMENT_FALLBACK_PLAN_ID", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "8080")
	}
	if cfg.PayPalEnvironment != "SANDBOX" {
		t.Fatalf("PayPalEnvironment mismatch: got %q", cfg.PayPalEnvironment)
	}
	if cfg.TryOnModel != "easel-ai/fashion-tryon" {
		t.Fatalf("TryOnModel mismatch: got %q", cfg.TryOnModel)
	}
	if cfg.HTTPReadTimeout != 15*time.Second {
		t.Fatalf("HTTPReadTimeout mismatch: got %v", cfg.HTTPReadTimeout)
	}
	if cfg.FallbackPlanID != 1 {
		t.Fatalf("FallbackPlanID mismatch: got %d", cfg.FallbackPlanID)
	}
	if cfg.DBMaxConns != 10 || cfg.DBMinConns != 1 {
		t.Fatalf("pool sizing mismatch: got max %d min %d", cfg.DBMaxConns, cfg.DBMinConns)
	}
}

func TestLoadConfigHonorsOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PORT", "1919")
	t.Setenv("PAYPAL_ENVIRONMENT", "PROD")
	t.Setenv("HTTP_WRITE_TIMEOUT_SECONDS", "45")
	t.Setenv("DB_MAX_CONNS", "4")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "1919" {
		t.Fatalf("Port mismatch: got %q want %q", cfg.Port, "1919")
	}
	if cfg.PayPalEnvironment != "PROD" {
		t.Fatalf("PayPalEnvironment mismatch: got %q", cfg.PayPalEnvironment)
	}
	if cfg.HTTPWriteTimeout != 45*time.Second {
		t.Fatalf("HTTPWriteTimeout mismatch: got %v", cfg.HTTPWriteTimeout)
	}
	if cfg.DBMaxConns != 4 {
		t.Fatalf("DBMaxConns mismatch: got %d", cfg.DBMaxConns)
	}
}
