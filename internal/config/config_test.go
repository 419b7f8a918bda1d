package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/pos")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CurrencyCode != "MYR" {
		t.Fatalf("CurrencyCode = %q", cfg.CurrencyCode)
	}
	if cfg.PricingTaxRateBPS != 600 {
		t.Fatalf("PricingTaxRateBPS = %d", cfg.PricingTaxRateBPS)
	}
	if cfg.CartTTL != 168*time.Hour {
		t.Fatalf("CartTTL = %v", cfg.CartTTL)
	}
	if cfg.HTTPAddr() != ":8080" {
		t.Fatalf("HTTPAddr = %q", cfg.HTTPAddr())
	}
}

func TestLoadRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without DATABASE_URL")
	}
}

func TestLoadRejectsBadTaxRate(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/pos")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("PRICING_TAX_RATE_BPS", "20000")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for out-of-range tax rate")
	}
}
