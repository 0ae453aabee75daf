package config

import "testing"

func baseEnv() map[string]string {
	return map[string]string{
		"DATABASE_URL":           "postgres://localhost:5432/bazar",
		"REDIS_URL":              "redis://localhost:6379/0",
		"JWT_SECRET":             "test-secret",
		"PAYMENT_WEBHOOK_SECRET": "wh-secret",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadForTests(baseEnv())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.Currency != "IDR" {
		t.Fatalf("currency = %q", cfg.Currency)
	}
	if cfg.HTTPAddr() != ":8080" {
		t.Fatalf("addr = %q", cfg.HTTPAddr())
	}
	if cfg.PreviewRateLimit != 30 {
		t.Fatalf("preview rate limit = %d", cfg.PreviewRateLimit)
	}
}

func TestLoadRequiresSecrets(t *testing.T) {
	for _, missing := range []string{"DATABASE_URL", "REDIS_URL", "JWT_SECRET", "PAYMENT_WEBHOOK_SECRET"} {
		env := baseEnv()
		env[missing] = ""
		if _, err := LoadForTests(env); err == nil {
			t.Fatalf("expected error when %s is missing", missing)
		}
	}
}

func TestLoadParsesDurations(t *testing.T) {
	env := baseEnv()
	env["CATALOG_CACHE_TTL"] = "90s"
	env["ORDER_PAYMENT_WINDOW"] = "2h"
	cfg, err := LoadForTests(env)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.CatalogCacheTTL.Seconds() != 90 {
		t.Fatalf("catalog ttl = %s", cfg.CatalogCacheTTL)
	}
	if cfg.OrderPaymentWindow.Hours() != 2 {
		t.Fatalf("payment window = %s", cfg.OrderPaymentWindow)
	}
}
