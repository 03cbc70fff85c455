package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")
	t.Setenv("MANAGER_PIN", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
	if cfg.ManagerPIN != "" {
		t.Fatalf("expected empty MANAGER_PIN when unset, got %q", cfg.ManagerPIN)
	}
}

func TestLoadReturnPolicyDefaults(t *testing.T) {
	t.Setenv("RETURN_WINDOW_DAYS", "")
	t.Setenv("ALLOW_NEGATIVE_STOCK", "")

	cfg := Load()
	if cfg.ReturnWindowDays != 7 {
		t.Fatalf("expected default return window 7, got %d", cfg.ReturnWindowDays)
	}
	if cfg.AllowNegativeStock {
		t.Fatalf("negative stock must be off by default")
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("RETURN_WINDOW_DAYS", "0")
	t.Setenv("ALLOW_NEGATIVE_STOCK", "true")
	t.Setenv("CATALOG_CACHE_TTL_SECONDS", "-5")
	t.Setenv("PORT", "9090")

	cfg := Load()
	if cfg.ReturnWindowDays != 0 {
		t.Fatalf("expected return window 0, got %d", cfg.ReturnWindowDays)
	}
	if !cfg.AllowNegativeStock {
		t.Fatalf("expected negative stock enabled")
	}
	if cfg.CatalogCacheTTLSeconds != 30 {
		t.Fatalf("invalid ttl must fall back to 30, got %d", cfg.CatalogCacheTTLSeconds)
	}
	if cfg.Address() != ":9090" {
		t.Fatalf("unexpected address %s", cfg.Address())
	}
}
