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

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DEFAULT_SHOP", "")
	t.Setenv("STATS_TTL_SECONDS", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Shop != "main-branch" {
		t.Fatalf("expected default shop main-branch, got %q", cfg.Shop)
	}
	if cfg.StatsTTLSeconds != 30 {
		t.Fatalf("expected default stats TTL 30, got %d", cfg.StatsTTLSeconds)
	}
}

func TestLoadRejectsInvalidTTL(t *testing.T) {
	t.Setenv("STATS_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.StatsTTLSeconds != 30 {
		t.Fatalf("expected fallback TTL 30 for invalid value, got %d", cfg.StatsTTLSeconds)
	}
}
