package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKOFFICE_AUTH_SECRET", "test-secret")
	t.Setenv("BACKOFFICE_ALLOWED_ORIGINS", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":8080" {
		t.Fatalf("default addr: %q", cfg.Addr)
	}
	if !cfg.PurchasesOn {
		t.Fatal("purchases must default to enabled")
	}
	if cfg.ShutdownGrace != 10*time.Second {
		t.Fatalf("default grace: %v", cfg.ShutdownGrace)
	}
}

func TestLoadRequiresAuthSecret(t *testing.T) {
	t.Setenv("BACKOFFICE_AUTH_SECRET", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error without auth secret")
	}
}

func TestAllowedOriginsParsing(t *testing.T) {
	t.Setenv("BACKOFFICE_AUTH_SECRET", "s")
	t.Setenv("BACKOFFICE_ALLOWED_ORIGINS", " https://app.fanstage.io , https://studio.fanstage.io ,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://app.fanstage.io" {
		t.Fatalf("origins: %v", cfg.AllowedOrigins)
	}
}

func TestPurchasesToggle(t *testing.T) {
	t.Setenv("BACKOFFICE_AUTH_SECRET", "s")
	t.Setenv("BACKOFFICE_PURCHASES_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PurchasesOn {
		t.Fatal("expected purchases disabled")
	}
}
