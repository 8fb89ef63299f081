// Package config loads service configuration from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full service configuration. Every field maps to one
// BACKOFFICE_* variable.
type Config struct {
	Addr            string        // BACKOFFICE_ADDR, default ":8080"
	PostgresDSN     string        // BACKOFFICE_PG_DSN, empty runs the in-memory stores
	AuthSecret      string        // BACKOFFICE_AUTH_SECRET
	ServiceToken    string        // BACKOFFICE_SERVICE_TOKEN, guards reconcile
	AppBaseURL      string        // BACKOFFICE_APP_BASE_URL
	AllowedOrigins  []string      // BACKOFFICE_ALLOWED_ORIGINS, comma separated
	ProviderBaseURL string        // BACKOFFICE_TOSS_BASE_URL, empty uses the production gateway
	ProviderSecret  string        // BACKOFFICE_TOSS_SECRET_KEY
	WebhookSecret   string        // BACKOFFICE_WEBHOOK_SECRET
	PurchasesOn     bool          // BACKOFFICE_PURCHASES_ENABLED, default true
	ShutdownGrace   time.Duration // BACKOFFICE_SHUTDOWN_GRACE, default 10s
}

// Load reads the environment. A .env file in the working directory is
// merged in first without overriding variables already set.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            getenv("BACKOFFICE_ADDR", ":8080"),
		PostgresDSN:     os.Getenv("BACKOFFICE_PG_DSN"),
		AuthSecret:      os.Getenv("BACKOFFICE_AUTH_SECRET"),
		ServiceToken:    os.Getenv("BACKOFFICE_SERVICE_TOKEN"),
		AppBaseURL:      getenv("BACKOFFICE_APP_BASE_URL", "http://localhost:3000"),
		ProviderBaseURL: os.Getenv("BACKOFFICE_TOSS_BASE_URL"),
		ProviderSecret:  os.Getenv("BACKOFFICE_TOSS_SECRET_KEY"),
		WebhookSecret:   os.Getenv("BACKOFFICE_WEBHOOK_SECRET"),
		PurchasesOn:     getbool("BACKOFFICE_PURCHASES_ENABLED", true),
		ShutdownGrace:   10 * time.Second,
	}

	for _, o := range strings.Split(os.Getenv("BACKOFFICE_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, o)
		}
	}

	if raw := os.Getenv("BACKOFFICE_SHUTDOWN_GRACE"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("config: BACKOFFICE_SHUTDOWN_GRACE: %w", err)
		}
		cfg.ShutdownGrace = d
	}

	if cfg.AuthSecret == "" {
		return Config{}, fmt.Errorf("config: BACKOFFICE_AUTH_SECRET is required")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getbool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}
