package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/fanstage/backoffice/internal/ads"
	"github.com/fanstage/backoffice/internal/agency"
	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/config"
	"github.com/fanstage/backoffice/internal/content"
	"github.com/fanstage/backoffice/internal/httpapi"
	"github.com/fanstage/backoffice/internal/obs"
	"github.com/fanstage/backoffice/internal/payment"
	"github.com/fanstage/backoffice/internal/payment/toss"
	"github.com/fanstage/backoffice/internal/ratelimit"
	"github.com/fanstage/backoffice/internal/rbac"
	"github.com/fanstage/backoffice/internal/store/pg"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	opts := httpapi.Options{
		Version:          version,
		ServiceToken:     cfg.ServiceToken,
		AllowedOrigins:   cfg.AllowedOrigins,
		DevTokenEndpoint: os.Getenv("BACKOFFICE_DEV_TOKEN_ENDPOINT") == "true",
	}

	var store *pg.Store
	if cfg.PostgresDSN != "" {
		store, err = pg.Open(cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		opts.Ready = httpapi.ReadyProbe{DB: store.DB()}
		opts.Content = store.Content()
		opts.Ads = store.Ads()
		opts.Agency = store.Agency()
		opts.Audit = store.Audit()
		opts.OpsRoster = store.OpsRoster()
		opts.AgencyRoster = store.AgencyRoster()
		opts.Limiter = store.RateLimiter()
	} else {
		// No DSN runs everything in memory. Local development only.
		rec := audit.NewInMemory()
		contentSvc := content.NewInMemory(rec)
		opts.Content = contentSvc
		opts.Ads = ads.NewInMemory(contentSvc, rec)
		opts.Agency = agency.NewInMemory(rec)
		opts.Audit = rec
		opts.OpsRoster = rbac.NewInMemoryRoster()
		opts.AgencyRoster = rbac.NewInMemoryRoster()
		opts.Limiter = ratelimit.NewInMemory()
		log.Println("BACKOFFICE_PG_DSN is empty, running with in-memory stores")
	}

	var provider payment.Provider
	if cfg.ProviderSecret != "" {
		var tossOpts []toss.Option
		if cfg.ProviderBaseURL != "" {
			tossOpts = append(tossOpts, toss.WithBaseURL(cfg.ProviderBaseURL))
		}
		provider = toss.NewClient(cfg.ProviderSecret, tossOpts...)
	}

	var payStore payment.Store
	if store != nil {
		payStore = store.Payments()
	} else {
		payStore = payment.NewInMemoryStore()
	}
	opts.Payments = payment.NewEngine(payStore, provider, payment.Config{
		AppBaseURL:       cfg.AppBaseURL,
		AllowedOrigins:   cfg.AllowedOrigins,
		WebhookSecret:    cfg.WebhookSecret,
		PurchasesEnabled: cfg.PurchasesOn,
	})

	api, err := httpapi.New(opts)
	if err != nil {
		log.Fatalf("httpapi: %v", err)
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.IPRateLimit(api.Handler(), rate.Limit(50), 100),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting backoffice-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
