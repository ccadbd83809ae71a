package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"custodia/internal/audit"
	"custodia/internal/consent/batch"
	"custodia/internal/consent/cache"
	"custodia/internal/consent/decider"
	"custodia/internal/consent/engine"
	"custodia/internal/platform/config"
	"custodia/internal/platform/database"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	"custodia/internal/revocation"
	"custodia/internal/sanitize"
	httptransport "custodia/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.New().Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New()

	log.Info("initializing custodia",
		"addr", cfg.Addr,
		"db_path", cfg.DBPath,
		"smart_defaults", cfg.Consent.EnableSmartDefaults,
	)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		log.Error("database open failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	m := metrics.New()

	auditStore := audit.NewSQLiteStore(db)
	auditor := audit.NewPublisher(auditStore,
		audit.WithAsyncBuffer(256),
		audit.WithPublisherLogger(log),
	)
	defer auditor.Close()

	ledger := revocation.NewLedger(revocation.NewSQLiteStore(db), auditor, log,
		revocation.WithMetrics(m),
		revocation.WithRecoveryDays(cfg.Consent.RecoveryDays),
	)

	sanitizer := sanitize.New(sanitize.DefaultRules()...)
	if cfg.RulesPath != "" {
		rules, err := sanitize.LoadRules(cfg.RulesPath)
		if err != nil {
			log.Error("sanitization rules failed to load", "path", cfg.RulesPath, "error", err)
			os.Exit(1)
		}
		sanitizer.Reload(rules)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if cfg.RulesPath != "" {
		watcher, err := sanitize.NewWatcher(sanitizer, cfg.RulesPath, log)
		if err != nil {
			log.Error("rule watcher failed to start", "error", err)
			os.Exit(1)
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error("rule watcher stopped", "error", err)
			}
		}()
	}

	var d engine.Decider
	if cfg.CallbackURL != "" {
		d = decider.NewWebhook(cfg.CallbackURL)
	}

	eng := engine.New(d,
		cache.New(cache.WithTTL(cfg.Consent.CacheTTL())),
		batch.New(batch.WithSimilarityThreshold(cfg.Consent.BatchSimilarityThreshold)),
		sanitizer,
		auditor,
		log,
		engine.WithMaxPrompts(cfg.Consent.MaxPromptsPerSession),
		engine.WithCallbackTimeout(cfg.Consent.CallbackTimeout),
		engine.WithSmartDefaults(cfg.Consent.EnableSmartDefaults),
		engine.WithMetrics(m),
		engine.WithLedger(ledger),
	)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Consent:    eng,
		Revocation: ledger,
		Batch:      eng,
		Audit:      httptransport.NewAuditHandler(auditStore, log),
		Metrics:    m,
		SigningKey: []byte(cfg.JWTSigningKey),
		Logger:     log,
	})

	srv := httpserver.New(cfg.Addr, router)

	log.Info("starting http server", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	// Periodic sweep: expired cache entries and lapsed recovery windows.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				evicted := eng.EvictExpired()
				purged, err := ledger.PurgeSoftDeleted(ctx)
				if err != nil {
					log.Error("scheduled purge failed", "error", err)
					continue
				}
				log.Info("maintenance sweep", "cache_evicted", evicted, "purged", purged)
			}
		}
	}()

	<-ctx.Done()

	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
