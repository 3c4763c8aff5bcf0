// Package main is the demo HTTP surface for the computed-attribute engine:
// health, stats and metrics endpoints wired against a process-local Engine
// instance.
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/attrengine/core/cache"
	"github.com/attrengine/core/contextbuilder"
	"github.com/attrengine/core/dependencytracker"
	"github.com/attrengine/core/engine"
	"github.com/attrengine/core/internal/obs/config"
	"github.com/attrengine/core/internal/obs/logging"
	"github.com/attrengine/core/invalidator"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("attrengine-server", cfg.Logging.Level, cfg.Logging.Format)

	eng, err := engine.New(engine.Config{
		MaxConcurrentComputations: cfg.Engine.MaxConcurrentComputations,
		DefaultTimeout:            cfg.Engine.DefaultTimeout,
		Logger:                    logger,
		Cache: cache.Config{
			DefaultTTL:      cfg.Cache.DefaultTTL,
			MaxEntries:      cfg.Cache.MaxEntries,
			MaxBytes:        cfg.Cache.MaxBytes,
			CleanupInterval: cfg.Cache.CleanupInterval,
			Policy:          cache.EvictionPolicy(cfg.Cache.EvictionPolicy),
			Logger:          logger,
		},
		Dependency: dependencytracker.Config{
			MaxDepth:             cfg.Dependency.MaxDepth,
			MaxEdgesPerAttribute: cfg.Dependency.MaxEdgesPerAttribute,
			Logger:               logger,
		},
		Invalidator: invalidator.Config{
			QueueCapacity:             cfg.Invalidator.QueueCapacity,
			BatchSize:                 cfg.Invalidator.BatchSize,
			FlushInterval:             cfg.Invalidator.FlushInterval,
			RateLimitPerSec:           cfg.Invalidator.RateLimitPerSec,
			RateLimitBurst:            cfg.Invalidator.RateLimitBurst,
			CascadeMaxDepth:           cfg.Invalidator.CascadeMaxDepth,
			DependencyTrackingEnabled: true,
			Logger:                    logger,
		},
		ContextBuilder: contextbuilder.Config{
			AllowDatabase:    true,
			AllowUserContext: true,
		},
	})
	if err != nil {
		log.Fatalf("create engine: %v", err)
	}

	registry := prometheus.NewRegistry()
	if err := eng.RegisterMetrics(registry); err != nil {
		log.Fatalf("register metrics: %v", err)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Get("/healthz", healthHandler(eng))
	router.Get("/statsz", statsHandler(eng))
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		logger.WithFields(nil).WithField("addr", server.Addr).Info("attrengine-server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("http shutdown error")
	}
	if err := eng.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("engine shutdown error")
	}
}

func healthHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := eng.Health()
		status := http.StatusOK
		if !h.Healthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(h)
	}
}

func statsHandler(eng *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(eng.Stats())
	}
}
