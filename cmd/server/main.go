package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mon-metrics/incentive-dashboard/internal/cache"
	"github.com/mon-metrics/incentive-dashboard/internal/config"
	"github.com/mon-metrics/incentive-dashboard/internal/dedup"
	"github.com/mon-metrics/incentive-dashboard/internal/handler"
	"github.com/mon-metrics/incentive-dashboard/internal/middleware"
	"github.com/mon-metrics/incentive-dashboard/internal/oracle"
	"github.com/mon-metrics/incentive-dashboard/internal/refresh"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	registry, err := config.LoadProtocols(cfg.ProtocolsFile)
	if err != nil {
		logger.Error("failed to load protocol registry", "file", cfg.ProtocolsFile, "error", err)
		os.Exit(1)
	}
	logger.Info("protocol registry loaded", "protocols", registry.Len())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis dedup (retry up to 30s for ExternalSecret to sync)
	var guard *dedup.Guard
	for i := 0; i < 6; i++ {
		guard, err = dedup.New(cfg.RedisURL, cfg.RedisPassword)
		if err == nil {
			break
		}
		logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		logger.Error("failed to connect to redis after retries", "error", err)
		os.Exit(1)
	}
	defer guard.Close()
	logger.Info("redis connected for refresh dedup")

	ai := oracle.NewAnalysisClient(cfg)
	if !ai.Configured() {
		logger.Warn("AI_API_KEY not set, analysis enrichment disabled")
	}

	store := cache.New(logger)
	orch := refresh.New(cfg, registry, store, guard, refresh.Oracles{
		Price:    oracle.NewPriceClient(cfg),
		TVL:      oracle.NewTVLClient(cfg),
		Volume:   oracle.NewVolumeClient(cfg),
		Rewards:  oracle.NewRewardsClient(cfg),
		Analysis: ai,
	}, logger)

	go orch.Run(ctx)

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(guard))

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", handler.Dashboard(store))
		r.Get("/dashboard/analysis", handler.Analysis(store))
		r.Get("/report.csv", handler.ReportCSV(store))
		r.Post("/report.csv", handler.BuildReportCSV())
		r.Post("/refresh", handler.RefreshNow(orch))
	})

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 15 * time.Second,
		// Manual refresh holds the response open for the whole oracle
		// sweep, which is rate-limited to one call per second.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
