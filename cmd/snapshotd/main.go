// Package main is the entry point for the territory snapshot service. It keeps
// a periodically refreshed snapshot of active territories, publishes it to
// Redis for the claim engines and serves it over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/turf/internal/config"
	"github.com/onnwee/turf/internal/db"
	"github.com/onnwee/turf/internal/health"
	"github.com/onnwee/turf/internal/jobs"
	"github.com/onnwee/turf/internal/middleware"
	"github.com/onnwee/turf/internal/territory"
	"github.com/onnwee/turf/internal/tracing"
)

const serviceName = "turf-snapshotd"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if *help {
		fmt.Println("Turf Territory Snapshot Service")
		fmt.Println()
		fmt.Println("Usage: snapshotd [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("snapshot service failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	provider, err := tracing.NewProvider(tracing.Config{
		ServiceName:  serviceName,
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.OTelExporterType,
		OTLPEndpoint: cfg.OTelEndpoint,
		SamplingRate: cfg.TracingSampleRate,
		InsecureMode: cfg.Env != "production",
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Warn("tracer shutdown failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, postgisVersion, err := db.Open(openCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		return err
	}
	defer pool.Close()
	logger.Info("database connected", "postgis_version", postgisVersion)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	territoryMetrics := territory.NewMetrics()
	jobMetrics := jobs.NewMetrics()
	httpMetrics := middleware.NewMetrics()
	for _, register := range []func(prometheus.Registerer) error{
		territoryMetrics.Register, jobMetrics.Register, httpMetrics.Register,
	} {
		if err := register(registry); err != nil {
			return fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	repo := territory.NewPostgresRepository(pool)
	var source territory.Source = repo
	region, err := cfg.Region()
	if err != nil {
		return err
	}
	if region != nil {
		source = territory.RegionSource{Repo: repo, Region: *region}
		logger.Info("snapshot limited to region", "region", cfg.SnapshotRegion)
	}

	healthConfig := health.HandlersConfig{DBChecker: health.NewDBChecker(pool), Logger: logger}

	var publish func(context.Context, *territory.Snapshot) error
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid redis url: %w", err)
		}
		client := redis.NewClient(opts)
		defer client.Close()

		cache := territory.NewRedisSnapshotCache(client, "", cfg.SnapshotCacheTTL)
		publish = publisher(cache, jobMetrics)
		healthConfig.RedisChecker = health.NewRedisChecker(client)
	}

	store := territory.NewSnapshotStore()
	refresher := territory.NewRefresher(territory.RefresherConfig{
		Interval:   cfg.SnapshotRefreshInterval,
		Logger:     logger,
		Metrics:    territoryMetrics,
		JobMetrics: jobMetrics,
		OnRefresh:  publish,
	}, source, store)

	// Three missed refreshes mark the service unready.
	healthConfig.SnapshotChecker = health.NewSnapshotChecker(store, 3*cfg.SnapshotRefreshInterval)

	router := newRouter(serverDeps{
		Store:    store,
		Repo:     repo,
		Health:   health.NewHandlers(healthConfig),
		Gatherer: registry,
		Logger:   logger,
	})

	// Apply middleware: RequestID -> Tracing -> Logging -> HTTPMetrics
	handler := middleware.RequestID(
		middleware.Tracing(serviceName)(
			middleware.Logging(logger)(
				middleware.HTTPMetrics(httpMetrics)(router))))

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := refresher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start refresher: %w", err)
	}
	defer refresher.Stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// publisher returns the refresh hook that writes each new snapshot to the
// shared cache and reports it as a snapshot_publish job.
func publisher(cache territory.SnapshotCache, reporter jobs.Reporter) func(context.Context, *territory.Snapshot) error {
	return func(ctx context.Context, snap *territory.Snapshot) error {
		start := time.Now()
		if err := cache.Put(ctx, snap); err != nil {
			jobs.Finish(reporter, jobs.JobTypeSnapshotPublish, start, "cache_error")
			return fmt.Errorf("failed to publish snapshot: %w", err)
		}
		jobs.Finish(reporter, jobs.JobTypeSnapshotPublish, start, "")
		return nil
	}
}
