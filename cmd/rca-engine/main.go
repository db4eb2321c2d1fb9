package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lakewatch/lakewatch-rca/internal/api"
	"github.com/lakewatch/lakewatch-rca/internal/cache"
	"github.com/lakewatch/lakewatch-rca/internal/config"
	"github.com/lakewatch/lakewatch-rca/internal/engine"
	"github.com/lakewatch/lakewatch-rca/internal/enrich"
	"github.com/lakewatch/lakewatch-rca/internal/extractors"
	"github.com/lakewatch/lakewatch-rca/internal/metrics"
	"github.com/lakewatch/lakewatch-rca/internal/progress"
	"github.com/lakewatch/lakewatch-rca/internal/repo"
	"github.com/lakewatch/lakewatch-rca/internal/scraper"
	"github.com/lakewatch/lakewatch-rca/internal/services"
	"github.com/lakewatch/lakewatch-rca/internal/utils"
	"github.com/lakewatch/lakewatch-rca/internal/warehouse"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting lakewatch-rca", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	warehouseClient := warehouse.NewClient(cfg.Warehouse, logger)

	warehouseRepo, err := repo.NewWarehouseRepo(
		warehouseClient,
		cfg.Warehouse.CatalogSchema,
		cacheProvider,
		cfg.Cache.IncidentsTTL,
		cfg.Cache.ClustersTTL,
		logger,
	)
	if err != nil {
		logger.Error("failed to build warehouse repository", slog.Any("error", err))
		os.Exit(1)
	}

	pipeline := engine.NewPipeline(warehouseRepo, extractors.NewSparkLogExtractor(), logger)
	progressStore := progress.NewStore(cfg.AI.ProgressGrace)

	var enricher services.Enricher
	if cfg.AI.Enabled {
		enricher = enrich.NewAnalyzer(enrich.NewChatClient(cfg.AI), progressStore, logger)
	}

	scrapeRunner := scraper.NewRunner(
		scraper.NewFetcher(cfg.Scraper),
		warehouseClient,
		warehouseRepo,
		cfg.Warehouse.VolumePath,
		logger,
	)

	rcaService := services.NewRCAService(logger, pipeline, enricher, progressStore, warehouseRepo, scrapeRunner)

	handler := api.NewHandler(rcaService, logger)
	server := api.NewServer(cfg.Server, handler.Routes(), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("lakewatch-rca stopped")
}
