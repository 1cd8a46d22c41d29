package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"

	"github.com/couchcryptid/inundation-service/internal/adapter/elevation"
	"github.com/couchcryptid/inundation-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/inundation-service/internal/adapter/kafka"
	"github.com/couchcryptid/inundation-service/internal/adapter/rasterstore"
	"github.com/couchcryptid/inundation-service/internal/config"
	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/observability"
	"github.com/couchcryptid/inundation-service/internal/pipeline"
	"github.com/couchcryptid/inundation-service/internal/profile"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	profiles := profile.NewCache(profile.NewLoader(cfg.RegionRoot, logger), metrics)
	engine := &domain.Engine{
		Profiles: profiles,
		Observe: func(stage string, d time.Duration) {
			metrics.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
		},
	}

	// Depth estimation is feature-flagged via DEM_SOURCE.
	if dem := newDEMProvider(cfg, metrics, logger); dem != nil {
		est := domain.NewDepthEstimator(elevation.NewCachedProvider(dem, cfg.DEMCacheSize, metrics))
		est.Buffer = cfg.DepthBuffer
		est.MaxDistance = cfg.DepthMaxDistance
		est.MinElevation = cfg.DepthMinElevation
		if cfg.PermanentWaterPath != "" {
			water, err := elevation.OpenPermanentWater(cfg.PermanentWaterPath)
			if err != nil {
				logger.Warn("permanent water unavailable", "path", cfg.PermanentWaterPath, "error", err)
			} else {
				est.PermanentWater = water
			}
		}
		engine.Depth = est
		logger.Info("depth estimation enabled", "dem_source", cfg.DEMSource, "cache_size", cfg.DEMCacheSize)
	} else {
		logger.Info("depth estimation disabled")
	}

	store := rasterstore.NewStore(cfg.OutputDir, logger)
	transformer := pipeline.NewTransformer(engine, store, pipeline.TransformerOptions{
		RunTimeout:        cfg.RunTimeout,
		ThresholdFallback: cfg.ThresholdFallback,
	}, logger, metrics)

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	api := httpadapter.NewAPI(transformer, profiles, cfg.RunTimeout, logger)
	srv := httpadapter.NewServer(cfg.HTTPAddr, p, api, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start request pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newDEMProvider returns the configured elevation source, or nil when depth
// estimation is off or the DEM file cannot be read.
func newDEMProvider(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) domain.DEMProvider {
	switch cfg.DEMSource {
	case config.DEMSourceHTTP:
		return elevation.NewClient(cfg.DEMURL, cfg.DEMTimeout, metrics, logger)
	case config.DEMSourceFile:
		dem, err := elevation.OpenFile(cfg.DEMPath)
		if err != nil {
			logger.Warn("dem file unavailable", "path", cfg.DEMPath, "error", err)
			return nil
		}
		return dem
	default:
		return nil
	}
}
