package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/observability"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

// RasterStore persists the rasters of a run and returns their locations.
type RasterStore interface {
	SaveRun(req domain.FloodRequest, run domain.RunRasters) (map[string]string, error)
}

// TransformerOptions tunes a FloodTransformer.
type TransformerOptions struct {
	// RunTimeout bounds one request; zero means no limit.
	RunTimeout time.Duration
	// ThresholdFallback allows classification with FallbackZScoreThreshold
	// when a region has no threshold model.
	ThresholdFallback bool
}

// FloodTransformer runs the synthesis, classification and depth stages for
// one request. It implements Transformer.
type FloodTransformer struct {
	engine  *domain.Engine
	store   RasterStore
	opts    TransformerOptions
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewTransformer creates a FloodTransformer. A nil store skips raster output.
func NewTransformer(engine *domain.Engine, store RasterStore, opts TransformerOptions, logger *slog.Logger, metrics *observability.Metrics) *FloodTransformer {
	return &FloodTransformer{
		engine:  engine,
		store:   store,
		opts:    opts,
		logger:  logger,
		metrics: metrics,
	}
}

func (t *FloodTransformer) Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error) {
	req, err := domain.ParseRequest(raw)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	res, err := t.Run(ctx, req)
	if err != nil {
		return domain.OutputEvent{}, err
	}
	return domain.SerializeResult(res)
}

// Run executes one request end to end and returns its summary.
func (t *FloodTransformer) Run(ctx context.Context, req domain.FloodRequest) (domain.FloodResult, error) {
	if err := req.Validate(); err != nil {
		return domain.FloodResult{}, err
	}
	if t.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.opts.RunTimeout)
		defer cancel()
	}

	profile, err := t.engine.Profile(ctx, req.Region)
	if err != nil {
		return domain.FloodResult{}, err
	}
	outOfRange := domain.CheckLevels(profile, req.WaterLevels)
	if len(outOfRange) > 0 {
		t.logger.Warn("water levels outside site range", "region", req.Region, "sites", outOfRange)
	}

	synthetic, err := t.engine.Synthesize(ctx, req.Region, req.WaterLevels)
	if err != nil {
		return domain.FloodResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return domain.FloodResult{}, err
	}

	c, err := t.classify(ctx, req, synthetic)
	if err != nil {
		return domain.FloodResult{}, err
	}

	run := domain.RunRasters{Synthetic: synthetic, Anomaly: c.Anomaly, Mask: c.Mask}
	var stats *domain.DepthStats
	if req.Depth {
		run.Depth, err = t.depth(ctx, req, c.Mask)
		if err != nil {
			return domain.FloodResult{}, err
		}
		if run.Depth != nil {
			s := domain.SummarizeDepth(run.Depth)
			stats = &s
		}
	}

	res := domain.NewResult(req, c)
	res.Depth = stats
	res.OutOfRange = outOfRange
	if t.store != nil {
		res.Artifacts, err = t.store.SaveRun(req, run)
		if err != nil {
			return domain.FloodResult{}, fmt.Errorf("save rasters: %w", err)
		}
	}

	t.metrics.WetFraction.Observe(res.WetFraction)
	t.logger.Info("run complete",
		"request_id", req.RequestID,
		"region", req.Region,
		"threshold", res.Threshold,
		"threshold_source", res.ThresholdSource,
		"wet_pixels", res.WetPixels,
		"wet_fraction", res.WetFraction,
	)
	return res, nil
}

// classify picks the threshold: the caller's, the region's model, or the
// named fallback when the model is missing and fallback is enabled.
func (t *FloodTransformer) classify(ctx context.Context, req domain.FloodRequest, synthetic *raster.Raster) (*domain.Classification, error) {
	if req.Threshold != nil {
		return t.engine.ClassifyWithThreshold(ctx, req.Region, synthetic, *req.Threshold)
	}
	c, err := t.engine.Classify(ctx, req.Region, synthetic, req.WaterLevels)
	if !errors.Is(err, domain.ErrThresholdModelUnavailable) || !t.opts.ThresholdFallback {
		return c, err
	}

	t.logger.Warn("threshold model unavailable, classifying with fallback threshold",
		"region", req.Region, "threshold", domain.FallbackZScoreThreshold)
	t.metrics.FallbackThresholds.WithLabelValues(req.Region).Inc()
	c, err = t.engine.ClassifyWithThreshold(ctx, req.Region, synthetic, domain.FallbackZScoreThreshold)
	if err != nil {
		return nil, err
	}
	c.ThresholdSource = domain.ThresholdFromFallback
	return c, nil
}

// depth estimates water depth; a run with no wet pixels has no depth raster.
func (t *FloodTransformer) depth(ctx context.Context, req domain.FloodRequest, mask *raster.Mask) (*raster.Raster, error) {
	if mask.Count(raster.Wet) == 0 {
		t.logger.Info("no wet pixels, skipping depth", "request_id", req.RequestID, "region", req.Region)
		return nil, nil
	}
	return t.engine.EstimateDepth(ctx, mask)
}
