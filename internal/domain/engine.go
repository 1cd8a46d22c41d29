package domain

import (
	"context"
	"time"

	"github.com/couchcryptid/inundation-service/internal/raster"
)

// Engine runs the three inundation stages by region key.
type Engine struct {
	Profiles ProfileSource
	Depth    *DepthEstimator

	// Observe, when set, receives the wall time of each stage.
	Observe func(stage string, d time.Duration)
}

// Stage names passed to Observe.
const (
	StageSynthesize = "synthesize"
	StageClassify   = "classify"
	StageDepth      = "depth"
)

// Profile resolves a region key.
func (e *Engine) Profile(ctx context.Context, region string) (*RegionProfile, error) {
	if e.Profiles == nil {
		return nil, newError(ErrInvalidRegion, region, "")
	}
	return e.Profiles.Profile(ctx, region)
}

func (e *Engine) Synthesize(ctx context.Context, region string, levels map[string]float64) (*raster.Raster, error) {
	p, err := e.Profile(ctx, region)
	if err != nil {
		return nil, err
	}
	defer e.observe(StageSynthesize, time.Now())
	return Synthesize(p, levels)
}

func (e *Engine) Classify(ctx context.Context, region string, synthetic *raster.Raster, levels map[string]float64) (*Classification, error) {
	p, err := e.Profile(ctx, region)
	if err != nil {
		return nil, err
	}
	defer e.observe(StageClassify, time.Now())
	return Classify(p, synthetic, levels)
}

func (e *Engine) ClassifyWithThreshold(ctx context.Context, region string, synthetic *raster.Raster, t float64) (*Classification, error) {
	p, err := e.Profile(ctx, region)
	if err != nil {
		return nil, err
	}
	defer e.observe(StageClassify, time.Now())
	return ClassifyWithThreshold(p, synthetic, t)
}

// EstimateDepth runs the depth estimator; it fails with ErrDEMUnavailable when
// the engine has none.
func (e *Engine) EstimateDepth(ctx context.Context, mask *raster.Mask) (*raster.Raster, error) {
	if e.Depth == nil {
		return nil, newError(ErrDEMUnavailable, "", "depth estimation disabled")
	}
	defer e.observe(StageDepth, time.Now())
	return e.Depth.Estimate(ctx, mask)
}

func (e *Engine) observe(stage string, start time.Time) {
	if e.Observe != nil {
		e.Observe(stage, time.Since(start))
	}
}
