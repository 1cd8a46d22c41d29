package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/inundation-service/internal/predictor"
	"github.com/couchcryptid/inundation-service/internal/raster"
)

func TestClassify_WetIsStrictlyBelowThreshold(t *testing.T) {
	p := twoModeProfile(t)
	p.Threshold = &predictor.Constant{Value: -1}
	// dry mean -10, dry std 2: anomalies -1, -1.5, 0, +0.5
	synthetic := rasterOf(t, p.Grid, [][]float64{{-12, -13}, {-10, -9}})

	c, err := Classify(p, synthetic, nil)
	require.NoError(t, err)

	assert.Equal(t, -1.0, c.Anomaly.At(0, 0))
	assert.Equal(t, raster.Dry, c.Mask.At(0, 0), "equality is dry")
	assert.Equal(t, raster.Wet, c.Mask.At(0, 1))
	assert.Equal(t, raster.Dry, c.Mask.At(1, 0))
	assert.Equal(t, raster.Dry, c.Mask.At(1, 1))
	assert.Equal(t, -1.0, c.Threshold)
	assert.Equal(t, ThresholdFromModel, c.ThresholdSource)
}

func TestClassify_OutsideAreaOfInterestIsNotApplicable(t *testing.T) {
	p := twoModeProfile(t)
	p.Reference.DryMean.Set(0, 1, math.NaN())
	p.Reference.DryStd.Set(1, 0, 0)
	synthetic := raster.Filled(p.Grid, -100)

	c, err := ClassifyWithThreshold(p, synthetic, 0)
	require.NoError(t, err)

	assert.Equal(t, raster.NotApplicable, c.Mask.At(0, 1))
	assert.True(t, math.IsNaN(c.Anomaly.At(0, 1)))
	// undefined anomaly inside the area of interest
	assert.True(t, math.IsNaN(c.Anomaly.At(1, 0)))
	assert.Equal(t, raster.Dry, c.Mask.At(1, 0))
	assert.Equal(t, raster.Wet, c.Mask.At(0, 0))
	assert.Equal(t, 1, c.Mask.Count(raster.NotApplicable))
}

func TestThreshold_UsesTrainingOrder(t *testing.T) {
	p := twoModeProfile(t)
	p.Threshold = &predictor.Linear{Coefficients: []float64{1, 0}}
	p.ThresholdInputs = []string{"lower", "upper"}

	got, err := Threshold(p, map[string]float64{"upper": 5, "lower": 2})
	require.NoError(t, err)
	assert.Equal(t, 2.0, got)

	_, err = Threshold(p, map[string]float64{"upper": 5})
	assert.ErrorIs(t, err, ErrMissingSiteLevel)
}

func TestClassify_ThresholdModelUnavailable(t *testing.T) {
	p := twoModeProfile(t)
	p.Threshold = nil

	_, err := Classify(p, raster.Filled(p.Grid, -10), map[string]float64{"upper": 1, "lower": 1})
	require.ErrorIs(t, err, ErrThresholdModelUnavailable)

	// degraded mode is explicit
	c, err := ClassifyWithThreshold(p, raster.Filled(p.Grid, -17), FallbackZScoreThreshold)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Mask.Count(raster.Wet))
}

func TestClassify_MissingReferenceStats(t *testing.T) {
	p := twoModeProfile(t)
	p.Reference.DryStd = nil

	_, err := ClassifyWithThreshold(p, raster.Filled(p.Grid, 0), 0)
	assert.ErrorIs(t, err, ErrMissingReferenceStats)
}

func TestClassify_GridMismatch(t *testing.T) {
	p := twoModeProfile(t)

	_, err := ClassifyWithThreshold(p, raster.Filled(testGrid(3, 3), 0), 0)
	assert.ErrorIs(t, err, raster.ErrGridMismatch)
}
