package pipeline_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/inundation-service/internal/adapter/elevation"
	"github.com/couchcryptid/inundation-service/internal/adapter/rasterstore"
	"github.com/couchcryptid/inundation-service/internal/domain"
	"github.com/couchcryptid/inundation-service/internal/observability"
	"github.com/couchcryptid/inundation-service/internal/pipeline"
	"github.com/couchcryptid/inundation-service/internal/profile"
)

type fixture struct {
	root      string
	out       string
	metrics   *observability.Metrics
	engine    *domain.Engine
	stages    []string
	transform *pipeline.FloodTransformer
}

// newFixture writes the demo region and wires a transformer around it.
func newFixture(t *testing.T, opts pipeline.TransformerOptions, mutate func(dir string)) *fixture {
	t.Helper()
	root := t.TempDir()
	_, err := profile.WriteDemo(root, profile.DefaultDemoOptions())
	require.NoError(t, err)
	if mutate != nil {
		mutate(filepath.Join(root, "demo"))
	}

	dem, err := elevation.OpenFile(filepath.Join(root, "demo", profile.DemoDEMFile))
	require.NoError(t, err)

	f := &fixture{root: root, out: t.TempDir(), metrics: observability.NewMetricsForTesting()}
	f.engine = &domain.Engine{
		Profiles: profile.NewCache(profile.NewLoader(root, discardLogger()), f.metrics),
		Depth:    domain.NewDepthEstimator(dem),
		Observe: func(stage string, _ time.Duration) {
			f.stages = append(f.stages, stage)
		},
	}
	store := rasterstore.NewStore(f.out, discardLogger())
	f.transform = pipeline.NewTransformer(f.engine, store, opts, discardLogger(), f.metrics)
	return f
}

func TestFloodTransformer_Transform(t *testing.T) {
	fixed := time.Date(2024, 9, 1, 6, 0, 0, 0, time.UTC)
	domain.SetClock(clockwork.NewFakeClockAt(fixed))
	t.Cleanup(func() { domain.SetClock(nil) })

	f := newFixture(t, pipeline.TransformerOptions{RunTimeout: time.Minute}, nil)
	raw := domain.RawEvent{
		Key:   []byte("req-7"),
		Value: []byte(`{"region":"demo","date":"2024-09-01","water_levels":{"site-1":8,"site-2":0},"depth":true}`),
	}

	out, err := f.transform.Transform(context.Background(), raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("req-7"), out.Key)
	assert.Equal(t, "demo", out.Headers["region"])
	assert.Equal(t, domain.ThresholdFromModel, out.Headers["threshold_source"])
	assert.Equal(t, fixed.Format(time.RFC3339), out.Headers["processed_at"])

	var res domain.FloodResult
	require.NoError(t, json.Unmarshal(out.Value, &res))
	assert.Equal(t, "req-7", res.RequestID)
	assert.InDelta(t, -2.42, res.Threshold, 1e-9)
	assert.Positive(t, res.WetPixels)
	assert.Positive(t, res.DryPixels)
	assert.Equal(t, 2, res.NotApplicable)
	assert.Empty(t, res.OutOfRange)

	require.NotNil(t, res.Depth)
	assert.Positive(t, res.Depth.Cells)
	assert.Positive(t, res.Depth.Max)

	wantArtifacts := []string{
		rasterstore.ArtifactAnomaly, rasterstore.ArtifactDepth, rasterstore.ArtifactDepthClass,
		rasterstore.ArtifactInundation, rasterstore.ArtifactSynthetic,
	}
	var got []string
	for name, path := range res.Artifacts {
		got = append(got, name)
		assert.FileExists(t, path)
	}
	if diff := cmp.Diff(wantArtifacts, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Fatalf("artifacts mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{domain.StageSynthesize, domain.StageClassify, domain.StageDepth}, f.stages)
}

func TestFloodTransformer_DryRunSkipsDepth(t *testing.T) {
	f := newFixture(t, pipeline.TransformerOptions{}, nil)

	res, err := f.transform.Run(context.Background(), domain.FloodRequest{
		RequestID:   "dry",
		Region:      "demo",
		WaterLevels: map[string]float64{"site-1": 0, "site-2": 0},
		Depth:       true,
	})
	require.NoError(t, err)
	assert.Zero(t, res.WetPixels)
	assert.Nil(t, res.Depth)
	assert.NotContains(t, res.Artifacts, rasterstore.ArtifactDepth)
}

func TestFloodTransformer_ReportsOutOfRangeSites(t *testing.T) {
	f := newFixture(t, pipeline.TransformerOptions{}, nil)

	res, err := f.transform.Run(context.Background(), domain.FloodRequest{
		Region:      "demo",
		WaterLevels: map[string]float64{"site-1": 12, "site-2": -1},
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"site-1", "site-2"}, res.OutOfRange)
}

func TestFloodTransformer_CallerThreshold(t *testing.T) {
	f := newFixture(t, pipeline.TransformerOptions{}, nil)
	threshold := -100.0

	res, err := f.transform.Run(context.Background(), domain.FloodRequest{
		Region:      "demo",
		WaterLevels: map[string]float64{"site-1": 8, "site-2": 0},
		Threshold:   &threshold,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ThresholdFromCaller, res.ThresholdSource)
	assert.Zero(t, res.WetPixels)
}

func TestFloodTransformer_ThresholdFallback(t *testing.T) {
	dropModel := func(dir string) {
		require.NoError(t, os.Remove(filepath.Join(dir, "models", "threshold.json")))
	}
	req := domain.FloodRequest{
		Region:      "demo",
		WaterLevels: map[string]float64{"site-1": 8, "site-2": 0},
	}

	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, pipeline.TransformerOptions{}, dropModel)
		_, err := f.transform.Run(context.Background(), req)
		assert.ErrorIs(t, err, domain.ErrThresholdModelUnavailable)
	})

	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, pipeline.TransformerOptions{ThresholdFallback: true}, dropModel)
		res, err := f.transform.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, domain.ThresholdFromFallback, res.ThresholdSource)
		assert.InDelta(t, domain.FallbackZScoreThreshold, res.Threshold, 0)
		assert.Positive(t, res.WetPixels)
		assert.InDelta(t, 1.0, testutil.ToFloat64(f.metrics.FallbackThresholds.WithLabelValues("demo")), 0)
	})
}

func TestFloodTransformer_Errors(t *testing.T) {
	f := newFixture(t, pipeline.TransformerOptions{}, nil)

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"malformed", `{"water_levels":{"site-1":1}}`, domain.ErrMalformedRequest},
		{"unknown region", `{"region":"mekong","water_levels":{"site-1":1}}`, domain.ErrInvalidRegion},
		{"missing site", `{"region":"demo","water_levels":{"site-1":1}}`, domain.ErrMissingSiteLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.transform.Transform(context.Background(), domain.RawEvent{Value: []byte(tt.raw)})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
