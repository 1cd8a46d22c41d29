package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "inundation-requests", cfg.KafkaSourceTopic)
	assert.Equal(t, "inundation-results", cfg.KafkaSinkTopic)
	assert.Equal(t, "inundation-service", cfg.KafkaGroupID)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 500*time.Millisecond, cfg.BatchFlushInterval)
	assert.Equal(t, "./regions", cfg.RegionRoot)
	assert.Equal(t, "./output", cfg.OutputDir)
	assert.Equal(t, 2*time.Minute, cfg.RunTimeout)
	assert.False(t, cfg.ThresholdFallback)
	assert.Equal(t, DEMSourceFile, cfg.DEMSource)
	assert.Equal(t, "./dem/dem.grd", cfg.DEMPath)
	assert.Empty(t, cfg.DEMURL)
	assert.Equal(t, 10*time.Second, cfg.DEMTimeout)
	assert.Equal(t, 64, cfg.DEMCacheSize)
	assert.Empty(t, cfg.PermanentWaterPath)
	assert.InDelta(t, 1000.0, cfg.DepthBuffer, 0)
	assert.InDelta(t, 5000.0, cfg.DepthMaxDistance, 0)
	assert.InDelta(t, 0.0, cfg.DepthMinElevation, 0)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_SOURCE_TOPIC", "custom-source")
	t.Setenv("KAFKA_SINK_TOPIC", "custom-sink")
	t.Setenv("KAFKA_GROUP_ID", "custom-group")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("BATCH_SIZE", "100")
	t.Setenv("BATCH_FLUSH_INTERVAL", "1s")
	t.Setenv("REGION_ROOT", "/data/regions")
	t.Setenv("OUTPUT_DIR", "/data/out")
	t.Setenv("RUN_TIMEOUT", "30s")
	t.Setenv("THRESHOLD_FALLBACK_ENABLED", "true")
	t.Setenv("DEM_SOURCE", "http")
	t.Setenv("DEM_URL", "http://dem.internal")
	t.Setenv("DEM_TIMEOUT", "3s")
	t.Setenv("DEM_CACHE_SIZE", "8")
	t.Setenv("DEPTH_BUFFER", "250")
	t.Setenv("DEPTH_MAX_DISTANCE", "1500.5")
	t.Setenv("DEPTH_MIN_ELEVATION", "-10")
	t.Setenv("PERMANENT_WATER_PATH", "/data/jrc_water.grd")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-source", cfg.KafkaSourceTopic)
	assert.Equal(t, "custom-sink", cfg.KafkaSinkTopic)
	assert.Equal(t, "custom-group", cfg.KafkaGroupID)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1*time.Second, cfg.BatchFlushInterval)
	assert.Equal(t, "/data/regions", cfg.RegionRoot)
	assert.Equal(t, "/data/out", cfg.OutputDir)
	assert.Equal(t, 30*time.Second, cfg.RunTimeout)
	assert.True(t, cfg.ThresholdFallback)
	assert.Equal(t, DEMSourceHTTP, cfg.DEMSource)
	assert.Equal(t, "http://dem.internal", cfg.DEMURL)
	assert.Equal(t, 3*time.Second, cfg.DEMTimeout)
	assert.Equal(t, 8, cfg.DEMCacheSize)
	assert.InDelta(t, 250.0, cfg.DepthBuffer, 0)
	assert.InDelta(t, 1500.5, cfg.DepthMaxDistance, 0)
	assert.InDelta(t, -10.0, cfg.DepthMinElevation, 0)
	assert.Equal(t, "/data/jrc_water.grd", cfg.PermanentWaterPath)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"invalid shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "not-a-duration"}, "SHUTDOWN_TIMEOUT"},
		{"negative shutdown timeout", map[string]string{"SHUTDOWN_TIMEOUT": "-1s"}, "SHUTDOWN_TIMEOUT"},
		{"zero batch size", map[string]string{"BATCH_SIZE": "0"}, "BATCH_SIZE"},
		{"batch size too large", map[string]string{"BATCH_SIZE": "9999"}, "BATCH_SIZE"},
		{"invalid flush interval", map[string]string{"BATCH_FLUSH_INTERVAL": "not-a-duration"}, "BATCH_FLUSH_INTERVAL"},
		{"invalid run timeout", map[string]string{"RUN_TIMEOUT": "0s"}, "RUN_TIMEOUT"},
		{"invalid dem timeout", map[string]string{"DEM_TIMEOUT": "bad"}, "DEM_TIMEOUT"},
		{"unknown dem source", map[string]string{"DEM_SOURCE": "s3"}, "DEM_SOURCE"},
		{"http without url", map[string]string{"DEM_SOURCE": "http"}, "DEM_URL"},
		{"non-numeric buffer", map[string]string{"DEPTH_BUFFER": "wide"}, "DEPTH_BUFFER"},
		{"negative buffer", map[string]string{"DEPTH_BUFFER": "-5"}, "DEPTH_BUFFER"},
		{"infinite push limit", map[string]string{"DEPTH_MAX_DISTANCE": "Inf"}, "DEPTH_MAX_DISTANCE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoad_InvalidCacheSizeFallsBack(t *testing.T) {
	t.Setenv("DEM_CACHE_SIZE", "-3")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.DEMCacheSize)
}
