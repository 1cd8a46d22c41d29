package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// DEM provider kinds accepted by DEM_SOURCE.
const (
	DEMSourceFile = "file"
	DEMSourceHTTP = "http"
	DEMSourceNone = "none"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	KafkaBrokers     []string
	KafkaSourceTopic string
	KafkaSinkTopic   string
	KafkaGroupID     string
	HTTPAddr         string
	LogLevel         string
	LogFormat        string
	ShutdownTimeout  time.Duration

	BatchSize          int
	BatchFlushInterval time.Duration

	// Run configuration.
	RegionRoot        string
	OutputDir         string
	RunTimeout        time.Duration
	ThresholdFallback bool

	// Elevation source for depth estimation.
	DEMSource    string
	DEMPath      string
	DEMURL       string
	DEMTimeout   time.Duration
	DEMCacheSize int
	// PermanentWaterPath is an optional water mask raster merged into every
	// flood extent before depth estimation.
	PermanentWaterPath string

	DepthBuffer       float64
	DepthMaxDistance  float64
	DepthMinElevation float64
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	runTimeout, err := parsePositiveDuration("RUN_TIMEOUT", "2m")
	if err != nil {
		return nil, err
	}
	demTimeout, err := parsePositiveDuration("DEM_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	buffer, err := parseFloat("DEPTH_BUFFER", 1000)
	if err != nil {
		return nil, err
	}
	maxDistance, err := parseFloat("DEPTH_MAX_DISTANCE", 5000)
	if err != nil {
		return nil, err
	}
	minElevation, err := parseFloat("DEPTH_MIN_ELEVATION", 0)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSourceTopic:   sharedcfg.EnvOrDefault("KAFKA_SOURCE_TOPIC", "inundation-requests"),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "inundation-results"),
		KafkaGroupID:       sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "inundation-service"),
		HTTPAddr:           sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,

		RegionRoot:        sharedcfg.EnvOrDefault("REGION_ROOT", "./regions"),
		OutputDir:         sharedcfg.EnvOrDefault("OUTPUT_DIR", "./output"),
		RunTimeout:        runTimeout,
		ThresholdFallback: os.Getenv("THRESHOLD_FALLBACK_ENABLED") == "true",

		DEMSource:    sharedcfg.EnvOrDefault("DEM_SOURCE", DEMSourceFile),
		DEMPath:      sharedcfg.EnvOrDefault("DEM_PATH", "./dem/dem.grd"),
		DEMURL:       os.Getenv("DEM_URL"),
		DEMTimeout:   demTimeout,
		DEMCacheSize: parseCacheSize(),

		PermanentWaterPath: os.Getenv("PERMANENT_WATER_PATH"),

		DepthBuffer:       buffer,
		DepthMaxDistance:  maxDistance,
		DepthMinElevation: minElevation,
	}

	if len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_BROKERS is required")
	}
	if cfg.KafkaSourceTopic == "" {
		return nil, errors.New("KAFKA_SOURCE_TOPIC is required")
	}
	if cfg.KafkaSinkTopic == "" {
		return nil, errors.New("KAFKA_SINK_TOPIC is required")
	}
	switch cfg.DEMSource {
	case DEMSourceFile, DEMSourceNone:
	case DEMSourceHTTP:
		if cfg.DEMURL == "" {
			return nil, errors.New("DEM_SOURCE is http but DEM_URL is not set")
		}
	default:
		return nil, fmt.Errorf("invalid DEM_SOURCE %q: must be file, http or none", cfg.DEMSource)
	}
	if cfg.DepthBuffer < 0 {
		return nil, errors.New("invalid DEPTH_BUFFER: must not be negative")
	}

	return cfg, nil
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", key)
	}
	return d, nil
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s: must be a number", key)
	}
	return v, nil
}

func parseCacheSize() int {
	if s := os.Getenv("DEM_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 64
}
