// Package config implements configuration loading for the ingestion pipeline
// as specified in section 6 of the design specification. It parses the
// recognized key set (filtering, memory management, delivery, object and
// positioning thresholds) from environment variables and validates bounds.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// GCOptimization mirrors memoryManagement.gcOptimization from section 6.
type GCOptimization struct {
	Enabled             bool          `env:"GC_OPT_ENABLED" envDefault:"false"`
	SuggestGCOnPressure bool          `env:"GC_OPT_SUGGEST_ON_PRESSURE" envDefault:"true"`
	LogGCEvents         bool          `env:"GC_OPT_LOG_EVENTS" envDefault:"false"`
	GCPauseIntervalMs   time.Duration `env:"GC_OPT_PAUSE_INTERVAL_MS" envDefault:"0ms"`
}

// MemoryManagement mirrors memoryManagement.* from section 6.
type MemoryManagement struct {
	Enabled                    bool          `env:"MEM_ENABLED" envDefault:"true"`
	MemoryPressureThreshold    float64       `env:"MEM_PRESSURE_THRESHOLD" envDefault:"0.85"`
	MaxBatchMemoryBytes        int64         `env:"MEM_MAX_BATCH_BYTES" envDefault:"1048576"`
	MemoryCheckIntervalMs      time.Duration `env:"MEM_CHECK_INTERVAL_MS" envDefault:"5000ms"`
	EnableBatchThrottling      bool          `env:"MEM_ENABLE_BATCH_THROTTLING" envDefault:"true"`
	MinThrottledBatchSize      int           `env:"MEM_MIN_THROTTLED_BATCH_SIZE" envDefault:"10"`
	EnablePerformanceProfiling bool          `env:"MEM_ENABLE_PROFILING" envDefault:"false"`
	GCOptimization             GCOptimization
}

// MobileHotspot mirrors filtering.mobileHotspot.* from section 6.
type MobileHotspot struct {
	Enabled      bool     `env:"HOTSPOT_ENABLED" envDefault:"true"`
	OUIBlacklist []string `env:"HOTSPOT_OUI_BLACKLIST" envSeparator:"," envDefault:"02:1a:11,f6:f0:1f"`
	Action       string   `env:"HOTSPOT_ACTION" envDefault:"FLAG"`
}

// Filtering mirrors filtering.* from section 6.
type Filtering struct {
	MaxLocationAccuracy       float64 `env:"FILTER_MAX_LOCATION_ACCURACY" envDefault:"150"`
	MinRSSI                   int     `env:"FILTER_MIN_RSSI" envDefault:"-95"`
	MaxRSSI                   int     `env:"FILTER_MAX_RSSI" envDefault:"-10"`
	ConnectedQualityWeight    float64 `env:"FILTER_CONNECTED_WEIGHT" envDefault:"1.0"`
	ScanQualityWeight         float64 `env:"FILTER_SCAN_WEIGHT" envDefault:"0.7"`
	LowLinkSpeedQualityWeight float64 `env:"FILTER_LOW_LINK_SPEED_WEIGHT" envDefault:"0.5"`
	LowLinkSpeedThresholdMbps float64 `env:"FILTER_LOW_LINK_SPEED_THRESHOLD_MBPS" envDefault:"6"`
	MobileHotspot             MobileHotspot
}

// Delivery mirrors delivery.* from section 6.
type Delivery struct {
	DeliveryStreamName string        `env:"DELIVERY_STREAM_NAME" envDefault:""`
	MaxRetries         int           `env:"DELIVERY_MAX_RETRIES" envDefault:"5"`
	RetryBackoffMs     time.Duration `env:"DELIVERY_RETRY_BACKOFF_MS" envDefault:"500ms"`
	MaxBatchRecords    int           `env:"DELIVERY_MAX_BATCH_RECORDS" envDefault:"500"`
	MaxBatchBytes      int64         `env:"DELIVERY_MAX_BATCH_BYTES" envDefault:"4194304"`
	MaxBatchAgeMs      time.Duration `env:"DELIVERY_MAX_BATCH_AGE_MS" envDefault:"5000ms"`
	MaxInFlightBatches int           `env:"DELIVERY_MAX_IN_FLIGHT_BATCHES" envDefault:"8"`
}

// Positioning mirrors the rssi/gdop/pathLossCoeff thresholds from section 6.
type Positioning struct {
	RSSIStrong          float64 `env:"POSITIONING_RSSI_STRONG" envDefault:"-70"`
	RSSIMedium          float64 `env:"POSITIONING_RSSI_MEDIUM" envDefault:"-85"`
	RSSIWeak            float64 `env:"POSITIONING_RSSI_WEAK" envDefault:"-95"`
	GDOPExcellent       float64 `env:"POSITIONING_GDOP_EXCELLENT" envDefault:"2.0"`
	GDOPGood            float64 `env:"POSITIONING_GDOP_GOOD" envDefault:"4.0"`
	GDOPFair            float64 `env:"POSITIONING_GDOP_FAIR" envDefault:"6.0"`
	PathLossCoeff       float64 `env:"POSITIONING_PATH_LOSS_COEFF" envDefault:"20"`
	CollinearityEpsilon float64 `env:"POSITIONING_COLLINEARITY_EPSILON" envDefault:"0.02"`
}

// Object mirrors object.* from section 6.
type Object struct {
	MaxFileSize int64 `env:"OBJECT_MAX_FILE_SIZE" envDefault:"5368709120"`
}

// Config is the composition root's single configuration value. All fields
// correspond to the recognized key set documented in section 6 of the
// design specification.
type Config struct {
	Region                string        `env:"AWS_REGION" envDefault:""`
	QueueURL              string        `env:"QUEUE_URL" envDefault:""`
	MaxMessagesPerPoll    int32         `env:"QUEUE_MAX_MESSAGES_PER_POLL" envDefault:"10"`
	VisibilityTimeoutSec  int32         `env:"QUEUE_VISIBILITY_TIMEOUT_SEC" envDefault:"60"`
	PollWaitTimeSec       int32         `env:"QUEUE_POLL_WAIT_TIME_SEC" envDefault:"20"`
	RecordChannelCapacity int           `env:"PIPELINE_RECORD_CHANNEL_CAPACITY" envDefault:"2000"`
	MaxWorkers            int           `env:"PIPELINE_MAX_WORKERS" envDefault:"8"`
	ShutdownGrace         time.Duration `env:"PIPELINE_SHUTDOWN_GRACE" envDefault:"30s"`

	Filtering        Filtering
	MemoryManagement MemoryManagement
	Delivery         Delivery
	Object           Object
	Positioning      Positioning

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads configuration from an optional .env file and the environment,
// then validates it, following the sibling ws-server convention of
// LoadConfig/Validate/LogConfig.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil && logger != nil {
		logger.Info().Msg("no .env file found, using environment variables only")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate enforces every numeric/enum bound from section 6 of the design
// specification.
func (c *Config) Validate() error {
	if c.QueueURL == "" {
		return fmt.Errorf("queue URL is required")
	}
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.MaxWorkers < 1 {
		return fmt.Errorf("max workers must be at least 1")
	}
	if c.RecordChannelCapacity < 100 || c.RecordChannelCapacity > 10_000 {
		return fmt.Errorf("record channel capacity must be in [100, 10000], got %d", c.RecordChannelCapacity)
	}

	f := c.Filtering
	if f.MaxLocationAccuracy < 1 || f.MaxLocationAccuracy > 1000 {
		return fmt.Errorf("filtering.maxLocationAccuracy must be in [1, 1000], got %.1f", f.MaxLocationAccuracy)
	}
	if f.MinRSSI < -100 || f.MinRSSI > -10 {
		return fmt.Errorf("filtering.minRssi must be in [-100, -10], got %d", f.MinRSSI)
	}
	if f.MaxRSSI < -10 || f.MaxRSSI > 0 {
		return fmt.Errorf("filtering.maxRssi must be in [-10, 0], got %d", f.MaxRSSI)
	}
	if f.MinRSSI >= f.MaxRSSI {
		return fmt.Errorf("filtering.minRssi (%d) must be less than filtering.maxRssi (%d)", f.MinRSSI, f.MaxRSSI)
	}
	for _, w := range []float64{f.ConnectedQualityWeight, f.ScanQualityWeight, f.LowLinkSpeedQualityWeight} {
		if w < 0.1 || w > 10.0 {
			return fmt.Errorf("quality weights must be in [0.1, 10.0], got %.2f", w)
		}
	}
	switch f.MobileHotspot.Action {
	case "FLAG", "EXCLUDE", "LOG_ONLY":
	default:
		return fmt.Errorf("filtering.mobileHotspot.action must be FLAG, EXCLUDE or LOG_ONLY, got %q", f.MobileHotspot.Action)
	}

	m := c.MemoryManagement
	if m.MemoryPressureThreshold < 0.5 || m.MemoryPressureThreshold > 0.95 {
		return fmt.Errorf("memoryManagement.memoryPressureThreshold must be in [0.5, 0.95], got %.2f", m.MemoryPressureThreshold)
	}
	if m.MemoryCheckIntervalMs < time.Second || m.MemoryCheckIntervalMs > 60*time.Second {
		return fmt.Errorf("memoryManagement.memoryCheckIntervalMs must be in [1s, 60s], got %s", m.MemoryCheckIntervalMs)
	}
	if m.MinThrottledBatchSize < 1 || m.MinThrottledBatchSize > 100 {
		return fmt.Errorf("memoryManagement.minThrottledBatchSize must be in [1, 100], got %d", m.MinThrottledBatchSize)
	}
	if m.GCOptimization.GCPauseIntervalMs < 0 || m.GCOptimization.GCPauseIntervalMs > 10*time.Second {
		return fmt.Errorf("memoryManagement.gcOptimization.gcPauseIntervalMs must be in [0, 10s], got %s", m.GCOptimization.GCPauseIntervalMs)
	}

	d := c.Delivery
	if d.MaxBatchRecords < 1 {
		return fmt.Errorf("delivery.maxBatchRecords must be at least 1")
	}
	if d.MaxBatchBytes < 1 {
		return fmt.Errorf("delivery.maxBatchBytes must be at least 1")
	}
	if d.MaxInFlightBatches < 1 {
		return fmt.Errorf("delivery.maxInFlightBatches must be at least 1")
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("delivery.maxRetries must be non-negative")
	}

	if c.Object.MaxFileSize < 1 {
		return fmt.Errorf("object.maxFileSize must be positive")
	}

	p := c.Positioning
	if !(p.RSSIStrong > p.RSSIMedium && p.RSSIMedium > p.RSSIWeak) {
		return fmt.Errorf("positioning rssi thresholds must satisfy strong > medium > weak")
	}
	if !(p.GDOPExcellent < p.GDOPGood && p.GDOPGood < p.GDOPFair) {
		return fmt.Errorf("positioning gdop thresholds must satisfy excellent < good < fair")
	}

	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("logFormat must be json or console, got %q", c.LogFormat)
	}

	return nil
}

// ZerologLevel parses LogLevel into a zerolog.Level, defaulting to Info on
// an unrecognized value.
func (c *Config) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
