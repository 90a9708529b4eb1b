package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/klongtoey/airhealth/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DBPath string

	// Provider credentials and pacing.
	WAQIToken         string
	OpenWeatherAPIKey string
	SupplementEnabled bool
	ProviderTimeout   time.Duration

	// Quota and retention.
	QuotaCeiling       int
	ReadingRetention   time.Duration
	QuotaRetentionDays int

	// Pipeline tunables.
	Window        time.Duration
	Interval      time.Duration
	GridSize      int
	BatchWidth    int
	BatchPause    time.Duration
	SupplementCap int
	PolicyName    string
	CycleInterval time.Duration

	// Kafka delivery of computed index records.
	KafkaEnabled   bool
	KafkaBrokers   []string
	KafkaSinkTopic string
}

// Load reads configuration from environment variables, applying defaults
// where unset. Missing credentials are a fatal configuration error: a cycle
// must not attempt partial work without them.
func Load() (*Config, error) {
	shutdownTimeout, err := parseDurationEnv("SHUTDOWN_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	providerTimeout, err := parseDurationEnv("PROVIDER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}
	window, err := parseDurationEnv("ROLLING_WINDOW", "3h")
	if err != nil {
		return nil, err
	}
	interval, err := parseDurationEnv("READING_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}
	batchPause, err := parseDurationEnv("FETCH_BATCH_PAUSE", "1s")
	if err != nil {
		return nil, err
	}
	cycleInterval, err := parseDurationEnv("CYCLE_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}
	readingRetention, err := parseDurationEnv("READING_RETENTION", "72h")
	if err != nil {
		return nil, err
	}

	quotaCeiling, err := parseIntEnv("QUOTA_CEILING", 950)
	if err != nil {
		return nil, err
	}
	gridSize, err := parseIntEnv("GRID_SIZE", 3)
	if err != nil {
		return nil, err
	}
	batchWidth, err := parseIntEnv("FETCH_BATCH_WIDTH", 5)
	if err != nil {
		return nil, err
	}
	supplementCap, err := parseIntEnv("SUPPLEMENT_CAP", 9)
	if err != nil {
		return nil, err
	}
	quotaRetentionDays, err := parseIntEnv("QUOTA_RETENTION_DAYS", 30)
	if err != nil {
		return nil, err
	}

	openWeatherKey := os.Getenv("OPENWEATHER_API_KEY")
	supplementEnabled := openWeatherKey != ""
	if v := os.Getenv("SUPPLEMENT_ENABLED"); v != "" {
		supplementEnabled = v == "true"
	}

	cfg := &Config{
		HTTPAddr:        envOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DBPath: envOrDefault("DB_PATH", "airhealth.db"),

		WAQIToken:         os.Getenv("WAQI_TOKEN"),
		OpenWeatherAPIKey: openWeatherKey,
		SupplementEnabled: supplementEnabled,
		ProviderTimeout:   providerTimeout,

		QuotaCeiling:       quotaCeiling,
		ReadingRetention:   readingRetention,
		QuotaRetentionDays: quotaRetentionDays,

		Window:        window,
		Interval:      interval,
		GridSize:      gridSize,
		BatchWidth:    batchWidth,
		BatchPause:    batchPause,
		SupplementCap: supplementCap,
		PolicyName:    envOrDefault("INDEX_POLICY", "reference"),
		CycleInterval: cycleInterval,

		KafkaEnabled:   os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:   splitBrokers(envOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic: envOrDefault("KAFKA_SINK_TOPIC", "health-index-records"),
	}

	if cfg.WAQIToken == "" {
		return nil, errors.New("WAQI_TOKEN is required")
	}
	if cfg.SupplementEnabled && cfg.OpenWeatherAPIKey == "" {
		return nil, errors.New("SUPPLEMENT_ENABLED is true but OPENWEATHER_API_KEY is not set")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if _, ok := domain.PolicyByName(cfg.PolicyName); !ok {
		return nil, fmt.Errorf("unknown INDEX_POLICY %q", cfg.PolicyName)
	}
	if cfg.GridSize < 1 {
		return nil, errors.New("GRID_SIZE must be at least 1")
	}
	if cfg.QuotaCeiling < 1 {
		return nil, errors.New("QUOTA_CEILING must be at least 1")
	}

	return cfg, nil
}

// Policy resolves the configured index policy.
func (c *Config) Policy() domain.IndexPolicy {
	p, _ := domain.PolicyByName(c.PolicyName)
	return p
}

// GetLogLevel implements observability.LoggerConfig.
func (c *Config) GetLogLevel() string { return c.LogLevel }

// GetLogFormat implements observability.LoggerConfig.
func (c *Config) GetLogFormat() string { return c.LogFormat }

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseDurationEnv(key, fallback string) (time.Duration, error) {
	raw := envOrDefault(key, fallback)
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return d, nil
}

func parseIntEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return n, nil
}

func splitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
