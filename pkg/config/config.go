package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Worker (cycle scheduler)
	Worker WorkerConfig

	// Forecast evaluation
	Evaluation EvaluationConfig

	// Calibration
	Calibration CalibrationConfig

	// External adapters
	Feeds  FeedsConfig
	Prices PricesConfig
	Kafka  KafkaConfig

	// Optional YAML forecast model (assets, horizons, keywords, correlations)
	ForecastConfigPath string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// DatabaseConfig holds store configuration
type DatabaseConfig struct {
	Driver     string // sqlite, postgres
	URL        string // postgres DSN
	SQLitePath string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// WorkerConfig holds cycle scheduler configuration
type WorkerConfig struct {
	CycleInterval     time.Duration
	HeartbeatSchedule string        // cron spec, e.g. "@every 10s"
	StaleAfter        time.Duration // heartbeat age after which the worker counts as stalled
	LockPath          string
	SummarySchedule   string
	SummaryWindowDays int
	StageTimeouts     StageTimeouts
}

// StageTimeouts holds per-stage execution budgets
type StageTimeouts struct {
	Ingest     time.Duration
	Prices     time.Duration
	Generate   time.Duration
	Evaluate   time.Duration
	Downstream time.Duration
}

// EvaluationConfig holds forecast evaluation thresholds
type EvaluationConfig struct {
	DeadZonePct         float64       // UP/DOWN must move beyond this (%)
	NeutralThresholdPct float64       // NEUTRAL holds while |move| stays below this (%)
	GraceWindow         time.Duration // snapshot within due_at+grace is exact
	ExpiryGrace         time.Duration // no snapshot by due_at+expiry means expired
	BatchSize           int
}

// Platform confidence bounds; CONFIDENCE_MIN/MAX may only narrow them
const (
	ConfidenceFloor   = 25.0
	ConfidenceCeiling = 85.0
)

// CalibrationConfig holds calibration engine settings
type CalibrationConfig struct {
	Alpha               float64
	MinSamples          int
	MinConfidence       float64
	MaxConfidence       float64
	WeightLookupTimeout time.Duration
}

// FeedsConfig holds news feed adapter settings
type FeedsConfig struct {
	URLs      []string
	UserAgent string
}

// PricesConfig holds price adapter settings
type PricesConfig struct {
	BaseURL        string
	RequestsPerSec float64
}

// KafkaConfig holds downstream publisher settings
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from environment variables after loading
// envFile (or the first .env found when envFile is empty)
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func LoadFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	} else {
		loadEnvFile()
	}

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			Driver:          getEnv("DB_DRIVER", "sqlite"),
			URL:             getEnv("DATABASE_URL", ""),
			SQLitePath:      getEnv("SQLITE_PATH", "data/signalcast.db"),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Worker: WorkerConfig{
			CycleInterval:     getEnvAsDuration("WORKER_CYCLE_INTERVAL", "30s"),
			HeartbeatSchedule: getEnv("WORKER_HEARTBEAT_SCHEDULE", "@every 10s"),
			StaleAfter:        getEnvAsDuration("WORKER_STALE_AFTER", "120s"),
			LockPath:          getEnv("WORKER_LOCK_PATH", "data/worker.lock"),
			SummarySchedule:   getEnv("WORKER_SUMMARY_SCHEDULE", "@hourly"),
			SummaryWindowDays: getEnvAsInt("WORKER_SUMMARY_WINDOW_DAYS", 7),
			StageTimeouts: StageTimeouts{
				Ingest:     getEnvAsDuration("STAGE_TIMEOUT_INGEST", "45s"),
				Prices:     getEnvAsDuration("STAGE_TIMEOUT_PRICES", "45s"),
				Generate:   getEnvAsDuration("STAGE_TIMEOUT_GENERATE", "30s"),
				Evaluate:   getEnvAsDuration("STAGE_TIMEOUT_EVALUATE", "60s"),
				Downstream: getEnvAsDuration("STAGE_TIMEOUT_DOWNSTREAM", "25s"),
			},
		},

		Evaluation: EvaluationConfig{
			DeadZonePct:         getEnvAsFloat("EVAL_DEAD_ZONE_PCT", 0.1),
			NeutralThresholdPct: getEnvAsFloat("EVAL_NEUTRAL_THRESHOLD_PCT", 0.5),
			GraceWindow:         getEnvAsDuration("EVAL_GRACE_WINDOW", "6h"),
			ExpiryGrace:         getEnvAsDuration("EVAL_EXPIRY_GRACE", "24h"),
			BatchSize:           getEnvAsInt("EVAL_BATCH_SIZE", 500),
		},

		Calibration: CalibrationConfig{
			Alpha:               getEnvAsFloat("CALIBRATION_ALPHA", 0.05),
			MinSamples:          getEnvAsInt("CALIBRATION_MIN_SAMPLES", 1),
			MinConfidence:       getEnvAsFloat("CONFIDENCE_MIN", ConfidenceFloor),
			MaxConfidence:       getEnvAsFloat("CONFIDENCE_MAX", ConfidenceCeiling),
			WeightLookupTimeout: getEnvAsDuration("CALIBRATION_LOOKUP_TIMEOUT", "2s"),
		},

		Feeds: FeedsConfig{
			URLs: getEnvAsList("FEED_URLS", []string{
				"https://feeds.reuters.com/reuters/businessNews",
				"https://www.investing.com/rss/news_25.rss",
			}),
			UserAgent: getEnv("FEED_USER_AGENT", "signalcast/1.0"),
		},

		Prices: PricesConfig{
			BaseURL:        getEnv("PRICES_BASE_URL", "https://query1.finance.yahoo.com"),
			RequestsPerSec: getEnvAsFloat("PRICES_REQUESTS_PER_SEC", 2),
		},

		Kafka: KafkaConfig{
			Brokers: getEnvAsList("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "signalcast.forecast-events"),
		},

		ForecastConfigPath: getEnv("FORECAST_CONFIG_PATH", ""),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if required configuration values are set
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DB_DRIVER=postgres")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when DB_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of: sqlite, postgres")
	}

	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Worker.CycleInterval <= 0 {
		return fmt.Errorf("WORKER_CYCLE_INTERVAL must be positive")
	}
	if c.Worker.LockPath == "" {
		return fmt.Errorf("WORKER_LOCK_PATH is required")
	}

	if c.Evaluation.DeadZonePct < 0 || c.Evaluation.NeutralThresholdPct < c.Evaluation.DeadZonePct {
		return fmt.Errorf("EVAL_NEUTRAL_THRESHOLD_PCT must be >= EVAL_DEAD_ZONE_PCT >= 0")
	}
	if c.Evaluation.ExpiryGrace < c.Evaluation.GraceWindow {
		return fmt.Errorf("EVAL_EXPIRY_GRACE must be >= EVAL_GRACE_WINDOW")
	}

	if c.Calibration.Alpha <= 0 || c.Calibration.Alpha > 1 {
		return fmt.Errorf("CALIBRATION_ALPHA must be in (0, 1]")
	}
	// 플랫폼 범위 [25, 85] 안에서만 좁힐 수 있음
	if c.Calibration.MinConfidence < ConfidenceFloor || c.Calibration.MaxConfidence > ConfidenceCeiling {
		return fmt.Errorf("CONFIDENCE_MIN/CONFIDENCE_MAX must stay within [%.0f, %.0f]", ConfidenceFloor, ConfidenceCeiling)
	}
	if c.Calibration.MinConfidence >= c.Calibration.MaxConfidence {
		return fmt.Errorf("CONFIDENCE_MIN must be < CONFIDENCE_MAX")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{".env"}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}

// getEnvAsList splits a comma separated value, dropping empty entries
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
