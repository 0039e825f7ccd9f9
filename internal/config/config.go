package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Result store backends accepted by RESULT_STORE.
const (
	ResultStoreMemory = "memory"
	ResultStoreRedis  = "redis"
	ResultStoreMinio  = "minio"
)

// Config holds the runtime settings of the pipeline service.
type Config struct {
	Port               string
	AuthToken          string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int

	LogLevel  string
	LogFormat string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStream   string
	RedisDLQ      string
	RedisGroup    string
	RedisConsumer string

	ResultStore      string
	ResultTTLSeconds int
	StoragePrefix    string

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	ExtractorURL       string
	ExtractorAPIKey    string
	ExtractorTimeoutMS int
	ExtractorMaxBytes  int64
	CallbackTimeoutMS  int

	WorkerConcurrency int
	QueueCapacity     int
	MaxFileSize       int64
	MaxPages          int

	RulesFile                 string
	QualityThresholdExcellent float64
	QualityThresholdGood      float64
	QualityThresholdFair      float64
}

func Load() Config {
	return Config{
		Port:               getEnv("PORT", "8080"),
		AuthToken:          getEnv("API_AUTH_TOKEN", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitRPS:       getEnvFloat("RATE_LIMIT_RPS", 20),
		RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 40),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisStream:   getEnv("REDIS_STREAM", "pipeline_tasks"),
		RedisDLQ:      getEnv("REDIS_DLQ_STREAM", "pipeline_tasks_dlq"),
		RedisGroup:    getEnv("REDIS_GROUP", "pipeline_workers"),
		RedisConsumer: getEnv("REDIS_CONSUMER", "api-1"),

		ResultStore:      strings.ToLower(getEnv("RESULT_STORE", ResultStoreMemory)),
		ResultTTLSeconds: getEnvInt("RESULT_TTL_SECONDS", 0),
		StoragePrefix:    getEnv("STORAGE_PREFIX", "results"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", ""),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "pipeline-results"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		ExtractorURL:       getEnv("EXTRACTOR_URL", ""),
		ExtractorAPIKey:    getEnv("EXTRACTOR_API_KEY", ""),
		ExtractorTimeoutMS: getEnvInt("EXTRACTOR_TIMEOUT_MS", 120000),
		ExtractorMaxBytes:  int64(getEnvInt("EXTRACTOR_MAX_RESPONSE_BYTES", 64<<20)),
		CallbackTimeoutMS:  getEnvInt("CALLBACK_TIMEOUT_MS", 30000),

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),
		QueueCapacity:     getEnvInt("QUEUE_CAPACITY", 256),
		MaxFileSize:       int64(getEnvInt("MAX_FILE_SIZE", 50_000_000)),
		MaxPages:          getEnvInt("MAX_PAGES", 1000),

		RulesFile:                 getEnv("RULES_FILE", ""),
		QualityThresholdExcellent: getEnvFloat("QUALITY_THRESHOLD_EXCELLENT", 0.9),
		QualityThresholdGood:      getEnvFloat("QUALITY_THRESHOLD_GOOD", 0.7),
		QualityThresholdFair:      getEnvFloat("QUALITY_THRESHOLD_FAIR", 0.5),
	}
}

// Validate rejects combinations the service cannot start with.
func (c Config) Validate() error {
	switch c.ResultStore {
	case ResultStoreMemory:
	case ResultStoreRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("RESULT_STORE=redis requires REDIS_ADDR")
		}
	case ResultStoreMinio:
		if c.MinioEndpoint == "" {
			return fmt.Errorf("RESULT_STORE=minio requires MINIO_ENDPOINT")
		}
	default:
		return fmt.Errorf("unknown RESULT_STORE %q", c.ResultStore)
	}
	if c.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.WorkerConcurrency)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("QUEUE_CAPACITY must be positive, got %d", c.QueueCapacity)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	}
	return nil
}

func (c Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.ExtractorTimeoutMS) * time.Millisecond
}

func (c Config) CallbackTimeout() time.Duration {
	return time.Duration(c.CallbackTimeoutMS) * time.Millisecond
}

func (c Config) ResultTTL() time.Duration {
	return time.Duration(c.ResultTTLSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getEnvList splits a comma separated variable, dropping blank entries.
func getEnvList(key string, fallback []string) []string {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}
