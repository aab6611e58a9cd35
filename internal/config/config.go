package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
type Config struct {
	Env       string
	LogLevel  string
	LogFormat string

	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool
	CacheTTL      time.Duration

	// FHIR clinical/coverage data source
	FHIRBaseURL      string
	FHIRClientID     string
	FHIRClientSecret string
	FetchTimeout     time.Duration

	// Rule catalog
	RuleCatalogPath           string
	RuleCatalogS3Bucket       string
	RuleCatalogS3Key          string
	RuleCatalogReloadInterval time.Duration

	// External enhancement
	EnhancementEnabled bool
	EnhancementTimeout time.Duration
	BedrockModelID     string
	GeminiAPIKey       string
	GeminiModelID      string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	OpportunityQueueURL       string
	OpportunityEventsQueueURL string
	OpportunityJobsTable      string
	UseMemoryQueue            bool
	WorkerCount               int
	MetricsAddr               string

	DefaultMinConfidence float64
	DefaultResultLimit   int
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Env:       getEnv("ENV", "development"),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),
		CacheTTL:      getEnvAsDuration("OPPORTUNITY_CACHE_TTL", 10*time.Minute),

		FHIRBaseURL:      getEnv("FHIR_BASE_URL", ""),
		FHIRClientID:     getEnv("FHIR_CLIENT_ID", ""),
		FHIRClientSecret: getEnv("FHIR_CLIENT_SECRET", ""),
		FetchTimeout:     getEnvAsDuration("FHIR_FETCH_TIMEOUT", 5*time.Second),

		RuleCatalogPath:           getEnv("RULE_CATALOG_PATH", ""),
		RuleCatalogS3Bucket:       getEnv("RULE_CATALOG_S3_BUCKET", ""),
		RuleCatalogS3Key:          getEnv("RULE_CATALOG_S3_KEY", ""),
		RuleCatalogReloadInterval: getEnvAsDuration("RULE_CATALOG_RELOAD_INTERVAL", 0),

		EnhancementEnabled: getEnvAsBool("ENHANCEMENT_ENABLED", false),
		EnhancementTimeout: getEnvAsDuration("ENHANCEMENT_TIMEOUT", 8*time.Second),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		OpportunityQueueURL:       getEnv("OPPORTUNITY_QUEUE_URL", ""),
		OpportunityEventsQueueURL: getEnv("OPPORTUNITY_EVENTS_QUEUE_URL", ""),
		OpportunityJobsTable:      getEnv("OPPORTUNITY_JOBS_TABLE", "opportunity_jobs"),
		UseMemoryQueue:            getEnvAsBool("USE_MEMORY_QUEUE", false),
		WorkerCount:               getEnvAsInt("WORKER_COUNT", 2),
		MetricsAddr:               getEnv("METRICS_ADDR", ":9090"),

		DefaultMinConfidence: getEnvAsFloat("DEFAULT_MIN_CONFIDENCE", 0),
		DefaultResultLimit:   getEnvAsInt("DEFAULT_RESULT_LIMIT", 0),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
