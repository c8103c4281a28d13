package infra

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config represents application configuration loaded from environment
// variables. It is constructed once at startup and threaded explicitly into
// every component; nothing reads the environment after LoadConfig returns.
type Config struct {
	AppEnv              string
	Port                string
	DatabaseURL         string
	JWTSecret           string
	CallbackSecret      string
	CallbackBaseURL     string
	OrchestratorBaseURL string
	OrchestratorToken   string
	StorageDriver       string
	StoragePath         string
	S3Bucket            string
	S3Endpoint          string
	PricingRulesPath    string
	DefaultProxyID      string
	HTTPReadTimeout     time.Duration
	HTTPWriteTimeout    time.Duration
	HTTPIdleTimeout     time.Duration
	RateLimitPerMin     int
	WatchdogInterval    time.Duration
	JobTimeout          time.Duration
}

// LoadConfig loads configuration from environment variables and applies
// defaults where needed.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:              getEnv("APP_ENV", "development"),
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		CallbackSecret:      os.Getenv("CALLBACK_SECRET"),
		CallbackBaseURL:     getEnv("CALLBACK_BASE_URL", "http://localhost:8080"),
		OrchestratorBaseURL: getEnv("ORCHESTRATOR_BASE_URL", "http://localhost:9090"),
		OrchestratorToken:   os.Getenv("ORCHESTRATOR_TOKEN"),
		StorageDriver:       getEnv("STORAGE_DRIVER", "filesystem"),
		StoragePath:         getEnv("STORAGE_PATH", "./storage"),
		S3Bucket:            os.Getenv("S3_BUCKET"),
		S3Endpoint:          os.Getenv("S3_ENDPOINT"),
		PricingRulesPath:    getEnv("PRICING_RULES_PATH", "config/pricing.yaml"),
		DefaultProxyID:      os.Getenv("DEFAULT_PROXY_ID"),
		HTTPReadTimeout:     time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:    time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:     time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:     getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		WatchdogInterval:    time.Second * time.Duration(getEnvInt("WATCHDOG_INTERVAL_SECONDS", 60)),
		JobTimeout:          time.Minute * time.Duration(getEnvInt("JOB_TIMEOUT_MINUTES", 45)),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.CallbackSecret == "" {
		return nil, fmt.Errorf("CALLBACK_SECRET is required")
	}

	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	if cfg.StorageDriver == "s3" && cfg.S3Bucket == "" {
		return nil, fmt.Errorf("S3_BUCKET is required when STORAGE_DRIVER=s3")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
