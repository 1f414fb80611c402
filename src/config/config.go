package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// AppConfig holds all configuration for the application.
// The values are loaded from environment variables.
type AppConfig struct {
	// Core settings
	Port         string
	DatabasePath string
	LogLevel     string

	// Scheduler settings
	SchedulerInterval        time.Duration
	SchedulerWorkers         int
	SchedulerBatchSize       int
	SchedulerOrderTimeout    time.Duration
	StandingOrderMaxFailures int

	// Distributed pass lock; empty RedisURL keeps the lock in-process
	RedisURL         string
	SchedulerLockTTL time.Duration

	// Audit trail
	AuditBufferSize int

	// Stock trading
	QuoteCacheTTL time.Duration
	QuotesPath    string
	StockFeeRate  decimal.Decimal
	StockMinFee   decimal.Decimal

	// HTTP surface
	RateLimitRPS   float64
	RateLimitBurst int
	AllowedOrigins []string
}

// Cfg is a global instance of the AppConfig.
var Cfg *AppConfig

// LoadConfig loads configuration from environment variables or a .env file.
// It centralizes all configuration logic for the application.
func LoadConfig() *AppConfig {
	// 1. Try loading from the current directory (standard behavior)
	errEnv := godotenv.Load()

	// 2. If not found, try loading from the parent directory
	if errEnv != nil {
		errEnv = godotenv.Load("../.env")
	}

	if errEnv != nil {
		if os.IsNotExist(errEnv) {
			log.Println("Info: No .env file found in current or parent directory. Relying on OS environment variables (expected in production).")
		} else {
			log.Printf("Warning: Error loading .env file: %v. Relying on OS environment variables.", errEnv)
		}
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	maxFailures := getEnvAsInt("STANDING_ORDER_MAX_FAILURES", 0)
	if maxFailures < 0 {
		log.Printf("WARNING: STANDING_ORDER_MAX_FAILURES cannot be negative (%d). Retrying indefinitely.", maxFailures)
		maxFailures = 0
	}

	Cfg = &AppConfig{
		// Core
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./standingbank.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		// Scheduler
		SchedulerInterval:        getEnvAsDuration("SCHEDULER_INTERVAL", 5*time.Minute),
		SchedulerWorkers:         getEnvAsPositiveInt("SCHEDULER_WORKERS", 4),
		SchedulerBatchSize:       getEnvAsPositiveInt("SCHEDULER_BATCH_SIZE", 500),
		SchedulerOrderTimeout:    getEnvAsDuration("SCHEDULER_ORDER_TIMEOUT", 30*time.Second),
		StandingOrderMaxFailures: maxFailures,

		RedisURL:         getEnv("REDIS_URL", ""),
		SchedulerLockTTL: getEnvAsDuration("SCHEDULER_LOCK_TTL", 2*time.Minute),

		AuditBufferSize: getEnvAsPositiveInt("AUDIT_BUFFER_SIZE", 1024),

		// Stocks
		QuoteCacheTTL: getEnvAsDuration("QUOTE_CACHE_TTL", time.Minute),
		QuotesPath:    getEnv("QUOTES_PATH", ""),
		StockFeeRate:  getEnvAsDecimal("STOCK_FEE_RATE", decimal.RequireFromString("0.001")),
		StockMinFee:   getEnvAsDecimal("STOCK_MIN_FEE", decimal.RequireFromString("1.00")),

		// HTTP
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getEnvAsPositiveInt("RATE_LIMIT_BURST", 30),
		AllowedOrigins: getEnvAsList("ALLOWED_ORIGINS", "http://localhost:3000"),
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, SchedulerInterval=%s, RedisLock=%t",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.SchedulerInterval, Cfg.RedisURL != "")
	return Cfg
}

// getEnv retrieves an environment variable or returns a fallback value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer or returns a fallback.
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsPositiveInt(key string, fallback int) int {
	value := getEnvAsInt(key, fallback)
	if value <= 0 {
		log.Printf("Value for %s must be positive (%d), using default: %d", key, value, fallback)
		return fallback
	}
	return value
}

func getEnvAsFloat(key string, fallback float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil && value > 0 {
		return value
	}
	log.Printf("Invalid positive number for %s ('%s'), using default: %g", key, valueStr, fallback)
	return fallback
}

// getEnvAsDuration retrieves an environment variable as a time.Duration or returns a fallback.
func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsDecimal parses a non-negative decimal such as a fee rate.
func getEnvAsDecimal(key string, fallback decimal.Decimal) decimal.Decimal {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := decimal.NewFromString(strings.TrimSpace(valueStr)); err == nil && !value.IsNegative() {
		return value
	}
	log.Printf("Invalid decimal value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

// getEnvAsList parses a comma-separated list, dropping empty entries.
func getEnvAsList(key, fallback string) []string {
	raw := getEnv(key, fallback)
	items := []string{}
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
