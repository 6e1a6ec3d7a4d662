package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	// Server
	Port            int
	Environment     string
	ShutdownTimeout time.Duration

	// Uploads
	MaxUploadBytes int64

	// Conversion
	TotalDigits      int             // width account codes are zero-padded to
	BalanceTolerance decimal.Decimal // max |debit-credit| for a balanced policy
	DefaultSATLevel  int             // level used when an account is not in the SAT table
	DefaultNature    string          // nature letter for unrecognized account sections

	// Reference data
	SATTablePath     string
	GroupCatalogPath string // optional server-side default for policy conversions
	TemplatesPath    string // empty = embedded defaults
}

func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Port:             getEnvInt("PORT", 8080),
		Environment:      getEnv("ENVIRONMENT", "development"),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		MaxUploadBytes:   getEnvInt64("MAX_UPLOAD_BYTES", 10*1024*1024),
		TotalDigits:      getEnvInt("TOTAL_DIGITS", 8),
		DefaultSATLevel:  getEnvInt("DEFAULT_SAT_LEVEL", 2),
		DefaultNature:    getEnv("DEFAULT_NATURE", "A"),
		SATTablePath:     getEnv("SAT_TABLE_PATH", "refdata/sat.xlsx"),
		GroupCatalogPath: getEnv("GROUP_CATALOG_PATH", ""),
		TemplatesPath:    getEnv("TEMPLATES_PATH", ""),
	}

	tolerance, err := decimal.NewFromString(getEnv("BALANCE_TOLERANCE", "0.01"))
	if err != nil {
		return nil, fmt.Errorf("invalid BALANCE_TOLERANCE: %w", err)
	}
	if tolerance.IsNegative() {
		return nil, fmt.Errorf("BALANCE_TOLERANCE cannot be negative")
	}
	cfg.BalanceTolerance = tolerance

	if cfg.TotalDigits < 1 || cfg.TotalDigits > 20 {
		return nil, fmt.Errorf("TOTAL_DIGITS must be between 1 and 20, got %d", cfg.TotalDigits)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
