/**
 * @description
 * Configuration loader for the Chronoprice backend.
 * Responsible for reading environment variables, setting defaults, and performing strict validation.
 *
 * @dependencies
 * - github.com/joho/godotenv: For loading .env files
 * - standard "os": For reading env vars
 * - standard "fmt": For error reporting
 *
 * @notes
 * - Fails fast if critical variables (Database URL, Alchemy API key) are missing.
 * - Uses a Singleton-like pattern where Load() returns a Config struct.
 */

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Redis    RedisConfig
	Alchemy  AlchemyConfig
	Backfill BackfillConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port string
	Env  string // "development" or "production"
}

// DBConfig holds PostgreSQL settings
type DBConfig struct {
	URL string
}

// RedisConfig holds Redis settings
type RedisConfig struct {
	URL string
}

// AlchemyConfig holds Alchemy API endpoints and keys
type AlchemyConfig struct {
	APIKey    string
	PricesURL string // Base URL of the Prices API, key is appended per request
	EthRPCURL string // JSON-RPC endpoint used for token birthdate lookups
}

// BackfillConfig holds queue worker settings
type BackfillConfig struct {
	Concurrency int // bounded width for per-timestamp fan-out within a job
	MaxRetries  int // retries per timestamp after the first failed attempt
}

// Load reads .env file and populates the Config struct
func Load() (*Config, error) {
	// Attempt to load .env, but don't crash if it fails (k8s/prod might inject env vars directly)
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("GO_ENV", "development"),
		},
		DB: DBConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379"),
		},
		Alchemy: AlchemyConfig{
			APIKey:    sanitizeCredential(getEnv("ALCHEMY_API_KEY", "")),
			PricesURL: getEnv("ALCHEMY_PRICES_URL", "https://api.g.alchemy.com/prices/v1"),
			EthRPCURL: getEnv("ETH_RPC_URL", ""),
		},
		Backfill: BackfillConfig{
			Concurrency: getEnvAsInt("BACKFILL_CONCURRENCY", 1),
			MaxRetries:  getEnvAsInt("BACKFILL_MAX_RETRIES", 5),
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks for required variables
func validate(cfg *Config) error {
	if cfg.DB.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Alchemy.APIKey == "" && cfg.Server.Env != "test" {
		return fmt.Errorf("ALCHEMY_API_KEY is required")
	}
	if cfg.Backfill.Concurrency < 1 {
		cfg.Backfill.Concurrency = 1
	}
	if cfg.Backfill.MaxRetries < 0 {
		cfg.Backfill.MaxRetries = 0
	}
	return nil
}

// Helper to get env var with default
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func sanitizeCredential(value string) string {
	trimmed := strings.TrimSpace(value)
	return strings.Trim(trimmed, "\"")
}

// Helper to get env var as int
func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}
