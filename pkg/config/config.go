package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// Application
	AppEnv        string
	LogLevel      string
	EncryptionKey string

	// Database
	DatabaseURL string
	SQLitePath  string

	// Redis (optional cache for license/playbook snapshots)
	RedisURL string

	// Bridge server
	BridgeAddr string

	// License authority
	AuthorityURL     string
	AuthorityTimeout time.Duration

	// LLM collaborator
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	LLMTimeout time.Duration

	// Trigger engine
	TriggerCooldown   time.Duration
	ContextWindowSize int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:        getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		EncryptionKey: getEnv("SIDECUE_ENCRYPTION_KEY", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SQLitePath:  getEnv("SIDECUE_SQLITE_PATH", ""),

		RedisURL: getEnv("REDIS_URL", ""),

		BridgeAddr: getEnv("SIDECUE_BRIDGE_ADDR", "127.0.0.1:8374"),

		AuthorityURL:     getEnv("SIDECUE_AUTHORITY_URL", "https://app.sidecue.dev"),
		AuthorityTimeout: getDurationEnv("SIDECUE_AUTHORITY_TIMEOUT", 10*time.Second),

		LLMBaseURL: getEnv("SIDECUE_LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  getEnv("SIDECUE_LLM_API_KEY", ""),
		LLMModel:   getEnv("SIDECUE_LLM_MODEL", "gpt-4o-mini"),
		LLMTimeout: getDurationEnv("SIDECUE_LLM_TIMEOUT", 15*time.Second),

		TriggerCooldown:   getDurationEnv("SIDECUE_TRIGGER_COOLDOWN", 5*time.Second),
		ContextWindowSize: getIntEnv("SIDECUE_CONTEXT_WINDOW", 10),
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
