package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port         string
	Env          string
	ClientOrigin string

	// Neo4j
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// Redis (approximate post counter cache)
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CountCacheTTL time.Duration

	// Media collaborator
	MediaServiceURL string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:            getEnv("PORT", "8000"),
		Env:             getEnv("ENV", "development"),
		ClientOrigin:    getEnv("CLIENT_ORIGIN", "*"),
		Neo4jURI:        getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:       getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:   getEnv("NEO4J_PASSWORD", "password"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvInt("REDIS_DB", 0),
		CountCacheTTL:   time.Duration(getEnvInt("COUNT_CACHE_TTL_SECONDS", 30)) * time.Second,
		MediaServiceURL: getEnv("MEDIA_SERVICE_URL", "http://localhost:8100"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.RedisAddr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}
	if c.CountCacheTTL <= 0 {
		return fmt.Errorf("COUNT_CACHE_TTL_SECONDS must be positive")
	}
	// Media service URL is optional for development; release calls are
	// best-effort and failures are swallowed either way
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		var result int
		if _, err := fmt.Sscanf(value, "%d", &result); err == nil {
			return result
		}
	}
	return defaultValue
}
