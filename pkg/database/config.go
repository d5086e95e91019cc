package database

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds database connection settings. Pool sizing applies to the
// pgx pool only; the migration handle is short-lived and untuned.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	PoolMaxConns int32
	PoolMinConns int32
}

// LoadConfigFromEnv loads database configuration from environment variables.
func LoadConfigFromEnv() (Config, error) {
	port, err := strconv.Atoi(getEnvOrDefault("DB_PORT", "5432"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	maxConns, err := strconv.Atoi(getEnvOrDefault("DB_POOL_MAX_CONNS", "10"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_POOL_MAX_CONNS: %w", err)
	}
	minConns, err := strconv.Atoi(getEnvOrDefault("DB_POOL_MIN_CONNS", "2"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid DB_POOL_MIN_CONNS: %w", err)
	}

	return Config{
		Host:         getEnvOrDefault("DB_HOST", "localhost"),
		Port:         port,
		User:         getEnvOrDefault("DB_USER", "manoe"),
		Password:     os.Getenv("DB_PASSWORD"),
		Database:     getEnvOrDefault("DB_NAME", "manoe"),
		SSLMode:      getEnvOrDefault("DB_SSLMODE", "disable"),
		PoolMaxConns: int32(maxConns),
		PoolMinConns: int32(minConns),
	}, nil
}

// DSN renders the pgx-compatible connection string.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
