// Package common provides shared utilities for the radar-suncal tools.
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the process environment shared by all tools.
type Config struct {
	ClickHouseHost     string
	ClickHousePort     int
	ClickHouseDatabase string
	ClickHouseUser     string
	ClickHousePassword string
	DataDir            string
	LogLevel           string
}

// DefaultConfig returns configuration from the environment with sensible
// defaults. A .env file in the working directory is loaded first if present;
// variables already set in the environment win.
func DefaultConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		ClickHouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickHousePort:     getEnvInt("CLICKHOUSE_PORT", 9000),
		ClickHouseDatabase: getEnv("CLICKHOUSE_DATABASE", "suncal"),
		ClickHouseUser:     getEnv("CLICKHOUSE_USER", "default"),
		ClickHousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
		DataDir:            getEnv("SUNCAL_DATA_DIR", "/var/lib/radar-suncal"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
	}
}

// ClickHouseAddr returns host:port of the native protocol endpoint.
func (c *Config) ClickHouseAddr() string {
	return fmt.Sprintf("%s:%d", c.ClickHouseHost, c.ClickHousePort)
}

// SweepDataDir returns the directory holding sweep sample files.
func (c *Config) SweepDataDir() string {
	return filepath.Join(c.DataDir, "sweeps")
}

// EstimateDir returns the directory for estimate and series CSV output.
func (c *Config) EstimateDir() string {
	return filepath.Join(c.DataDir, "estimates")
}

// Verbose reports whether LOG_LEVEL asks for per-item logging.
func (c *Config) Verbose() bool {
	return c.LogLevel == "debug"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil || v <= 0 {
		return defaultValue
	}
	return v
}
