package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment variables
const (
	EnvLogLevel        = "FLASHBRIDGE_LOG_LEVEL"
	EnvDebug           = "FLASHBRIDGE_DEBUG"
	EnvMaxCallDepth    = "FLASHBRIDGE_MAX_CALL_DEPTH"
	EnvCacheSize       = "FLASHBRIDGE_SIMULATION_CACHE_SIZE"
	EnvMetricsAddr     = "FLASHBRIDGE_METRICS_ADDR"
	EnvInitiatorPolicy = "FLASHBRIDGE_INITIATOR_POLICY"
)

// LoadEnv loads environment variables from .env files. Missing files are
// not an error.
func LoadEnv(files ...string) error {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

// GetEnvWithDefault gets an environment variable with a default value
func GetEnvWithDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// ApplyEnv overrides cfg with any FLASHBRIDGE_* variables that are set
func ApplyEnv(cfg *Config) error {
	cfg.LogLevel = GetEnvWithDefault(EnvLogLevel, cfg.LogLevel)
	cfg.Adapter.InitiatorPolicy = GetEnvWithDefault(EnvInitiatorPolicy, cfg.Adapter.InitiatorPolicy)

	if addr := os.Getenv(EnvMetricsAddr); addr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddr = addr
	}
	if v := os.Getenv(EnvDebug); v != "" {
		debug, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvDebug, err)
		}
		cfg.Debug = debug
	}
	if v := os.Getenv(EnvMaxCallDepth); v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvMaxCallDepth, err)
		}
		cfg.MaxCallDepth = depth
	}
	if v := os.Getenv(EnvCacheSize); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvCacheSize, err)
		}
		cfg.SimulationCacheSize = size
	}
	return nil
}
