// Package config loads process configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment is the deployment mode; it gates credential requirements.
type Environment string

const (
	EnvDryRun Environment = "dry-run"
	EnvPaper  Environment = "paper"
	EnvLive   Environment = "live"
)

// Config holds every tunable named in the configuration surface.
type Config struct {
	DataDir     string
	Environment Environment
	LogLevel    string
	LogPretty   bool

	APIKeys               []string
	RequestsPerMinute     int
	BurstLimit            int
	CooldownSeconds       int
	FailureThreshold      int
	RecoveryTimeoutSecs   int
	MaxRetries            int
	InitialBackoffSeconds float64
	MaxBackoffSeconds     float64
	JitterEnabled         bool

	BackupEnabled       bool
	BackupIntervalHours float64
	MaxBackups          int

	MarketHoursOnly    bool
	ShutdownGraceSecs  int
	MaxRunTimeMinutes  int
	DefaultHandlerSecs int

	HealthPort int
}

// Load reads configuration from the environment (and an optional .env file).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv("DATA_DIR", "")
	if dataDir == "" {
		if _, err := os.Stat("../data"); err == nil {
			dataDir = "../data"
		} else if _, err := os.Stat("./data"); err == nil {
			dataDir = "./data"
		} else {
			dataDir = "../data"
		}
	}

	cfg := &Config{
		DataDir:     dataDir,
		Environment: Environment(getEnv("ENVIRONMENT", string(EnvDryRun))),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", false),

		APIKeys:               splitCSV(getEnv("API_KEYS", "")),
		RequestsPerMinute:     getEnvAsInt("REQUESTS_PER_MINUTE", 60),
		BurstLimit:            getEnvAsInt("BURST_LIMIT", 5),
		CooldownSeconds:       getEnvAsInt("COOLDOWN_SECONDS", 1),
		FailureThreshold:      getEnvAsInt("FAILURE_THRESHOLD", 5),
		RecoveryTimeoutSecs:   getEnvAsInt("RECOVERY_TIMEOUT_SECONDS", 60),
		MaxRetries:            getEnvAsInt("MAX_RETRIES", 5),
		InitialBackoffSeconds: getEnvAsFloat("INITIAL_BACKOFF_SECONDS", 2.0),
		MaxBackoffSeconds:     getEnvAsFloat("MAX_BACKOFF_SECONDS", 120.0),
		JitterEnabled:         getEnvAsBool("JITTER_ENABLED", true),

		BackupEnabled:       getEnvAsBool("BACKUP_ENABLED", true),
		BackupIntervalHours: getEnvAsFloat("BACKUP_INTERVAL_HOURS", 1.0),
		MaxBackups:          getEnvAsInt("MAX_BACKUPS", 7),

		MarketHoursOnly:    getEnvAsBool("MARKET_HOURS_ONLY", false),
		ShutdownGraceSecs:  getEnvAsInt("SHUTDOWN_GRACE_SECONDS", 30),
		MaxRunTimeMinutes:  getEnvAsInt("MAX_RUN_TIME_MINUTES", 75),
		DefaultHandlerSecs: getEnvAsInt("DEFAULT_HANDLER_TIMEOUT_SECONDS", 300),

		HealthPort: getEnvAsInt("HEALTH_PORT", 8090),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate enforces the fatal-startup-error rules from the spec's
// configuration surface: a data directory is always required, and live
// trading requires at least one credential.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if c.Environment == EnvLive && len(c.APIKeys) == 0 {
		return fmt.Errorf("API_KEYS is required when ENVIRONMENT=live")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitCSV(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
