// Package config handles application configuration from environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/chibuike-kt/risk-engine/internal/risk"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Database
	DatabaseURL   string // PostgreSQL connection string (optional, uses in-memory if not set)
	DBAutoMigrate bool

	// Checkpoint signing keys (PEM paths)
	AuditSigningKey string
	AuditPublicKey  string

	// How often today's checkpoint is refreshed in the background (0 disables)
	CheckpointInterval time.Duration

	// Risk rules
	RulesFile      string
	Rules          risk.Config
	BaselineWindow int
	CaseListLimit  int

	// Security
	RateLimitRPM int

	// Event publishing (disabled when no brokers are set)
	KafkaBrokers []string
	KafkaTopic   string

	// Tracing (disabled when empty)
	OTLPEndpoint string
}

const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "json"
	DefaultSigningKeyPath = "storage/keys/audit_ed25519.key"
	DefaultPublicKeyPath  = "storage/keys/audit_ed25519.pub"
	DefaultBaselineWindow = 30
	DefaultCaseListLimit  = 50
	DefaultRateLimitRPM   = 600
	DefaultKafkaTopic     = "risk.decisions"
	DefaultCheckpointTick = time.Hour
	maxBaselineWindow     = 1000
	maxCaseListLimit      = 500
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		DBAutoMigrate:      getEnvBool("DB_AUTO_MIGRATE", true),
		AuditSigningKey:    getEnv("AUDIT_SIGNING_KEY", DefaultSigningKeyPath),
		AuditPublicKey:     getEnv("AUDIT_PUBLIC_KEY", DefaultPublicKeyPath),
		CheckpointInterval: getEnvDuration("CHECKPOINT_INTERVAL", DefaultCheckpointTick),
		RulesFile:          os.Getenv("RISK_RULES_FILE"),
		Rules:              risk.DefaultConfig(),
		BaselineWindow:     int(getEnvInt64("BASELINE_WINDOW", DefaultBaselineWindow)),
		CaseListLimit:      int(getEnvInt64("CASE_LIST_LIMIT", DefaultCaseListLimit)),
		RateLimitRPM:       int(getEnvInt64("RATE_LIMIT_RPM", DefaultRateLimitRPM)),
		KafkaBrokers:       getEnvList("KAFKA_BROKERS"),
		KafkaTopic:         getEnv("KAFKA_TOPIC", DefaultKafkaTopic),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if cfg.RulesFile != "" {
		rules, err := LoadRules(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		cfg.Rules = rules
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadRules reads a YAML rules file. Keys it omits keep their defaults.
func LoadRules(path string) (risk.Config, error) {
	rules := risk.DefaultConfig()
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from operator configuration
	if err != nil {
		return rules, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.UnmarshalStrict(data, &rules); err != nil {
		return rules, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}
	return rules, nil
}

// Validate checks the configuration for values the service cannot start with
func (c *Config) Validate() error {
	var errs []error

	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("PORT must be numeric, got %q", c.Port))
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text, got %q", c.LogFormat))
	}
	if c.BaselineWindow <= 0 || c.BaselineWindow > maxBaselineWindow {
		errs = append(errs, fmt.Errorf("BASELINE_WINDOW must be between 1 and %d", maxBaselineWindow))
	}
	if c.CaseListLimit <= 0 || c.CaseListLimit > maxCaseListLimit {
		errs = append(errs, fmt.Errorf("CASE_LIST_LIMIT must be between 1 and %d", maxCaseListLimit))
	}
	if c.CheckpointInterval < 0 {
		errs = append(errs, errors.New("CHECKPOINT_INTERVAL must not be negative"))
	}
	if c.RateLimitRPM < 0 {
		errs = append(errs, errors.New("RATE_LIMIT_RPM must not be negative"))
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if err := c.Rules.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("invalid risk rules: %w", err))
	}

	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
