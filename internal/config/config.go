package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// GuardMode selects how the invoicing guard treats period overlaps
type GuardMode string

const (
	GuardModeStrict GuardMode = "strict"
	GuardModeWarn   GuardMode = "warn"
)

// Config holds all application configuration
type Config struct {
	Database Database
	Secrets  Secrets
	Guard    Guard
	Matcher  Matcher
	Locks    Locks
	Logger   Logger
	Metrics  Metrics
}

// Database holds PostgreSQL configuration
type Database struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// Secrets selects where the database password is resolved from
type Secrets struct {
	Backend      string // env, local, aws, vault
	LocalPath    string
	AWSRegion    string
	AWSSecretID  string
	VaultAddress string
	VaultToken   string
	VaultMount   string
	VaultPath    string
}

// Guard holds invoicing-guard configuration
type Guard struct {
	Mode GuardMode
	// MembershipTokens are the case-insensitive substrings that mark an
	// invoice line as a membership line
	MembershipTokens []string
}

// Matcher holds reconciliation matcher bounds
type Matcher struct {
	// Tolerance is the monetary equality margin (bank rounding, never
	// business adjustments)
	Tolerance      decimal.Decimal
	DateWindowDays int
	MaxCandidates  int // batches considered for subset search
	MaxSubsets     int // subset solutions before the search is ambiguous
}

// Locks holds advisory lock configuration
type Locks struct {
	TTL time.Duration
}

// Logger holds logging configuration
type Logger struct {
	Level       string // debug, info, warn, error
	Development bool
}

// Metrics holds the ops HTTP server configuration
type Metrics struct {
	Port int
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	tolerance, err := decimal.NewFromString(getEnv("AMOUNT_TOLERANCE", "0.02"))
	if err != nil {
		return nil, fmt.Errorf("AMOUNT_TOLERANCE is not a decimal: %w", err)
	}

	mode := GuardMode(getEnv("GUARD_MODE", string(GuardModeStrict)))
	if mode != GuardModeStrict && mode != GuardModeWarn {
		return nil, fmt.Errorf("GUARD_MODE must be strict or warn, got %q", mode)
	}

	cfg := &Config{
		Database: Database{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Database: getEnv("DB_NAME", "sepa_billing"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvAsInt("DB_MIN_CONNS", 5)),
		},
		Secrets: Secrets{
			Backend:      getEnv("SECRETS_BACKEND", "env"),
			LocalPath:    getEnv("SECRETS_LOCAL_PATH", ".secrets"),
			AWSRegion:    getEnv("AWS_REGION", "eu-central-1"),
			AWSSecretID:  getEnv("AWS_DB_SECRET_ID", ""),
			VaultAddress: getEnv("VAULT_ADDR", ""),
			VaultToken:   getEnv("VAULT_TOKEN", ""),
			VaultMount:   getEnv("VAULT_MOUNT", "secret"),
			VaultPath:    getEnv("VAULT_DB_PATH", "sepa-billing/database"),
		},
		Guard: Guard{
			Mode:             mode,
			MembershipTokens: getEnvAsList("MEMBERSHIP_ITEM_TOKENS", []string{"membership", "subscription", "contribution"}),
		},
		Matcher: Matcher{
			Tolerance:      tolerance,
			DateWindowDays: getEnvAsInt("MATCH_DATE_WINDOW_DAYS", 5),
			MaxCandidates:  getEnvAsInt("MATCH_MAX_CANDIDATES", 32),
			MaxSubsets:     getEnvAsInt("MATCH_MAX_SUBSETS", 16),
		},
		Locks: Locks{
			TTL: time.Duration(getEnvAsInt("LOCK_TTL_SECONDS", 300)) * time.Second,
		},
		Logger: Logger{
			Level:       getEnv("LOG_LEVEL", "info"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
		Metrics: Metrics{
			Port: getEnvAsInt("METRICS_PORT", 9090),
		},
	}

	if cfg.Matcher.DateWindowDays < 0 {
		return nil, fmt.Errorf("MATCH_DATE_WINDOW_DAYS must not be negative")
	}
	if cfg.Matcher.Tolerance.IsNegative() {
		return nil, fmt.Errorf("AMOUNT_TOLERANCE must not be negative")
	}
	if len(cfg.Guard.MembershipTokens) == 0 {
		return nil, fmt.Errorf("MEMBERSHIP_ITEM_TOKENS must not be empty")
	}

	return cfg, nil
}

// ConnectionString returns the PostgreSQL connection string
func (c *Database) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
