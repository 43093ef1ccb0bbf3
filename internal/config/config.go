// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds everything the server and admin CLI need at startup.
type Config struct {
	HTTPAddr      string
	StorageDriver string
	DatabaseURL   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret string

	Adjudicator AdjudicatorConfig

	InvitationTTL time.Duration

	LogLevel  string
	LogFormat string
}

// AdjudicatorConfig selects and configures the adjudication backend.
type AdjudicatorConfig struct {
	Provider   string // "heuristic" or "http"
	BaseURL    string
	APIKey     string
	Model      string
	Timeout    time.Duration
	PromptFile string
}

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"

	ProviderHeuristic = "heuristic"
	ProviderHTTP      = "http"
)

// SetDefaults registers default values with v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ARBITER_HTTP_ADDR", ":8080")
	v.SetDefault("STORAGE_DRIVER", StorageDriverPostgres)
	v.SetDefault("DATABASE_URL", "host=localhost user=user password=password dbname=arbiterdb port=5432 sslmode=disable")
	v.SetDefault("REDIS_ADDR", "localhost:6380")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("ADJUDICATOR_PROVIDER", ProviderHeuristic)
	v.SetDefault("ADJUDICATOR_BASE_URL", "")
	v.SetDefault("ADJUDICATOR_API_KEY", "")
	v.SetDefault("ADJUDICATOR_MODEL", "gpt-4o-mini")
	v.SetDefault("ADJUDICATOR_TIMEOUT", DefaultAdjudicatorTimeout)
	v.SetDefault("ADJUDICATOR_PROMPT_FILE", "")
	v.SetDefault("INVITATION_TTL", InvitationTTL)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load reads an optional .env file (or the given files), then the process
// environment, and validates the result.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load env file: %w", err)
	}

	v := viper.New()
	SetDefaults(v)
	v.AutomaticEnv()

	cfg := FromViper(v)
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return cfg, nil
}

// FromViper builds a Config from v without validating it.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		HTTPAddr:      v.GetString("ARBITER_HTTP_ADDR"),
		StorageDriver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
		DatabaseURL:   v.GetString("DATABASE_URL"),
		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       v.GetInt("REDIS_DB"),
		JWTSecret:     v.GetString("JWT_SECRET"),
		Adjudicator: AdjudicatorConfig{
			Provider:   strings.ToLower(v.GetString("ADJUDICATOR_PROVIDER")),
			BaseURL:    v.GetString("ADJUDICATOR_BASE_URL"),
			APIKey:     v.GetString("ADJUDICATOR_API_KEY"),
			Model:      v.GetString("ADJUDICATOR_MODEL"),
			Timeout:    v.GetDuration("ADJUDICATOR_TIMEOUT"),
			PromptFile: v.GetString("ADJUDICATOR_PROMPT_FILE"),
		},
		InvitationTTL: v.GetDuration("INVITATION_TTL"),
		LogLevel:      v.GetString("LOG_LEVEL"),
		LogFormat:     v.GetString("LOG_FORMAT"),
	}
}

// ValidationError represents a single invalid configuration value.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Validate checks c for invalid values and returns all problems found.
func (c *Config) Validate() []ValidationError {
	var errs []ValidationError

	if c.HTTPAddr == "" {
		errs = append(errs, ValidationError{Field: "ARBITER_HTTP_ADDR", Value: c.HTTPAddr, Message: "must not be empty"})
	}
	switch c.StorageDriver {
	case StorageDriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, ValidationError{Field: "DATABASE_URL", Value: c.DatabaseURL, Message: "required for the postgres driver"})
		}
	case StorageDriverMemory:
	default:
		errs = append(errs, ValidationError{Field: "STORAGE_DRIVER", Value: c.StorageDriver, Message: "must be postgres or memory"})
	}
	if c.RedisDB < 0 {
		errs = append(errs, ValidationError{Field: "REDIS_DB", Value: c.RedisDB, Message: "must be non-negative"})
	}
	if c.JWTSecret == "" {
		errs = append(errs, ValidationError{Field: "JWT_SECRET", Value: "", Message: "must be set"})
	}

	switch c.Adjudicator.Provider {
	case "", ProviderHeuristic:
	case ProviderHTTP:
		if strings.TrimSpace(c.Adjudicator.BaseURL) == "" {
			errs = append(errs, ValidationError{Field: "ADJUDICATOR_BASE_URL", Value: "", Message: "required for the http provider"})
		}
	default:
		errs = append(errs, ValidationError{Field: "ADJUDICATOR_PROVIDER", Value: c.Adjudicator.Provider, Message: "must be heuristic or http"})
	}
	if c.Adjudicator.Timeout <= 0 {
		errs = append(errs, ValidationError{Field: "ADJUDICATOR_TIMEOUT", Value: c.Adjudicator.Timeout, Message: "must be positive"})
	}
	if c.InvitationTTL <= 0 {
		errs = append(errs, ValidationError{Field: "INVITATION_TTL", Value: c.InvitationTTL, Message: "must be positive"})
	}
	if !slices.Contains(ValidLogLevels(), strings.ToLower(c.LogLevel)) {
		errs = append(errs, ValidationError{Field: "LOG_LEVEL", Value: c.LogLevel, Message: "must be one of debug, info, warn, error"})
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, ValidationError{Field: "LOG_FORMAT", Value: c.LogFormat, Message: "must be text or json"})
	}

	return errs
}

// ValidLogLevels returns the accepted LOG_LEVEL values.
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}
