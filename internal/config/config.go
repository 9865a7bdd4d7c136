// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache and dispatch queue (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Public base URL for links embedded in emails (e.g., https://apodmail.example.com)
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:8080"`

	// Mailer service endpoint; dispatched emails are POSTed here
	MailerURL string `env:"MAILER_URL" envDefault:""`

	// APOD archive root; overridable for tests and mirrors
	APODBaseURL string `env:"APOD_BASE_URL" envDefault:"https://apod.nasa.gov/apod"`

	// Google Analytics measurement ID for the open-tracking pixel; empty disables tracking
	GAMeasurementID string `env:"GA_MEASUREMENT_ID" envDefault:""`

	// Admin key (argon2 hash) gating stats generation, backfill and digest dispatch
	AdminKeyHash string `env:"ADMIN_KEY_HASH" envDefault:""`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting for the public signup/unsubscribe surface
	RateLimitSignupEnabled bool `env:"RATE_LIMIT_SIGNUP_ENABLED" envDefault:"true"`
	RateLimitSignupRPS     int  `env:"RATE_LIMIT_SIGNUP_RPS" envDefault:"5"`
	RateLimitSignupBurst   int  `env:"RATE_LIMIT_SIGNUP_BURST" envDefault:"10"`

	// CORS configuration for the public signup form
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://www.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
