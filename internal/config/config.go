package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

var knownWeakKeys = []string{
	"change-me", "admin", "tester", "secret", "password", "test",
}

type Config struct {
	Port              int    `env:"PORT" envDefault:"8080"`
	RedisURL          string `env:"REDIS_URL,required"`
	DatabaseURL       string `env:"DATABASE_URL"`
	AdminAPIKey       string `env:"ADMIN_API_KEY"`
	TesterAPIKey      string `env:"TESTER_API_KEY"`
	FrontendURL       string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	CORSOrigin        string `env:"CORS_ORIGIN" envDefault:"*"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	SessionTTLSeconds int    `env:"SESSION_TTL_SECONDS" envDefault:"7200"`
	MetTTLSeconds     int    `env:"MET_TTL_SECONDS" envDefault:"300"`
	MetCloseDelayMS   int    `env:"MET_CLOSE_DELAY_MS" envDefault:"2000"`
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c *Config) MetTTL() time.Duration {
	return time.Duration(c.MetTTLSeconds) * time.Second
}

func (c *Config) MetCloseDelay() time.Duration {
	return time.Duration(c.MetCloseDelayMS) * time.Millisecond
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// ShareURL builds the link a driver hands to the passenger.
func (c *Config) ShareURL(code string) string {
	return strings.TrimRight(c.FrontendURL, "/") + "/" + code
}

func (c *Config) Validate(isProduction bool) error {
	if c.SessionTTLSeconds <= 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must be positive")
	}
	if c.MetTTLSeconds <= 0 {
		return fmt.Errorf("MET_TTL_SECONDS must be positive")
	}
	if c.MetCloseDelayMS < 0 {
		return fmt.Errorf("MET_CLOSE_DELAY_MS must not be negative")
	}

	if c.AdminAPIKey == "" && c.TesterAPIKey == "" && c.DatabaseURL == "" {
		log.Warn().Msg("no API key source configured: session creation and realtime connections will be rejected")
	}

	if isProduction {
		if err := validateKey("ADMIN_API_KEY", c.AdminAPIKey); err != nil {
			return err
		}
		if err := validateKey("TESTER_API_KEY", c.TesterAPIKey); err != nil {
			return err
		}

		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
		if c.CORSOrigin == "*" {
			log.Warn().Msg("CORS_ORIGIN is * in production: any site can call the API")
		}
	}

	return nil
}

func validateKey(name, value string) error {
	if value == "" {
		return nil
	}
	if len(value) < 24 {
		return fmt.Errorf("%s must be at least 24 characters in production (generate with: go run scripts/generate-api-key.go)", name)
	}
	for _, weak := range knownWeakKeys {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong key in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
