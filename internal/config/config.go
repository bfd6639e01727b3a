// Package config loads daemon settings from the environment, reading a .env
// file first when one is present.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every setting of the daemon.
type Config struct {
	Port string `env:"PORT" envDefault:"10000"`

	OpenAIAPIKey  string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string        `env:"OPENAI_BASE_URL"`
	Model         string        `env:"COMPANION_MODEL" envDefault:"gpt-4o-mini"`
	Temperature   float64       `env:"COMPANION_TEMPERATURE" envDefault:"0.9"`
	MaxTokens     int           `env:"COMPANION_MAX_TOKENS" envDefault:"150"`
	GenTimeout    time.Duration `env:"COMPANION_GENERATION_TIMEOUT" envDefault:"25s"`

	Timezone      string `env:"COMPANION_TIMEZONE" envDefault:"Europe/Istanbul"`
	DailyLimit    int    `env:"COMPANION_DAILY_LIMIT" envDefault:"30"`
	HistoryLimit  int    `env:"COMPANION_HISTORY_LIMIT" envDefault:"20"`
	ContextWindow int    `env:"COMPANION_CONTEXT_WINDOW" envDefault:"20"`
	PersonaFile   string `env:"COMPANION_PERSONA_FILE"`

	RateLimit float64 `env:"COMPANION_RATE_LIMIT" envDefault:"1"`
	RateBurst int     `env:"COMPANION_RATE_BURST" envDefault:"5"`

	LogLevel string `env:"COMPANION_LOG_LEVEL" envDefault:"info"`
	GinMode  string `env:"GIN_MODE" envDefault:"release"`
}

// Load reads the given .env files (default ".env"; missing files are
// ignored) and parses the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		// Existing environment variables win over the file.
		_ = godotenv.Load(f)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if c.OpenAIAPIKey == "" {
		return errors.New("OPENAI_API_KEY is not set")
	}
	if c.DailyLimit <= 0 {
		return fmt.Errorf("COMPANION_DAILY_LIMIT must be positive, got %d", c.DailyLimit)
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("COMPANION_HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	if c.ContextWindow <= 0 {
		return fmt.Errorf("COMPANION_CONTEXT_WINDOW must be positive, got %d", c.ContextWindow)
	}
	if c.RateLimit <= 0 || c.RateBurst <= 0 {
		return errors.New("COMPANION_RATE_LIMIT and COMPANION_RATE_BURST must be positive")
	}
	return nil
}
