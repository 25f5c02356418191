// Package config loads engine configuration from the environment.
//
// A .env file in the working directory is applied first when present, so
// local development does not need exported variables. Real environments win
// over the file.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	Port   int    `env:"PORT" envDefault:"8080"`
	DBPath string `env:"DB_PATH" envDefault:"deals.db"` // empty = in-memory store

	// RevenueRate is currency per kilowatt. Operators pricing per watt
	// configure the x1000 value themselves; the engine never converts units.
	RevenueRate     float64 `env:"REVENUE_RATE" envDefault:"3.50"`
	IDBase          int64   `env:"ID_BASE" envDefault:"1000"`
	LeaderboardSize int     `env:"LEADERBOARD_SIZE" envDefault:"5"`

	// AdminIDs are the representative IDs allowed to delete deals and reset
	// the ledger. Empty means deletes are trusted to be pre-authorized by
	// the caller.
	AdminIDs []string `env:"ADMIN_IDS" envSeparator:","`

	LogLevel       string   `env:"LOG_LEVEL" envDefault:"info"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load reads .env (best effort) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.RevenueRate <= 0 {
		return fmt.Errorf("REVENUE_RATE must be positive, got %v", c.RevenueRate)
	}
	if c.IDBase < 0 {
		return fmt.Errorf("ID_BASE must not be negative, got %d", c.IDBase)
	}
	if c.LeaderboardSize <= 0 {
		return fmt.Errorf("LEADERBOARD_SIZE must be positive, got %d", c.LeaderboardSize)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("PORT out of range: %d", c.Port)
	}
	return nil
}

// RevenueRateDecimal returns the rate in the exact representation the
// engine uses.
func (c *Config) RevenueRateDecimal() decimal.Decimal {
	return decimal.NewFromFloat(c.RevenueRate)
}
