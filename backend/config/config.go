// Copyright (C) 2025 moltmail.net <dev@moltmail.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads service configuration from MOLTMAIL_-prefixed
// environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Config holds the configuration for the mail router service.
// Environment variables are parsed from the MOLTMAIL_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`

	// HTTP Configuration
	HTTPPort int `envconfig:"HTTP_PORT" default:"8080"`

	// Redis is the only persistence substrate.
	RedisURL string `envconfig:"REDIS_URL" default:"localhost:6379"`

	// Mail domain this deployment answers for (the part after @).
	Domain string `envconfig:"DOMAIN" default:"moltmail.net"`

	// SharedSecret guards mutating actions and the sweep endpoint.
	SharedSecret string `envconfig:"SHARED_SECRET"`

	// RecoveryPublicKey, when set, enables dual encryption of every
	// sealed envelope under this auditor key. Base64 key-codec format.
	RecoveryPublicKey string `envconfig:"RECOVERY_PUBLIC_KEY" default:""`

	// Chain oracle configuration (payment gate + NFT ownership).
	RPCEndpoint      string `envconfig:"RPC_ENDPOINT" default:""`
	TreasuryAddress  string `envconfig:"TREASURY_ADDRESS" default:""`
	TokenContract    string `envconfig:"TOKEN_CONTRACT" default:""`
	MinConfirmations int64  `envconfig:"MIN_CONFIRMATIONS" default:"3"`

	// Tier prices, decimal strings in the asset's smallest unit.
	PriceUpgraded string `envconfig:"PRICE_UPGRADED" default:"5000000000000000"`
	PriceAnnual   string `envconfig:"PRICE_ANNUAL" default:"50000000000000000"`
	PriceFull     string `envconfig:"PRICE_FULL" default:"200000000000000000"`

	// Inbox retention.
	InboxCap         int `envconfig:"INBOX_CAP" default:"100"`
	BasicDecayDays   int `envconfig:"BASIC_DECAY_DAYS" default:"7"`
	UpgradeDecayDays int `envconfig:"UPGRADE_DECAY_DAYS" default:"30"`

	// Cleartext mail provider (fallback delivery + sweep source).
	MailProviderURL   string `envconfig:"MAIL_PROVIDER_URL" default:""`
	MailProviderToken string `envconfig:"MAIL_PROVIDER_TOKEN" default:""`

	// IPFS pinning service, best-effort.
	PinEndpoint string `envconfig:"PIN_ENDPOINT" default:""`
	PinToken    string `envconfig:"PIN_TOKEN" default:""`

	// SweepInterval is the period of the background mailbox sweep.
	// Zero disables the internal ticker (an external cron can still
	// hit the sweep endpoint).
	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
}

// New creates a Config by parsing environment variables.
// Example: MOLTMAIL_HTTP_PORT, MOLTMAIL_REDIS_URL.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("MOLTMAIL", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Int("port", cfg.HTTPPort).
		Str("domain", cfg.Domain).
		Bool("recovery_key", cfg.RecoveryPublicKey != "").
		Bool("chain_oracle", cfg.RPCEndpoint != "").
		Bool("mail_provider", cfg.MailProviderURL != "").
		Int("inbox_cap", cfg.InboxCap).
		Msg("Configuration loaded")

	return &cfg, nil
}

// Validate rejects configurations that cannot serve traffic safely.
func (c *Config) Validate() error {
	if c.SharedSecret == "" && c.Environment == EnvProduction {
		return fmt.Errorf("MOLTMAIL_SHARED_SECRET is required in production")
	}
	if c.InboxCap <= 0 {
		return fmt.Errorf("inbox cap must be positive, got %d", c.InboxCap)
	}
	if c.BasicDecayDays <= 0 || c.UpgradeDecayDays <= 0 {
		return fmt.Errorf("decay windows must be positive")
	}
	if c.UpgradeDecayDays < c.BasicDecayDays {
		return fmt.Errorf("upgraded decay window cannot be shorter than basic")
	}
	return nil
}

// NewForTesting creates a config for tests: no external services, no
// shared secret enforcement.
func NewForTesting() *Config {
	return &Config{
		Environment:      EnvTesting,
		HTTPPort:         8080,
		Domain:           "moltmail.test",
		SharedSecret:     "test-secret",
		MinConfirmations: 1,
		PriceUpgraded:    "1000",
		PriceAnnual:      "10000",
		PriceFull:        "40000",
		InboxCap:         100,
		BasicDecayDays:   7,
		UpgradeDecayDays: 30,
	}
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// BasicDecay returns the retention window for basic accounts.
func (c *Config) BasicDecay() time.Duration {
	return time.Duration(c.BasicDecayDays) * 24 * time.Hour
}

// UpgradeDecay returns the retention window for upgraded accounts.
func (c *Config) UpgradeDecay() time.Duration {
	return time.Duration(c.UpgradeDecayDays) * 24 * time.Hour
}

// GetHTTPAddr returns the HTTP server address
func (c *Config) GetHTTPAddr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
