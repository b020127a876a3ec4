package config

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so it can be written as a human readable
// string in both TOML and YAML files.
type Duration struct {
	time.Duration
}

// UnmarshalText parses strings such as "15s" (TOML).
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText renders the duration in Go notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	return d.UnmarshalText([]byte(value.Value))
}

// MarketplaceConfig holds the engine's construction parameters.
type MarketplaceConfig struct {
	Address      string `toml:"Address" yaml:"address"`
	Operator     string `toml:"Operator" yaml:"operator"`
	FeeRecipient string `toml:"FeeRecipient" yaml:"fee_recipient"`
	FeeBps       uint32 `toml:"FeeBps" yaml:"fee_bps"`
}

// ArchiveConfig selects the event archive database. DSNs starting with
// postgres:// use PostgreSQL; anything else is a SQLite path or URI.
type ArchiveConfig struct {
	DSN       string `toml:"DSN" yaml:"dsn"`
	ExportDir string `toml:"ExportDir" yaml:"export_dir"`
}

// AuthConfig configures bearer token verification. When Secret is empty the
// value of the SecretEnv environment variable is used.
type AuthConfig struct {
	Secret    string   `toml:"Secret" yaml:"secret"`
	SecretEnv string   `toml:"SecretEnv" yaml:"secret_env"`
	Issuer    string   `toml:"Issuer" yaml:"issuer"`
	TokenTTL  Duration `toml:"TokenTTL" yaml:"token_ttl"`
}

// RateLimitConfig bounds requests per client. A zero rate disables limiting.
type RateLimitConfig struct {
	RequestsPerSecond float64 `toml:"RequestsPerSecond" yaml:"requests_per_second"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Headers  string `toml:"Headers" yaml:"headers"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	Traces   bool   `toml:"Traces" yaml:"traces"`

	// SampleRatio keeps this fraction of traces; 0 keeps all.
	SampleRatio float64 `toml:"SampleRatio" yaml:"sampleRatio"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
	Compress   bool   `toml:"Compress" yaml:"compress"`
}

// BalanceConfig is an account and a decimal amount.
type BalanceConfig struct {
	Account string `toml:"Account" yaml:"account"`
	Amount  string `toml:"Amount" yaml:"amount"`
}

// TokenConfig seeds a fungible token. Allowances are granted to the
// marketplace.
type TokenConfig struct {
	Address    string          `toml:"Address" yaml:"address"`
	Symbol     string          `toml:"Symbol" yaml:"symbol"`
	Decimals   uint8           `toml:"Decimals" yaml:"decimals"`
	Balances   []BalanceConfig `toml:"Balances" yaml:"balances"`
	Allowances []BalanceConfig `toml:"Allowances" yaml:"allowances"`
}

// AssetConfig seeds one asset. ID is decimal or 0x-prefixed hex.
type AssetConfig struct {
	ID    string `toml:"ID" yaml:"id"`
	Owner string `toml:"Owner" yaml:"owner"`
}

// CollectionConfig seeds a collection.
type CollectionConfig struct {
	Address         string        `toml:"Address" yaml:"address"`
	Name            string        `toml:"Name" yaml:"name"`
	Assets          []AssetConfig `toml:"Assets" yaml:"assets"`
	MarketApprovals []string      `toml:"MarketApprovals" yaml:"market_approvals"`
}

// GenesisConfig seeds the sandbox ledgers on first start.
type GenesisConfig struct {
	PayableTokens []string           `toml:"PayableTokens" yaml:"payable_tokens"`
	Native        []BalanceConfig    `toml:"Native" yaml:"native"`
	Tokens        []TokenConfig      `toml:"Tokens" yaml:"tokens"`
	Collections   []CollectionConfig `toml:"Collections" yaml:"collections"`
}
