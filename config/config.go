package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config captures runtime configuration for marketd.
type Config struct {
	ListenAddress   string            `toml:"ListenAddress" yaml:"listen"`
	Environment     string            `toml:"Environment" yaml:"environment"`
	DataDir         string            `toml:"DataDir" yaml:"data_dir"`
	ShutdownTimeout Duration          `toml:"ShutdownTimeout" yaml:"shutdown_timeout"`
	Marketplace     MarketplaceConfig `toml:"marketplace" yaml:"marketplace"`
	Archive         ArchiveConfig     `toml:"archive" yaml:"archive"`
	Auth            AuthConfig        `toml:"auth" yaml:"auth"`
	RateLimit       RateLimitConfig   `toml:"rate_limit" yaml:"rate_limit"`
	Telemetry       TelemetryConfig   `toml:"telemetry" yaml:"telemetry"`
	Logging         LoggingConfig     `toml:"logging" yaml:"logging"`
	Genesis         GenesisConfig     `toml:"genesis" yaml:"genesis"`
}

// Load reads configuration from path. Files ending in .yaml or .yml are
// decoded as YAML and everything else as TOML. A missing TOML file is
// created with sandbox defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if isYAML(path) {
			return nil, fmt.Errorf("config file %s not found", path)
		}
		return createDefault(path)
	}

	if isYAML(path) {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}

	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.ListenAddress) == "" {
		cfg.ListenAddress = ":8090"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "sandbox"
	}
	if cfg.ShutdownTimeout.Duration <= 0 {
		cfg.ShutdownTimeout = Duration{Duration: 10 * time.Second}
	}
	if strings.TrimSpace(cfg.Archive.DSN) == "" {
		if cfg.DataDir == "" {
			cfg.Archive.DSN = "file:marketd-archive?mode=memory&cache=shared"
		} else {
			cfg.Archive.DSN = filepath.Join(cfg.DataDir, "archive.db")
		}
	}
	if strings.TrimSpace(cfg.Archive.ExportDir) == "" {
		cfg.Archive.ExportDir = "exports"
		if cfg.DataDir != "" {
			cfg.Archive.ExportDir = filepath.Join(cfg.DataDir, "exports")
		}
	}
	if cfg.Auth.Secret == "" && cfg.Auth.SecretEnv != "" {
		cfg.Auth.Secret = os.Getenv(cfg.Auth.SecretEnv)
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "marketd"
	}
	if cfg.Auth.TokenTTL.Duration <= 0 {
		cfg.Auth.TokenTTL = Duration{Duration: time.Hour}
	}
	if cfg.RateLimit.RequestsPerSecond > 0 && cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = int(cfg.RateLimit.RequestsPerSecond) + 1
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.File != "" {
		if cfg.Logging.MaxSizeMB <= 0 {
			cfg.Logging.MaxSizeMB = 100
		}
		if cfg.Logging.MaxBackups <= 0 {
			cfg.Logging.MaxBackups = 5
		}
	}
}

// Default returns the configuration written for a fresh sandbox. Secrets are
// read from MARKETD_JWT_SECRET.
func Default() *Config {
	cfg := &Config{
		ListenAddress: ":8090",
		DataDir:       "./marketd-data",
		Marketplace: MarketplaceConfig{
			Address:      "0x00000000000000000000000000000000000a11ce",
			Operator:     "0x000000000000000000000000000000000000b0b0",
			FeeRecipient: "0x0000000000000000000000000000000000000fee",
			FeeBps:       250,
		},
		Auth:      AuthConfig{SecretEnv: "MARKETD_JWT_SECRET"},
		RateLimit: RateLimitConfig{RequestsPerSecond: 20, Burst: 40},
		Genesis: GenesisConfig{
			PayableTokens: []string{"0x0000000000000000000000000000000000000000"},
		},
	}
	return cfg
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("default config written to %s: %w", path, err)
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
