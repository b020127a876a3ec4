package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"nftmarket/native/fees"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 16

// Validate checks the configuration for values marketd cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.ListenAddress) == "" {
		errs = append(errs, errors.New("listen address required"))
	}
	if err := requireAddress("marketplace.Address", c.Marketplace.Address, false); err != nil {
		errs = append(errs, err)
	}
	if err := requireAddress("marketplace.Operator", c.Marketplace.Operator, false); err != nil {
		errs = append(errs, err)
	}
	if err := requireAddress("marketplace.FeeRecipient", c.Marketplace.FeeRecipient, false); err != nil {
		errs = append(errs, err)
	}
	if err := fees.ValidateBps(c.Marketplace.FeeBps); err != nil {
		errs = append(errs, fmt.Errorf("marketplace.FeeBps: %w", err))
	}
	if len(c.Auth.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("auth: secret must be at least %d bytes (set auth.Secret or %s)", MinSecretLength, c.Auth.SecretEnv))
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("rate_limit: requests per second must not be negative"))
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate_limit: burst must be positive"))
	}
	if (c.Telemetry.Metrics || c.Telemetry.Traces) && strings.TrimSpace(c.Telemetry.Endpoint) == "" {
		errs = append(errs, errors.New("telemetry: endpoint required when exporters are enabled"))
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("telemetry: sample ratio %v outside [0,1]", c.Telemetry.SampleRatio))
	}
	if _, err := c.Genesis.Sandbox(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func requireAddress(field, value string, allowZero bool) error {
	trimmed := strings.TrimSpace(value)
	if !common.IsHexAddress(trimmed) {
		return fmt.Errorf("%s: invalid address %q", field, value)
	}
	if !allowZero && common.HexToAddress(trimmed) == (common.Address{}) {
		return fmt.Errorf("%s: zero address not allowed", field)
	}
	return nil
}
