package config

import (
	"fmt"
	"strings"

	"iapgate/core/receipt"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database: unsupported driver %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database: DSN is required")
	}
	if c.Settlement.Workers <= 0 {
		return fmt.Errorf("settlement: workers must be positive")
	}
	if c.Settlement.StaleAfter.Duration < c.Settlement.AttemptTimeout.Duration {
		return fmt.Errorf("settlement: stale_after must not be shorter than attempt_timeout")
	}
	stores, err := c.EnabledStores()
	if err != nil {
		return err
	}
	for _, s := range stores {
		if s == receipt.StoreTest && c.Production {
			return fmt.Errorf("stores: TEST store cannot be enabled in production")
		}
	}
	return nil
}

// EnabledStores resolves Stores into store codes. An empty list enables the
// TEST store outside production and every store whose credentials are set.
func (c *Config) EnabledStores() ([]receipt.Store, error) {
	if len(c.Stores) > 0 {
		out := make([]receipt.Store, 0, len(c.Stores))
		for _, name := range c.Stores {
			s, err := receipt.ParseStore(name)
			if err != nil {
				return nil, fmt.Errorf("stores: %w", err)
			}
			out = append(out, s)
		}
		return out, nil
	}
	var out []receipt.Store
	if !c.Production {
		out = append(out, receipt.StoreTest)
	}
	if c.Apple.KeyID != "" && c.Apple.IssuerID != "" && (c.Apple.PrivateKey != "" || c.Apple.PrivateKeyFile != "") {
		out = append(out, receipt.StoreApple, receipt.StoreAppleTest)
	}
	if c.Google.CredentialsJSON != "" || c.Google.CredentialsFile != "" {
		out = append(out, receipt.StoreGoogle, receipt.StoreGoogleTest)
	}
	if c.Stripe.SecretKey != "" {
		out = append(out, receipt.StoreWeb)
	}
	if c.Stripe.TestSecretKey != "" {
		out = append(out, receipt.StoreWebTest)
	}
	return out, nil
}
