package config

import (
	"fmt"
	"strings"
	"time"
)

// Duration is a time.Duration that decodes from strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Database selects the receipt store backend.
type Database struct {
	// Driver is "postgres" or "sqlite".
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}

// Redis configures the optional per-order validation lock.
type Redis struct {
	Addr     string   `toml:"Addr"`
	Password string   `toml:"Password"`
	DB       int      `toml:"DB"`
	LockTTL  Duration `toml:"LockTTL"`
}

// Logging controls the structured logger.
type Logging struct {
	Level string `toml:"Level"`
	// File enables a rotated file sink in addition to stdout.
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string            `toml:"Endpoint"`
	Insecure bool              `toml:"Insecure"`
	Headers  map[string]string `toml:"Headers"`
	Metrics  bool              `toml:"Metrics"`
	Traces   bool              `toml:"Traces"`
}

// Settlement tunes the gate and its retry sweep.
type Settlement struct {
	RetryInterval  Duration `toml:"RetryInterval"`
	StaleAfter     Duration `toml:"StaleAfter"`
	Workers        int      `toml:"Workers"`
	BatchSize      int      `toml:"BatchSize"`
	AttemptTimeout Duration `toml:"AttemptTimeout"`
}

// RateLimit bounds outbound calls to one store.
type RateLimit struct {
	PerSecond float64 `toml:"PerSecond"`
	Burst     int     `toml:"Burst"`
}

// Apple holds App Store Server API credentials.
type Apple struct {
	BaseURL        string    `toml:"BaseURL"`
	SandboxBaseURL string    `toml:"SandboxBaseURL"`
	KeyID          string    `toml:"KeyID"`
	IssuerID       string    `toml:"IssuerID"`
	BundleID       string    `toml:"BundleID"`
	BundleIDK      string    `toml:"BundleIDK"`
	PrivateKey     string    `toml:"PrivateKey"`
	PrivateKeyFile string    `toml:"PrivateKeyFile"`
	// LookupPath overrides the App Store Server API route, for example
	// "/inApps/v1/lookup/" when receipts carry invoice order ids.
	LookupPath     string    `toml:"LookupPath"`
	RetryBackoff   Duration  `toml:"RetryBackoff"`
	RateLimit      RateLimit `toml:"rate_limit"`
}

// Google holds Play Developer API credentials.
type Google struct {
	BaseURL         string    `toml:"BaseURL"`
	TokenURL        string    `toml:"TokenURL"`
	PackageName     string    `toml:"PackageName"`
	CredentialsFile string    `toml:"CredentialsFile"`
	CredentialsJSON string    `toml:"CredentialsJSON"`
	RateLimit       RateLimit `toml:"rate_limit"`
}

// Stripe holds card processor credentials.
type Stripe struct {
	BaseURL       string    `toml:"BaseURL"`
	SecretKey     string    `toml:"SecretKey"`
	TestSecretKey string    `toml:"TestSecretKey"`
	APIVersion    string    `toml:"APIVersion"`
	RateLimit     RateLimit `toml:"rate_limit"`
}
