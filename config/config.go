package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the runtime configuration of the gate daemon.
type Config struct {
	Service     string `toml:"Service"`
	Environment string `toml:"Environment"`
	// Production disables the TEST store.
	Production  bool     `toml:"Production"`
	OpsListen   string   `toml:"OpsListen"`
	CatalogPath string   `toml:"CatalogPath"`
	HTTPTimeout Duration `toml:"HTTPTimeout"`
	// Stores lists the enabled store names; empty enables every store with credentials.
	Stores []string `toml:"Stores"`

	Database   Database   `toml:"database"`
	Redis      Redis      `toml:"redis"`
	Logging    Logging    `toml:"logging"`
	Telemetry  Telemetry  `toml:"telemetry"`
	Settlement Settlement `toml:"settlement"`
	Apple      Apple      `toml:"apple"`
	Google     Google     `toml:"google"`
	Stripe     Stripe     `toml:"stripe"`
}

const (
	envService      = "IAPGATE_SERVICE"
	envEnvironment  = "IAPGATE_ENV"
	envProduction   = "IAPGATE_PRODUCTION"
	envOpsListen    = "IAPGATE_OPS_LISTEN"
	envCatalog      = "IAPGATE_CATALOG"
	envStores       = "IAPGATE_STORES"
	envDBDriver     = "IAPGATE_DB_DRIVER"
	envDBDSN        = "IAPGATE_DB_DSN"
	envRedisAddr    = "IAPGATE_REDIS_ADDR"
	envRedisPass    = "IAPGATE_REDIS_PASSWORD"
	envLogLevel     = "IAPGATE_LOG_LEVEL"
	envLogFile      = "IAPGATE_LOG_FILE"
	envOTLPEndpoint = "IAPGATE_OTLP_ENDPOINT"
	envWorkers      = "IAPGATE_SETTLEMENT_WORKERS"
	envRetry        = "IAPGATE_RETRY_INTERVAL"
	envAppleKey     = "IAPGATE_APPLE_PRIVATE_KEY"
	envGoogleCreds  = "IAPGATE_GOOGLE_CREDENTIALS"
	envStripeSecret = "IAPGATE_STRIPE_SECRET_KEY"
)

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load decodes the TOML file at path, fills defaults, then applies
// IAPGATE_* environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if strings.TrimSpace(path) != "" {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
		}
	}
	applyDefaults(cfg)
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Service) == "" {
		cfg.Service = "iapgated"
	}
	if strings.TrimSpace(cfg.Environment) == "" {
		cfg.Environment = "development"
	}
	if cfg.OpsListen == "" {
		cfg.OpsListen = ":9090"
	}
	if cfg.CatalogPath == "" {
		cfg.CatalogPath = "catalog.yaml"
	}
	if cfg.HTTPTimeout.Duration <= 0 {
		cfg.HTTPTimeout.Duration = 10 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}
	if cfg.Redis.LockTTL.Duration <= 0 {
		cfg.Redis.LockTTL.Duration = 30 * time.Second
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB <= 0 {
		cfg.Logging.MaxSizeMB = 100
	}
	if cfg.Logging.MaxBackups <= 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays <= 0 {
		cfg.Logging.MaxAgeDays = 14
	}
	if cfg.Settlement.RetryInterval.Duration <= 0 {
		cfg.Settlement.RetryInterval.Duration = time.Minute
	}
	if cfg.Settlement.StaleAfter.Duration <= 0 {
		cfg.Settlement.StaleAfter.Duration = 2 * time.Minute
	}
	if cfg.Settlement.Workers <= 0 {
		cfg.Settlement.Workers = 4
	}
	if cfg.Settlement.BatchSize <= 0 {
		cfg.Settlement.BatchSize = 100
	}
	if cfg.Settlement.AttemptTimeout.Duration <= 0 {
		cfg.Settlement.AttemptTimeout.Duration = 30 * time.Second
	}
	if cfg.Apple.BaseURL == "" {
		cfg.Apple.BaseURL = "https://api.storekit.itunes.apple.com"
	}
	if cfg.Apple.SandboxBaseURL == "" {
		cfg.Apple.SandboxBaseURL = "https://api.storekit-sandbox.itunes.apple.com"
	}
	if cfg.Apple.RetryBackoff.Duration <= 0 {
		cfg.Apple.RetryBackoff.Duration = time.Second
	}
	if cfg.Google.BaseURL == "" {
		cfg.Google.BaseURL = "https://androidpublisher.googleapis.com"
	}
	if cfg.Google.TokenURL == "" {
		cfg.Google.TokenURL = "https://oauth2.googleapis.com/token"
	}
	if cfg.Stripe.BaseURL == "" {
		cfg.Stripe.BaseURL = "https://api.stripe.com"
	}
	if cfg.Stripe.APIVersion == "" {
		cfg.Stripe.APIVersion = "2025-09-30.clover"
	}
	for _, rl := range []*RateLimit{&cfg.Apple.RateLimit, &cfg.Google.RateLimit, &cfg.Stripe.RateLimit} {
		if rl.PerSecond <= 0 {
			rl.PerSecond = 20
		}
		if rl.Burst <= 0 {
			rl.Burst = 40
		}
	}
}

func applyEnv(cfg *Config) {
	cfg.Service = getEnvDefault(envService, cfg.Service)
	cfg.Environment = getEnvDefault(envEnvironment, cfg.Environment)
	cfg.Production = parseBoolEnv(envProduction, cfg.Production)
	cfg.OpsListen = getEnvDefault(envOpsListen, cfg.OpsListen)
	cfg.CatalogPath = getEnvDefault(envCatalog, cfg.CatalogPath)
	cfg.Stores = parseCSVEnv(envStores, cfg.Stores)
	cfg.Database.Driver = getEnvDefault(envDBDriver, cfg.Database.Driver)
	cfg.Database.DSN = getEnvDefault(envDBDSN, cfg.Database.DSN)
	cfg.Redis.Addr = getEnvDefault(envRedisAddr, cfg.Redis.Addr)
	cfg.Redis.Password = getEnvDefault(envRedisPass, cfg.Redis.Password)
	cfg.Logging.Level = getEnvDefault(envLogLevel, cfg.Logging.Level)
	cfg.Logging.File = getEnvDefault(envLogFile, cfg.Logging.File)
	cfg.Telemetry.Endpoint = getEnvDefault(envOTLPEndpoint, cfg.Telemetry.Endpoint)
	cfg.Settlement.Workers = parseIntEnv(envWorkers, cfg.Settlement.Workers)
	cfg.Settlement.RetryInterval.Duration = parseDurationDefault(envRetry, cfg.Settlement.RetryInterval.Duration)
	cfg.Apple.PrivateKey = getEnvDefault(envAppleKey, cfg.Apple.PrivateKey)
	cfg.Google.CredentialsJSON = getEnvDefault(envGoogleCreds, cfg.Google.CredentialsJSON)
	cfg.Stripe.SecretKey = getEnvDefault(envStripeSecret, cfg.Stripe.SecretKey)
}

// PrivateKeyPEM returns the inline key or the contents of PrivateKeyFile.
func (a Apple) PrivateKeyPEM() ([]byte, error) {
	if strings.TrimSpace(a.PrivateKey) != "" {
		return []byte(a.PrivateKey), nil
	}
	if strings.TrimSpace(a.PrivateKeyFile) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(a.PrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read apple private key: %w", err)
	}
	return raw, nil
}

// Credentials returns the inline service account JSON or the contents of CredentialsFile.
func (g Google) Credentials() ([]byte, error) {
	if strings.TrimSpace(g.CredentialsJSON) != "" {
		return []byte(g.CredentialsJSON), nil
	}
	if strings.TrimSpace(g.CredentialsFile) == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(g.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read google credentials: %w", err)
	}
	return raw, nil
}

func getEnvDefault(key, def string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return def
}

func parseDurationDefault(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func parseIntEnv(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func parseBoolEnv(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return def
	}
	return b
}

func parseCSVEnv(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
