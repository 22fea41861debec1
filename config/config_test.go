package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"iapgate/core/receipt"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "iapgate.toml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadParsesSections(t *testing.T) {
	path := writeConfig(t, `Service = "iapgated-test"
Environment = "staging"
OpsListen = "127.0.0.1:9191"
CatalogPath = "/etc/iapgate/catalog.yaml"
HTTPTimeout = "3s"
Stores = ["TEST", "GOOGLE"]

[database]
Driver = "sqlite"
DSN = "file:iapgate.db"

[redis]
Addr = "localhost:6379"
LockTTL = "45s"

[logging]
Level = "debug"
File = "/var/log/iapgate.log"

[settlement]
RetryInterval = "30s"
StaleAfter = "5m"
Workers = 8
AttemptTimeout = "20s"

[apple]
KeyID = "KEY123"
IssuerID = "issuer"
BundleID = "com.example.app"
LookupPath = "/inApps/v1/lookup/"
RetryBackoff = "250ms"

[apple.rate_limit]
PerSecond = 5
Burst = 10
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Service != "iapgated-test" || cfg.Environment != "staging" {
		t.Fatalf("unexpected identity: %s/%s", cfg.Service, cfg.Environment)
	}
	if cfg.HTTPTimeout.Duration != 3*time.Second {
		t.Fatalf("unexpected http timeout: %s", cfg.HTTPTimeout)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "file:iapgate.db" {
		t.Fatalf("unexpected database: %+v", cfg.Database)
	}
	if cfg.Redis.LockTTL.Duration != 45*time.Second {
		t.Fatalf("unexpected lock ttl: %s", cfg.Redis.LockTTL)
	}
	if cfg.Settlement.Workers != 8 || cfg.Settlement.StaleAfter.Duration != 5*time.Minute {
		t.Fatalf("unexpected settlement: %+v", cfg.Settlement)
	}
	if cfg.Apple.LookupPath != "/inApps/v1/lookup/" {
		t.Fatalf("unexpected apple lookup path: %q", cfg.Apple.LookupPath)
	}
	if cfg.Apple.RetryBackoff.Duration != 250*time.Millisecond {
		t.Fatalf("unexpected apple backoff: %s", cfg.Apple.RetryBackoff)
	}
	if cfg.Apple.RateLimit.PerSecond != 5 || cfg.Apple.RateLimit.Burst != 10 {
		t.Fatalf("unexpected apple rate limit: %+v", cfg.Apple.RateLimit)
	}
	if cfg.Google.RateLimit.PerSecond != 20 {
		t.Fatalf("expected default google rate limit, got %+v", cfg.Google.RateLimit)
	}
	stores, err := cfg.EnabledStores()
	if err != nil {
		t.Fatalf("enabled stores: %v", err)
	}
	if len(stores) != 2 || stores[0] != receipt.StoreTest || stores[1] != receipt.StoreGoogle {
		t.Fatalf("unexpected stores: %v", stores)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `Unknown = 1
[database]
DSN = "x"
`)
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "Unknown") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `[database]
DSN = "postgres://localhost/iap"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Fatalf("expected postgres default, got %s", cfg.Database.Driver)
	}
	if cfg.Settlement.RetryInterval.Duration != time.Minute {
		t.Fatalf("unexpected retry interval: %s", cfg.Settlement.RetryInterval)
	}
	if cfg.Apple.RetryBackoff.Duration != time.Second {
		t.Fatalf("unexpected apple backoff: %s", cfg.Apple.RetryBackoff)
	}
	if cfg.Stripe.APIVersion == "" || cfg.Google.TokenURL == "" {
		t.Fatalf("expected store defaults to be populated")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(envDBDSN, "file::memory:")
	t.Setenv(envDBDriver, "sqlite")
	t.Setenv(envWorkers, "12")
	t.Setenv(envRetry, "15s")
	t.Setenv(envStripeSecret, "sk_live_123")
	t.Setenv(envStores, "WEB, TEST")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Database.DSN != "file::memory:" || cfg.Settlement.Workers != 12 {
		t.Fatalf("env overrides not applied: %+v %+v", cfg.Database, cfg.Settlement)
	}
	if cfg.Settlement.RetryInterval.Duration != 15*time.Second {
		t.Fatalf("unexpected retry interval: %s", cfg.Settlement.RetryInterval)
	}
	if cfg.Stripe.SecretKey != "sk_live_123" {
		t.Fatalf("stripe secret not applied")
	}
	stores, _ := cfg.EnabledStores()
	if len(stores) != 2 || stores[0] != receipt.StoreWeb {
		t.Fatalf("unexpected stores: %v", stores)
	}
}

func TestValidateRejectsTestStoreInProduction(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = "postgres://localhost/iap"
	cfg.Production = true
	cfg.Stores = []string{"TEST"}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected production TEST store to be rejected")
	}
	cfg.Stores = nil
	stores, err := cfg.EnabledStores()
	if err != nil {
		t.Fatalf("enabled stores: %v", err)
	}
	for _, s := range stores {
		if s == receipt.StoreTest {
			t.Fatalf("TEST store enabled implicitly in production")
		}
	}
}

func TestValidateRequiresDSN(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected missing DSN to fail")
	}
	cfg.Database.DSN = "x"
	cfg.Database.Driver = "mysql"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unsupported driver to fail")
	}
}

func TestCredentialsFromFile(t *testing.T) {
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "apple.p8")
	if err := os.WriteFile(keyPath, []byte("PEM"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}
	raw, err := Apple{PrivateKeyFile: keyPath}.PrivateKeyPEM()
	if err != nil || string(raw) != "PEM" {
		t.Fatalf("unexpected key: %q %v", raw, err)
	}
	raw, err = Google{CredentialsJSON: "{}"}.Credentials()
	if err != nil || string(raw) != "{}" {
		t.Fatalf("unexpected inline credentials: %q %v", raw, err)
	}
	if _, err := (Google{CredentialsFile: filepath.Join(dir, "missing.json")}).Credentials(); err == nil {
		t.Fatalf("expected missing credentials file to fail")
	}
}
