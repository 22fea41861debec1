package validator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"iapgate/config"
	"iapgate/core/receipt"
)

type serviceAccount struct {
	ClientEmail string `json:"client_email"`
	PrivateKey  string `json:"private_key"`
	TokenURI    string `json:"token_uri"`
}

// CredentialsFromConfig parses the key material of every configured store.
func CredentialsFromConfig(cfg *config.Config) (Credentials, error) {
	creds := Credentials{
		Production: cfg.Production,
		Apple: AppleCredentials{
			KeyID:     cfg.Apple.KeyID,
			IssuerID:  cfg.Apple.IssuerID,
			BundleID:  cfg.Apple.BundleID,
			BundleIDK: cfg.Apple.BundleIDK,
		},
		Google: GoogleCredentials{
			PackageName: cfg.Google.PackageName,
			TokenURL:    cfg.Google.TokenURL,
		},
		Stripe: StripeCredentials{
			SecretKey:     cfg.Stripe.SecretKey,
			TestSecretKey: cfg.Stripe.TestSecretKey,
			APIVersion:    cfg.Stripe.APIVersion,
		},
	}
	pem, err := cfg.Apple.PrivateKeyPEM()
	if err != nil {
		return Credentials{}, err
	}
	if len(pem) > 0 {
		key, err := jwt.ParseECPrivateKeyFromPEM(pem)
		if err != nil {
			return Credentials{}, fmt.Errorf("apple private key: %w", err)
		}
		creds.Apple.PrivateKey = key
	}
	raw, err := cfg.Google.Credentials()
	if err != nil {
		return Credentials{}, err
	}
	if len(raw) > 0 {
		var sa serviceAccount
		if err := json.Unmarshal(raw, &sa); err != nil {
			return Credentials{}, fmt.Errorf("google credentials: %w", err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(sa.PrivateKey))
		if err != nil {
			return Credentials{}, fmt.Errorf("google private key: %w", err)
		}
		creds.Google.ClientEmail = sa.ClientEmail
		creds.Google.PrivateKey = key
		if creds.Google.TokenURL == "" {
			creds.Google.TokenURL = sa.TokenURI
		}
	}
	return creds, nil
}

// FromConfig builds a registry with a validator for every enabled store.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Registry, error) {
	creds, err := CredentialsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	stores, err := cfg.EnabledStores()
	if err != nil {
		return nil, err
	}
	timeout := cfg.HTTPTimeout.Duration
	registry := NewRegistry(creds, logger)

	var (
		apple  *Apple
		google *Google
		card   *Card
	)
	for _, store := range stores {
		switch store.Family() {
		case receipt.StoreTest:
			registry.Register(store, Synthetic{})
		case receipt.StoreApple:
			if apple == nil {
				rl := cfg.Apple.RateLimit
				apple = NewApple(
					NewEndpoint("APPLE", cfg.Apple.BaseURL, timeout, rl.PerSecond, rl.Burst),
					NewEndpoint("APPLE_TEST", cfg.Apple.SandboxBaseURL, timeout, rl.PerSecond, rl.Burst),
					cfg.Apple.RetryBackoff.Duration,
				)
				if path := strings.TrimSpace(cfg.Apple.LookupPath); path != "" {
					apple.Path = "/" + strings.Trim(path, "/") + "/"
				}
			}
			registry.Register(store, apple)
		case receipt.StoreGoogle:
			if google == nil {
				rl := cfg.Google.RateLimit
				google = NewGoogle(
					NewEndpoint("GOOGLE", cfg.Google.BaseURL, timeout, rl.PerSecond, rl.Burst),
					NewEndpoint("GOOGLE_TOKEN", cfg.Google.TokenURL, timeout, 0, 1),
				)
			}
			registry.Register(store, google)
		case receipt.StoreWeb:
			if card == nil {
				rl := cfg.Stripe.RateLimit
				card = NewCard(NewEndpoint("WEB", cfg.Stripe.BaseURL, timeout, rl.PerSecond, rl.Burst))
			}
			registry.Register(store, card)
		}
	}
	return registry, nil
}
