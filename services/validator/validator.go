// Package validator reconciles client receipts against the storefront that
// issued them. Every validator reports one of three outcomes and never
// returns an error: ambiguous failures are RETRYABLE, denials are INVALID.
package validator

import (
	"context"
	"crypto/ecdsa"
	"crypto/rsa"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"iapgate/core/receipt"
)

// Outcome is the tri-state result of a validation attempt.
type Outcome int

const (
	OutcomeValid Outcome = iota + 1
	OutcomeInvalid
	OutcomeRetryable
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValid:
		return "valid"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeRetryable:
		return "retryable"
	default:
		return "unknown"
	}
}

// Result is what a validator learned from the store.
type Result struct {
	Outcome Outcome
	Message string
	// Purchase is set for VALID results and, when the store returned enough
	// data, for INVALID ones.
	Purchase *receipt.NormalizedPurchase
	// Refunded marks an INVALID result caused by the buyer revoking the
	// purchase at the store.
	Refunded bool
}

// Err converts a non-VALID result into the matching receipt error kind.
func (r Result) Err(store receipt.Store) error {
	switch r.Outcome {
	case OutcomeValid:
		return nil
	case OutcomeInvalid:
		return &receipt.ValidationFailure{Store: store, Reason: r.Message}
	default:
		return &receipt.TransientFailure{Store: store, Reason: r.Message}
	}
}

func valid(p *receipt.NormalizedPurchase) Result {
	return Result{Outcome: OutcomeValid, Purchase: p}
}

func invalid(msg string) Result {
	return Result{Outcome: OutcomeInvalid, Message: msg}
}

func retryable(msg string) Result {
	return Result{Outcome: OutcomeRetryable, Message: msg}
}

// Request carries the receipt fields a validator needs.
type Request struct {
	Store         receipt.Store
	OrderID       string
	ProductID     string
	PurchaseToken string
	PackageName   string
	PurchasedAt   time.Time
	// Price and Currency are the catalog's expected charge for card payments.
	Price    decimal.Decimal
	Currency string
	Data     json.RawMessage
}

// Credentials are the per-store secrets handed to every validation call.
type Credentials struct {
	// Production refuses the TEST store.
	Production bool
	Apple      AppleCredentials
	Google     GoogleCredentials
	Stripe     StripeCredentials
}

// AppleCredentials sign the App Store Server API bearer token.
type AppleCredentials struct {
	KeyID      string
	IssuerID   string
	BundleID   string
	BundleIDK  string
	PrivateKey *ecdsa.PrivateKey
}

// GoogleCredentials identify the Play Developer API service account.
type GoogleCredentials struct {
	PackageName string
	ClientEmail string
	PrivateKey  *rsa.PrivateKey
	TokenURL    string
}

// StripeCredentials authenticate card processor lookups.
type StripeCredentials struct {
	SecretKey     string
	TestSecretKey string
	APIVersion    string
}

// Validator checks one receipt against its store.
type Validator interface {
	Validate(ctx context.Context, req Request, creds Credentials) Result
}

// Acknowledger is implemented by stores that expect an explicit
// acknowledgement once the purchase has been settled locally.
type Acknowledger interface {
	Acknowledge(ctx context.Context, req Request, creds Credentials) error
}
