package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"iapgate/catalog"
	"iapgate/core/receipt"
)

const appleAudience = "appstoreconnect-v1"

const (
	// AppleTransactionPath is Get Transaction Info. It takes the transaction
	// id that Unity receipts carry, which is what Submit stores as order id.
	AppleTransactionPath = "/inApps/v1/transactions/"
	// AppleOrderLookupPath is Look Up Order ID. It takes the customer order
	// id printed on the App Store invoice.
	AppleOrderLookupPath = "/inApps/v1/lookup/"
)

// Apple validates App Store transactions through the App Store Server API.
type Apple struct {
	Production *Endpoint
	Sandbox    *Endpoint
	// Path is the lookup route the receipt order id is appended to.
	Path string
	// Backoff is the pause before the single retry of a non-200 lookup.
	Backoff time.Duration
	now     func() time.Time
}

// NewApple builds an App Store validator.
func NewApple(production, sandbox *Endpoint, backoff time.Duration) *Apple {
	return &Apple{Production: production, Sandbox: sandbox, Path: AppleTransactionPath, Backoff: backoff, now: time.Now}
}

type appleLookup struct {
	Status                int      `json:"status"`
	SignedTransactions    []string `json:"signedTransactions"`
	SignedTransactionInfo string   `json:"signedTransactionInfo"`
}

type appleTransaction struct {
	TransactionID         string `json:"transactionId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	ProductID             string `json:"productId"`
	BundleID              string `json:"bundleId"`
	PurchaseDate          int64  `json:"purchaseDate"`
	RevocationDate        int64  `json:"revocationDate"`
	Environment           string `json:"environment"`
	jwt.RegisteredClaims
}

func (a *Apple) Validate(ctx context.Context, req Request, creds Credentials) Result {
	endpoint := a.Production
	if req.Store.Sandbox() {
		endpoint = a.Sandbox
	}
	if endpoint == nil {
		return invalid(fmt.Sprintf("%s store is not configured", req.Store))
	}
	bundleID := creds.Apple.BundleID
	if req.PackageName == catalog.PackageNameK && creds.Apple.BundleIDK != "" {
		bundleID = creds.Apple.BundleIDK
	}
	token, err := appleBearer(creds.Apple, bundleID, a.clock())
	if err != nil {
		return invalid(fmt.Sprintf("Apple credentials unusable: %v", err))
	}
	path := a.Path
	if path == "" {
		path = AppleTransactionPath
	}
	orderID := url.PathEscape(req.OrderID)
	target := endpoint.BaseURL + path + orderID

	resp, err := a.lookup(ctx, endpoint, target, token)
	if err != nil {
		return transportResult("Apple lookup failed", err)
	}
	if !resp.ok() {
		if err := sleepCtx(ctx, a.Backoff); err != nil {
			return retryable(fmt.Sprintf("Apple lookup interrupted: %v", err))
		}
		resp, err = a.lookup(ctx, endpoint, target, token)
		if err != nil {
			return transportResult("Apple lookup failed", err)
		}
		if !resp.ok() {
			msg := fmt.Sprintf("Purchase state of this receipt is not valid: %s", resp.text())
			if resp.transient() {
				return retryable(msg)
			}
			return invalid(msg)
		}
	}

	var body appleLookup
	if err := json.Unmarshal(resp.body, &body); err != nil {
		return invalid(fmt.Sprintf("Malformed apple transaction data for %s", orderID))
	}
	signed := body.SignedTransactionInfo
	if len(body.SignedTransactions) > 0 {
		signed = body.SignedTransactions[0]
	}
	if body.Status != 0 || signed == "" {
		return invalid(fmt.Sprintf("No transaction found for %s (status %d)", orderID, body.Status))
	}
	tx, err := decodeAppleTransaction(signed)
	if err != nil {
		return invalid(fmt.Sprintf("Malformed apple transaction data for %s", orderID))
	}
	purchase := &receipt.NormalizedPurchase{
		OrderID:     req.OrderID,
		ProductID:   tx.ProductID,
		PurchasedAt: time.UnixMilli(tx.PurchaseDate).UTC(),
		Store:       req.Store,
		Raw:         resp.body,
	}
	if tx.RevocationDate > 0 {
		return Result{
			Outcome:  OutcomeInvalid,
			Message:  fmt.Sprintf("Transaction %s was refunded", tx.TransactionID),
			Purchase: purchase,
			Refunded: true,
		}
	}
	return valid(purchase)
}

func (a *Apple) lookup(ctx context.Context, endpoint *Endpoint, target, token string) (response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return response{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	return endpoint.do(ctx, httpReq)
}

func (a *Apple) clock() time.Time {
	if a.now == nil {
		return time.Now()
	}
	return a.now()
}

// appleBearer signs the short lived ES256 token the App Store Server API
// expects.
func appleBearer(creds AppleCredentials, bundleID string, now time.Time) (string, error) {
	if creds.PrivateKey == nil {
		return "", errors.New("missing private key")
	}
	claims := jwt.MapClaims{
		"iss": creds.IssuerID,
		"iat": now.Unix(),
		"exp": now.Add(60 * time.Second).Unix(),
		"aud": appleAudience,
		"bid": bundleID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	token.Header["kid"] = creds.KeyID
	return token.SignedString(creds.PrivateKey)
}

// decodeAppleTransaction reads a JWS transaction without checking its
// signature; the lookup itself was authenticated.
func decodeAppleTransaction(signed string) (*appleTransaction, error) {
	var tx appleTransaction
	if _, _, err := jwt.NewParser().ParseUnverified(signed, &tx); err != nil {
		return nil, err
	}
	if tx.TransactionID == "" {
		return nil, errors.New("transaction id missing")
	}
	return &tx, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
