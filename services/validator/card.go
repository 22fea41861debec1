package validator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"iapgate/core/receipt"
)

const defaultStripeVersion = "2025-09-30.clover"

// Card validates hosted checkout payments by retrieving the PaymentIntent.
type Card struct {
	API *Endpoint
}

// NewCard builds a card processor validator.
func NewCard(api *Endpoint) *Card {
	return &Card{API: api}
}

type paymentIntent struct {
	ID            string            `json:"id"`
	Status        string            `json:"status"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
	PaymentMethod json.RawMessage   `json:"payment_method"`
	Livemode      bool              `json:"livemode"`
	Created       int64             `json:"created"`
}

// paymentRecord is the subset of the intent kept with the receipt.
type paymentRecord struct {
	ID            string          `json:"id"`
	Status        string          `json:"status"`
	Amount        int64           `json:"amount"`
	Currency      string          `json:"currency"`
	Created       int64           `json:"created"`
	PaymentMethod json.RawMessage `json:"payment_method,omitempty"`
	Livemode      bool            `json:"livemode"`
}

func (c *Card) Validate(ctx context.Context, req Request, creds Credentials) Result {
	secret := creds.Stripe.SecretKey
	if req.Store.Sandbox() {
		secret = creds.Stripe.TestSecretKey
	}
	if secret == "" {
		return invalid(fmt.Sprintf("Invalid Stripe request: no secret key for %s", req.Store))
	}
	version := creds.Stripe.APIVersion
	if version == "" {
		version = defaultStripeVersion
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.API.BaseURL+"/v1/payment_intents/"+url.PathEscape(req.OrderID), nil)
	if err != nil {
		return invalid(fmt.Sprintf("Invalid Stripe request: %v", err))
	}
	httpReq.Header.Set("Authorization", "Bearer "+secret)
	httpReq.Header.Set("Stripe-Version", version)
	resp, err := c.API.do(ctx, httpReq)
	if err != nil {
		return transportResult("Stripe request failed", err)
	}
	if !resp.ok() {
		msg := fmt.Sprintf("Invalid Stripe request: status %d: %s", resp.status, resp.text())
		if resp.transient() {
			return retryable(msg)
		}
		return invalid(msg)
	}
	var intent paymentIntent
	if err := json.Unmarshal(resp.body, &intent); err != nil {
		return invalid(fmt.Sprintf("Invalid Stripe request: %v", err))
	}
	raw, _ := json.Marshal(paymentRecord{
		ID:            intent.ID,
		Status:        intent.Status,
		Amount:        intent.Amount,
		Currency:      intent.Currency,
		Created:       intent.Created,
		PaymentMethod: intent.PaymentMethod,
		Livemode:      intent.Livemode,
	})
	purchase := &receipt.NormalizedPurchase{
		OrderID:     req.OrderID,
		ProductID:   intent.Metadata["productId"],
		PurchasedAt: time.Unix(intent.Created, 0).UTC(),
		Store:       req.Store,
		Raw:         raw,
	}
	fail := func(msg string) Result {
		return Result{Outcome: OutcomeInvalid, Message: msg, Purchase: purchase}
	}
	if intent.Status != "succeeded" {
		return fail(fmt.Sprintf("Payment %s not succeeded: %s", intent.ID, intent.Status))
	}
	if purchase.ProductID != req.ProductID {
		return fail(fmt.Sprintf("Product ID mismatch: expected %s, got %s", req.ProductID, purchase.ProductID))
	}
	if req.Currency != "" && !strings.EqualFold(intent.Currency, req.Currency) {
		return fail(fmt.Sprintf("Currency mismatch: expected %s, got %s", strings.ToLower(req.Currency), intent.Currency))
	}
	if expected := MinorAmount(req.Price); intent.Amount != expected {
		return fail(fmt.Sprintf("Amount mismatch: expected %d, got %d", expected, intent.Amount))
	}
	return valid(purchase)
}

// MinorAmount is the charge in cents for a major unit price, rounded half to
// even.
func MinorAmount(price decimal.Decimal) int64 {
	return price.Mul(decimal.NewFromInt(100)).RoundBank(0).IntPart()
}
