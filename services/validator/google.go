package validator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"iapgate/core/receipt"
)

const googleScope = "https://www.googleapis.com/auth/androidpublisher"

var googlePurchaseStates = map[int]string{0: "PURCHASED", 1: "CANCELED", 2: "PENDING"}

// Google validates Play Store one-time products through the Play Developer
// API, authenticating with a service account assertion.
type Google struct {
	API   *Endpoint
	Token *Endpoint
	now   func() time.Time

	flight singleflight.Group
	mu     sync.Mutex
	bearer string
	owner  string
	expiry time.Time
}

// NewGoogle builds a Play Store validator. token is the OAuth endpoint the
// service account assertion is exchanged at.
func NewGoogle(api, token *Endpoint) *Google {
	return &Google{API: api, Token: token, now: time.Now}
}

type googlePurchase struct {
	Kind                 string `json:"kind"`
	PurchaseTimeMillis   string `json:"purchaseTimeMillis"`
	PurchaseState        int    `json:"purchaseState"`
	ConsumptionState     int    `json:"consumptionState"`
	AcknowledgementState int    `json:"acknowledgementState"`
	OrderID              string `json:"orderId"`
	ProductID            string `json:"productId"`
	PurchaseType         *int   `json:"purchaseType"`
}

func (g *Google) Validate(ctx context.Context, req Request, creds Credentials) Result {
	if req.PurchaseToken == "" || req.ProductID == "" {
		return invalid("Error occurred validating google receipt: purchase token and product id are required")
	}
	resp, err := g.call(ctx, http.MethodGet, g.purchaseURL(req, creds.Google, ""), creds.Google)
	if err != nil {
		return transportResult("Error occurred validating google receipt", err)
	}
	if !resp.ok() {
		msg := fmt.Sprintf("Error occurred validating google receipt: status %d: %s", resp.status, resp.text())
		if resp.transient() {
			return retryable(msg)
		}
		return invalid(msg)
	}
	var purchase googlePurchase
	if err := json.Unmarshal(resp.body, &purchase); err != nil {
		return invalid(fmt.Sprintf("Error occurred validating google receipt: %v", err))
	}
	normalized := &receipt.NormalizedPurchase{
		OrderID:     req.OrderID,
		ProductID:   req.ProductID,
		PurchasedAt: googlePurchaseTime(purchase.PurchaseTimeMillis, req.PurchasedAt),
		Store:       req.Store,
		Raw:         resp.body,
	}
	if purchase.PurchaseState != 0 {
		name, ok := googlePurchaseStates[purchase.PurchaseState]
		if !ok {
			name = strconv.Itoa(purchase.PurchaseState)
		}
		return Result{
			Outcome:  OutcomeInvalid,
			Message:  fmt.Sprintf("Purchase state of this receipt is not valid: %s", name),
			Purchase: normalized,
		}
	}
	if purchase.OrderID != req.OrderID {
		return Result{
			Outcome:  OutcomeInvalid,
			Message:  fmt.Sprintf("Order ID mismatch from request and token: %s :: %s", req.OrderID, purchase.OrderID),
			Purchase: normalized,
		}
	}
	return valid(normalized)
}

// Acknowledge tells Play the purchase was delivered.
func (g *Google) Acknowledge(ctx context.Context, req Request, creds Credentials) error {
	return g.post(ctx, req, creds, ":acknowledge")
}

func (g *Google) post(ctx context.Context, req Request, creds Credentials, verb string) error {
	resp, err := g.call(ctx, http.MethodPost, g.purchaseURL(req, creds.Google, verb), creds.Google)
	if err != nil {
		return &receipt.TransientFailure{Store: req.Store, Reason: "google" + verb, Err: err}
	}
	if resp.status/100 != 2 {
		return &receipt.TransientFailure{Store: req.Store, Reason: fmt.Sprintf("google%s: status %d: %s", verb, resp.status, resp.text())}
	}
	return nil
}

func (g *Google) purchaseURL(req Request, creds GoogleCredentials, verb string) string {
	pkg := req.PackageName
	if pkg == "" {
		pkg = creds.PackageName
	}
	return fmt.Sprintf("%s/androidpublisher/v3/applications/%s/purchases/products/%s/tokens/%s%s",
		g.API.BaseURL, url.PathEscape(pkg), url.PathEscape(req.ProductID), url.PathEscape(req.PurchaseToken), verb)
}

func (g *Google) call(ctx context.Context, method, target string, creds GoogleCredentials) (response, error) {
	bearer, err := g.accessToken(ctx, creds)
	if err != nil {
		return response{}, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return response{}, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+bearer)
	return g.API.do(ctx, httpReq)
}

// accessToken returns the cached bearer token or exchanges a signed service
// account assertion for a new one. Concurrent callers share one exchange
// but each stops waiting when its own ctx is done.
func (g *Google) accessToken(ctx context.Context, creds GoogleCredentials) (string, error) {
	g.mu.Lock()
	if g.bearer != "" && g.owner == creds.ClientEmail && g.clock().Before(g.expiry) {
		bearer := g.bearer
		g.mu.Unlock()
		return bearer, nil
	}
	g.mu.Unlock()
	if creds.PrivateKey == nil || creds.ClientEmail == "" {
		return "", errors.New("google service account not configured")
	}
	ch := g.flight.DoChan(creds.ClientEmail, func() (any, error) {
		return g.refresh(context.WithoutCancel(ctx), creds)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// refresh performs the token exchange and caches the result until shortly
// before it expires. The endpoint client timeout bounds it.
func (g *Google) refresh(ctx context.Context, creds GoogleCredentials) (string, error) {
	now := g.clock()
	tokenURL := creds.TokenURL
	if tokenURL == "" {
		tokenURL = g.Token.BaseURL
	}
	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   creds.ClientEmail,
		"scope": googleScope,
		"aud":   tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}).SignedString(creds.PrivateKey)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := g.Token.do(ctx, httpReq)
	if err != nil {
		return "", err
	}
	if !resp.ok() {
		return "", &statusError{op: "token exchange", resp: resp}
	}
	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.body, &token); err != nil {
		return "", fmt.Errorf("decode token: %w", err)
	}
	if token.AccessToken == "" {
		return "", errors.New("token exchange returned no access token")
	}
	g.mu.Lock()
	g.bearer = token.AccessToken
	g.owner = creds.ClientEmail
	g.expiry = now.Add(time.Duration(token.ExpiresIn)*time.Second - time.Minute)
	g.mu.Unlock()
	return token.AccessToken, nil
}

func (g *Google) clock() time.Time {
	if g.now == nil {
		return time.Now()
	}
	return g.now()
}

func googlePurchaseTime(millis string, fallback time.Time) time.Time {
	ms, err := strconv.ParseInt(millis, 10, 64)
	if err != nil || ms <= 0 {
		return fallback.UTC()
	}
	return time.UnixMilli(ms).UTC()
}
