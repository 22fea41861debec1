package validator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"

	"iapgate/observability"
)

const maxResponseBytes = 1 << 20

// Endpoint is the shared HTTP plumbing of the store validators: a base URL,
// an instrumented client, and a rate limiter.
type Endpoint struct {
	BaseURL string
	Client  *http.Client
	Limiter *rate.Limiter
	label   string
}

// NewEndpoint builds an endpoint limited to perSecond requests with burst.
// A non-positive perSecond disables limiting.
func NewEndpoint(label, baseURL string, timeout time.Duration, perSecond float64, burst int) *Endpoint {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Endpoint{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		Limiter: rate.NewLimiter(limit, burst),
		label:   label,
	}
}

type response struct {
	status int
	body   []byte
}

func (r response) ok() bool { return r.status == http.StatusOK }

// transient reports statuses that say nothing about the receipt itself.
func (r response) transient() bool {
	return r.status >= 500 || r.status == http.StatusTooManyRequests || r.status == http.StatusRequestTimeout
}

func (r response) text() string {
	const maxText = 256
	s := strings.TrimSpace(string(r.body))
	if len(s) > maxText {
		s = s[:maxText]
	}
	return s
}

func (e *Endpoint) do(ctx context.Context, req *http.Request) (response, error) {
	if e.Limiter != nil && !e.Limiter.Allow() {
		observability.Validation().RecordThrottle(e.label)
		if err := e.Limiter.Wait(ctx); err != nil {
			return response{}, &throttleError{err: err}
		}
	}
	resp, err := e.Client.Do(req.WithContext(ctx))
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}
	return response{status: resp.StatusCode, body: body}, nil
}

// statusError is a non-200 answer from an auxiliary call such as a token
// exchange.
type statusError struct {
	op   string
	resp response
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s failed: status %d: %s", e.op, e.resp.status, e.resp.text())
}

type throttleError struct{ err error }

func (e *throttleError) Error() string { return "rate limited: " + e.err.Error() }

func (e *throttleError) Unwrap() error { return e.err }

// isTransient reports transport errors that leave the outcome unknown.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te *throttleError
	if errors.As(err, &te) {
		return true
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.resp.transient()
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// transportResult maps a failed round trip onto an outcome.
func transportResult(msg string, err error) Result {
	if isTransient(err) {
		return retryable(fmt.Sprintf("%s: %v", msg, err))
	}
	return invalid(fmt.Sprintf("%s: %v", msg, err))
}
