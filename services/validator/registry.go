package validator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"iapgate/core/receipt"
	"iapgate/observability"
	"iapgate/observability/logging"
	telemetry "iapgate/observability/otel"
)

// Registry dispatches receipts to the validator of their store and hands
// every call the configured credentials.
type Registry struct {
	validators map[receipt.Store]Validator
	creds      Credentials
	logger     *slog.Logger
	metrics    *observability.ValidationMetrics
}

// NewRegistry returns an empty registry bound to creds.
func NewRegistry(creds Credentials, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		validators: make(map[receipt.Store]Validator),
		creds:      creds,
		logger:     logger,
		metrics:    observability.Validation(),
	}
}

// Register installs v for store, replacing any previous validator.
func (r *Registry) Register(store receipt.Store, v Validator) {
	r.validators[store] = v
}

// Lookup returns the validator registered for store.
func (r *Registry) Lookup(store receipt.Store) (Validator, bool) {
	v, ok := r.validators[store]
	return v, ok
}

// Stores lists the stores that have a validator.
func (r *Registry) Stores() []receipt.Store {
	out := make([]receipt.Store, 0, len(r.validators))
	for _, s := range receipt.Stores() {
		if _, ok := r.validators[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Validate runs the store's validator. Panics and cancellation are reported
// as RETRYABLE so the receipt never terminates on an unknown outcome.
func (r *Registry) Validate(ctx context.Context, req Request) (res Result) {
	start := time.Now()
	ctx, span := telemetry.Tracer().Start(ctx, "validator.Validate", trace.WithAttributes(
		attribute.String("store", req.Store.String()),
		attribute.String("order_id", req.OrderID),
	))
	defer span.End()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("validator panicked",
				slog.String("store", req.Store.String()),
				slog.String("order_id", req.OrderID),
				logging.MaskTail("purchase_token", req.PurchaseToken),
				slog.Any("panic", rec))
			res = retryable(fmt.Sprintf("validator panic: %v", rec))
		}
		r.metrics.Observe(req.Store.String(), res.Outcome.String(), time.Since(start))
		span.SetAttributes(attribute.String("outcome", res.Outcome.String()))
		if res.Outcome != OutcomeValid {
			span.SetStatus(codes.Error, res.Message)
		}
	}()

	v, ok := r.validators[req.Store]
	if !ok {
		return invalid(fmt.Sprintf("%s is unsupported store", req.Store))
	}
	res = v.Validate(ctx, req, r.creds)
	if err := ctx.Err(); err != nil && res.Outcome != OutcomeValid {
		return retryable(fmt.Sprintf("validation interrupted: %v", err))
	}
	return res
}

// Acknowledge confirms delivery to stores that require it. Stores without
// acknowledgement succeed immediately.
func (r *Registry) Acknowledge(ctx context.Context, req Request) error {
	v, ok := r.validators[req.Store]
	if !ok {
		return fmt.Errorf("validator: %s is unsupported store", req.Store)
	}
	ack, ok := v.(Acknowledger)
	if !ok {
		return nil
	}
	return ack.Acknowledge(ctx, req, r.creds)
}
