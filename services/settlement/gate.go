// Package settlement owns the receipt lifecycle: it sequences store
// validation, enforces one accepted receipt per store order, and turns
// accepted receipts into encoded settlement actions.
package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"iapgate/catalog"
	"iapgate/core/action"
	"iapgate/core/receipt"
	"iapgate/crypto"
	"iapgate/observability"
	"iapgate/observability/logging"
	telemetry "iapgate/observability/otel"
	"iapgate/services/validator"
)

var (
	// ErrNotSettleable indicates the receipt is not VALID or not yet settled.
	ErrNotSettleable = errors.New("settlement: receipt is not settleable")
	// ErrTerminal indicates the receipt already reached a final state.
	ErrTerminal = errors.New("settlement: receipt already finalised")
	// ErrMissingAddress indicates a submission without agent or avatar.
	ErrMissingAddress = errors.New("settlement: agent and avatar addresses are required")
)

// Validators is the store validation surface the gate depends on.
type Validators interface {
	Validate(ctx context.Context, req validator.Request) validator.Result
	Acknowledge(ctx context.Context, req validator.Request) error
}

// Submission is a receipt as presented by the client.
type Submission struct {
	Store       receipt.Store
	Data        json.RawMessage
	Agent       crypto.Address
	Avatar      crypto.Address
	PackageName string
}

// Settlement is the encoded action recorded for a receipt.
type Settlement struct {
	Receipt  *Receipt
	ActionID action.ID
	TypeID   string
	Payload  []byte
}

// Option customises a Gate.
type Option func(*Gate)

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) Option {
	return func(g *Gate) { g.now = clock }
}

// WithLocker enables cross process locking of validation attempts.
func WithLocker(l Locker) Option {
	return func(g *Gate) { g.locker = l }
}

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// Gate is the receipt state machine.
type Gate struct {
	store      *Store
	validators Validators
	catalog    *catalog.Catalog
	locker     Locker
	logger     *slog.Logger
	metrics    *observability.SettlementMetrics
	now        func() time.Time
}

// NewGate wires the gate to its collaborators.
func NewGate(store *Store, validators Validators, products *catalog.Catalog, opts ...Option) *Gate {
	g := &Gate{
		store:      store,
		validators: validators,
		catalog:    products,
		logger:     slog.Default(),
		metrics:    observability.Settlement(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit records a receipt in INIT. A receipt already known for the same
// store order is returned as is, with created false.
func (g *Gate) Submit(ctx context.Context, sub Submission) (*Receipt, bool, error) {
	if !sub.Store.Valid() {
		return nil, false, fmt.Errorf("settlement: unknown store %d", int(sub.Store))
	}
	now := g.now().UTC()
	order, err := receipt.ExtractOrderData(sub.Store, sub.Data, now)
	if err != nil {
		return nil, false, err
	}
	if sub.Agent.IsZero() || sub.Avatar.IsZero() {
		return nil, false, ErrMissingAddress
	}
	rec, created, err := g.store.InsertIfAbsent(ctx, &Receipt{
		ID:             uuid.New(),
		Store:          sub.Store,
		OrderID:        order.OrderID,
		Status:         receipt.StateInit,
		PackageName:    sub.PackageName,
		AgentAddr:      sub.Agent.Long(),
		AvatarAddr:     sub.Avatar.Long(),
		StoreProductID: order.ProductID,
		PurchaseToken:  order.PurchaseToken,
		PurchasedAt:    order.PurchasedAt,
		Data:           sub.Data,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		g.logger.Info("receipt already submitted",
			slog.String("store", rec.Store.String()),
			slog.String("order_id", rec.OrderID),
			slog.String("uuid", rec.ID.String()),
			slog.String("state", rec.Status.String()))
		return rec, false, nil
	}
	g.logger.Info("receipt submitted",
		slog.String("store", rec.Store.String()),
		slog.String("order_id", rec.OrderID),
		slog.String("uuid", rec.ID.String()),
		slog.String("agent", sub.Agent.Checksum()),
		logging.MaskTail("purchase_token", rec.PurchaseToken))

	// Stores other than the App Store name the product in the receipt, so an
	// unknown product can be refused before any store round trip.
	if sub.Store.Family() != receipt.StoreApple {
		if _, err := g.catalog.Resolve(sub.Store, order.ProductID, sub.PackageName); err != nil {
			rec, err = g.finish(ctx, rec, receipt.StateInit, receipt.StateInvalid, Update{Message: err.Error()})
			if err != nil {
				return nil, true, err
			}
		}
	}
	return rec, true, nil
}

// Validate runs the store validator for a receipt and records the outcome.
//
// RETRYABLE outcomes and cancellation leave the receipt in
// VALIDATION_REQUEST and return a *receipt.TransientFailure. INVALID returns
// a *receipt.ValidationFailure. A receipt that is already VALID, or that
// another worker moved to VALID first, yields receipt.ErrDuplicateSettlement.
func (g *Gate) Validate(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "settlement.Validate", trace.WithAttributes(attribute.String("uuid", id.String())))
	defer span.End()

	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := g.checkOpen(rec); err != nil {
		return rec, err
	}
	if g.locker != nil {
		release, err := g.locker.Acquire(ctx, lockKey(rec.Store, rec.OrderID))
		if err != nil {
			return rec, &receipt.TransientFailure{Store: rec.Store, Reason: "validation already in progress", Err: err}
		}
		defer release()
	}
	if rec.Status == receipt.StateInit {
		next, err := g.store.Transition(ctx, rec.ID, receipt.StateInit, receipt.StateValidationRequest, Update{})
		switch {
		case err == nil:
			rec = next
			g.metrics.RecordTransition(rec.Store.String(), rec.Status.String())
		case errors.Is(err, ErrStateChanged):
			if rec, err = g.store.Get(ctx, id); err != nil {
				return nil, err
			}
			if rec.Status != receipt.StateValidationRequest {
				return rec, g.checkOpen(rec)
			}
		default:
			return rec, err
		}
	}

	req := validator.Request{
		Store:         rec.Store,
		OrderID:       rec.OrderID,
		ProductID:     rec.StoreProductID,
		PurchaseToken: rec.PurchaseToken,
		PackageName:   rec.PackageName,
		PurchasedAt:   rec.PurchasedAt,
		Data:          json.RawMessage(rec.Data),
	}
	if rec.Store.Family() == receipt.StoreWeb {
		if p, err := g.catalog.Resolve(rec.Store, rec.StoreProductID, rec.PackageName); err == nil {
			req.Price = p.Price
			req.Currency = p.Currency
		}
	}

	res := g.validators.Validate(ctx, req)
	if err := ctx.Err(); err != nil {
		return rec, &receipt.TransientFailure{Store: rec.Store, Reason: "validation cancelled", Err: err}
	}
	span.SetAttributes(attribute.String("outcome", res.Outcome.String()))

	switch res.Outcome {
	case validator.OutcomeValid:
		return g.accept(ctx, rec, res)
	case validator.OutcomeInvalid:
		to := receipt.StateInvalid
		if res.Refunded {
			to = receipt.StateRefundedByBuyer
		}
		u := Update{Message: res.Message}
		if res.Purchase != nil {
			u.StoreResponse = res.Purchase.Raw
		}
		rec, err := g.finish(ctx, rec, receipt.StateValidationRequest, to, u)
		if err != nil {
			return rec, err
		}
		return rec, res.Err(rec.Store)
	case validator.OutcomeRetryable:
		if err := g.store.RecordAttempt(ctx, rec.ID, res.Message); err != nil && !errors.Is(err, ErrStateChanged) {
			return rec, err
		}
		g.logger.Warn("receipt validation deferred",
			slog.String("store", rec.Store.String()),
			slog.String("order_id", rec.OrderID),
			slog.String("uuid", rec.ID.String()),
			logging.MaskTail("purchase_token", rec.PurchaseToken),
			slog.String("reason", res.Message))
		return rec, res.Err(rec.Store)
	default:
		rec, err := g.finish(ctx, rec, receipt.StateValidationRequest, receipt.StateUnknown,
			Update{Message: fmt.Sprintf("validator returned outcome %d", int(res.Outcome))})
		if err != nil {
			return rec, err
		}
		return rec, fmt.Errorf("%w: %s", ErrTerminal, rec.Status)
	}
}

// accept applies the product and purchase limit rules to a store approved
// receipt and, if they pass, moves it to VALID.
func (g *Gate) accept(ctx context.Context, rec *Receipt, res validator.Result) (*Receipt, error) {
	purchase := res.Purchase
	if purchase == nil {
		rec, err := g.finish(ctx, rec, receipt.StateValidationRequest, receipt.StateUnknown,
			Update{Message: "validator accepted the receipt without purchase data"})
		if err != nil {
			return rec, err
		}
		return rec, fmt.Errorf("%w: %s", ErrTerminal, rec.Status)
	}
	u := Update{PurchasedAt: purchase.PurchasedAt, StoreResponse: purchase.Raw}

	product, err := g.catalog.Resolve(rec.Store, purchase.ProductID, rec.PackageName)
	if err != nil {
		u.Message = err.Error()
		return g.reject(ctx, rec, receipt.StateInvalid, u)
	}
	u.ProductID = product.ID

	now := g.now()
	if !product.OnSale(now) {
		u.Message = fmt.Sprintf("Product %s is not on sale at %s", product.ID, now.UTC().Format(time.RFC3339))
		return g.reject(ctx, rec, receipt.StateTimeLimit, u)
	}
	if msg, err := g.limitExceeded(ctx, rec, product, now); err != nil {
		return rec, err
	} else if msg != "" {
		u.Message = msg
		return g.reject(ctx, rec, receipt.StatePurchaseLimitExceed, u)
	}

	next, err := g.store.Transition(ctx, rec.ID, receipt.StateValidationRequest, receipt.StateValid, u)
	if err != nil {
		if errors.Is(err, ErrStateChanged) {
			return g.lostRace(ctx, rec.ID)
		}
		return rec, err
	}
	g.metrics.RecordTransition(next.Store.String(), next.Status.String())
	g.logger.Info("receipt accepted",
		slog.String("store", next.Store.String()),
		slog.String("order_id", next.OrderID),
		slog.String("uuid", next.ID.String()),
		slog.String("product", next.ProductID))
	return next, nil
}

func (g *Gate) limitExceeded(ctx context.Context, rec *Receipt, p catalog.Product, now time.Time) (string, error) {
	limits := []struct {
		name  string
		limit int
		since time.Time
	}{
		{"daily", p.DailyLimit, now.Add(-24 * time.Hour)},
		{"weekly", p.WeeklyLimit, now.Add(-7 * 24 * time.Hour)},
		{"account", p.AccountLimit, time.Time{}},
	}
	for _, l := range limits {
		if l.limit <= 0 {
			continue
		}
		n, err := g.store.CountValid(ctx, rec.AgentAddr, p.ID, l.since)
		if err != nil {
			return "", err
		}
		if n >= int64(l.limit) {
			return fmt.Sprintf("Product %s reached its %s purchase limit of %d", p.ID, l.name, l.limit), nil
		}
	}
	return "", nil
}

func (g *Gate) reject(ctx context.Context, rec *Receipt, to receipt.State, u Update) (*Receipt, error) {
	rec, err := g.finish(ctx, rec, receipt.StateValidationRequest, to, u)
	if err != nil {
		return rec, err
	}
	return rec, &receipt.ValidationFailure{Store: rec.Store, Reason: u.Message}
}

// finish performs a terminal transition and reports lost races.
func (g *Gate) finish(ctx context.Context, rec *Receipt, from, to receipt.State, u Update) (*Receipt, error) {
	next, err := g.store.Transition(ctx, rec.ID, from, to, u)
	if err != nil {
		if errors.Is(err, ErrStateChanged) {
			return g.lostRace(ctx, rec.ID)
		}
		return rec, err
	}
	g.metrics.RecordTransition(next.Store.String(), next.Status.String())
	g.logger.Info("receipt finalised",
		slog.String("store", next.Store.String()),
		slog.String("order_id", next.OrderID),
		slog.String("uuid", next.ID.String()),
		slog.String("state", next.Status.String()),
		logging.MaskTail("purchase_token", next.PurchaseToken),
		slog.String("reason", u.Message))
	return next, nil
}

// lostRace reloads a receipt another worker finalised first.
func (g *Gate) lostRace(ctx context.Context, id uuid.UUID) (*Receipt, error) {
	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := g.checkOpen(rec); err != nil {
		return rec, err
	}
	return rec, ErrStateChanged
}

func (g *Gate) checkOpen(rec *Receipt) error {
	switch {
	case rec.Status == receipt.StateValid:
		g.metrics.RecordDuplicate(rec.Store.String())
		return receipt.ErrDuplicateSettlement
	case rec.Status.Terminal():
		return fmt.Errorf("%w: %s", ErrTerminal, rec.Status)
	}
	return nil
}

// Settle encodes the action delivering a VALID receipt's product. The
// action id is stored with the payload, so repeated calls return the same
// bytes.
func (g *Gate) Settle(ctx context.Context, id uuid.UUID) (*Settlement, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "settlement.Settle", trace.WithAttributes(attribute.String("uuid", id.String())))
	defer span.End()

	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != receipt.StateValid {
		return nil, fmt.Errorf("%w: %s", ErrNotSettleable, rec.Status)
	}
	if rec.Settled() {
		return settlementOf(rec)
	}
	product, ok := g.catalog.Get(rec.ProductID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrProductNotFound, rec.ProductID)
	}
	avatar, err := crypto.ParseAddress(rec.AvatarAddr)
	if err != nil {
		return nil, fmt.Errorf("settlement: avatar: %w", err)
	}
	act, err := buildAction(product, avatar, rec.PackageName, action.NewID())
	if err != nil {
		return nil, err
	}
	stored, err := g.store.AssignAction(ctx, rec.ID, act.ID().String(), act.TypeID(), action.Encode(act))
	if err != nil {
		return nil, err
	}
	if stored.ActionID == act.ID().String() {
		g.metrics.RecordAction(act.TypeID())
		g.logger.Info("receipt settled",
			slog.String("store", stored.Store.String()),
			slog.String("order_id", stored.OrderID),
			slog.String("uuid", stored.ID.String()),
			slog.String("action_id", stored.ActionID),
			slog.String("action", stored.ActionType),
			slog.String("avatar", avatar.Checksum()))
	}
	return settlementOf(stored)
}

func settlementOf(rec *Receipt) (*Settlement, error) {
	id, err := action.ParseID(rec.ActionID)
	if err != nil {
		return nil, err
	}
	return &Settlement{Receipt: rec, ActionID: id, TypeID: rec.ActionType, Payload: rec.Payload}, nil
}

// Acknowledge confirms delivery to the store once the receipt is settled.
func (g *Gate) Acknowledge(ctx context.Context, id uuid.UUID) error {
	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.Status != receipt.StateValid || !rec.Settled() {
		return fmt.Errorf("%w: %s", ErrNotSettleable, rec.Status)
	}
	if rec.AcknowledgedAt != nil {
		return nil
	}
	req := validator.Request{
		Store:         rec.Store,
		OrderID:       rec.OrderID,
		ProductID:     rec.StoreProductID,
		PurchaseToken: rec.PurchaseToken,
		PackageName:   rec.PackageName,
	}
	if err := g.validators.Acknowledge(ctx, req); err != nil {
		return err
	}
	return g.store.MarkAcknowledged(ctx, rec.ID, g.now().UTC())
}

// RefundByAdmin closes a receipt stuck in VALIDATION_REQUEST.
func (g *Gate) RefundByAdmin(ctx context.Context, id uuid.UUID, reason string) (*Receipt, error) {
	rec, err := g.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.Status != receipt.StateValidationRequest {
		return rec, fmt.Errorf("%w: %s", receipt.ErrIllegalTransition, rec.Status)
	}
	if reason == "" {
		reason = "refunded by admin"
	}
	return g.finish(ctx, rec, receipt.StateValidationRequest, receipt.StateRefundedByAdmin, Update{Message: reason})
}
