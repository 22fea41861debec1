package settlement

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"iapgate/core/receipt"
	"iapgate/observability"
)

// RetryerConfig tunes the sweep of receipts left waiting for validation.
type RetryerConfig struct {
	Interval       time.Duration
	StaleAfter     time.Duration
	Workers        int
	BatchSize      int
	AttemptTimeout time.Duration
	Logger         *slog.Logger
}

// Retryer re-validates receipts that stayed in INIT or VALIDATION_REQUEST
// longer than StaleAfter and settles VALID receipts that never got an
// action, with a bounded pool of workers.
type Retryer struct {
	gate    *Gate
	store   *Store
	cfg     RetryerConfig
	logger  *slog.Logger
	metrics *observability.SettlementMetrics
	now     func() time.Time
}

// NewRetryer constructs a retryer with sane defaults.
func NewRetryer(gate *Gate, store *Store, cfg RetryerConfig) *Retryer {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * time.Minute
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retryer{
		gate:    gate,
		store:   store,
		cfg:     cfg,
		logger:  logger,
		metrics: observability.Settlement(),
		now:     gate.now,
	}
}

// Run sweeps on every interval until ctx is cancelled.
func (r *Retryer) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.Sweep(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("retry sweep failed", slog.Any("error", err))
			}
		}
	}
}

type retryJob struct {
	rec    Receipt
	settle bool
}

// Sweep re-validates one batch of stale receipts, settles VALID receipts
// whose action was never recorded, and reports how many were attempted.
func (r *Retryer) Sweep(ctx context.Context) (int, error) {
	before := r.now().Add(-r.cfg.StaleAfter)
	stale, err := r.store.ListStale(ctx, before, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	unsettled, err := r.store.ListUnsettled(ctx, before, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	r.metrics.SetStale(len(stale))
	if len(stale)+len(unsettled) == 0 {
		return 0, nil
	}
	todo := make([]retryJob, 0, len(stale)+len(unsettled))
	for _, rec := range stale {
		todo = append(todo, retryJob{rec: rec})
	}
	for _, rec := range unsettled {
		todo = append(todo, retryJob{rec: rec, settle: true})
	}

	jobs := make(chan retryJob)
	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if job.settle {
					r.settle(ctx, job.rec)
				} else {
					r.attempt(ctx, job.rec)
				}
			}
		}()
	}
	attempted := 0
feed:
	for _, job := range todo {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- job:
			attempted++
		}
	}
	close(jobs)
	wg.Wait()
	return attempted, ctx.Err()
}

func (r *Retryer) attempt(ctx context.Context, rec Receipt) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()
	_, err := r.gate.Validate(attemptCtx, rec.ID)
	result := retryResult(err)
	r.metrics.RecordRetry(result)
	if result == "error" {
		r.logger.Error("receipt retry failed",
			slog.String("store", rec.Store.String()),
			slog.String("order_id", rec.OrderID),
			slog.String("uuid", rec.ID.String()),
			slog.Any("error", err))
	}
}

// settle records the action of a VALID receipt left unsettled.
func (r *Retryer) settle(ctx context.Context, rec Receipt) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()
	_, err := r.gate.Settle(attemptCtx, rec.ID)
	switch {
	case err == nil:
		r.metrics.RecordRetry("settled")
	case errors.Is(err, ErrNotSettleable), errors.Is(err, ErrStateChanged):
		r.metrics.RecordRetry("finalised")
	default:
		r.metrics.RecordRetry("error")
		r.logger.Error("receipt settlement retry failed",
			slog.String("store", rec.Store.String()),
			slog.String("order_id", rec.OrderID),
			slog.String("uuid", rec.ID.String()),
			slog.Any("error", err))
	}
}

func retryResult(err error) string {
	var vf *receipt.ValidationFailure
	switch {
	case err == nil:
		return "valid"
	case errors.As(err, &vf):
		return "invalid"
	case receipt.IsTransient(err), errors.Is(err, ErrLocked), errors.Is(err, ErrStateChanged):
		return "deferred"
	case errors.Is(err, receipt.ErrDuplicateSettlement), errors.Is(err, ErrTerminal):
		return "finalised"
	default:
		return "error"
	}
}
