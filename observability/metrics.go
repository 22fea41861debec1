package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ValidationMetrics tracks store round trips.
type ValidationMetrics struct {
	outcomes *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	throttle *prometheus.CounterVec
}

// SettlementMetrics tracks the receipt lifecycle and produced actions.
type SettlementMetrics struct {
	transitions *prometheus.CounterVec
	duplicates  *prometheus.CounterVec
	actions     *prometheus.CounterVec
	retries     *prometheus.CounterVec
	stale       prometheus.Gauge
}

var (
	validationOnce     sync.Once
	validationRegistry *ValidationMetrics

	settlementOnce     sync.Once
	settlementRegistry *SettlementMetrics
)

// Validation returns the lazily registered validator metrics.
func Validation() *ValidationMetrics {
	validationOnce.Do(func() {
		validationRegistry = &ValidationMetrics{
			outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "iapgate",
				Subsystem: "validator",
				Name:      "outcomes_total",
				Help:      "Store validation results segmented by store and outcome.",
			}, []string{"store", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "iapgate",
				Subsystem: "validator",
				Name:      "duration_seconds",
				Help:      "Latency of store validation calls.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"store"}),
			throttle: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "iapgate",
				Subsystem: "validator",
				Name:      "throttled_total",
				Help:      "Calls that waited on or were rejected by the per-store rate limiter.",
			}, []string{"store"}),
		}
		prometheus.MustRegister(
			validationRegistry.outcomes,
			validationRegistry.latency,
			validationRegistry.throttle,
		)
	})
	return validationRegistry
}

// Observe records one validation attempt.
func (m *ValidationMetrics) Observe(store, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	store = normalizeLabel(store)
	m.outcomes.WithLabelValues(store, normalizeLabel(outcome)).Inc()
	m.latency.WithLabelValues(store).Observe(duration.Seconds())
}

// RecordThrottle counts a rate limiter rejection for store.
func (m *ValidationMetrics) RecordThrottle(store string) {
	if m == nil {
		return
	}
	m.throttle.WithLabelValues(normalizeLabel(store)).Inc()
}

// Settlement returns the lazily registered settlement metrics.
func Settlement() *SettlementMetrics {
	settlementOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "iapgate",
				Subsystem: "settlement",
				Name:      "transitions_total",
				Help:      "Receipt state transitions segmented by store and target state.",
			}, []string{"store", "state"}),
			duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "iapgate",
				Subsystem: "settlement",
				Name:      "duplicates_total",
				Help:      "Validation attempts that lost the race for an already settled order.",
			}, []string{"store"}),
			actions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "iapgate",
				Subsystem: "settlement",
				Name:      "actions_total",
				Help:      "Settlement actions produced segmented by action type.",
			}, []string{"type"}),
			retries: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "iapgate",
				Subsystem: "settlement",
				Name:      "retries_total",
				Help:      "Receipts re-validated or settled by the retry sweep segmented by result.",
			}, []string{"result"}),
			stale: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "iapgate",
				Subsystem: "settlement",
				Name:      "stale_receipts",
				Help:      "Receipts found waiting for validation by the last sweep.",
			}),
		}
		prometheus.MustRegister(
			settlementRegistry.transitions,
			settlementRegistry.duplicates,
			settlementRegistry.actions,
			settlementRegistry.retries,
			settlementRegistry.stale,
		)
	})
	return settlementRegistry
}

// RecordTransition counts a receipt entering state.
func (m *SettlementMetrics) RecordTransition(store, state string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(store), normalizeLabel(state)).Inc()
}

// RecordDuplicate counts a rejected second settlement of the same order.
func (m *SettlementMetrics) RecordDuplicate(store string) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(normalizeLabel(store)).Inc()
}

// RecordAction counts an emitted settlement action.
func (m *SettlementMetrics) RecordAction(typeID string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(normalizeLabel(typeID)).Inc()
}

// RecordRetry counts one re-validation or settlement by the sweep.
func (m *SettlementMetrics) RecordRetry(result string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(normalizeLabel(result)).Inc()
}

// SetStale publishes the backlog size seen by the latest sweep.
func (m *SettlementMetrics) SetStale(n int) {
	if m == nil {
		return
	}
	m.stale.Set(float64(n))
}

func normalizeLabel(v string) string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
