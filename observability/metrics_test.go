package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestValidationMetricsObserve(t *testing.T) {
	m := Validation()
	before := testutil.ToFloat64(m.outcomes.WithLabelValues("GOOGLE", "valid"))
	m.Observe("GOOGLE", "valid", 25*time.Millisecond)
	after := testutil.ToFloat64(m.outcomes.WithLabelValues("GOOGLE", "valid"))
	if after != before+1 {
		t.Fatalf("expected outcome counter to increase by one, got %v -> %v", before, after)
	}
}

func TestSettlementMetricsLabels(t *testing.T) {
	m := Settlement()
	m.RecordTransition("", "VALID")
	if got := testutil.ToFloat64(m.transitions.WithLabelValues("unknown", "VALID")); got < 1 {
		t.Fatalf("expected empty store label to map to unknown, got %v", got)
	}
	m.SetStale(7)
	if got := testutil.ToFloat64(m.stale); got != 7 {
		t.Fatalf("unexpected stale gauge: %v", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var v *ValidationMetrics
	v.Observe("APPLE", "invalid", time.Second)
	v.RecordThrottle("APPLE")
	var s *SettlementMetrics
	s.RecordTransition("APPLE", "VALID")
	s.RecordDuplicate("APPLE")
	s.RecordAction("claim_items")
	s.RecordRetry("valid")
	s.SetStale(1)
}
