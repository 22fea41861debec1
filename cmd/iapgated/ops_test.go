package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"iapgate/core/receipt"
	"iapgate/observability"
)

func TestOpsRouterHealth(t *testing.T) {
	router := newOpsRouter([]receipt.Store{receipt.StoreTest, receipt.StoreGoogle}, []healthCheck{
		{name: "database", fn: func(context.Context) error { return nil }},
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rec.Code)
	}
	var body struct {
		Stores []string `json:"stores"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode readyz: %v", err)
	}
	if strings.Join(body.Stores, ",") != "TEST,GOOGLE" {
		t.Fatalf("unexpected stores %v", body.Stores)
	}
}

func TestOpsRouterNotReady(t *testing.T) {
	router := newOpsRouter(nil, []healthCheck{
		{name: "redis", fn: func(context.Context) error { return errors.New("connection refused") }},
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "connection refused") {
		t.Fatalf("expected failure detail, got %s", rec.Body.String())
	}
}

func TestOpsRouterMetrics(t *testing.T) {
	observability.Settlement().RecordTransition("TEST", "VALID")
	router := newOpsRouter(nil, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "iapgate_settlement_transitions_total") {
		t.Fatalf("settlement metrics not exported")
	}
}
