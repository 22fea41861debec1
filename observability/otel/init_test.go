package otel

import (
	"context"
	"testing"
)

func TestInitRequiresServiceName(t *testing.T) {
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected missing service name to fail")
	}
}

func TestInitWithoutSignalsIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "iapgated"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if Tracer() == nil {
		t.Fatalf("expected a tracer from the global provider")
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,bad, =x,team=payments")
	if len(headers) != 2 {
		t.Fatalf("unexpected headers: %v", headers)
	}
	if headers["api-key"] != "abc" || headers["team"] != "payments" {
		t.Fatalf("unexpected header values: %v", headers)
	}
}
