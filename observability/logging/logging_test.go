package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestHandlerRenamesCoreKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, slog.LevelInfo))
	logger.Info("receipt validated", slog.String("store", "APPLE"))

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["message"] != "receipt validated" {
		t.Fatalf("unexpected message: %v", line["message"])
	}
	if line["severity"] != "INFO" {
		t.Fatalf("unexpected severity: %v", line["severity"])
	}
	if _, ok := line["timestamp"]; !ok {
		t.Fatalf("expected timestamp key in %v", line)
	}
	if line["store"] != "APPLE" {
		t.Fatalf("unexpected store attr: %v", line["store"])
	}
}

func TestHandlerHonoursLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(&buf, ParseLevel("warn")))
	logger.Info("dropped")
	if buf.Len() != 0 {
		t.Fatalf("expected info line to be filtered, got %s", buf.String())
	}
	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Fatalf("expected warn line to be written")
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("purchase_token", "secret-token"); attr.Value.String() != RedactedValue {
		t.Fatalf("expected token to be redacted, got %s", attr.Value.String())
	}
	if attr := MaskField("order_id", "GPA.1234"); attr.Value.String() != "GPA.1234" {
		t.Fatalf("expected order id to pass through, got %s", attr.Value.String())
	}
	if attr := MaskField("api_key", ""); attr.Value.String() != "" {
		t.Fatalf("expected empty value to stay empty")
	}
}

func TestMaskTail(t *testing.T) {
	if attr := MaskTail("purchase_token", "abcdefghijklmnop"); attr.Value.String() != RedactedValue+"mnop" {
		t.Fatalf("unexpected masked tail: %s", attr.Value.String())
	}
	if attr := MaskTail("purchase_token", "short"); attr.Value.String() != RedactedValue {
		t.Fatalf("short secrets must be fully redacted, got %s", attr.Value.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for raw, want := range cases {
		if got := ParseLevel(raw); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}
