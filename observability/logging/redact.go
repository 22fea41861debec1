package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder written instead of a secret.
const RedactedValue = "[REDACTED]"

// Keys that identify a receipt without granting anything. Purchase tokens,
// raw receipt payloads and credentials are never on this list.
var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"store":     {},
	"order_id":  {},
	"uuid":      {},
	"state":     {},
	"product":   {},
	"action_id": {},
	"agent":     {},
	"avatar":    {},
}

// IsAllowlisted reports whether key may be logged verbatim.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField redacts value unless key is allowlisted. Empty values pass through.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskTail keeps the last four characters of a long secret so operators can
// correlate tokens across systems without exposing them.
func MaskTail(key, value string) slog.Attr {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) <= 8 {
		return MaskField(key, value)
	}
	return slog.String(key, RedactedValue+trimmed[len(trimmed)-4:])
}
