package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces credentials in log output.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are bearer credentials or
// signing material. Matching ignores case and surrounding whitespace.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"bearer":        {},
	"jwt":           {},
	"secret":        {},
	"hmac_secret":   {},
	"otel_headers":  {},
}

// IsSensitive reports whether values logged under key must be masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns key with its value redacted when the key is sensitive.
// Empty values pass through so a missing credential stays visible as such.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// redactAttr masks sensitive string attributes reaching the handler, so a
// caller that forgets MaskField still never writes a credential.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString || !IsSensitive(attr.Key) {
		return attr
	}
	return MaskField(attr.Key, attr.Value.String())
}
