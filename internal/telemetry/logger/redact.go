package logger

import (
	"log/slog"
	"strings"
)

// Credential schemes whose parameters are masked when they appear as a
// value, e.g. an Authorization header captured in a log line.
var sensitiveValuePrefixes = []string{
	"Bearer ",
	"Basic ",
	"Digest ",
}

// Key patterns that are fully redacted.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"cookie",
	"credential",
	"private_key",
}

const redactedValue = "***REDACTED***"

// redactSensitive masks credential-looking values and redacts attributes
// whose key names suggest secrets. Groups are walked recursively.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		strVal := a.Value.String()
		if red := RedactField(a.Key, strVal); red != strVal {
			return slog.String(a.Key, red)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		newAttrs := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			newAttrs[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(newAttrs...)}
	}
	return a
}

func credentialPrefix(value string) (string, bool) {
	for _, prefix := range sensitiveValuePrefixes {
		if len(value) >= len(prefix) && strings.EqualFold(value[:len(prefix)], prefix) {
			return value[:len(prefix)], true
		}
	}
	return "", false
}

// maskValue keeps the scheme prefix and the first and last 3 characters.
func maskValue(value, prefix string) string {
	body := value[len(prefix):]
	if len(body) <= 6 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

// RedactString masks a credential-looking value before logging it.
func RedactString(value string) string {
	if prefix, ok := credentialPrefix(value); ok {
		return maskValue(value, prefix)
	}
	return value
}

// RedactField masks credential-looking values and fully redacts non-empty
// values under sensitive key names. Other values are returned unchanged.
func RedactField(key, value string) string {
	if prefix, ok := credentialPrefix(value); ok {
		return maskValue(value, prefix)
	}
	if value != "" && IsSensitiveKey(key) {
		return redactedValue
	}
	return value
}

// IsSensitiveKey reports whether a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}
