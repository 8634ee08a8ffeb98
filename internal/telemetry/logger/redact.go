package logger

import (
	"log/slog"
	"strings"
)

// Authorization schemes whose credentials are masked wherever they appear.
var sensitiveValuePrefixes = []string{
	"Basic ",
	"Bearer ",
	"$argon2id$",
}

// Key fragments that mark an attribute as sensitive.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"cookie",
	"credential",
}

const redactedValue = "***REDACTED***"

func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		v := a.Value.String()
		if v == "" {
			return a
		}
		if masked, ok := maskCredential(v); ok {
			return slog.String(a.Key, masked)
		}
		if IsSensitiveKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redactSensitive(attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	}
	return a
}

// maskCredential keeps the scheme of a credential and hides the rest.
func maskCredential(v string) (string, bool) {
	for _, prefix := range sensitiveValuePrefixes {
		if len(v) >= len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
			return v[:len(prefix)] + "***", true
		}
	}
	return "", false
}

// RedactString masks a credential value before it is logged. Other values
// are returned unchanged.
func RedactString(value string) string {
	if masked, ok := maskCredential(value); ok {
		return masked
	}
	return value
}

// IsSensitiveKey checks if a key name suggests sensitive content.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(k, pattern) {
			return true
		}
	}
	return false
}
