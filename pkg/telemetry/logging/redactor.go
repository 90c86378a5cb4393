package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redacted replaces masked values.
const Redacted = "***"

// sensitiveKeys are matched as substrings of lower-cased attribute keys.
var sensitiveKeys = []string{
	"password", "passwd", "passphrase",
	"secret", "token", "api_key", "apikey",
	"authorization", "dsn", "private_key",
}

type valuePattern struct {
	re          *regexp.Regexp
	replacement string
}

// valuePatterns mask secrets that end up inside free-form strings such as
// error messages.
var valuePatterns = []valuePattern{
	{regexp.MustCompile(`Bearer\s+[A-Za-z0-9\-._~+/]+=*`), "Bearer " + Redacted},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)=[^\s&@]+`), "$1=" + Redacted},
	{regexp.MustCompile(`(://[^:/\s]+:)[^@/\s]+@`), "${1}" + Redacted + "@"},
	{regexp.MustCompile(`\b(gh[pousr]_[A-Za-z0-9]{8,})\b`), Redacted},
}

// Redactor masks sensitive attributes in log records.
type Redactor struct {
	keys []string
}

// NewRedactor returns a redactor for the built-in keys plus extra.
func NewRedactor(extra []string) *Redactor {
	keys := append([]string(nil), sensitiveKeys...)
	for _, k := range extra {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keys = append(keys, k)
		}
	}
	return &Redactor{keys: keys}
}

// IsSensitiveKey reports whether values under key are masked entirely.
func (r *Redactor) IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range r.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// RedactString masks secrets embedded in s.
func (r *Redactor) RedactString(s string) string {
	for _, p := range valuePatterns {
		s = p.re.ReplaceAllString(s, p.replacement)
	}
	return s
}

// ReplaceAttr is a slog.HandlerOptions.ReplaceAttr hook.
func (r *Redactor) ReplaceAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() == slog.KindGroup {
		return a
	}
	if r.IsSensitiveKey(a.Key) {
		if a.Value.Kind() == slog.KindString && a.Value.String() == "" {
			return a
		}
		return slog.String(a.Key, Redacted)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(a.Value.String()))
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}
