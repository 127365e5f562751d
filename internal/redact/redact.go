// Package redact scrubs bearer credentials from strings before they reach
// any log sink. Every error path that could carry a token or a serialized
// request must pass through Value.
package redact

import "regexp"

const marker = "[REDACTED]"

var patterns = []*regexp.Regexp{
	// Authorization header values, in text or serialized JSON.
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/=]+`),
	regexp.MustCompile(`(?i)basic\s+[A-Za-z0-9+/=]+`),
	// token-ish key/value pairs in query strings, form bodies, and JSON.
	// The leading \b keeps keys like status_code out of scope.
	regexp.MustCompile(`(?i)\b(access_token|refresh_token|token|code|client_secret)(["']?\s*[:=]\s*["']?)[^\s"'&,}]+`),
}

// Value returns s with every credential-shaped substring replaced by the
// redaction marker.
func Value(s string) string {
	for i, p := range patterns {
		if i == 0 || i == 1 {
			s = p.ReplaceAllString(s, marker)
			continue
		}
		s = p.ReplaceAllString(s, "${1}${2}"+marker)
	}
	return s
}

// Error is a convenience wrapper for redacting error messages; nil-safe.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return Value(err.Error())
}
