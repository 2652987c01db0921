// Package redact provides utilities for redacting sensitive information from strings
// before they are logged. It masks broker, cache and database credentials embedded in
// connection URLs, along with passwords, API keys, tokens, e-mail addresses and file
// paths that dial and driver errors tend to carry.
package redact

import (
	"net/url"
	"regexp"
)

// Constants for redaction placeholders
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// rules are applied in order.
var rules = []rule{
	// Connection URLs with userinfo
	{regexp.MustCompile(`(?i)\b(amqps?|rediss?|postgres(?:ql)?|mysql|mongodb|db|database|connection)://[^@\s/]+@`),
		RedactedCredentialPlaceholder},

	// Credentials and tokens
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`), RedactedCredentialPlaceholder},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|key|access|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`),
		RedactedKeyPlaceholder},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), "[REDACTED_JWT]"},

	// Stack trace fragments
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},

	// Email addresses
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"},

	// File paths
	{regexp.MustCompile(`(/[\w.-]+){2,}`), RedactedPathPlaceholder},
	{regexp.MustCompile(`[A-Za-z]:\\[^\\]+(\\[^\\]+)+`), RedactedPathPlaceholder},
}

// String redacts sensitive information from the input string
func String(input string) string {
	if input == "" {
		return input
	}

	result := input
	for _, r := range rules {
		result = r.pattern.ReplaceAllString(result, r.placeholder)
	}
	return result
}

// Error redacts sensitive information from an error's Error() output
func Error(err error) string {
	if err == nil {
		return ""
	}

	return String(err.Error())
}

// URL masks the password of a connection URL while keeping scheme, user, host and
// path readable. Unparseable input is redacted with String.
func URL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return String(raw)
	}
	return u.Redacted()
}
