// Package redact strips PII and API credentials from text destined for logs.
package redact

import (
	"fmt"
	"regexp"
)

const Replacement = "[REDACTED]"

type pattern struct {
	re    *regexp.Regexp
	label string
}

// Order matters: specific key prefixes must match before the generic
// long-alphanumeric pattern swallows them.
var patterns = []pattern{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "SSN"},
	{regexp.MustCompile(`\b\d{16}\b`), "CREDIT_CARD"},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "EMAIL"},
	{regexp.MustCompile(`\b\d{3}-\d{3}-\d{4}\b`), "PHONE"},
	{regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}\b`), "IP_ADDRESS"},
	{regexp.MustCompile(`\b[A-Z]{2}\d{6}\b`), "PASSPORT"},
	{regexp.MustCompile(`sk-[A-Za-z0-9-]{32,}`), "ANTHROPIC_API_KEY"},
	{regexp.MustCompile(`tvly-[A-Za-z0-9]{32,}`), "TAVILY_API_KEY"},
	{regexp.MustCompile(`\b[A-Za-z0-9]{40,}\b`), "GENERIC_API_KEY"},
}

// String replaces every recognized PII or credential token in text with a
// labeled placeholder.
func String(text string) string {
	redacted := text
	for _, p := range patterns {
		redacted = p.re.ReplaceAllString(redacted, fmt.Sprintf("%s (%s)", Replacement, p.label))
	}
	return redacted
}

// Map redacts every string value of a flat key/value record. Non-string
// values pass through untouched.
func Map(data map[string]any) map[string]any {
	if data == nil {
		return nil
	}
	out := make(map[string]any, len(data))
	for key, value := range data {
		switch v := value.(type) {
		case string:
			out[key] = String(v)
		case []string:
			items := make([]string, len(v))
			for i, item := range v {
				items[i] = String(item)
			}
			out[key] = items
		case map[string]any:
			out[key] = Map(v)
		default:
			out[key] = value
		}
	}
	return out
}
