// ABOUTME: Masks secrets before they reach logs or configuration dumps
// ABOUTME: URL user info, credential query parameters, bearer tokens and sensitive map keys

package observability

import (
	"net/url"
	"regexp"
	"strings"
)

// RedactionPlaceholder replaces every masked value.
const RedactionPlaceholder = "[REDACTED]"

type redactionRule struct {
	pattern *regexp.Regexp
	repl    string
}

// Query-style values end at whitespace or '&'.
var redactionRules = []redactionRule{
	{regexp.MustCompile(`(?i)(password|passwd|pwd|token|auth_token|access_token|api[_-]?key|apikey|secret|client_secret)=[^\s&]+`), "${1}=" + RedactionPlaceholder},
	{regexp.MustCompile(`(?i)Bearer\s+\S+`), "Bearer " + RedactionPlaceholder},
	{regexp.MustCompile(`([a-z][a-z0-9+.-]*://)[^\s/@]+@`), "${1}" + RedactionPlaceholder + "@"},
}

var sensitiveKeyParts = []string{
	"password", "passwd", "pwd", "token", "secret",
	"api_key", "api-key", "apikey", "auth", "credential",
	"private_key", "private-key", "privatekey",
}

// RedactSensitive masks credentials embedded in free text.
func RedactSensitive(value string) string {
	for _, r := range redactionRules {
		value = r.pattern.ReplaceAllString(value, r.repl)
	}
	return value
}

// RedactURL masks the user info of raw and any credential query values.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return RedactSensitive(raw)
	}
	u.User = nil
	masked := strings.Replace(u.String(), "://", "://"+RedactionPlaceholder+"@", 1)
	return RedactSensitive(masked)
}

// IsSensitiveKey reports whether a map key names a secret.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

// RedactMap returns a copy of m with sensitive keys masked and all
// string values scrubbed, recursing into nested maps and slices.
func RedactMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if IsSensitiveKey(k) {
			out[k] = RedactionPlaceholder
			continue
		}
		out[k] = redactValue(v)
	}
	return out
}

func redactValue(v any) any {
	switch val := v.(type) {
	case string:
		return RedactSensitive(val)
	case map[string]any:
		return RedactMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(item)
		}
		return out
	default:
		return v
	}
}
