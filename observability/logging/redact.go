package logging

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"module":    {},
	"method":    {},
	"caller":    {},
	"height":    {},
	"code":      {},
	"kind":      {},
	"requestid": {},
}

// freeTextArgs are call arguments written by users. They are masked before
// call arguments reach the log.
var freeTextArgs = map[string]struct{}{
	"memo":        {},
	"description": {},
	"comment":     {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys that may be emitted
// without redaction.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the redacted placeholder for non-empty values.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. The original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskArgs renders a JSON call argument object with its free-text fields
// (memo, description, comment) redacted. Arguments that are not a JSON object
// are masked entirely.
func MaskArgs(key string, raw []byte) slog.Attr {
	if strings.TrimSpace(string(raw)) == "" {
		return slog.String(key, "")
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return slog.String(key, RedactedValue)
	}
	placeholder, _ := json.Marshal(RedactedValue)
	for name := range fields {
		if _, sensitive := freeTextArgs[strings.ToLower(name)]; sensitive {
			fields[name] = placeholder
		}
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return slog.String(key, RedactedValue)
	}
	return slog.String(key, string(encoded))
}
