package textutil

import (
	"html"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

var strict = bluemonday.StrictPolicy()

// PlainText strips any markup from user or admin supplied text and trims surrounding space.
// The result is unescaped plain text suitable for storage.
func PlainText(value string) string {
	return strings.TrimSpace(html.UnescapeString(strict.Sanitize(value)))
}

// EscapeHTML prepares plain text for Telegram's HTML parse mode.
func EscapeHTML(value string) string {
	return html.EscapeString(value)
}

// RuneLen counts characters rather than bytes.
func RuneLen(value string) int {
	return utf8.RuneCountInString(value)
}

// Truncate cuts value to limit runes and appends suffix when it was longer.
func Truncate(value string, limit int, suffix string) string {
	if limit < 0 || utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit]) + suffix
}

// NormalizeStringMap trims keys and values, removing entries with empty keys.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" {
			continue
		}
		result[trimmedKey] = strings.TrimSpace(value)
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
