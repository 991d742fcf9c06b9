// Package security masks credentials before they reach logs or output.
package security

import (
	"regexp"
	"strings"
)

// sensitivePatterns match secrets embedded in free text such as error
// messages. The first capture group is kept, the rest is masked.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)((?:api[_-]?key|api[_-]?secret|secret[_-]?key|access[_-]?token|auth[_-]?token|password|apca-api-(?:key|secret)-id)\s*[=:]\s*)["']?([^\s"',&]+)["']?`),
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9_\-\.]+)`),
	regexp.MustCompile(`()\b((?:PK|AK)[A-Z0-9]{14,})\b`), // Alpaca key IDs
}

// MaskCredential masks a credential value for display.
func MaskCredential(value string) string {
	if len(value) == 0 {
		return ""
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	if len(value) <= 8 {
		return value[:2] + strings.Repeat("*", len(value)-2)
	}
	return value[:4] + strings.Repeat("*", len(value)-8) + value[len(value)-4:]
}

// MaskSensitive masks every secret-looking token in input.
func MaskSensitive(input string) string {
	result := input
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			sub := pattern.FindStringSubmatch(match)
			return sub[1] + MaskCredential(sub[2])
		})
	}
	return result
}

// MaskedError returns err's message with secrets masked, or "" for nil.
func MaskedError(err error) string {
	if err == nil {
		return ""
	}
	return MaskSensitive(err.Error())
}

// ContainsSensitiveData reports whether input has anything MaskSensitive
// would change.
func ContainsSensitiveData(input string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(input) {
			return true
		}
	}
	return false
}
