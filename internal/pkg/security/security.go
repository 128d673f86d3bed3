// Package security provides input validation and log sanitization for
// user-supplied text.
package security

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Validation limits for user-supplied fields.
const (
	MaxQueryLength   = 10000
	MaxUserIDLength  = 128
	MaxCommentLength = 2000
	MaxTraceIDLength = 128
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field      string
	Value      any
	Constraint string
}

func (e *ValidationError) Error() string {
	if e.Value != nil {
		return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Constraint, e.Value)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Constraint)
}

// userIDRegex matches valid user identifiers: alphanumeric, hyphen,
// underscore, starting with an alphanumeric.
var userIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)

// ValidateQuery validates a free-text query: required, at most
// MaxQueryLength runes, valid UTF-8.
func ValidateQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return &ValidationError{
			Field:      "query",
			Constraint: "required",
		}
	}
	if !utf8.ValidString(query) {
		return &ValidationError{
			Field:      "query",
			Constraint: "must be valid UTF-8",
		}
	}
	if length := utf8.RuneCountInString(query); length > MaxQueryLength {
		return &ValidationError{
			Field:      "query",
			Value:      length,
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxQueryLength),
		}
	}
	return nil
}

// ValidateUserID validates an optional user identifier.
func ValidateUserID(userID string) error {
	if userID == "" {
		return nil
	}
	if len(userID) > MaxUserIDLength {
		return &ValidationError{
			Field:      "user_id",
			Value:      len(userID),
			Constraint: fmt.Sprintf("maximum length is %d characters", MaxUserIDLength),
		}
	}
	if !userIDRegex.MatchString(userID) {
		return &ValidationError{
			Field:      "user_id",
			Constraint: "must be alphanumeric with hyphens or underscores",
		}
	}
	return nil
}

// SanitizeQuery removes control characters from a query while preserving
// normal whitespace.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	sanitized := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, query)

	return strings.TrimSpace(sanitized)
}

// SanitizeForLog sanitizes a string for safe logging: escapes newlines,
// strips other control characters, truncates to 200 runes.
func SanitizeForLog(s string) string {
	return SanitizeForLogWithLength(s, 200)
}

// SanitizeForLogWithLength sanitizes a string for logging with a custom
// max length.
func SanitizeForLogWithLength(s string, maxLen int) string {
	if s == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(min(len(s), maxLen+10))

	count := 0
	for _, r := range s {
		if count >= maxLen {
			b.WriteString("...")
			break
		}

		switch r {
		case '\n':
			b.WriteString("\\n")
			count += 2
		case '\r':
			b.WriteString("\\r")
			count += 2
		case '\t':
			b.WriteString("\\t")
			count += 2
		default:
			if !unicode.IsControl(r) || r == ' ' {
				b.WriteRune(r)
				count++
			}
		}
	}

	return b.String()
}
