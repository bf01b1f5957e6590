package identity

import (
	"strings"
	"unicode/utf8"
)

// Username length limits, in characters.
const (
	UsernameMinLength = 1
	UsernameMaxLength = 32
)

// NormalizeUsername performs case-insensitive canonicalization.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateUsername accepts ASCII letters and digits plus space, brackets,
// parentheses, hyphen and underscore.
func ValidateUsername(s string) error {
	const op = "identity.ValidateUsername"

	n := utf8.RuneCountInString(s)
	if n < UsernameMinLength || strings.TrimSpace(s) == "" {
		return Invalid(op, "username is required")
	}
	if n > UsernameMaxLength {
		return Invalid(op, "username too long")
	}
	if strings.TrimSpace(s) != s {
		return Invalid(op, "username has leading or trailing spaces")
	}
	for _, r := range s {
		if !usernameRune(r) {
			return Invalid(op, "username contains invalid characters")
		}
	}
	return nil
}

func usernameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case ' ', '[', ']', '(', ')', '-', '_':
		return true
	}
	return false
}
