package validator

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	// ErrEmptyEmail indicates email address is empty
	ErrEmptyEmail = errors.New("email address cannot be empty")

	// ErrInvalidEmail indicates email address is malformed
	ErrInvalidEmail = errors.New("email address is not valid")
)

// ValidateEmail checks that s is a bare address (no display name) with a dotted domain.
// Returns the trimmed, lower-cased address.
func ValidateEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyEmail
	}

	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || addr.Name != "" {
		return "", ErrInvalidEmail
	}

	at := strings.LastIndex(s, "@")
	domain := s[at+1:]
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return "", ErrInvalidEmail
	}

	return strings.ToLower(s), nil
}
