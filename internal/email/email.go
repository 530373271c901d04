// Package email provides address helpers shared by the subscription and delivery paths.
package email

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidAddress is returned for input that is not a single bare address
var ErrInvalidAddress = errors.New("invalid email address")

// Normalize trims and lower-cases an address so lookups are case-insensitive
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Validate normalizes addr and checks it is a bare address (no display name)
// with a non-empty local part and domain.
func Validate(addr string) (string, error) {
	addr = Normalize(addr)
	if addr == "" {
		return "", ErrInvalidAddress
	}

	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", ErrInvalidAddress
	}
	if parsed.Name != "" || parsed.Address != addr {
		return "", ErrInvalidAddress
	}
	if ExtractDomain(addr) == "" {
		return "", ErrInvalidAddress
	}
	return addr, nil
}

// ExtractDomain extracts the domain part from an email address.
// Returns empty string if the email is invalid.
func ExtractDomain(email string) string {
	addr, err := mail.ParseAddress(email)
	if err != nil {
		at := strings.LastIndex(email, "@")
		if at <= 0 || at == len(email)-1 {
			return ""
		}
		return strings.ToLower(email[at+1:])
	}
	at := strings.LastIndex(addr.Address, "@")
	if at <= 0 || at == len(addr.Address)-1 {
		return ""
	}
	return strings.ToLower(addr.Address[at+1:])
}

// ExtractDomainOrDefault extracts the domain part from an email address.
// Returns the provided default value if the email is invalid or domain is empty.
func ExtractDomainOrDefault(email, defaultDomain string) string {
	domain := ExtractDomain(email)
	if domain == "" {
		return defaultDomain
	}
	return domain
}
