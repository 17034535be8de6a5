// Package validation holds the input rules shared by the API server and the client.
// Failures are reported as *ValidationError so callers can reject an action before
// any persistence or network call happens.
package validation

import (
	"strings"
	"unicode"
)

const (
	MinNameLength     = 2
	MaxNameLength     = 100
	MinPasswordLength = 6
	MaxPasswordLength = 128
	maxEmailLength    = 254
	maxLocalLength    = 64
	maxDomainLength   = 253
)

// ValidationError reports a missing or invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// New constructs a ValidationError for the named field.
func New(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// NormalizeEmail trims and lower-cases an email so it can be used as a key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateSignup checks the account creation fields. Inputs are expected to be trimmed
// and the email normalized.
func ValidateSignup(name, email, password string) error {
	if name == "" {
		return New("name", "name is required")
	}
	if len(name) < MinNameLength || len(name) > MaxNameLength {
		return New("name", "name must be between 2 and 100 characters")
	}
	if email == "" {
		return New("email", "email is required")
	}
	if !IsValidEmail(email) {
		return New("email", "invalid email format")
	}
	return ValidatePassword(password)
}

// ValidateLogin checks that both credentials are present.
func ValidateLogin(email, password string) error {
	if email == "" {
		return New("email", "email is required")
	}
	if password == "" {
		return New("password", "password is required")
	}
	return nil
}

// ValidatePassword enforces the password length bounds.
func ValidatePassword(password string) error {
	if password == "" {
		return New("password", "password is required")
	}
	if len(password) < MinPasswordLength {
		return New("password", "password must be at least 6 characters")
	}
	if len(password) > MaxPasswordLength {
		return New("password", "password must be less than 128 characters")
	}
	return nil
}

// IsValidEmail performs a structural email check.
func IsValidEmail(email string) bool {
	if len(email) < 3 || len(email) > maxEmailLength {
		return false
	}

	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}

	local, domain := parts[0], parts[1]
	if len(local) == 0 || len(local) > maxLocalLength {
		return false
	}
	if len(domain) == 0 || len(domain) > maxDomainLength {
		return false
	}
	if !strings.Contains(domain, ".") || strings.HasPrefix(domain, ".") || strings.HasSuffix(domain, ".") {
		return false
	}

	for _, r := range email {
		if !isValidEmailChar(r) {
			return false
		}
	}
	return true
}

func isValidEmailChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '@' || r == '-' || r == '_' || r == '+'
}
