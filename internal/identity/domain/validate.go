package domain

import (
	"regexp"
	"strings"
	"unicode/utf8"

	accountdomain "identity-portal/internal/account/domain"
)

// Field rules.
const (
	MinNameLength     = 2
	MinPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// NormalizeEmail trims and lowercases email.
func NormalizeEmail(email string) string {
	return accountdomain.NormalizeEmail(email)
}

// ValidateEmail checks an already normalized email.
func ValidateEmail(email string) error {
	if email == "" {
		return &ValidationError{Field: "email", Reason: "is required"}
	}
	if !emailPattern.MatchString(email) {
		return &ValidationError{Field: "email", Reason: "is not a valid address"}
	}
	return nil
}

// ValidateNewPassword checks a password being set.
func ValidateNewPassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return &ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	}
	return nil
}

// ValidateName checks a display name given at registration.
func ValidateName(name string) error {
	if utf8.RuneCountInString(strings.TrimSpace(name)) < MinNameLength {
		return &ValidationError{Field: "name", Reason: "must be at least 2 characters"}
	}
	return nil
}

// ValidateRegistration checks registration input; email must already be normalized.
func ValidateRegistration(name, email, password string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	return ValidateNewPassword(password)
}

// ValidateLogin checks sign-in input; email must already be normalized.
func ValidateLogin(email, password string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if password == "" {
		return &ValidationError{Field: "password", Reason: "is required"}
	}
	return nil
}
