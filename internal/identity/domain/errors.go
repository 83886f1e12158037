// Package domain holds the outcomes and input rules shared by the identity flows.
package domain

import (
	"errors"
	"fmt"
	"strings"

	accountdomain "identity-portal/internal/account/domain"
	"identity-portal/internal/token"
)

// Sentinel errors; the gRPC handler maps them to status codes.
var (
	// ErrInvalidCredentials covers unknown email and wrong password alike.
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrEmailAlreadyRegistered = errors.New("email already registered")
	// ErrInvalidOrExpired is the single outcome for unusable tokens and codes.
	ErrInvalidOrExpired    = token.ErrInvalidOrExpired
	ErrNotificationFailed  = errors.New("notification could not be delivered")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAlreadyVerified     = errors.New("email already verified")
	ErrNoCredentials       = errors.New("account has no password sign-in")
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication is not enabled")
	ErrRateLimited         = errors.New("too many attempts; try again later")
	ErrProviderNotEnabled  = errors.New("identity provider not enabled")
	ErrMergeFailed         = errors.New("could not link identity to account")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// MethodMismatchError is returned when an account cannot sign in with a password
// because it only has federated methods.
type MethodMismatchError struct {
	Methods []accountdomain.Method
}

func (e *MethodMismatchError) Error() string {
	return "account signs in with " + describeMethods(e.Methods)
}

// AccountExistsError is returned by registration when the email is taken. It
// names how the existing account signs in.
type AccountExistsError struct {
	Methods []accountdomain.Method
}

func (e *AccountExistsError) Error() string {
	if len(e.Methods) == 0 {
		return ErrEmailAlreadyRegistered.Error()
	}
	return fmt.Sprintf("%s; sign in with %s", ErrEmailAlreadyRegistered, describeMethods(e.Methods))
}

func (e *AccountExistsError) Is(target error) bool {
	return target == ErrEmailAlreadyRegistered
}

// MergeError wraps a store failure while reconciling a federated identity.
// It is retryable and distinct from ErrInvalidCredentials.
type MergeError struct {
	Err error
}

func (e *MergeError) Error() string {
	return ErrMergeFailed.Error() + ": " + e.Err.Error()
}

func (e *MergeError) Unwrap() error { return e.Err }

func (e *MergeError) Is(target error) bool {
	return target == ErrMergeFailed
}

func describeMethods(methods []accountdomain.Method) string {
	if len(methods) == 0 {
		return "no sign-in method"
	}
	parts := make([]string, len(methods))
	for i, m := range methods {
		if m == accountdomain.MethodCredentials {
			parts[i] = "email and password"
			continue
		}
		parts[i] = string(m)
	}
	return strings.Join(parts, ", ")
}
