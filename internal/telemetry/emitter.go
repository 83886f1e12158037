// Package telemetry carries identity flow outcomes to observability backends.
package telemetry

import (
	"context"
	"time"
)

// Flow names.
const (
	FlowRegister           = "register"
	FlowLogin              = "login"
	FlowVerifyEmail        = "verify_email"
	FlowResendVerification = "resend_verification"
	FlowResetRequest       = "password_reset_request"
	FlowResetComplete      = "password_reset"
	FlowTwoFactorSend      = "two_factor_send"
	FlowTwoFactorVerify    = "two_factor_verify"
	FlowFederatedSignIn    = "federated_sign_in"
)

// Event is the terminal outcome of one flow invocation. It never carries secrets.
type Event struct {
	Flow      string
	Outcome   string
	AccountID string
	At        time.Time
}

// EventEmitter emits flow events (e.g. to OTel logs and metrics). Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event Event) error
}

// Nop drops events.
type Nop struct{}

func (Nop) Emit(context.Context, Event) error { return nil }
