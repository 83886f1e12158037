package domain

import "time"

// Actions recorded by the identity flows.
const (
	ActionRegister          = "register"
	ActionLoginSuccess      = "login_success"
	ActionLoginFailure      = "login_failure"
	ActionEmailVerified     = "email_verified"
	ActionPasswordReset     = "password_reset"
	ActionTwoFactorVerified = "two_factor_verified"
	ActionFederatedSignIn   = "federated_sign_in"
)

// ResourceAccount is the resource of every identity audit event.
const ResourceAccount = "account"

// AuditLog represents an audit event. AccountID is empty when the event has no known account.
type AuditLog struct {
	ID        string
	AccountID string
	Action    string
	Resource  string
	IP        string
	Metadata  string
	CreatedAt time.Time
}
