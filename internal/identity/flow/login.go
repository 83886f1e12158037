package flow

import (
	accountdomain "identity-portal/internal/account/domain"
	"identity-portal/internal/identity/domain"
)

// LoginState is a step of a password sign-in.
type LoginState interface{ isLoginState() }

// LoginReceived is the initial state. Email must already be normalized.
type LoginReceived struct {
	Email    string
	Password string
}

// LoginValidated means the input passed field validation.
type LoginValidated struct{ Email string }

// LoginInvalid is terminal: the input was malformed.
type LoginInvalid struct{ Err error }

// LoginRejected is terminal: unknown email or wrong password, indistinguishably.
type LoginRejected struct{}

// LoginMethodMismatch is terminal: the account exists but has no password sign-in.
type LoginMethodMismatch struct{ Methods []accountdomain.Method }

// LoginAccountFound means a password-capable account exists for the email.
type LoginAccountFound struct{ Account *accountdomain.Account }

// LoginAuthenticated means the password matched.
type LoginAuthenticated struct{ Account *accountdomain.Account }

// LoginVerificationRequired is terminal: the email must be verified before a session is granted.
type LoginVerificationRequired struct{ Account *accountdomain.Account }

// LoginStepUpRequired means a two-factor challenge must be issued.
type LoginStepUpRequired struct{ Account *accountdomain.Account }

// LoginChallengeSent is terminal: a two-factor code was delivered; no session yet.
type LoginChallengeSent struct{ Account *accountdomain.Account }

// LoginSessionReady is terminal: a session may be established.
type LoginSessionReady struct{ Account *accountdomain.Account }

// LoginFailed is terminal: a dependency failed.
type LoginFailed struct{ Err error }

func (LoginReceived) isLoginState()             {}
func (LoginValidated) isLoginState()            {}
func (LoginInvalid) isLoginState()              {}
func (LoginRejected) isLoginState()             {}
func (LoginMethodMismatch) isLoginState()       {}
func (LoginAccountFound) isLoginState()         {}
func (LoginAuthenticated) isLoginState()        {}
func (LoginVerificationRequired) isLoginState() {}
func (LoginStepUpRequired) isLoginState()       {}
func (LoginChallengeSent) isLoginState()        {}
func (LoginSessionReady) isLoginState()         {}
func (LoginFailed) isLoginState()               {}

// AccountLookedUp carries the account found by email, or nil.
type AccountLookedUp struct{ Account *accountdomain.Account }

// PasswordChecked carries the result of password verification.
type PasswordChecked struct{ Match bool }

// GateAccount routes an authenticated account through verification and step-up checks.
type GateAccount struct{}

// ChallengeIssued reports the outcome of issuing and sending a two-factor code.
type ChallengeIssued struct{ Err error }

func (AccountLookedUp) isEvent() {}
func (PasswordChecked) isEvent() {}
func (GateAccount) isEvent()     {}
func (ChallengeIssued) isEvent() {}

// NextLogin applies e to s. Password verification alone never yields
// LoginSessionReady for a two-factor account.
func NextLogin(s LoginState, e Event) (LoginState, error) {
	switch st := s.(type) {
	case LoginReceived:
		if _, ok := e.(CheckInput); ok {
			if err := domain.ValidateLogin(st.Email, st.Password); err != nil {
				return LoginInvalid{Err: err}, nil
			}
			return LoginValidated{Email: st.Email}, nil
		}
	case LoginValidated:
		if ev, ok := e.(AccountLookedUp); ok {
			switch {
			case ev.Account == nil:
				return LoginRejected{}, nil
			case !ev.Account.HasMethod(accountdomain.MethodCredentials):
				return LoginMethodMismatch{Methods: ev.Account.Methods}, nil
			}
			return LoginAccountFound{Account: ev.Account}, nil
		}
	case LoginAccountFound:
		if ev, ok := e.(PasswordChecked); ok {
			if !ev.Match {
				return LoginRejected{}, nil
			}
			return LoginAuthenticated{Account: st.Account}, nil
		}
	case LoginAuthenticated:
		if _, ok := e.(GateAccount); ok {
			switch {
			case !st.Account.Verified():
				return LoginVerificationRequired{Account: st.Account}, nil
			case st.Account.TwoFactorEnabled:
				return LoginStepUpRequired{Account: st.Account}, nil
			}
			return LoginSessionReady{Account: st.Account}, nil
		}
	case LoginStepUpRequired:
		if ev, ok := e.(ChallengeIssued); ok {
			if ev.Err != nil {
				return LoginFailed{Err: ev.Err}, nil
			}
			return LoginChallengeSent{Account: st.Account}, nil
		}
	}
	return s, illegal(s, e)
}

// LoginTerminal reports whether s ends the sign-in.
func LoginTerminal(s LoginState) bool {
	switch s.(type) {
	case LoginInvalid, LoginRejected, LoginMethodMismatch, LoginVerificationRequired,
		LoginChallengeSent, LoginSessionReady, LoginFailed:
		return true
	}
	return false
}
