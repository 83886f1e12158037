package flow

import (
	accountdomain "identity-portal/internal/account/domain"
	"identity-portal/internal/identity/domain"
	"identity-portal/internal/token"
)

// Redemption describes a presented token and the guards it must pass.
type Redemption struct {
	Purpose token.Purpose
	Value   string
	// AccountID, when set, must own the token.
	AccountID string
	// RequireCredentials rejects tokens whose account has no password sign-in.
	RequireCredentials bool
}

// RedeemState is a step of using an email-verification, password-reset or two-factor token.
type RedeemState interface{ isRedeemState() }

// TokenPresented is the initial state.
type TokenPresented struct{ Redemption }

// TokenWellFormed means the value has the wire shape of its purpose.
type TokenWellFormed struct{ Redemption }

// TokenAccepted means a live token matched and all guards passed.
type TokenAccepted struct {
	Redemption
	Match *token.Match
}

// TokenApplied is terminal: the effect was written and the token consumed together.
type TokenApplied struct{ Account *accountdomain.Account }

// TokenRejected is terminal. Err is domain.ErrInvalidOrExpired unless a guard named a different cause.
type TokenRejected struct{ Err error }

// TokenFailed is terminal: a dependency failed and nothing was applied.
type TokenFailed struct{ Err error }

func (TokenPresented) isRedeemState()  {}
func (TokenWellFormed) isRedeemState() {}
func (TokenAccepted) isRedeemState()   {}
func (TokenApplied) isRedeemState()    {}
func (TokenRejected) isRedeemState()   {}
func (TokenFailed) isRedeemState()     {}

// TokenLookedUp carries the live token found for the value, or nil.
type TokenLookedUp struct{ Match *token.Match }

// EffectApplied reports the outcome of applying the token's effect and consuming it.
type EffectApplied struct {
	Account *accountdomain.Account
	Err     error
}

func (TokenLookedUp) isEvent() {}
func (EffectApplied) isEvent() {}

// NextRedeem applies e to s.
func NextRedeem(s RedeemState, e Event) (RedeemState, error) {
	switch st := s.(type) {
	case TokenPresented:
		if _, ok := e.(CheckInput); ok {
			if !token.IsWellFormed(st.Value, st.Purpose) {
				return TokenRejected{Err: domain.ErrInvalidOrExpired}, nil
			}
			return TokenWellFormed{Redemption: st.Redemption}, nil
		}
	case TokenWellFormed:
		if ev, ok := e.(TokenLookedUp); ok {
			m := ev.Match
			switch {
			case m == nil || m.Account == nil:
				return TokenRejected{Err: domain.ErrInvalidOrExpired}, nil
			case m.Token.Purpose != st.Purpose:
				return TokenRejected{Err: domain.ErrInvalidOrExpired}, nil
			case st.AccountID != "" && m.Account.ID != st.AccountID:
				return TokenRejected{Err: domain.ErrInvalidOrExpired}, nil
			case st.RequireCredentials && !m.Account.HasMethod(accountdomain.MethodCredentials):
				return TokenRejected{Err: domain.ErrNoCredentials}, nil
			}
			return TokenAccepted{Redemption: st.Redemption, Match: m}, nil
		}
	case TokenAccepted:
		if ev, ok := e.(EffectApplied); ok {
			if ev.Err != nil {
				return TokenFailed{Err: ev.Err}, nil
			}
			return TokenApplied{Account: ev.Account}, nil
		}
	}
	return s, illegal(s, e)
}

// RedeemTerminal reports whether s ends the redemption.
func RedeemTerminal(s RedeemState) bool {
	switch s.(type) {
	case TokenApplied, TokenRejected, TokenFailed:
		return true
	}
	return false
}
