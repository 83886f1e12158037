package service

import (
	"context"
	"errors"
	"fmt"

	accountdomain "identity-portal/internal/account/domain"
	auditdomain "identity-portal/internal/audit/domain"
	"identity-portal/internal/identity/domain"
	"identity-portal/internal/identity/flow"
	"identity-portal/internal/notify"
	"identity-portal/internal/ratelimit"
	sessiondomain "identity-portal/internal/session/domain"
	"identity-portal/internal/store"
	"identity-portal/internal/telemetry"
	"identity-portal/internal/token"
)

// applyFunc writes the effect of an accepted token inside the redemption's transaction.
type applyFunc func(ctx context.Context, tx store.Tx, m *token.Match) (*accountdomain.Account, error)

// redeem drives a token through the redemption machine. With a nil apply it stops
// once the token is accepted and consumes nothing. The lookup, the effect and the
// consumption share one transaction, so a token is applied at most once.
func (s *CredentialService) redeem(ctx context.Context, r flow.Redemption, apply applyFunc) (*accountdomain.Account, error) {
	st, err := flow.NextRedeem(flow.TokenPresented{Redemption: r}, flow.CheckInput{})
	if err != nil {
		return nil, err
	}
	if rejected, ok := st.(flow.TokenRejected); ok {
		return nil, rejected.Err
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ledger := s.ledger.Bind(tx.Tokens())
		for !flow.RedeemTerminal(st) {
			var ev flow.Event
			switch cur := st.(type) {
			case flow.TokenWellFormed:
				var opts []token.VerifyOption
				if cur.AccountID != "" {
					opts = append(opts, token.ForAccount(cur.AccountID))
				}
				m, err := ledger.Verify(ctx, cur.Value, cur.Purpose, opts...)
				if err != nil && !errors.Is(err, token.ErrInvalidOrExpired) {
					return err
				}
				ev = flow.TokenLookedUp{Match: m}
			case flow.TokenAccepted:
				if apply == nil {
					return nil
				}
				acc, err := apply(ctx, tx, cur.Match)
				if err == nil {
					err = ledger.Consume(ctx, cur.Match)
				}
				ev = flow.EffectApplied{Account: acc, Err: err}
			}
			next, err := flow.NextRedeem(st, ev)
			if err != nil {
				return err
			}
			st = next
		}
		if failed, ok := st.(flow.TokenFailed); ok {
			return failed.Err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, token.ErrInvalidOrExpired) {
			return nil, domain.ErrInvalidOrExpired
		}
		return nil, fmt.Errorf("redeem %s: %w", r.Purpose, err)
	}
	switch end := st.(type) {
	case flow.TokenRejected:
		return nil, end.Err
	case flow.TokenApplied:
		return end.Account, nil
	case flow.TokenAccepted:
		return end.Match.Account, nil
	}
	return nil, fmt.Errorf("redeem %s: ended in %T", r.Purpose, st)
}

// VerifyEmail marks the token's account verified and consumes the token, together or not at all.
func (s *CredentialService) VerifyEmail(ctx context.Context, value string) (err error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.VerifyEmail")
	var accountID string
	defer func() { s.observe(ctx, span, telemetry.FlowVerifyEmail, accountID, "verified", err) }()

	acc, err := s.redeem(ctx, flow.Redemption{Purpose: token.PurposeEmailVerification, Value: value},
		func(ctx context.Context, tx store.Tx, m *token.Match) (*accountdomain.Account, error) {
			acc := m.Account.Clone()
			if acc.Verified() {
				return acc, nil
			}
			now := s.now()
			p := accountdomain.Patch{EmailVerifiedAt: &now}
			if err := tx.Accounts().Update(ctx, acc.ID, p); err != nil {
				return nil, err
			}
			p.Apply(acc, now)
			return acc, nil
		})
	if err != nil {
		return err
	}
	accountID = acc.ID
	s.audit.LogEvent(ctx, acc.ID, auditdomain.ActionEmailVerified, "")
	return nil
}

// ResendVerification issues a fresh verification link, which supersedes any earlier one.
// It refuses unknown, already verified and federated-only accounts.
func (s *CredentialService) ResendVerification(ctx context.Context, email string) (err error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.ResendVerification")
	var accountID string
	defer func() { s.observe(ctx, span, telemetry.FlowResendVerification, accountID, "notified", err) }()

	email = domain.NormalizeEmail(email)
	if err := domain.ValidateEmail(email); err != nil {
		return err
	}
	acc, err := s.store.Accounts().GetByEmail(ctx, email)
	switch {
	case err != nil:
		return fmt.Errorf("resend verification: lookup: %w", err)
	case acc == nil:
		return domain.ErrAccountNotFound
	case acc.Verified():
		return domain.ErrAlreadyVerified
	case !acc.HasMethod(accountdomain.MethodCredentials):
		return domain.ErrNoCredentials
	}
	accountID = acc.ID
	return s.issueAndSend(ctx, acc, token.PurposeEmailVerification)
}

// RequestPasswordReset sends a reset link to a password account. Unknown emails and
// federated-only accounts get the same nil result as a sent link.
func (s *CredentialService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.RequestPasswordReset")
	var accountID string
	outcome := "notified"
	defer func() { s.observe(ctx, span, telemetry.FlowResetRequest, accountID, outcome, err) }()

	email = domain.NormalizeEmail(email)
	if err := domain.ValidateEmail(email); err != nil {
		return err
	}
	acc, err := s.store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("password reset: lookup: %w", err)
	}
	if acc == nil || !acc.HasMethod(accountdomain.MethodCredentials) {
		outcome = "suppressed"
		return nil
	}
	accountID = acc.ID
	return s.issueAndSend(ctx, acc, token.PurposePasswordReset)
}

// ValidateResetToken checks a reset token without consuming it.
func (s *CredentialService) ValidateResetToken(ctx context.Context, value string) error {
	ctx, span := s.tracer.Start(ctx, "CredentialService.ValidateResetToken")
	defer span.End()
	_, err := s.redeem(ctx, flow.Redemption{Purpose: token.PurposePasswordReset, Value: value, RequireCredentials: true}, nil)
	return err
}

// ResetPassword sets a new password from a reset token and consumes the token in
// the same step. Completing a reset proves email ownership, so an unverified account becomes verified.
func (s *CredentialService) ResetPassword(ctx context.Context, value, newPassword string) (err error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.ResetPassword")
	var accountID string
	defer func() { s.observe(ctx, span, telemetry.FlowResetComplete, accountID, "reset", err) }()

	if err := domain.ValidateNewPassword(newPassword); err != nil {
		return err
	}
	if !token.IsWellFormed(value, token.PurposePasswordReset) {
		return domain.ErrInvalidOrExpired
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("password reset: hash: %w", err)
	}
	acc, err := s.redeem(ctx, flow.Redemption{Purpose: token.PurposePasswordReset, Value: value, RequireCredentials: true},
		func(ctx context.Context, tx store.Tx, m *token.Match) (*accountdomain.Account, error) {
			acc := m.Account.Clone()
			now := s.now()
			p := accountdomain.Patch{PasswordHash: &hash}
			if !acc.Verified() {
				p.EmailVerifiedAt = &now
			}
			if err := tx.Accounts().Update(ctx, acc.ID, p); err != nil {
				return nil, err
			}
			p.Apply(acc, now)
			return acc, nil
		})
	if err != nil {
		return err
	}
	accountID = acc.ID
	s.audit.LogEvent(ctx, acc.ID, auditdomain.ActionPasswordReset, "")
	return nil
}

// SendTwoFactorCode sends a fresh sign-in code to a password account with two-factor enabled.
func (s *CredentialService) SendTwoFactorCode(ctx context.Context, email string) (err error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.SendTwoFactorCode")
	var accountID string
	defer func() { s.observe(ctx, span, telemetry.FlowTwoFactorSend, accountID, "notified", err) }()

	acc, err := s.twoFactorAccount(ctx, email)
	if err != nil {
		return err
	}
	accountID = acc.ID
	return s.issueTwoFactor(ctx, acc)
}

// VerifyTwoFactorCode checks a code against the account it was issued to,
// consumes it and only then establishes the session.
func (s *CredentialService) VerifyTwoFactorCode(ctx context.Context, email, code string) (grant *sessiondomain.Grant, err error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.VerifyTwoFactorCode")
	var accountID string
	defer func() { s.observe(ctx, span, telemetry.FlowTwoFactorVerify, accountID, "session", err) }()

	acc, err := s.twoFactorAccount(ctx, email)
	if err != nil {
		return nil, err
	}
	accountID = acc.ID
	if err := s.checkLimit(ctx, ratelimit.ScopeTwoFactor, acc.ID); err != nil {
		return nil, err
	}
	owner, err := s.redeem(ctx, flow.Redemption{Purpose: token.PurposeTwoFactor, Value: code, AccountID: acc.ID, RequireCredentials: true},
		func(ctx context.Context, tx store.Tx, m *token.Match) (*accountdomain.Account, error) {
			return m.Account.Clone(), nil
		})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOrExpired) {
			s.recordFailure(ctx, ratelimit.ScopeTwoFactor, acc.ID)
		}
		return nil, err
	}
	s.resetLimit(ctx, ratelimit.ScopeTwoFactor, acc.ID)

	grant, err = s.sessions.Establish(s.composer.ClaimsForAccount(owner))
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, owner.ID, auditdomain.ActionTwoFactorVerified, "")
	s.audit.LogEvent(ctx, owner.ID, auditdomain.ActionLoginSuccess, "method=two_factor")
	return grant, nil
}

func (s *CredentialService) twoFactorAccount(ctx context.Context, email string) (*accountdomain.Account, error) {
	email = domain.NormalizeEmail(email)
	if err := domain.ValidateEmail(email); err != nil {
		return nil, err
	}
	acc, err := s.store.Accounts().GetByEmail(ctx, email)
	switch {
	case err != nil:
		return nil, fmt.Errorf("two-factor: lookup: %w", err)
	case acc == nil || !acc.HasMethod(accountdomain.MethodCredentials):
		return nil, domain.ErrAccountNotFound
	case !acc.TwoFactorEnabled:
		return nil, domain.ErrTwoFactorNotEnabled
	}
	return acc, nil
}

func (s *CredentialService) issueTwoFactor(ctx context.Context, acc *accountdomain.Account) error {
	return s.issueAndSend(ctx, acc, token.PurposeTwoFactor)
}

// issueAndSend issues a token for purpose and delivers it. An undelivered token is revoked.
func (s *CredentialService) issueAndSend(ctx context.Context, acc *accountdomain.Account, purpose token.Purpose) error {
	var issued *token.Issued
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		issued, err = s.ledger.Bind(tx.Tokens()).Issue(ctx, purpose, acc.ID)
		return err
	})
	if err != nil {
		return err
	}
	err = s.deliver(ctx, func() (notify.Message, error) {
		switch purpose {
		case token.PurposeEmailVerification:
			return s.renderer.Verification(acc.Email, issued.Value)
		case token.PurposePasswordReset:
			return s.renderer.PasswordReset(acc.Email, issued.Value)
		default:
			return s.renderer.TwoFactor(acc.Email, issued.Value)
		}
	})
	if err != nil {
		s.revoke(ctx, issued)
		return err
	}
	return nil
}
