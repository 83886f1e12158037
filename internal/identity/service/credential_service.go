// Package service implements the credential lifecycle: registration, password
// sign-in, email verification, password reset and two-factor step-up.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	accountdomain "identity-portal/internal/account/domain"
	accountrepo "identity-portal/internal/account/repository"
	"identity-portal/internal/audit"
	auditdomain "identity-portal/internal/audit/domain"
	"identity-portal/internal/identity/domain"
	"identity-portal/internal/identity/flow"
	"identity-portal/internal/identity/merge"
	"identity-portal/internal/logging"
	"identity-portal/internal/notify"
	"identity-portal/internal/ratelimit"
	"identity-portal/internal/security"
	"identity-portal/internal/session"
	sessiondomain "identity-portal/internal/session/domain"
	"identity-portal/internal/store"
	"identity-portal/internal/telemetry"
	"identity-portal/internal/token"
)

// LoginStatus is how a successful password check ended.
type LoginStatus string

const (
	// LoginSessionEstablished means Session is set.
	LoginSessionEstablished LoginStatus = "session"
	// LoginVerificationRequired means the email must be verified first.
	LoginVerificationRequired LoginStatus = "verification_required"
	// LoginTwoFactorRequired means a code was sent and must be verified to get a session.
	LoginTwoFactorRequired LoginStatus = "two_factor_required"
)

// LoginResult is the outcome of a password sign-in that was not rejected.
type LoginResult struct {
	Status    LoginStatus
	AccountID string
	Email     string
	Session   *sessiondomain.Grant
}

// Option configures a CredentialService.
type Option func(*CredentialService)

// WithLimiter sets the attempt limiter guarding passwords and two-factor codes.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(s *CredentialService) { s.limiter = l }
}

// WithAudit sets the audit logger.
func WithAudit(a audit.AuditLogger) Option {
	return func(s *CredentialService) { s.audit = a }
}

// WithEvents sets the telemetry emitter for flow outcomes.
func WithEvents(e telemetry.EventEmitter) Option {
	return func(s *CredentialService) { s.events = e }
}

// WithLogger sets the logger.
func WithLogger(l logging.Logger) Option {
	return func(s *CredentialService) { s.log = l }
}

// WithClock sets the time source for accounts and tokens.
func WithClock(now func() time.Time) Option {
	return func(s *CredentialService) { s.now = now }
}

// CredentialService orchestrates the credential flows over the store, hasher,
// token ledger and notifier. Flows run to a terminal state once started; a
// failed notification undoes whatever the flow created.
type CredentialService struct {
	store     store.Store
	hasher    *security.Hasher
	ledger    *token.Ledger
	renderer  *notify.Renderer
	notifier  notify.Notifier
	composer  *merge.Composer
	sessions  *session.Manager
	limiter   ratelimit.Limiter
	audit     audit.AuditLogger
	events    telemetry.EventEmitter
	log       logging.Logger
	tracer    trace.Tracer
	now       func() time.Time
	dummyHash string
}

// NewCredentialService returns a CredentialService. It hashes a throwaway
// password once so unknown-email sign-ins cost the same as wrong passwords.
func NewCredentialService(
	st store.Store,
	hasher *security.Hasher,
	composer *merge.Composer,
	sessions *session.Manager,
	renderer *notify.Renderer,
	notifier notify.Notifier,
	opts ...Option,
) (*CredentialService, error) {
	s := &CredentialService{
		store:    st,
		hasher:   hasher,
		renderer: renderer,
		notifier: notifier,
		composer: composer,
		sessions: sessions,
		limiter:  ratelimit.Noop{},
		audit:    audit.Nop{},
		events:   telemetry.Nop{},
		tracer:   otel.Tracer("identity-portal/identity"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	s.log = logging.OrDiscard(s.log)
	s.ledger = token.NewLedger(st.Tokens()).WithClock(s.now)
	dummy, err := hasher.Hash(uuid.New().String())
	if err != nil {
		return nil, fmt.Errorf("identity: prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Register creates a password account and sends its verification link. If the
// link cannot be delivered the account is removed again and ErrNotificationFailed returned.
func (s *CredentialService) Register(ctx context.Context, name, email, password string) (accountID string, err error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.Register")
	defer func() { s.observe(ctx, span, telemetry.FlowRegister, accountID, "notified", err) }()

	email = domain.NormalizeEmail(email)
	name = strings.TrimSpace(name)
	if err := domain.ValidateRegistration(name, email, password); err != nil {
		return "", err
	}
	existing, err := s.store.Accounts().GetByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("register: lookup: %w", err)
	}
	if existing != nil {
		return "", &domain.AccountExistsError{Methods: existing.Methods}
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return "", fmt.Errorf("register: hash: %w", err)
	}

	now := s.now()
	acc := &accountdomain.Account{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Methods:      []accountdomain.Method{accountdomain.MethodCredentials},
		Role:         accountdomain.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	var issued *token.Issued
	err = s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Accounts().Create(ctx, acc); err != nil {
			return err
		}
		var err error
		issued, err = s.ledger.Bind(tx.Tokens()).Issue(ctx, token.PurposeEmailVerification, acc.ID)
		return err
	})
	if errors.Is(err, accountrepo.ErrEmailTaken) {
		return "", s.accountExists(ctx, email)
	}
	if err != nil {
		return "", fmt.Errorf("register: %w", err)
	}

	if err := s.deliver(ctx, func() (notify.Message, error) { return s.renderer.Verification(email, issued.Value) }); err != nil {
		s.removeAccount(ctx, issued)
		return "", err
	}
	s.audit.LogEvent(ctx, acc.ID, auditdomain.ActionRegister, "")
	return acc.ID, nil
}

// Login checks an email and password. Unknown email and wrong password both
// return ErrInvalidCredentials; an account without password sign-in returns
// *domain.MethodMismatchError. A session is only established when the email is
// verified and two-factor is off; otherwise the result says what is required.
func (s *CredentialService) Login(ctx context.Context, email, password string) (res *LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.Login")
	email = domain.NormalizeEmail(email)
	defer func() {
		outcome, accountID := "", ""
		if res != nil {
			outcome, accountID = string(res.Status), res.AccountID
		}
		s.observe(ctx, span, telemetry.FlowLogin, accountID, outcome, err)
	}()

	var st flow.LoginState = flow.LoginReceived{Email: email, Password: password}
	for !flow.LoginTerminal(st) {
		ev, err := s.loginEvent(ctx, st, password)
		if err != nil {
			return nil, err
		}
		if st, err = flow.NextLogin(st, ev); err != nil {
			return nil, err
		}
	}
	return s.finishLogin(ctx, email, st)
}

// loginEvent performs the I/O the current sign-in state needs and reports it as an event.
func (s *CredentialService) loginEvent(ctx context.Context, st flow.LoginState, password string) (flow.Event, error) {
	switch cur := st.(type) {
	case flow.LoginReceived:
		return flow.CheckInput{}, nil
	case flow.LoginValidated:
		if err := s.checkLimit(ctx, ratelimit.ScopeLogin, cur.Email); err != nil {
			return nil, err
		}
		acc, err := s.store.Accounts().GetByEmail(ctx, cur.Email)
		if err != nil {
			return nil, fmt.Errorf("login: lookup: %w", err)
		}
		if acc == nil {
			s.hasher.Verify(password, s.dummyHash)
		}
		return flow.AccountLookedUp{Account: acc}, nil
	case flow.LoginAccountFound:
		return flow.PasswordChecked{Match: s.hasher.Verify(password, cur.Account.PasswordHash)}, nil
	case flow.LoginAuthenticated:
		s.resetLimit(ctx, ratelimit.ScopeLogin, cur.Account.Email)
		return flow.GateAccount{}, nil
	case flow.LoginStepUpRequired:
		return flow.ChallengeIssued{Err: s.issueTwoFactor(ctx, cur.Account)}, nil
	}
	return nil, fmt.Errorf("login: no action for %T", st)
}

func (s *CredentialService) finishLogin(ctx context.Context, email string, st flow.LoginState) (*LoginResult, error) {
	switch end := st.(type) {
	case flow.LoginInvalid:
		return nil, end.Err
	case flow.LoginRejected:
		s.recordFailure(ctx, ratelimit.ScopeLogin, email)
		s.audit.LogEvent(ctx, "", auditdomain.ActionLoginFailure, "")
		return nil, domain.ErrInvalidCredentials
	case flow.LoginMethodMismatch:
		return nil, &domain.MethodMismatchError{Methods: end.Methods}
	case flow.LoginVerificationRequired:
		return &LoginResult{Status: LoginVerificationRequired, AccountID: end.Account.ID, Email: email}, nil
	case flow.LoginChallengeSent:
		return &LoginResult{Status: LoginTwoFactorRequired, AccountID: end.Account.ID, Email: email}, nil
	case flow.LoginFailed:
		return nil, end.Err
	case flow.LoginSessionReady:
		grant, err := s.sessions.Establish(s.composer.ClaimsForAccount(end.Account))
		if err != nil {
			return nil, err
		}
		s.audit.LogEvent(ctx, end.Account.ID, auditdomain.ActionLoginSuccess, "")
		return &LoginResult{Status: LoginSessionEstablished, AccountID: end.Account.ID, Email: email, Session: grant}, nil
	}
	return nil, fmt.Errorf("login: ended in %T", st)
}

// FederatedSignIn merges a provider-authenticated identity into its account and establishes a session.
func (s *CredentialService) FederatedSignIn(ctx context.Context, id merge.FederatedIdentity) (grant *sessiondomain.Grant, err error) {
	ctx, span := s.tracer.Start(ctx, "CredentialService.FederatedSignIn")
	span.SetAttributes(attribute.String("identity.provider", string(id.Provider)))
	defer func() {
		accountID := ""
		if grant != nil {
			accountID = grant.Claims.AccountID
		}
		s.observe(ctx, span, telemetry.FlowFederatedSignIn, accountID, "session", err)
	}()

	acc, claims, err := s.composer.SignInFederated(ctx, id)
	if err != nil {
		return nil, err
	}
	grant, err = s.sessions.Establish(claims)
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, acc.ID, auditdomain.ActionFederatedSignIn, "provider="+string(id.Provider))
	return grant, nil
}

// deliver renders a message and sends it. Any failure is ErrNotificationFailed.
func (s *CredentialService) deliver(ctx context.Context, render func() (notify.Message, error)) error {
	msg, err := render()
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotificationFailed, err)
	}
	if err := s.notifier.Send(ctx, msg); err != nil {
		s.log.Warn(ctx, "notification failed", "kind", string(msg.Kind), "error", err)
		return fmt.Errorf("%w: %v", domain.ErrNotificationFailed, err)
	}
	return nil
}

// removeAccount undoes a registration whose verification link was not delivered.
func (s *CredentialService) removeAccount(ctx context.Context, issued *token.Issued) {
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := s.ledger.Bind(tx.Tokens()).Withdraw(ctx, issued); err != nil {
			return err
		}
		return tx.Accounts().Delete(ctx, issued.AccountID)
	})
	if err != nil {
		s.log.Error(ctx, "register: could not remove undelivered account", "account_id", issued.AccountID, "error", err)
	}
}

// revoke drops a token nobody received.
func (s *CredentialService) revoke(ctx context.Context, issued *token.Issued) {
	ctx = context.WithoutCancel(ctx)
	err := s.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return s.ledger.Bind(tx.Tokens()).Withdraw(ctx, issued)
	})
	if err != nil {
		s.log.Error(ctx, "could not revoke undelivered token", "purpose", string(issued.Purpose), "error", err)
	}
}

func (s *CredentialService) accountExists(ctx context.Context, email string) error {
	existing, err := s.store.Accounts().GetByEmail(ctx, email)
	if err != nil || existing == nil {
		return &domain.AccountExistsError{}
	}
	return &domain.AccountExistsError{Methods: existing.Methods}
}

// checkLimit fails closed: an unreachable limiter refuses the attempt.
func (s *CredentialService) checkLimit(ctx context.Context, scope, subject string) error {
	err := s.limiter.Check(ctx, scope, subject)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ratelimit.ErrLimited):
		return domain.ErrRateLimited
	default:
		return fmt.Errorf("attempt limiter: %w", err)
	}
}

func (s *CredentialService) recordFailure(ctx context.Context, scope, subject string) {
	if err := s.limiter.RecordFailure(ctx, scope, subject); err != nil && !errors.Is(err, ratelimit.ErrLimited) {
		s.log.Warn(ctx, "attempt limiter: record failure", "scope", scope, "error", err)
	}
}

func (s *CredentialService) resetLimit(ctx context.Context, scope, subject string) {
	if err := s.limiter.Reset(ctx, scope, subject); err != nil {
		s.log.Warn(ctx, "attempt limiter: reset", "scope", scope, "error", err)
	}
}

// observe ends span and emits the flow outcome. On error the outcome is derived from err.
func (s *CredentialService) observe(ctx context.Context, span trace.Span, flowName, accountID, outcome string, err error) {
	if err != nil {
		outcome = outcomeOf(err)
		if outcome == "error" || outcome == "merge_failed" || outcome == "notify_failed" {
			span.RecordError(err)
			span.SetStatus(codes.Error, outcome)
		}
	}
	span.SetAttributes(attribute.String("identity.outcome", outcome))
	span.End()
	telemetry.EmitAsync(ctx, s.events, telemetry.Event{Flow: flowName, Outcome: outcome, AccountID: accountID}, s.log)
}

func outcomeOf(err error) string {
	var (
		ve *domain.ValidationError
		mm *domain.MethodMismatchError
	)
	switch {
	case errors.As(err, &ve):
		return "invalid"
	case errors.As(err, &mm):
		return "method_mismatch"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "rejected"
	case errors.Is(err, domain.ErrInvalidOrExpired):
		return "invalid_or_expired"
	case errors.Is(err, domain.ErrEmailAlreadyRegistered):
		return "exists"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrNotificationFailed):
		return "notify_failed"
	case errors.Is(err, domain.ErrMergeFailed):
		return "merge_failed"
	case errors.Is(err, domain.ErrAccountNotFound), errors.Is(err, domain.ErrAlreadyVerified),
		errors.Is(err, domain.ErrNoCredentials), errors.Is(err, domain.ErrTwoFactorNotEnabled),
		errors.Is(err, domain.ErrProviderNotEnabled):
		return "refused"
	}
	return "error"
}
