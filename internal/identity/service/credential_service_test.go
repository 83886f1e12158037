package service

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	accountdomain "identity-portal/internal/account/domain"
	"identity-portal/internal/audit"
	auditdomain "identity-portal/internal/audit/domain"
	auditrepo "identity-portal/internal/audit/repository"
	"identity-portal/internal/identity/domain"
	"identity-portal/internal/identity/merge"
	"identity-portal/internal/notify"
	"identity-portal/internal/ratelimit"
	"identity-portal/internal/security"
	"identity-portal/internal/session"
	"identity-portal/internal/store"
)

type harness struct {
	svc    *CredentialService
	st     *store.Memory
	hasher *security.Hasher
	outbox *notify.Outbox
	audits *auditrepo.MemoryRepository

	mu       sync.Mutex
	failSend bool
	now      time.Time
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	hasher, err := security.NewHasher(security.DefaultHashParams())
	if err != nil {
		t.Fatalf("NewHasher: %v", err)
	}
	tp, err := security.NewTestTokenProvider()
	if err != nil {
		t.Fatalf("NewTestTokenProvider: %v", err)
	}
	h := &harness{
		st:     store.NewMemory(),
		hasher: hasher,
		outbox: notify.NewOutbox(),
		audits: auditrepo.NewMemoryRepository(),
		now:    time.Now().UTC(),
	}
	notifier := notify.NotifierFunc(func(ctx context.Context, msg notify.Message) error {
		h.mu.Lock()
		fail := h.failSend
		h.mu.Unlock()
		if fail {
			return errors.New("relay unavailable")
		}
		return h.outbox.Send(ctx, msg)
	})
	composer := merge.NewComposer(h.st, merge.Config{EnabledProviders: []accountdomain.Method{accountdomain.MethodGoogle}})
	base := []Option{
		WithAudit(audit.NewLogger(h.audits, nil, nil)),
		WithClock(h.clock),
	}
	h.svc, err = NewCredentialService(h.st, hasher, composer, session.NewManager(tp),
		notify.NewRenderer("https://portal.test"), notifier, append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewCredentialService: %v", err)
	}
	return h
}

func (h *harness) clock() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.now = h.now.Add(d)
}

func (h *harness) setFailSend(v bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failSend = v
}

// seedLocal stores a password account.
func (h *harness) seedLocal(t *testing.T, email, password string, verified, twoFactor bool) *accountdomain.Account {
	t.Helper()
	hash, err := h.hasher.Hash(password)
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	a := &accountdomain.Account{
		ID: "id-" + email, Email: email, Name: "Test", PasswordHash: hash,
		Methods: []accountdomain.Method{accountdomain.MethodCredentials}, TwoFactorEnabled: twoFactor,
	}
	if verified {
		at := h.clock().Add(-time.Hour)
		a.EmailVerifiedAt = &at
	}
	if err := h.st.AccountRepository().Create(context.Background(), a); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return a
}

func (h *harness) account(t *testing.T, email string) *accountdomain.Account {
	t.Helper()
	a, err := h.st.Accounts().GetByEmail(context.Background(), email)
	if err != nil {
		t.Fatalf("GetByEmail: %v", err)
	}
	return a
}

// linkToken pulls the token query parameter from the latest message of kind.
func (h *harness) linkToken(t *testing.T, email string, kind notify.Kind) string {
	t.Helper()
	msg, ok := h.outbox.Latest(email, kind)
	if !ok {
		t.Fatalf("no %s message for %s", kind, email)
	}
	u, err := url.Parse(msg.Link)
	if err != nil {
		t.Fatalf("parse link %q: %v", msg.Link, err)
	}
	return u.Query().Get("token")
}

func (h *harness) code(t *testing.T, email string) string {
	t.Helper()
	msg, ok := h.outbox.Latest(email, notify.KindTwoFactor)
	if !ok {
		t.Fatalf("no two-factor message for %s", email)
	}
	return msg.Code
}

func (h *harness) auditActions(accountID string) []string {
	entries, _ := h.audits.ListByAccount(context.Background(), accountID, 100)
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Action
	}
	return out
}

func TestRegister_SendsVerificationLink(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.svc.Register(ctx, "  Alice ", "A@X.com", "secret1")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	acc := h.account(t, "a@x.com")
	if acc == nil || acc.ID != id {
		t.Fatal("account not stored under normalized email")
	}
	if acc.Name != "Alice" || acc.Verified() || !acc.HasMethod(accountdomain.MethodCredentials) || acc.Role != accountdomain.RoleUser {
		t.Errorf("account = %+v", acc)
	}
	if !h.hasher.Verify("secret1", acc.PasswordHash) {
		t.Error("stored hash does not verify")
	}
	if tok := h.linkToken(t, "a@x.com", notify.KindVerification); len(tok) != 64 {
		t.Errorf("verification token %q, want 64 hex chars", tok)
	}
	if got := h.auditActions(id); len(got) != 1 || got[0] != auditdomain.ActionRegister {
		t.Errorf("audit = %v", got)
	}
}

func TestRegister_NotifierFailureRemovesAccount(t *testing.T) {
	h := newHarness(t)
	h.setFailSend(true)

	_, err := h.svc.Register(context.Background(), "Alice", "a@x.com", "secret1")
	if !errors.Is(err, domain.ErrNotificationFailed) {
		t.Fatalf("err = %v, want ErrNotificationFailed", err)
	}
	if h.account(t, "a@x.com") != nil {
		t.Error("account must not persist without a delivered verification link")
	}
	if n := h.st.TokenRepository().Count(); n != 0 {
		t.Errorf("tokens left = %d, want 0", n)
	}
}

func TestRegister_ExistingEmailNamesMethods(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.st.AccountRepository().Create(ctx, &accountdomain.Account{
		ID: "g", Email: "g@x.com", Methods: []accountdomain.Method{accountdomain.MethodGoogle},
	}); err != nil {
		t.Fatal(err)
	}

	_, err := h.svc.Register(ctx, "Gee", "g@x.com", "secret1")
	var exists *domain.AccountExistsError
	if !errors.As(err, &exists) || !errors.Is(err, domain.ErrEmailAlreadyRegistered) {
		t.Fatalf("err = %v, want AccountExistsError", err)
	}
	if len(exists.Methods) != 1 || exists.Methods[0] != accountdomain.MethodGoogle {
		t.Errorf("methods = %v", exists.Methods)
	}
	if h.outbox.Sent() != 0 {
		t.Error("no message should be sent")
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	h := newHarness(t)
	for _, in := range [][3]string{{"A", "a@x.com", "secret1"}, {"Alice", "bad", "secret1"}, {"Alice", "a@x.com", "short"}} {
		_, err := h.svc.Register(context.Background(), in[0], in[1], in[2])
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("Register(%q, %q, %q) = %v, want ValidationError", in[0], in[1], in[2], err)
		}
	}
}

func TestLogin_GenericRejection(t *testing.T) {
	h := newHarness(t)
	h.seedLocal(t, "a@x.com", "secret1", true, false)
	ctx := context.Background()

	_, errUnknown := h.svc.Login(ctx, "nobody@x.com", "secret1")
	_, errWrong := h.svc.Login(ctx, "a@x.com", "wrong-pass")
	if !errors.Is(errUnknown, domain.ErrInvalidCredentials) || !errors.Is(errWrong, domain.ErrInvalidCredentials) {
		t.Fatalf("unknown = %v, wrong = %v; both want ErrInvalidCredentials", errUnknown, errWrong)
	}
	if errUnknown.Error() != errWrong.Error() {
		t.Errorf("rejections differ: %q vs %q", errUnknown, errWrong)
	}
}

func TestLogin_FederatedOnlyAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.st.AccountRepository().Create(ctx, &accountdomain.Account{
		ID: "g", Email: "g@x.com", Methods: []accountdomain.Method{accountdomain.MethodGoogle},
	})
	_, err := h.svc.Login(ctx, "g@x.com", "whatever")
	var mm *domain.MethodMismatchError
	if !errors.As(err, &mm) || len(mm.Methods) != 1 || mm.Methods[0] != accountdomain.MethodGoogle {
		t.Fatalf("err = %v, want MethodMismatchError naming google", err)
	}
}

func TestLogin_UnverifiedRequiresVerification(t *testing.T) {
	h := newHarness(t)
	h.seedLocal(t, "a@x.com", "secret1", false, false)

	res, err := h.svc.Login(context.Background(), "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Status != LoginVerificationRequired || res.Session != nil {
		t.Errorf("result = %+v, want verification required without session", res)
	}
}

func TestLogin_EstablishesSession(t *testing.T) {
	h := newHarness(t)
	acc := h.seedLocal(t, "a@x.com", "secret1", true, false)

	res, err := h.svc.Login(context.Background(), "A@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Status != LoginSessionEstablished || res.Session == nil || res.Session.Token == "" {
		t.Fatalf("result = %+v", res)
	}
	c := res.Session.Claims
	if c.AccountID != acc.ID || c.Role != "user" || c.EmailVerifiedAt == nil {
		t.Errorf("claims = %+v", c)
	}
	if got := h.auditActions(acc.ID); len(got) != 1 || got[0] != auditdomain.ActionLoginSuccess {
		t.Errorf("audit = %v", got)
	}
}

func TestLogin_TwoFactorStepUp(t *testing.T) {
	h := newHarness(t)
	acc := h.seedLocal(t, "a@x.com", "secret1", true, true)
	ctx := context.Background()

	res, err := h.svc.Login(ctx, "a@x.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Status != LoginTwoFactorRequired || res.Session != nil {
		t.Fatalf("result = %+v, want two-factor required without session", res)
	}
	code := h.code(t, "a@x.com")
	if len(code) != 6 {
		t.Fatalf("code %q", code)
	}

	grant, err := h.svc.VerifyTwoFactorCode(ctx, "a@x.com", code)
	if err != nil {
		t.Fatalf("VerifyTwoFactorCode: %v", err)
	}
	if grant.Claims.AccountID != acc.ID {
		t.Errorf("grant for %q, want %q", grant.Claims.AccountID, acc.ID)
	}
	if _, err := h.svc.VerifyTwoFactorCode(ctx, "a@x.com", code); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Errorf("reused code: err = %v, want ErrInvalidOrExpired", err)
	}
}

func TestLogin_TwoFactorSendFailure(t *testing.T) {
	h := newHarness(t)
	h.seedLocal(t, "a@x.com", "secret1", true, true)
	h.setFailSend(true)

	if _, err := h.svc.Login(context.Background(), "a@x.com", "secret1"); !errors.Is(err, domain.ErrNotificationFailed) {
		t.Fatalf("err = %v, want ErrNotificationFailed", err)
	}
	if n := h.st.TokenRepository().Count(); n != 0 {
		t.Errorf("undelivered code left live: %d tokens", n)
	}
}

func TestVerifyTwoFactorCode_RejectsOtherAccountsCode(t *testing.T) {
	h := newHarness(t)
	h.seedLocal(t, "a@x.com", "secret1", true, true)
	h.seedLocal(t, "b@x.com", "secret2", true, true)
	ctx := context.Background()

	if err := h.svc.SendTwoFactorCode(ctx, "a@x.com"); err != nil {
		t.Fatalf("SendTwoFactorCode: %v", err)
	}
	codeA := h.code(t, "a@x.com")
	if _, err := h.svc.VerifyTwoFactorCode(ctx, "b@x.com", codeA); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Fatalf("A's code for B: err = %v, want ErrInvalidOrExpired", err)
	}
	if _, err := h.svc.VerifyTwoFactorCode(ctx, "a@x.com", codeA); err != nil {
		t.Errorf("A's code for A should still work: %v", err)
	}
}

func TestSendTwoFactorCode_Guards(t *testing.T) {
	h := newHarness(t)
	h.seedLocal(t, "off@x.com", "secret1", true, false)
	ctx := context.Background()
	if err := h.svc.SendTwoFactorCode(ctx, "missing@x.com"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("missing: %v", err)
	}
	if err := h.svc.SendTwoFactorCode(ctx, "off@x.com"); !errors.Is(err, domain.ErrTwoFactorNotEnabled) {
		t.Errorf("disabled: %v", err)
	}
}

func TestVerifyEmail_AppliesOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id, err := h.svc.Register(ctx, "Alice", "a@x.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	tok := h.linkToken(t, "a@x.com", notify.KindVerification)

	if err := h.svc.VerifyEmail(ctx, tok); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if !h.account(t, "a@x.com").Verified() {
		t.Error("account not verified")
	}
	if n := h.st.TokenRepository().Count(); n != 0 {
		t.Errorf("token not consumed: %d left", n)
	}
	if err := h.svc.VerifyEmail(ctx, tok); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Errorf("second VerifyEmail: %v", err)
	}
	if got := h.auditActions(id); len(got) != 2 || got[0] != auditdomain.ActionEmailVerified {
		t.Errorf("audit = %v", got)
	}
}

func TestVerifyEmail_MalformedAndExpired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.svc.VerifyEmail(ctx, "not-a-token"); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Errorf("malformed: %v", err)
	}
	if _, err := h.svc.Register(ctx, "Alice", "a@x.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	tok := h.linkToken(t, "a@x.com", notify.KindVerification)
	h.advance(24*time.Hour + time.Second)
	if err := h.svc.VerifyEmail(ctx, tok); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Errorf("expired: %v", err)
	}
	if h.account(t, "a@x.com").Verified() {
		t.Error("expired token must not verify")
	}
}

func TestResendVerification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.seedLocal(t, "done@x.com", "secret1", true, false)
	_ = h.st.AccountRepository().Create(ctx, &accountdomain.Account{ID: "g", Email: "g@x.com", Methods: []accountdomain.Method{accountdomain.MethodGoogle}})

	if err := h.svc.ResendVerification(ctx, "nobody@x.com"); !errors.Is(err, domain.ErrAccountNotFound) {
		t.Errorf("unknown: %v", err)
	}
	if err := h.svc.ResendVerification(ctx, "done@x.com"); !errors.Is(err, domain.ErrAlreadyVerified) {
		t.Errorf("verified: %v", err)
	}
	if err := h.svc.ResendVerification(ctx, "g@x.com"); !errors.Is(err, domain.ErrNoCredentials) {
		t.Errorf("federated: %v", err)
	}

	if _, err := h.svc.Register(ctx, "Alice", "a@x.com", "secret1"); err != nil {
		t.Fatal(err)
	}
	first := h.linkToken(t, "a@x.com", notify.KindVerification)
	if err := h.svc.ResendVerification(ctx, "a@x.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	second := h.linkToken(t, "a@x.com", notify.KindVerification)
	if first == second {
		t.Fatal("resend should issue a new token")
	}
	if err := h.svc.VerifyEmail(ctx, first); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Errorf("superseded token: %v", err)
	}
	if err := h.svc.VerifyEmail(ctx, second); err != nil {
		t.Errorf("new token: %v", err)
	}
}

func TestRequestPasswordReset_UniformForUnknown(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_ = h.st.AccountRepository().Create(ctx, &accountdomain.Account{ID: "g", Email: "g@x.com", Methods: []accountdomain.Method{accountdomain.MethodGoogle}})

	for _, email := range []string{"nobody@x.com", "g@x.com"} {
		if err := h.svc.RequestPasswordReset(ctx, email); err != nil {
			t.Errorf("RequestPasswordReset(%q) = %v, want nil", email, err)
		}
	}
	if h.outbox.Sent() != 0 {
		t.Errorf("sent %d messages, want 0", h.outbox.Sent())
	}
	var ve *domain.ValidationError
	if err := h.svc.RequestPasswordReset(ctx, "bad"); !errors.As(err, &ve) {
		t.Errorf("malformed email: %v", err)
	}
}

func TestRequestPasswordReset_NotifierFailureRevokesToken(t *testing.T) {
	h := newHarness(t)
	h.seedLocal(t, "a@x.com", "secret1", true, false)
	h.setFailSend(true)

	if err := h.svc.RequestPasswordReset(context.Background(), "a@x.com"); !errors.Is(err, domain.ErrNotificationFailed) {
		t.Fatalf("err = %v, want ErrNotificationFailed", err)
	}
	if n := h.st.TokenRepository().Count(); n != 0 {
		t.Errorf("tokens = %d, want 0", n)
	}
}

func TestRequestPasswordReset_SurvivesConcurrentRollback(t *testing.T) {
	h := newHarness(t)
	h.seedLocal(t, "a@x.com", "secret1", true, false)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	rolledBack := make(chan error, 1)
	go func() {
		rolledBack <- h.st.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			close(entered)
			<-release
			return errors.New("abort")
		})
	}()
	<-entered

	requested := make(chan error, 1)
	go func() { requested <- h.svc.RequestPasswordReset(ctx, "a@x.com") }()
	time.Sleep(20 * time.Millisecond)
	close(release)
	if err := <-rolledBack; err == nil {
		t.Fatal("aborted transaction reported success")
	}
	if err := <-requested; err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}

	tok := h.linkToken(t, "a@x.com", notify.KindPasswordReset)
	if err := h.svc.ValidateResetToken(ctx, tok); err != nil {
		t.Errorf("delivered reset link was lost by another transaction's rollback: %v", err)
	}
}

func TestResetPassword_Completes(t *testing.T) {
	h := newHarness(t)
	acc := h.seedLocal(t, "a@x.com", "secret1", false, false)
	ctx := context.Background()

	if err := h.svc.RequestPasswordReset(ctx, "a@x.com"); err != nil {
		t.Fatalf("RequestPasswordReset: %v", err)
	}
	tok := h.linkToken(t, "a@x.com", notify.KindPasswordReset)
	if err := h.svc.ValidateResetToken(ctx, tok); err != nil {
		t.Fatalf("ValidateResetToken: %v", err)
	}
	if err := h.svc.ResetPassword(ctx, tok, "newpass1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	got := h.account(t, "a@x.com")
	if !h.hasher.Verify("newpass1", got.PasswordHash) || h.hasher.Verify("secret1", got.PasswordHash) {
		t.Error("password not replaced")
	}
	if !got.Verified() {
		t.Error("completing a reset should verify the email")
	}
	if err := h.svc.ValidateResetToken(ctx, tok); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Errorf("token still valid after reset: %v", err)
	}
	if err := h.svc.ResetPassword(ctx, tok, "another1"); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Errorf("reused reset token: %v", err)
	}
	if got := h.auditActions(acc.ID); len(got) != 1 || got[0] != auditdomain.ActionPasswordReset {
		t.Errorf("audit = %v", got)
	}
}

func TestResetPassword_ExpiredTokenLeavesPassword(t *testing.T) {
	h := newHarness(t)
	h.seedLocal(t, "a@x.com", "secret1", true, false)
	ctx := context.Background()

	if err := h.svc.RequestPasswordReset(ctx, "a@x.com"); err != nil {
		t.Fatal(err)
	}
	tok := h.linkToken(t, "a@x.com", notify.KindPasswordReset)
	h.advance(61 * time.Minute)

	if err := h.svc.ResetPassword(ctx, tok, "newpass1"); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Fatalf("err = %v, want ErrInvalidOrExpired", err)
	}
	if !h.hasher.Verify("secret1", h.account(t, "a@x.com").PasswordHash) {
		t.Error("password changed by an expired token")
	}
}

func TestResetPassword_RejectsWeakPasswordFirst(t *testing.T) {
	h := newHarness(t)
	var ve *domain.ValidationError
	if err := h.svc.ResetPassword(context.Background(), "irrelevant", "123"); !errors.As(err, &ve) {
		t.Errorf("err = %v, want ValidationError", err)
	}
}

type stubLimiter struct {
	mu       sync.Mutex
	checkErr error
	failures int
	resets   int
}

func (l *stubLimiter) Check(context.Context, string, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkErr
}

func (l *stubLimiter) RecordFailure(context.Context, string, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures++
	return nil
}

func (l *stubLimiter) Reset(context.Context, string, string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.resets++
	return nil
}

func TestVerifyTwoFactorCode_Limiter(t *testing.T) {
	lim := &stubLimiter{}
	h := newHarness(t, WithLimiter(lim))
	h.seedLocal(t, "a@x.com", "secret1", true, true)
	ctx := context.Background()

	if _, err := h.svc.VerifyTwoFactorCode(ctx, "a@x.com", "000000"); !errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Fatalf("wrong code: %v", err)
	}
	if lim.failures != 1 {
		t.Errorf("failures = %d, want 1", lim.failures)
	}

	lim.checkErr = ratelimit.ErrLimited
	if _, err := h.svc.VerifyTwoFactorCode(ctx, "a@x.com", "000000"); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("limited: %v", err)
	}

	lim.checkErr = ratelimit.ErrUnavailable
	_, err := h.svc.VerifyTwoFactorCode(ctx, "a@x.com", "000000")
	if err == nil || errors.Is(err, domain.ErrInvalidOrExpired) {
		t.Errorf("unavailable limiter should fail closed with a dependency error, got %v", err)
	}
}

func TestLogin_LimiterResetOnSuccess(t *testing.T) {
	lim := &stubLimiter{}
	h := newHarness(t, WithLimiter(lim))
	h.seedLocal(t, "a@x.com", "secret1", true, false)
	ctx := context.Background()

	_, _ = h.svc.Login(ctx, "a@x.com", "wrong-pass")
	if _, err := h.svc.Login(ctx, "a@x.com", "secret1"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if lim.failures != 1 || lim.resets != 1 {
		t.Errorf("failures = %d resets = %d, want 1 and 1", lim.failures, lim.resets)
	}
	lim.checkErr = ratelimit.ErrLimited
	if _, err := h.svc.Login(ctx, "a@x.com", "secret1"); !errors.Is(err, domain.ErrRateLimited) {
		t.Errorf("limited login: %v", err)
	}
}

func TestFederatedSignIn_EstablishesSession(t *testing.T) {
	h := newHarness(t)
	acc := h.seedLocal(t, "b@x.com", "secret1", true, false)

	grant, err := h.svc.FederatedSignIn(context.Background(), merge.FederatedIdentity{Provider: accountdomain.MethodGoogle, Email: "b@x.com"})
	if err != nil {
		t.Fatalf("FederatedSignIn: %v", err)
	}
	if grant.Claims.AccountID != acc.ID {
		t.Errorf("claims account = %q", grant.Claims.AccountID)
	}
	got := h.account(t, "b@x.com")
	if !got.HasMethod(accountdomain.MethodCredentials) || !got.HasMethod(accountdomain.MethodGoogle) {
		t.Errorf("methods = %v", got.Methods)
	}
	if _, err := h.svc.FederatedSignIn(context.Background(), merge.FederatedIdentity{Provider: accountdomain.MethodGitHub, Email: "b@x.com"}); !errors.Is(err, domain.ErrProviderNotEnabled) {
		t.Errorf("disabled provider: %v", err)
	}
}
