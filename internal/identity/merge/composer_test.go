package merge

import (
	"context"
	"errors"
	"testing"
	"time"

	accountdomain "identity-portal/internal/account/domain"
	accountrepo "identity-portal/internal/account/repository"
	"identity-portal/internal/identity/domain"
	"identity-portal/internal/store"
)

var testProviders = Config{EnabledProviders: []accountdomain.Method{accountdomain.MethodGoogle, accountdomain.MethodGitHub}}

// wrappedStore swaps the account repository of a memory store.
type wrappedStore struct {
	*store.Memory
	accounts accountrepo.Repository
}

func (w *wrappedStore) Accounts() accountrepo.Repository { return w.accounts }

func (w *wrappedStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return w.Memory.WithinTx(ctx, func(ctx context.Context, _ store.Tx) error { return fn(ctx, w) })
}

type staleReads struct {
	accountrepo.Repository
	misses int
}

func (s *staleReads) GetByEmail(ctx context.Context, email string) (*accountdomain.Account, error) {
	if s.misses > 0 {
		s.misses--
		return nil, nil
	}
	return s.Repository.GetByEmail(ctx, email)
}

type failingUpdates struct{ accountrepo.Repository }

func (failingUpdates) Update(context.Context, string, accountdomain.Patch) error {
	return errors.New("db down")
}

func seed(t *testing.T, st *store.Memory, a *accountdomain.Account) {
	t.Helper()
	if err := st.AccountRepository().Create(context.Background(), a); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSignInFederated_CreatesVerifiedAccount(t *testing.T) {
	st := store.NewMemory()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := NewComposer(st, testProviders).WithClock(func() time.Time { return now })

	acc, claims, err := c.SignInFederated(context.Background(), FederatedIdentity{
		Provider: accountdomain.MethodGoogle, Email: " New@X.com ", Name: "New User", Image: "https://img/1.png",
	})
	if err != nil {
		t.Fatalf("SignInFederated: %v", err)
	}
	if acc.Email != "new@x.com" || acc.Role != accountdomain.RoleUser || !acc.EmailVerifiedAt.Equal(now) {
		t.Errorf("account = %+v", acc)
	}
	if len(acc.Methods) != 1 || acc.Methods[0] != accountdomain.MethodGoogle {
		t.Errorf("methods = %v, want [google]", acc.Methods)
	}
	if claims.AccountID != acc.ID || claims.Role != "user" || !claims.EmailVerifiedAt.Equal(now) {
		t.Errorf("claims = %+v", claims)
	}
	stored, _ := st.Accounts().GetByEmail(context.Background(), "new@x.com")
	if stored == nil || stored.ID != acc.ID {
		t.Fatal("account not persisted")
	}
}

func TestSignInFederated_MergesIntoLocalAccount(t *testing.T) {
	st := store.NewMemory()
	verified := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	seed(t, st, &accountdomain.Account{
		ID: "acc-b", Email: "b@x.com", Name: "Bee", Image: "mine.png", PasswordHash: "h",
		Methods: []accountdomain.Method{accountdomain.MethodCredentials}, EmailVerifiedAt: &verified, Role: accountdomain.RoleAdmin,
	})
	c := NewComposer(st, testProviders)

	acc, claims, err := c.SignInFederated(context.Background(), FederatedIdentity{
		Provider: accountdomain.MethodGoogle, Email: "b@x.com", Name: "Other", Image: "theirs.png",
	})
	if err != nil {
		t.Fatalf("SignInFederated: %v", err)
	}
	stored, _ := st.Accounts().GetByID(context.Background(), "acc-b")
	for _, a := range []*accountdomain.Account{acc, stored} {
		if !a.HasMethod(accountdomain.MethodCredentials) || !a.HasMethod(accountdomain.MethodGoogle) || len(a.Methods) != 2 {
			t.Errorf("methods = %v, want credentials and google", a.Methods)
		}
		if !a.EmailVerifiedAt.Equal(verified) {
			t.Errorf("verification changed to %v", a.EmailVerifiedAt)
		}
		if a.Image != "mine.png" || a.Name != "Bee" {
			t.Errorf("profile overwritten: name %q image %q", a.Name, a.Image)
		}
	}
	if claims.Role != "admin" {
		t.Errorf("claims role = %q", claims.Role)
	}
}

func TestSignInFederated_BackfillsMissingFields(t *testing.T) {
	st := store.NewMemory()
	seed(t, st, &accountdomain.Account{
		ID: "acc-c", Email: "c@x.com", Image: "none", PasswordHash: "h",
		Methods: []accountdomain.Method{accountdomain.MethodCredentials},
	})
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	c := NewComposer(st, testProviders).WithClock(func() time.Time { return now })

	acc, _, err := c.SignInFederated(context.Background(), FederatedIdentity{
		Provider: accountdomain.MethodGitHub, Email: "c@x.com", Name: "Cee", Image: "gh.png",
	})
	if err != nil {
		t.Fatalf("SignInFederated: %v", err)
	}
	if acc.Image != "gh.png" || acc.Name != "Cee" || acc.EmailVerifiedAt == nil || !acc.EmailVerifiedAt.Equal(now) {
		t.Errorf("backfill = %+v", acc)
	}
}

func TestSignInFederated_Refusals(t *testing.T) {
	c := NewComposer(store.NewMemory(), testProviders)
	ctx := context.Background()
	if _, _, err := c.SignInFederated(ctx, FederatedIdentity{Provider: accountdomain.MethodApple, Email: "a@x.com"}); !errors.Is(err, domain.ErrProviderNotEnabled) {
		t.Errorf("disabled provider: %v", err)
	}
	if _, _, err := c.SignInFederated(ctx, FederatedIdentity{Provider: accountdomain.MethodCredentials, Email: "a@x.com"}); !errors.Is(err, domain.ErrProviderNotEnabled) {
		t.Errorf("credentials as provider: %v", err)
	}
	var ve *domain.ValidationError
	if _, _, err := c.SignInFederated(ctx, FederatedIdentity{Provider: accountdomain.MethodGoogle, Email: "nope"}); !errors.As(err, &ve) {
		t.Errorf("bad email: %v", err)
	}
}

func TestSignInFederated_RetriesLostCreateRace(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, &accountdomain.Account{ID: "acc-d", Email: "d@x.com", Methods: []accountdomain.Method{accountdomain.MethodGitHub}})
	st := &wrappedStore{Memory: mem, accounts: &staleReads{Repository: mem.AccountRepository(), misses: 1}}

	acc, _, err := NewComposer(st, testProviders).SignInFederated(context.Background(), FederatedIdentity{Provider: accountdomain.MethodGoogle, Email: "d@x.com"})
	if err != nil {
		t.Fatalf("SignInFederated: %v", err)
	}
	if acc.ID != "acc-d" || !acc.HasMethod(accountdomain.MethodGoogle) {
		t.Errorf("account = %+v, want merged acc-d", acc)
	}
}

func TestSignInFederated_StoreFailureIsMergeError(t *testing.T) {
	mem := store.NewMemory()
	seed(t, mem, &accountdomain.Account{ID: "acc-e", Email: "e@x.com", Methods: []accountdomain.Method{accountdomain.MethodGitHub}})
	st := &wrappedStore{Memory: mem, accounts: failingUpdates{mem.AccountRepository()}}

	_, _, err := NewComposer(st, testProviders).SignInFederated(context.Background(), FederatedIdentity{Provider: accountdomain.MethodGoogle, Email: "e@x.com"})
	var me *domain.MergeError
	if !errors.As(err, &me) || !errors.Is(err, domain.ErrMergeFailed) {
		t.Fatalf("err = %v, want MergeError", err)
	}
	if errors.Is(err, domain.ErrInvalidCredentials) {
		t.Error("merge failure must not read as invalid credentials")
	}
}
