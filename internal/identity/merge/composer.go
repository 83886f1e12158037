// Package merge reconciles an authenticated identity with the stored account
// and derives the session claims for it.
package merge

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	accountdomain "identity-portal/internal/account/domain"
	accountrepo "identity-portal/internal/account/repository"
	"identity-portal/internal/identity/domain"
	sessiondomain "identity-portal/internal/session/domain"
	"identity-portal/internal/store"
)

// noImage is stored by older clients in place of a missing profile image.
const noImage = "none"

// createAttempts bounds retries when a concurrent sign-in creates the same account first.
const createAttempts = 2

// Config is the immutable provider configuration of a Composer.
type Config struct {
	// EnabledProviders lists the federated providers accepted for sign-in.
	EnabledProviders []accountdomain.Method
}

// FederatedIdentity is what an identity provider reported for a sign-in.
type FederatedIdentity struct {
	Provider accountdomain.Method
	Email    string
	Name     string
	Image    string
}

// Composer merges sign-ins into accounts.
//
// Federated providers are trusted to have verified the email they report, so a
// federated sign-in always marks the account verified.
type Composer struct {
	store     store.Store
	providers []accountdomain.Method
	now       func() time.Time
}

// NewComposer returns a Composer over st. cfg is copied.
func NewComposer(st store.Store, cfg Config) *Composer {
	return &Composer{
		store:     st,
		providers: slices.Clone(cfg.EnabledProviders),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock returns a copy of c reading the time from now.
func (c *Composer) WithClock(now func() time.Time) *Composer {
	cc := *c
	cc.now = now
	return &cc
}

// Enabled reports whether provider may be used for sign-in.
func (c *Composer) Enabled(provider accountdomain.Method) bool {
	return provider.IsProvider() && slices.Contains(c.providers, provider)
}

// ClaimsForAccount derives session claims from an already loaded account. Local sign-in uses it without merging.
func (c *Composer) ClaimsForAccount(a *accountdomain.Account) sessiondomain.Claims {
	return sessiondomain.ClaimsFor(a)
}

// SignInFederated creates or updates the account for id and returns it with its claims.
// Store failures are returned as *domain.MergeError.
func (c *Composer) SignInFederated(ctx context.Context, id FederatedIdentity) (*accountdomain.Account, sessiondomain.Claims, error) {
	if !c.Enabled(id.Provider) {
		return nil, sessiondomain.Claims{}, domain.ErrProviderNotEnabled
	}
	id.Email = domain.NormalizeEmail(id.Email)
	if err := domain.ValidateEmail(id.Email); err != nil {
		return nil, sessiondomain.Claims{}, err
	}
	id.Name = strings.TrimSpace(id.Name)
	if id.Image == noImage {
		id.Image = ""
	}

	var (
		acc *accountdomain.Account
		err error
	)
	for attempt := 0; attempt < createAttempts; attempt++ {
		err = c.store.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var mergeErr error
			acc, mergeErr = c.merge(ctx, tx.Accounts(), id)
			return mergeErr
		})
		if !errors.Is(err, accountrepo.ErrEmailTaken) {
			break
		}
	}
	if err != nil {
		return nil, sessiondomain.Claims{}, &domain.MergeError{Err: err}
	}
	return acc, c.ClaimsForAccount(acc), nil
}

func (c *Composer) merge(ctx context.Context, accounts accountrepo.Repository, id FederatedIdentity) (*accountdomain.Account, error) {
	now := c.now()
	existing, err := accounts.GetByEmail(ctx, id.Email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		acc := &accountdomain.Account{
			ID:              uuid.New().String(),
			Email:           id.Email,
			Name:            id.Name,
			Image:           id.Image,
			Methods:         []accountdomain.Method{id.Provider},
			EmailVerifiedAt: &now,
			Role:            accountdomain.RoleUser,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := accounts.Create(ctx, acc); err != nil {
			return nil, err
		}
		return acc, nil
	}

	p := backfill(existing, id, now)
	if p.Empty() {
		return existing, nil
	}
	if err := accounts.Update(ctx, existing.ID, p); err != nil {
		return nil, err
	}
	p.Apply(existing, now)
	return existing, nil
}

// backfill links the provider and fills only fields the account lacks.
func backfill(a *accountdomain.Account, id FederatedIdentity, now time.Time) accountdomain.Patch {
	var p accountdomain.Patch
	if !a.HasMethod(id.Provider) {
		p.Methods = accountdomain.UnionMethods(a.Methods, id.Provider)
	}
	if (a.Image == "" || a.Image == noImage) && id.Image != "" {
		p.Image = &id.Image
	}
	if a.Name == "" && id.Name != "" {
		p.Name = &id.Name
	}
	if a.EmailVerifiedAt == nil {
		p.EmailVerifiedAt = &now
	}
	return p
}
