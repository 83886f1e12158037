package repository

import (
	"context"
	"sync"

	accountdomain "identity-portal/internal/account/domain"
	"identity-portal/internal/token/domain"
)

// AccountGetter resolves the owning account of a token.
type AccountGetter interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
}

type slot struct {
	accountID string
	purpose   domain.Purpose
}

// MemoryRepository keeps tokens in process memory, one per (account, purpose).
// Tokens whose account no longer exists are never matched.
type MemoryRepository struct {
	mu       sync.RWMutex
	m        map[slot]domain.Token
	accounts AccountGetter
}

// NewMemoryRepository returns an in-memory token repository joining against accounts.
func NewMemoryRepository(accounts AccountGetter) *MemoryRepository {
	return &MemoryRepository{m: make(map[slot]domain.Token), accounts: accounts}
}

func (r *MemoryRepository) Replace(ctx context.Context, t *domain.Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[slot{t.AccountID, t.Purpose}] = *t
	return nil
}

func (r *MemoryRepository) FindLive(ctx context.Context, l Lookup) (*Match, error) {
	r.mu.RLock()
	var found *domain.Token
	for k, t := range r.m {
		if t.ValueHash != l.ValueHash || k.purpose != l.Purpose || !t.Live(l.Now) {
			continue
		}
		if l.AccountID != "" && k.accountID != l.AccountID {
			continue
		}
		if found == nil || t.CreatedAt.After(found.CreatedAt) {
			t := t
			found = &t
		}
	}
	r.mu.RUnlock()
	if found == nil {
		return nil, nil
	}
	a, err := r.accounts.GetByID(ctx, found.AccountID)
	if err != nil || a == nil {
		return nil, err
	}
	a.PasswordHash = ""
	return &Match{Token: *found, Account: a}, nil
}

func (r *MemoryRepository) Delete(ctx context.Context, purpose domain.Purpose, valueHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range r.m {
		if t.Purpose == purpose && t.ValueHash == valueHash {
			delete(r.m, k)
		}
	}
	return nil
}

func (r *MemoryRepository) DeleteFor(ctx context.Context, accountID string, purpose domain.Purpose, valueHash string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := slot{accountID, purpose}
	if t, ok := r.m[k]; ok && t.ValueHash == valueHash {
		delete(r.m, k)
		return true, nil
	}
	return false, nil
}

// Count returns the number of stored tokens, live or not.
func (r *MemoryRepository) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}

// Snapshot is a point-in-time copy of a MemoryRepository.
type Snapshot struct {
	tokens map[slot]domain.Token
}

// Snapshot returns a copy of the current contents.
func (r *MemoryRepository) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[slot]domain.Token, len(r.m))
	for k, v := range r.m {
		out[k] = v
	}
	return Snapshot{tokens: out}
}

// Restore replaces the contents with snap.
func (r *MemoryRepository) Restore(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m = snap.tokens
}
