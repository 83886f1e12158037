package repository

import (
	"context"
	"sync"
	"time"

	"identity-portal/internal/account/domain"
)

// MemoryRepository keeps accounts in process memory. Used by the memory store
// backend and tests. Safe for concurrent use.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]*domain.Account
}

// NewMemoryRepository returns an empty in-memory account repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Account)}
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byID[id].Clone(), nil
}

func (r *MemoryRepository) GetByEmail(ctx context.Context, email string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, a := range r.byID {
		if a.Email == email {
			return a.Clone(), nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.Account) error {
	if err := a.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.Email == a.Email {
			return ErrEmailTaken
		}
	}
	r.byID[a.ID] = a.Clone()
	return nil
}

func (r *MemoryRepository) Update(ctx context.Context, id string, p domain.Patch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	next := a.Clone()
	p.Apply(next, time.Now().UTC())
	if err := next.Validate(); err != nil {
		return err
	}
	r.byID[id] = next
	return nil
}

func (r *MemoryRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return ErrNotFound
	}
	delete(r.byID, id)
	return nil
}

// Snapshot returns a deep copy of the current contents.
func (r *MemoryRepository) Snapshot() map[string]*domain.Account {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*domain.Account, len(r.byID))
	for id, a := range r.byID {
		out[id] = a.Clone()
	}
	return out
}

// Restore replaces the contents with snap.
func (r *MemoryRepository) Restore(snap map[string]*domain.Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = snap
}
