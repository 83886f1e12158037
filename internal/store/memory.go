package store

import (
	"context"
	"sync"

	accountrepo "identity-portal/internal/account/repository"
	tokenrepo "identity-portal/internal/token/repository"
)

// Memory is an in-process Store for development and tests. Transactions are
// serialized and roll back by restoring a snapshot; writes made outside
// WithinTx while a transaction is running are lost if it rolls back.
type Memory struct {
	txMu     sync.Mutex
	accounts *accountrepo.MemoryRepository
	tokens   *tokenrepo.MemoryRepository
}

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	accounts := accountrepo.NewMemoryRepository()
	return &Memory{accounts: accounts, tokens: tokenrepo.NewMemoryRepository(accounts)}
}

func (s *Memory) Accounts() accountrepo.Repository { return s.accounts }
func (s *Memory) Tokens() tokenrepo.Repository     { return s.tokens }

// AccountRepository returns the concrete account repository, for seeding.
func (s *Memory) AccountRepository() *accountrepo.MemoryRepository { return s.accounts }

// TokenRepository returns the concrete token repository.
func (s *Memory) TokenRepository() *tokenrepo.MemoryRepository { return s.tokens }

// WithinTx runs fn and restores both repositories if it fails or panics.
func (s *Memory) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	accounts := s.accounts.Snapshot()
	tokens := s.tokens.Snapshot()
	defer func() {
		if p := recover(); p != nil {
			s.accounts.Restore(accounts)
			s.tokens.Restore(tokens)
			panic(p)
		}
		if err != nil {
			s.accounts.Restore(accounts)
			s.tokens.Restore(tokens)
		}
	}()
	return fn(ctx, s)
}

// Ping always succeeds.
func (s *Memory) Ping(ctx context.Context) error { return nil }
