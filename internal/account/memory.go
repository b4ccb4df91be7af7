package account

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmartynas/workos-auth/internal/errs"
)

type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[uuid.UUID]Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[uuid.UUID]Account)}
}

func (s *MemoryStore) FindByID(_ context.Context, collection string, id uuid.UUID) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok || a.Collection != collection {
		return nil, errs.ErrNotFound
	}
	return &a, nil
}

func (s *MemoryStore) FindByUserProvider(_ context.Context, collection string, userID uuid.UUID, provider string) (*Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.Collection == collection && a.UserID == userID && a.Provider == provider {
			out := a
			return &out, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *MemoryStore) ListByUser(_ context.Context, collection string, userID uuid.UUID) ([]Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Account
	for _, a := range s.accounts {
		if a.Collection == collection && a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Provider == "" {
		a.Provider = ProviderWorkOS
	}
	if err := s.checkUnique(a); err != nil {
		return err
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	s.accounts[a.ID] = *a
	return nil
}

func (s *MemoryStore) Update(_ context.Context, a *Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[a.ID]
	if !ok || cur.Collection != a.Collection {
		return errs.ErrNotFound
	}
	if err := s.checkUnique(a); err != nil {
		return err
	}
	a.CreatedAt = cur.CreatedAt
	a.UpdatedAt = time.Now().UTC()
	s.accounts[a.ID] = *a
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.accounts[id]
	if !ok || cur.Collection != collection {
		return errs.ErrNotFound
	}
	delete(s.accounts, id)
	return nil
}

func (s *MemoryStore) DeleteByUser(_ context.Context, collection string, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, a := range s.accounts {
		if a.Collection == collection && a.UserID == userID {
			delete(s.accounts, id)
			n++
		}
	}
	return n, nil
}

// checkUnique enforces one account per user and provider within a
// collection. It must be called with mu held.
func (s *MemoryStore) checkUnique(a *Account) error {
	for id, other := range s.accounts {
		if id == a.ID || other.Collection != a.Collection {
			continue
		}
		if other.UserID == a.UserID && other.Provider == a.Provider {
			return fmt.Errorf("%s account of user %s in %q: %w", a.Provider, a.UserID, a.Collection, errs.ErrAlreadyExists)
		}
	}
	return nil
}
