package user

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jmartynas/workos-auth/internal/errs"
)

// MemoryStore keeps users in process memory. It is used when no database
// is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[uuid.UUID]User)}
}

func (s *MemoryStore) FindByID(_ context.Context, collection string, id uuid.UUID) (*User, error) {
	return s.find(func(u *User) bool { return u.Collection == collection && u.ID == id })
}

func (s *MemoryStore) FindByWorkOSID(_ context.Context, collection, workosUserID string) (*User, error) {
	if workosUserID == "" {
		return nil, errs.ErrNotFound
	}
	return s.find(func(u *User) bool { return u.Collection == collection && u.WorkOSUserID == workosUserID })
}

func (s *MemoryStore) FindByEmail(_ context.Context, collection, email string) (*User, error) {
	return s.find(func(u *User) bool { return u.Collection == collection && u.Email == email })
}

func (s *MemoryStore) find(match func(*User) bool) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(&u) {
			out := u
			return &out, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (s *MemoryStore) Create(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	if err := s.checkUnique(u); err != nil {
		return err
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) Update(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[u.ID]
	if !ok || cur.Collection != u.Collection {
		return errs.ErrNotFound
	}
	if err := s.checkUnique(u); err != nil {
		return err
	}
	u.CreatedAt = cur.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	s.users[u.ID] = *u
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, collection string, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.users[id]
	if !ok || cur.Collection != collection {
		return errs.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// checkUnique must be called with mu held.
func (s *MemoryStore) checkUnique(u *User) error {
	for id, other := range s.users {
		if id == u.ID || other.Collection != u.Collection {
			continue
		}
		if other.Email == u.Email {
			return fmt.Errorf("user email %q already exists in %q", u.Email, u.Collection)
		}
		if u.WorkOSUserID != "" && other.WorkOSUserID == u.WorkOSUserID {
			return fmt.Errorf("workos user %q already linked in %q", u.WorkOSUserID, u.Collection)
		}
	}
	return nil
}
