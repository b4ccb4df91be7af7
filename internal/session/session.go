package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bxcodec/dbresolver/v2"
	"github.com/google/uuid"
)

const DefaultMaxAge = 2 * time.Hour

// Store tracks framework login sessions for collections that use them. A
// token carrying a session id is only accepted while that session exists.
type Store interface {
	Create(ctx context.Context, collection string, userID uuid.UUID, maxAge time.Duration) (uuid.UUID, error)
	Exists(ctx context.Context, collection string, userID, sessionID uuid.UUID) (bool, error)
	DeleteAllForUser(ctx context.Context, collection string, userID uuid.UUID) error
}

type MySQLStore struct {
	dbc dbresolver.DB
}

func NewMySQLStore(dbc dbresolver.DB) *MySQLStore {
	return &MySQLStore{dbc: dbc}
}

func (s *MySQLStore) Create(ctx context.Context, collection string, userID uuid.UUID, maxAge time.Duration) (uuid.UUID, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	sessionID := uuid.New()
	expiresAt := time.Now().UTC().Add(maxAge)
	_, err := s.dbc.ExecContext(ctx,
		`INSERT INTO sessions (id, collection, user_id, expires_at) VALUES (?, ?, ?, ?)`,
		sessionID.String(), collection, userID.String(), expiresAt)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert session: %w", err)
	}
	return sessionID, nil
}

func (s *MySQLStore) Exists(ctx context.Context, collection string, userID, sessionID uuid.UUID) (bool, error) {
	var one int
	err := s.dbc.QueryRowContext(ctx,
		`SELECT 1 FROM sessions WHERE id = ? AND collection = ? AND user_id = ? AND expires_at > UTC_TIMESTAMP()`,
		sessionID.String(), collection, userID.String(),
	).Scan(&one)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	default:
		return false, fmt.Errorf("get session: %w", err)
	}
}

func (s *MySQLStore) DeleteAllForUser(ctx context.Context, collection string, userID uuid.UUID) error {
	_, err := s.dbc.ExecContext(ctx, `DELETE FROM sessions WHERE collection = ? AND user_id = ?`,
		collection, userID.String())
	if err != nil {
		return fmt.Errorf("delete sessions for user: %w", err)
	}
	return nil
}

type memoryKey struct {
	collection string
	userID     uuid.UUID
}

type MemoryStore struct {
	mu       sync.Mutex
	sessions map[memoryKey]map[uuid.UUID]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[memoryKey]map[uuid.UUID]time.Time)}
}

func (s *MemoryStore) Create(_ context.Context, collection string, userID uuid.UUID, maxAge time.Duration) (uuid.UUID, error) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memoryKey{collection, userID}
	if s.sessions[k] == nil {
		s.sessions[k] = make(map[uuid.UUID]time.Time)
	}
	now := time.Now()
	for id, exp := range s.sessions[k] {
		if !exp.After(now) {
			delete(s.sessions[k], id)
		}
	}
	id := uuid.New()
	s.sessions[k][id] = now.Add(maxAge)
	return id, nil
}

func (s *MemoryStore) Exists(_ context.Context, collection string, userID, sessionID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.sessions[memoryKey{collection, userID}][sessionID]
	return ok && exp.After(time.Now()), nil
}

func (s *MemoryStore) DeleteAllForUser(_ context.Context, collection string, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, memoryKey{collection, userID})
	return nil
}
