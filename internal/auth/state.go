package auth

import (
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"

	"github.com/jmartynas/workos-auth/internal/errs"
)

const (
	StateCookiePrefix = "workos_state_"
	StateMaxAge       = 600

	stateValueKey = "state"
)

// StateStore keeps the OAuth state of an auth instance in a signed and
// encrypted cookie. Keys are derived from the instance's cookie password.
type StateStore struct {
	name   string
	store  *sessions.CookieStore
	secure bool
}

func NewStateStore(instance, cookiePassword string, secure bool) (*StateStore, error) {
	if len(cookiePassword) < 32 {
		return nil, errs.ErrCookiePassword
	}
	hashKey, blockKey, err := deriveStateKeys(cookiePassword, instance)
	if err != nil {
		return nil, err
	}
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.MaxAge(StateMaxAge)
	return &StateStore{
		name:   StateCookiePrefix + instance,
		store:  store,
		secure: secure,
	}, nil
}

func deriveStateKeys(password, instance string) (hashKey, blockKey []byte, err error) {
	r := hkdf.New(sha256.New, []byte(password), nil, []byte("workos-auth state "+instance))
	hashKey = make([]byte, 64)
	blockKey = make([]byte, 32)
	if _, err := io.ReadFull(r, hashKey); err != nil {
		return nil, nil, fmt.Errorf("derive state hash key: %w", err)
	}
	if _, err := io.ReadFull(r, blockKey); err != nil {
		return nil, nil, fmt.Errorf("derive state block key: %w", err)
	}
	return hashKey, blockKey, nil
}

func (s *StateStore) CookieName() string { return s.name }

func (s *StateStore) options(maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// Issue generates a fresh state value and sets it as a cookie on w.
func (s *StateStore) Issue(w http.ResponseWriter, r *http.Request) (string, error) {
	state := uuid.NewString()
	sess := sessions.NewSession(s.store, s.name)
	sess.Values[stateValueKey] = state
	sess.Options = s.options(StateMaxAge)
	if err := s.store.Save(r, w, sess); err != nil {
		return "", fmt.Errorf("save state cookie: %w", err)
	}
	return state, nil
}

// Verify checks the state echoed by the provider against the cookie.
func (s *StateStore) Verify(r *http.Request, state string) error {
	if state == "" {
		return errs.ErrInvalidState
	}
	sess, err := s.store.New(r, s.name)
	if err != nil || sess.IsNew {
		return errs.ErrInvalidState
	}
	stored, _ := sess.Values[stateValueKey].(string)
	if stored == "" || stored != state {
		return errs.ErrInvalidState
	}
	return nil
}

// Clear expires the state cookie.
func (s *StateStore) Clear(w http.ResponseWriter, r *http.Request) {
	sess := sessions.NewSession(s.store, s.name)
	sess.Options = s.options(-1)
	_ = s.store.Save(r, w, sess)
}
