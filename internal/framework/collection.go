package framework

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jmartynas/workos-auth/internal/user"
)

// Strategy resolves the request user for one collection. It never fails:
// anything that prevents authentication yields nil.
type Strategy interface {
	Name() string
	Authenticate(r *http.Request, app *App) *AuthUser
}

type CookieOptions struct {
	// Secure overrides the production default when set.
	Secure   *bool
	SameSite string
	Domain   string
}

type AuthOptions struct {
	TokenExpiration  time.Duration
	Cookies          CookieOptions
	UseSessions      bool
	Verify           bool
	MaxLoginAttempts int
	LockTime         time.Duration
	Strategies       []Strategy
}

// Expiration returns the token lifetime, defaulting to two hours.
func (o *AuthOptions) Expiration() time.Duration {
	if o.TokenExpiration <= 0 {
		return DefaultTokenExpiration
	}
	return o.TokenExpiration
}

// HasStrategy reports whether a strategy with the given name is attached.
func (o *AuthOptions) HasStrategy(name string) bool {
	for _, s := range o.Strategies {
		if s.Name() == name {
			return true
		}
	}
	return false
}

// SameSiteMode maps the configured SameSite name onto net/http, defaulting
// to Lax.
func (o CookieOptions) SameSiteMode() http.SameSite {
	switch strings.ToLower(o.SameSite) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// IsSecure resolves the Secure attribute for cookies of this collection.
func (o CookieOptions) IsSecure(production bool) bool {
	if o.Secure != nil {
		return *o.Secure
	}
	return production
}

// AccessFunc decides whether the request may perform an operation.
type AccessFunc func(r *http.Request) bool

type Access struct {
	Read   AccessFunc
	Create AccessFunc
	Update AccessFunc
	Delete AccessFunc
}

// Allow evaluates fn, treating a nil function as "authenticated users only".
func Allow(fn AccessFunc, r *http.Request) bool {
	if fn == nil {
		return UserFromContext(r.Context()) != nil
	}
	return fn(r)
}

type Hooks struct {
	AfterDelete []user.AfterDeleteHook
}

// Endpoint is an HTTP route. Root endpoints are mounted below the API
// prefix; collection endpoints below "<api prefix>/<slug>".
type Endpoint struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

type Collection struct {
	Slug string
	// Auth is nil for collections without authentication.
	Auth      *AuthOptions
	Access    Access
	Hooks     Hooks
	Endpoints []Endpoint
	// Timestamps records createdAt/updatedAt on documents.
	Timestamps bool
}

// HasEndpoint reports whether method and path are already routed.
func (c *Collection) HasEndpoint(method, path string) bool {
	for _, e := range c.Endpoints {
		if strings.EqualFold(e.Method, method) && e.Path == path {
			return true
		}
	}
	return false
}

// ErrAfterDeleteHook marks a DeleteUser error raised after the record was
// already removed.
var ErrAfterDeleteHook = errors.New("after-delete hook failed")

// DeleteUser removes a user of a users collection and runs every
// after-delete hook. Hook failures are joined and wrapped in
// ErrAfterDeleteHook; the user stays deleted.
func (a *App) DeleteUser(ctx context.Context, slug string, id uuid.UUID) error {
	c := a.Collection(slug)
	if c == nil {
		return fmt.Errorf("delete user: collection %q is not registered", slug)
	}
	u, err := a.Users.FindByID(ctx, slug, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if err := a.Users.Delete(ctx, slug, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	var hookErrs []error
	for _, hook := range c.Hooks.AfterDelete {
		if err := hook(ctx, u); err != nil {
			hookErrs = append(hookErrs, err)
		}
	}
	if len(hookErrs) > 0 {
		return fmt.Errorf("%w: %w", ErrAfterDeleteHook, errors.Join(hookErrs...))
	}
	return nil
}
