// Package framework is the host content framework the auth instances plug
// into: it owns the record stores, the collection registry, the session
// secret and cookie conventions, and resolves the request user by running
// the auth strategies of every collection.
package framework

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jmartynas/workos-auth/internal/account"
	"github.com/jmartynas/workos-auth/internal/session"
	"github.com/jmartynas/workos-auth/internal/user"
)

const (
	DefaultCookiePrefix    = "payload"
	DefaultAPIPrefix       = "/api"
	DefaultTokenExpiration = 7200 * time.Second
)

type Config struct {
	// Secret signs framework session tokens.
	Secret       string
	CookiePrefix string
	// CSRF lists the origins allowed to send credentialed requests. Empty
	// disables the origin check.
	CSRF []string
	// AdminUser is the slug of the users collection used by the admin panel.
	AdminUser  string
	APIPrefix  string
	Production bool
}

// App is a running framework instance. Auth instances extend it through
// Collections and Endpoints before Handler is built.
type App struct {
	Config

	Collections []*Collection
	Endpoints   []Endpoint

	Users    user.Store
	Accounts account.Store
	Sessions session.Store
	Log      logrus.FieldLogger
}

func New(cfg Config, users user.Store, accounts account.Store, sessions session.Store, log logrus.FieldLogger) *App {
	if cfg.CookiePrefix == "" {
		cfg.CookiePrefix = DefaultCookiePrefix
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = DefaultAPIPrefix
	}
	cfg.APIPrefix = "/" + strings.Trim(cfg.APIPrefix, "/")
	return &App{
		Config:   cfg,
		Users:    users,
		Accounts: accounts,
		Sessions: sessions,
		Log:      log,
	}
}

// Collection returns the collection registered under slug, or nil.
func (a *App) Collection(slug string) *Collection {
	for _, c := range a.Collections {
		if c.Slug == slug {
			return c
		}
	}
	return nil
}

// AddCollection registers c, replacing a collection with the same slug.
func (a *App) AddCollection(c *Collection) {
	for i, existing := range a.Collections {
		if existing.Slug == c.Slug {
			a.Collections[i] = c
			return
		}
	}
	a.Collections = append(a.Collections, c)
}

// IsAdminCollection reports whether slug is the admin panel's users
// collection.
func (a *App) IsAdminCollection(slug string) bool {
	return a.AdminUser != "" && a.AdminUser == slug
}

// CookieName is the session cookie of a users collection. The admin
// collection owns the bare "<prefix>-token" cookie.
func (a *App) CookieName(slug string) string {
	if a.IsAdminCollection(slug) {
		return a.CookiePrefix + "-token"
	}
	return a.CookiePrefix + "-token-" + slug
}

// OriginAllowed applies the CSRF origin list to a request Origin header.
func (a *App) OriginAllowed(origin string) bool {
	if origin == "" || len(a.CSRF) == 0 {
		return true
	}
	for _, o := range a.CSRF {
		if o == origin {
			return true
		}
	}
	return false
}

type contextKey string

const (
	appKey  contextKey = "framework_app"
	userKey contextKey = "framework_user"
)

// AuthUser is the request user resolved by a strategy.
type AuthUser struct {
	*user.User
	Strategy string `json:"_strategy"`
}

func WithApp(ctx context.Context, a *App) context.Context {
	return context.WithValue(ctx, appKey, a)
}

// FromContext returns the App serving the request, or nil.
func FromContext(ctx context.Context) *App {
	if a, ok := ctx.Value(appKey).(*App); ok {
		return a
	}
	return nil
}

func WithUser(ctx context.Context, u *AuthUser) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFromContext returns the authenticated user, or nil for anonymous
// requests.
func UserFromContext(ctx context.Context) *AuthUser {
	if u, ok := ctx.Value(userKey).(*AuthUser); ok {
		return u
	}
	return nil
}

// Authenticate runs the strategies of every auth-enabled collection in
// registration order and stores the first user found in the request
// context.
func (a *App) Authenticate(r *http.Request) *AuthUser {
	for _, c := range a.Collections {
		if c.Auth == nil {
			continue
		}
		for _, s := range c.Auth.Strategies {
			if u := s.Authenticate(r, a); u != nil {
				return u
			}
		}
	}
	return nil
}
