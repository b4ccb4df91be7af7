package plugin

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jmartynas/workos-auth/internal/auth"
	"github.com/jmartynas/workos-auth/internal/framework"
	"github.com/jmartynas/workos-auth/internal/handlers"
	"github.com/jmartynas/workos-auth/internal/middleware"
)

const (
	adminTokenExpiration  = 7200 * time.Second
	adminMaxLoginAttempts = 5
	adminLockTime         = 10 * time.Minute
)

// NewUsersCollection builds a users collection authenticated by WorkOS. The
// admin variant carries the admin panel's login limits.
func NewUsersCollection(slug string, isAdmin bool, log logrus.FieldLogger) *framework.Collection {
	opts := &framework.AuthOptions{}
	if isAdmin {
		opts = &framework.AuthOptions{
			TokenExpiration:  adminTokenExpiration,
			MaxLoginAttempts: adminMaxLoginAttempts,
			LockTime:         adminLockTime,
		}
	}
	return WithUsersCollection(&framework.Collection{
		Slug:       slug,
		Auth:       opts,
		Timestamps: true,
	}, log)
}

// WithUsersCollection configures c for WorkOS sign-in. It enables auth,
// appends the WorkOS strategy and routes logout and self-delete. A nil log
// falls back to the logrus standard logger.
func WithUsersCollection(c *framework.Collection, log logrus.FieldLogger) *framework.Collection {
	log = orStandard(log)
	if c.Auth == nil {
		c.Auth = &framework.AuthOptions{}
	}
	if !c.Auth.HasStrategy(auth.StrategyName) {
		c.Auth.Strategies = append(c.Auth.Strategies, auth.NewStrategy(c.Slug))
	}
	h := &handlers.CollectionHandler{UsersCollection: c.Slug, Log: log}
	if !c.HasEndpoint(http.MethodPost, "/logout") {
		c.Endpoints = append(c.Endpoints, framework.Endpoint{Method: http.MethodPost, Path: "/logout", Handler: h.Logout})
	}
	if !c.HasEndpoint(http.MethodDelete, "/{id}") {
		c.Endpoints = append(c.Endpoints, framework.Endpoint{Method: http.MethodDelete, Path: "/{id}", Handler: requireUser(log, h.DeleteUser)})
	}
	return c
}

// NewAccountsCollection builds the accounts collection linked to
// usersSlug.
func NewAccountsCollection(slug, usersSlug string, log logrus.FieldLogger) *framework.Collection {
	return WithAccountCollection(&framework.Collection{Slug: slug, Timestamps: true}, usersSlug, log)
}

// WithAccountCollection sets the default account access on c and routes
// the list and unlink endpoints. Access already set on c is kept.
func WithAccountCollection(c *framework.Collection, usersSlug string, log logrus.FieldLogger) *framework.Collection {
	log = orStandard(log)
	if c.Access.Read == nil {
		c.Access.Read = authenticated
	}
	if c.Access.Create == nil {
		c.Access.Create = deny
	}
	if c.Access.Update == nil {
		c.Access.Update = deny
	}
	if c.Access.Delete == nil {
		c.Access.Delete = authenticated
	}

	h := &handlers.CollectionHandler{UsersCollection: usersSlug, AccountsCollection: c.Slug, Log: log}
	if !c.HasEndpoint(http.MethodGet, "") {
		c.Endpoints = append(c.Endpoints, framework.Endpoint{Method: http.MethodGet, Path: "", Handler: requireUser(log, h.ListAccounts)})
	}
	if !c.HasEndpoint(http.MethodDelete, "/{id}") {
		c.Endpoints = append(c.Endpoints, framework.Endpoint{Method: http.MethodDelete, Path: "/{id}", Handler: requireUser(log, h.UnlinkAccount)})
	}
	return c
}

// requireUser answers 401 before next runs when Mount resolved no user.
func requireUser(log logrus.FieldLogger, next http.HandlerFunc) http.HandlerFunc {
	return middleware.RequireUser(log)(next).ServeHTTP
}

func orStandard(log logrus.FieldLogger) logrus.FieldLogger {
	if log == nil {
		return logrus.StandardLogger()
	}
	return log
}

func authenticated(r *http.Request) bool {
	return framework.UserFromContext(r.Context()) != nil
}

// deny keeps account writes to the callback handler.
func deny(*http.Request) bool { return false }
