package plugin

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmartynas/workos-auth/internal/account"
	"github.com/jmartynas/workos-auth/internal/auth"
	"github.com/jmartynas/workos-auth/internal/errs"
	"github.com/jmartynas/workos-auth/internal/framework"
	"github.com/jmartynas/workos-auth/internal/session"
	"github.com/jmartynas/workos-auth/internal/user"
	"github.com/jmartynas/workos-auth/internal/workos"
)

type stubProvider struct{}

func (stubProvider) AuthorizationURL(redirectURI, state string) (string, error) {
	return "https://api.workos.test/authorize?" + url.Values{"redirect_uri": {redirectURI}, "state": {state}}.Encode(), nil
}

func (stubProvider) ExchangeCode(context.Context, string) (*workos.AuthenticateResponse, error) {
	return &workos.AuthenticateResponse{AccessToken: "at", User: workos.User{ID: "user_01", Email: "ada@example.com"}}, nil
}

func (stubProvider) RefreshToken(context.Context, string) (*workos.AuthenticateResponse, error) {
	return &workos.AuthenticateResponse{AccessToken: "at2"}, nil
}

func (stubProvider) GetUser(context.Context, string) (*workos.User, error) {
	return &workos.User{ID: "user_01", Email: "ada@example.com"}, nil
}

func providerConfig() workos.ProviderConfig {
	return workos.ProviderConfig{
		ClientID:       "client_123",
		ClientSecret:   "sk_test",
		CookiePassword: strings.Repeat("c", 32),
		Provider:       "GoogleOAuth",
	}
}

func newApp() *framework.App {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return framework.New(framework.Config{Secret: "secret"},
		user.NewMemoryStore(), account.NewMemoryStore(), session.NewMemoryStore(), log)
}

func TestNew_Defaults(t *testing.T) {
	p, err := New(Config{
		Name:                   "app",
		UsersCollectionSlug:    "users",
		AccountsCollectionSlug: "accounts",
		WorkOS:                 providerConfig(),
	})
	require.NoError(t, err)

	cfg := p.Config()
	assert.Equal(t, "/", cfg.SuccessRedirectPath)
	assert.Equal(t, "/auth/error", cfg.ErrorRedirectPath)
	assert.False(t, cfg.UseAdmin)
	assert.False(t, cfg.AllowSignUp)
	_, isClient := p.provider.(*workos.Client)
	assert.True(t, isClient)
}

func TestNew_Invalid(t *testing.T) {
	_, err := New(Config{WorkOS: workos.ProviderConfig{ClientID: "id", ClientSecret: "s", CookiePassword: "short"}})
	assert.ErrorIs(t, err, ErrNameRequired)
	assert.ErrorIs(t, err, ErrUsersSlugRequired)
	assert.ErrorIs(t, err, ErrAccountsSlugRequired)
	assert.ErrorIs(t, err, errs.ErrCookiePassword)

	cfg := providerConfig()
	cfg.ClientID = ""
	_, err = New(Config{Name: "app", UsersCollectionSlug: "u", AccountsCollectionSlug: "a", WorkOS: cfg})
	assert.ErrorIs(t, err, errs.ErrClientIDRequired)
}

func TestApply_CreatesCollections(t *testing.T) {
	app := newApp()
	p, err := New(Config{
		Name:                   "admin",
		UseAdmin:               true,
		UsersCollectionSlug:    "admin-users",
		AccountsCollectionSlug: "admin-accounts",
		WorkOS:                 providerConfig(),
	}, WithProvider(stubProvider{}))
	require.NoError(t, err)
	require.NoError(t, p.Apply(app))

	users := app.Collection("admin-users")
	require.NotNil(t, users)
	require.NotNil(t, users.Auth)
	assert.Equal(t, 7200*time.Second, users.Auth.TokenExpiration)
	assert.Equal(t, 5, users.Auth.MaxLoginAttempts)
	assert.Equal(t, 10*time.Minute, users.Auth.LockTime)
	assert.True(t, users.Auth.HasStrategy(auth.StrategyName))
	assert.True(t, users.HasEndpoint(http.MethodPost, "/logout"))
	assert.True(t, users.HasEndpoint(http.MethodDelete, "/{id}"))
	assert.Len(t, users.Hooks.AfterDelete, 1)

	accounts := app.Collection("admin-accounts")
	require.NotNil(t, accounts)
	assert.Nil(t, accounts.Auth)
	assert.True(t, accounts.HasEndpoint(http.MethodGet, ""))

	assert.Equal(t, "admin-users", app.AdminUser)
	assert.Equal(t, "payload-token", app.CookieName("admin-users"))

	var paths []string
	for _, e := range app.Endpoints {
		paths = append(paths, e.Method+" "+e.Path)
	}
	assert.ElementsMatch(t, []string{
		"GET /admin/auth/signin",
		"GET /admin/auth/callback",
		"GET /admin/auth/signout",
		"GET /admin/auth/session",
		"POST /admin/auth/refresh",
	}, paths)
}

func TestApply_ExtendsExistingUsers(t *testing.T) {
	app := newApp()
	app.AddCollection(&framework.Collection{
		Slug: "users",
		Auth: &framework.AuthOptions{TokenExpiration: time.Hour, UseSessions: true},
	})

	p, err := New(Config{
		Name:                   "app",
		UsersCollectionSlug:    "users",
		AccountsCollectionSlug: "accounts",
		WorkOS:                 providerConfig(),
	}, WithProvider(stubProvider{}))
	require.NoError(t, err)
	require.NoError(t, p.Apply(app))

	users := app.Collection("users")
	assert.Equal(t, time.Hour, users.Auth.TokenExpiration, "existing options kept")
	assert.True(t, users.Auth.UseSessions)
	require.Len(t, users.Auth.Strategies, 1)
	assert.Equal(t, auth.StrategyName, users.Auth.Strategies[0].Name())
	assert.Empty(t, app.AdminUser)
	assert.Equal(t, "payload-token-users", app.CookieName("users"))
}

func TestWithAccountCollection_Access(t *testing.T) {
	keep := func(*http.Request) bool { return true }
	c := WithAccountCollection(&framework.Collection{Slug: "accounts", Access: framework.Access{Create: keep}}, "users", nil)

	anon := httptest.NewRequest(http.MethodGet, "/", nil)
	signedIn := anon.WithContext(framework.WithUser(anon.Context(), &framework.AuthUser{User: &user.User{}}))

	assert.False(t, c.Access.Read(anon))
	assert.True(t, c.Access.Read(signedIn))
	assert.True(t, c.Access.Delete(signedIn))
	assert.True(t, c.Access.Create(anon), "explicit access kept")
	assert.False(t, c.Access.Update(signedIn))

	// applying twice does not duplicate routes
	WithAccountCollection(c, "users", nil)
	assert.Len(t, c.Endpoints, 2)
}

func TestApply_Routes(t *testing.T) {
	app := newApp()
	p, err := New(Config{
		Name:                   "app",
		AllowSignUp:            true,
		UsersCollectionSlug:    "users",
		AccountsCollectionSlug: "accounts",
		SuccessRedirectPath:    "/welcome",
		WorkOS:                 providerConfig(),
	}, WithProvider(stubProvider{}))
	require.NoError(t, err)
	require.NoError(t, p.Apply(app))

	mux := http.NewServeMux()
	app.Mount(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://cms.example/api/app/auth/signin", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	assert.Equal(t, "http://cms.example/api/app/auth/callback", loc.Query().Get("redirect_uri"))

	req := httptest.NewRequest(http.MethodGet, "http://cms.example/api/app/auth/callback?code=c&state="+url.QueryEscape(state), nil)
	for _, c := range rec.Result().Cookies() {
		req.AddCookie(c)
	}
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "http://cms.example/welcome", rec.Header().Get("Location"))

	var token *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "payload-token-users" {
			token = c
		}
	}
	require.NotNil(t, token)

	req = httptest.NewRequest(http.MethodGet, "http://cms.example/api/app/auth/session", nil)
	req.AddCookie(token)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Contains(t, rec.Body.String(), `"email":"ada@example.com"`)
}

func TestApply_ProtectedRoutesRequireUser(t *testing.T) {
	log, hook := test.NewNullLogger()
	app := framework.New(framework.Config{Secret: "secret"},
		user.NewMemoryStore(), account.NewMemoryStore(), session.NewMemoryStore(), log)
	p, err := New(Config{
		Name:                   "app",
		UsersCollectionSlug:    "users",
		AccountsCollectionSlug: "accounts",
		WorkOS:                 providerConfig(),
	}, WithProvider(stubProvider{}))
	require.NoError(t, err)
	require.NoError(t, p.Apply(app))

	mux := http.NewServeMux()
	app.Mount(mux)

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/api/app/auth/refresh"},
		{http.MethodGet, "/api/accounts"},
		{http.MethodDelete, "/api/accounts/" + uuid.NewString()},
		{http.MethodDelete, "/api/users/" + uuid.NewString()},
	} {
		hook.Reset()
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.method+" "+tc.path)

		entry := hook.LastEntry()
		require.NotNil(t, entry, "rejection logged on the app logger")
		assert.Equal(t, logrus.WarnLevel, entry.Level)
		assert.Equal(t, "auth failed: no user", entry.Message)
		assert.Equal(t, "app", entry.Data["instance"])
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/users/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "logout stays open to anonymous callers")
}
