package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmartynas/workos-auth/internal/account"
	"github.com/jmartynas/workos-auth/internal/errs"
	"github.com/jmartynas/workos-auth/internal/framework"
	"github.com/jmartynas/workos-auth/internal/session"
	"github.com/jmartynas/workos-auth/internal/user"
)

const testSecret = "framework-secret-for-tests"

func newTestApp(t *testing.T) *framework.App {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	app := framework.New(framework.Config{Secret: testSecret, AdminUser: "admins"},
		user.NewMemoryStore(), account.NewMemoryStore(), session.NewMemoryStore(), log)

	secure := true
	app.AddCollection(&framework.Collection{
		Slug: "admins",
		Auth: &framework.AuthOptions{
			Cookies:    framework.CookieOptions{Secure: &secure, SameSite: "None", Domain: "example.com"},
			Strategies: []framework.Strategy{NewStrategy("admins")},
		},
	})
	app.AddCollection(&framework.Collection{
		Slug: "app-users",
		Auth: &framework.AuthOptions{
			UseSessions: true,
			Strategies:  []framework.Strategy{NewStrategy("app-users")},
		},
	})
	app.AddCollection(&framework.Collection{Slug: "no-auth"})
	return app
}

func createUser(t *testing.T, app *framework.App, slug, email string) *user.User {
	t.Helper()
	u := &user.User{Collection: slug, Email: email}
	require.NoError(t, app.Users.Create(context.Background(), u))
	return u
}

func TestSessionCookies_Admin(t *testing.T) {
	app := newTestApp(t)

	cookies, err := SessionCookies(app, "admins", "tok")
	require.NoError(t, err)
	require.Len(t, cookies, 1)

	c := cookies[0]
	assert.Equal(t, "payload-token", c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, 7200, c.MaxAge)
	assert.Equal(t, http.SameSiteNoneMode, c.SameSite)
	assert.True(t, c.Secure)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "example.com", c.Domain)

	expired, err := ExpiredSessionCookies(app, "admins")
	require.NoError(t, err)
	require.Len(t, expired, 1)
	s := expired[0].String()
	for _, attr := range []string{"payload-token=", "HttpOnly", "Path=/", "Max-Age=0", "SameSite=None", "Secure", "Domain=example.com"} {
		assert.Contains(t, s, attr)
	}
}

func TestSessionCookies_NonAdmin(t *testing.T) {
	app := newTestApp(t)

	expired, err := ExpiredSessionCookies(app, "app-users")
	require.NoError(t, err)
	s := expired[0].String()
	assert.True(t, strings.HasPrefix(s, "payload-token-app-users=;"), s)
	assert.Contains(t, s, "Max-Age=0")
	assert.Contains(t, s, "SameSite=Lax")
	assert.NotContains(t, s, "Secure")
	assert.NotContains(t, s, "Domain=")
}

func TestSessionCookies_AuthDisabled(t *testing.T) {
	app := newTestApp(t)

	_, err := SessionCookies(app, "no-auth", "tok")
	assert.ErrorIs(t, err, errs.ErrAuthDisabled)
	_, err = ExpiredSessionCookies(app, "missing")
	assert.ErrorIs(t, err, errs.ErrAuthDisabled)
}

func TestGenerateUserToken(t *testing.T) {
	app := newTestApp(t)
	u := createUser(t, app, "admins", "root@example.com")

	tok, exp, err := GenerateUserToken(context.Background(), app, "admins", u.ID)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(2*time.Hour), exp, time.Minute)

	claims, err := ParseToken(tok, testSecret)
	require.NoError(t, err)
	assert.Equal(t, u.ID, claims.ID)
	assert.Equal(t, "root@example.com", claims.Email)
	assert.Equal(t, "admins", claims.Collection)
	assert.Empty(t, claims.SessionID)

	_, err = ParseToken(tok, "other-secret")
	assert.ErrorIs(t, err, errs.ErrInvalidSession)
}

func TestGenerateUserToken_Errors(t *testing.T) {
	app := newTestApp(t)

	_, _, err := GenerateUserToken(context.Background(), app, "no-auth", uuid.New())
	assert.ErrorIs(t, err, errs.ErrAuthDisabled)

	_, _, err = GenerateUserToken(context.Background(), app, "admins", uuid.New())
	assert.ErrorIs(t, err, errs.ErrNotFound)

	app.Secret = ""
	_, _, err = GenerateUserToken(context.Background(), app, "admins", uuid.New())
	assert.ErrorIs(t, err, errs.ErrSecretRequired)
}

func TestParseToken_RejectsOtherAlgorithms(t *testing.T) {
	claims := Claims{ID: uuid.New()}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ParseToken(tok, testSecret)
	assert.ErrorIs(t, err, errs.ErrInvalidSession)
}

func requestWithCookie(t *testing.T, app *framework.App, slug string, u *user.User) *http.Request {
	t.Helper()
	tok, _, err := GenerateUserToken(context.Background(), app, slug, u.ID)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/app/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: app.CookieName(slug), Value: tok})
	return req
}

func TestStrategy_Authenticate(t *testing.T) {
	app := newTestApp(t)
	u := createUser(t, app, "admins", "root@example.com")
	req := requestWithCookie(t, app, "admins", u)

	got := NewStrategy("admins").Authenticate(req, app)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "workos", got.Strategy)
	assert.Equal(t, "admins", got.Collection)

	// the cookie of one collection does not authenticate another
	assert.Nil(t, NewStrategy("app-users").Authenticate(req, app))
}

func TestStrategy_CSRFOrigin(t *testing.T) {
	app := newTestApp(t)
	app.CSRF = []string{"https://good.example"}
	u := createUser(t, app, "admins", "root@example.com")

	req := requestWithCookie(t, app, "admins", u)
	req.Header.Set("Origin", "https://evil.example")
	assert.Nil(t, NewStrategy("admins").Authenticate(req, app))

	req.Header.Set("Origin", "https://good.example")
	assert.NotNil(t, NewStrategy("admins").Authenticate(req, app))

	req.Header.Del("Origin")
	assert.NotNil(t, NewStrategy("admins").Authenticate(req, app))
}

func TestStrategy_Sessions(t *testing.T) {
	app := newTestApp(t)
	u := createUser(t, app, "app-users", "ada@example.com")
	req := requestWithCookie(t, app, "app-users", u)

	s := NewStrategy("app-users")
	require.NotNil(t, s.Authenticate(req, app))

	require.NoError(t, app.Sessions.DeleteAllForUser(context.Background(), "app-users", u.ID))
	assert.Nil(t, s.Authenticate(req, app), "token must die with its session")
}

func TestStrategy_NoUser(t *testing.T) {
	app := newTestApp(t)
	s := NewStrategy("admins")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, s.Authenticate(req, app))

	req.AddCookie(&http.Cookie{Name: "payload-token", Value: "garbage"})
	assert.Nil(t, s.Authenticate(req, app))

	u := createUser(t, app, "admins", "gone@example.com")
	req = requestWithCookie(t, app, "admins", u)
	require.NoError(t, app.Users.Delete(context.Background(), "admins", u.ID))
	assert.Nil(t, s.Authenticate(req, app))

	assert.Nil(t, NewStrategy("no-auth").Authenticate(req, app))
}

func TestStateStore(t *testing.T) {
	st, err := NewStateStore("app", strings.Repeat("p", 32), false)
	require.NoError(t, err)
	assert.Equal(t, "workos_state_app", st.CookieName())

	rec := httptest.NewRecorder()
	state, err := st.Issue(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	_, err = uuid.Parse(state)
	require.NoError(t, err)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "workos_state_app", cookies[0].Name)
	assert.Equal(t, StateMaxAge, cookies[0].MaxAge)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
	assert.NotContains(t, cookies[0].Value, state, "state must not be stored in clear")

	req := httptest.NewRequest(http.MethodGet, "/cb", nil)
	req.AddCookie(cookies[0])
	assert.NoError(t, st.Verify(req, state))
	assert.ErrorIs(t, st.Verify(req, "other"), errs.ErrInvalidState)
	assert.ErrorIs(t, st.Verify(req, ""), errs.ErrInvalidState)

	// a cookie sealed by another instance is rejected
	other, err := NewStateStore("admin", strings.Repeat("p", 32), false)
	require.NoError(t, err)
	forged := httptest.NewRequest(http.MethodGet, "/cb", nil)
	forged.AddCookie(&http.Cookie{Name: other.CookieName(), Value: cookies[0].Value})
	assert.ErrorIs(t, other.Verify(forged, state), errs.ErrInvalidState)

	assert.ErrorIs(t, st.Verify(httptest.NewRequest(http.MethodGet, "/cb", nil), state), errs.ErrInvalidState)

	rec = httptest.NewRecorder()
	st.Clear(rec, req)
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)
}

func TestNewStateStore_ShortPassword(t *testing.T) {
	_, err := NewStateStore("app", "short", false)
	assert.ErrorIs(t, err, errs.ErrCookiePassword)
}
