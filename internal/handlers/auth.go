package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jmartynas/workos-auth/internal/auth"
	"github.com/jmartynas/workos-auth/internal/errs"
	"github.com/jmartynas/workos-auth/internal/framework"
	"github.com/jmartynas/workos-auth/internal/metrics"
	"github.com/jmartynas/workos-auth/internal/workos"
	"github.com/jmartynas/workos-auth/respond"
)

// Error types reported to the error page in the "error" query parameter.
const (
	ErrorMissingCode         = "missing_code"
	ErrorSignUpDisabled      = "signup_disabled"
	ErrorTokenExchangeFailed = "token_exchange_failed"
	ErrorCallback            = "callback_error"
	ErrorSignInFailed        = "signin_failed"
	ErrorSignOutFailed       = "signout_failed"
)

const fallbackBaseURL = "http://127.0.0.1:3000"

// Provider is the part of the WorkOS client the auth endpoints use
// directly. Code exchange goes through Callback.
type Provider interface {
	AuthorizationURL(redirectURI, state string) (string, error)
	auth.Refresher
	auth.ProfileFetcher
}

// AuthHandler serves the signin, callback, signout, session and refresh
// endpoints of one auth instance.
type AuthHandler struct {
	Name                string
	APIPrefix           string
	UsersCollection     string
	UseAdmin            bool
	SuccessRedirectPath string
	ErrorRedirectPath   string

	Provider Provider
	State    *auth.StateStore
	Flow     *auth.Callback
	Metrics  *metrics.Metrics
	Log      logrus.FieldLogger
}

func (h *AuthHandler) authPath(action string) string {
	return h.APIPrefix + "/" + h.Name + "/auth/" + action
}

// SignIn stores a fresh state and redirects to the WorkOS authorization URL.
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	state, err := h.State.Issue(w, r)
	if err != nil {
		h.signInFailed(w, r, err)
		return
	}
	authURL, err := h.Provider.AuthorizationURL(baseURL(r)+h.authPath("callback"), state)
	if err != nil {
		h.signInFailed(w, r, err)
		return
	}
	h.Metrics.Record(metrics.SignIn, h.Name, "ok")
	http.Redirect(w, r, authURL, http.StatusFound)
}

func (h *AuthHandler) signInFailed(w http.ResponseWriter, r *http.Request, err error) {
	h.Log.WithError(err).WithField("instance", h.Name).Error("signin")
	h.Metrics.Record(metrics.SignIn, h.Name, ErrorSignInFailed)
	h.redirectError(w, r, ErrorSignInFailed, err.Error(), h.authPath("signin"))
}

// Callback completes the OAuth flow: it verifies the state, maps the WorkOS
// profile onto the users collection and sets the framework session cookie.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		h.callbackFailed(w, r, errs.ErrMissingCode, true)
		return
	}
	if err := h.State.Verify(r, q.Get("state")); err != nil {
		h.callbackFailed(w, r, err, true)
		return
	}

	u, err := h.Flow.Handle(r.Context(), code, r)
	if err != nil {
		h.callbackFailed(w, r, err, false)
		return
	}
	h.State.Clear(w, r)

	log := h.Log.WithFields(logrus.Fields{"instance": h.Name, "user_id": u.ID})
	if app := framework.FromContext(r.Context()); app != nil {
		if _, err := setSessionCookies(r.Context(), w, app, h.UsersCollection, u.ID); err != nil {
			log.WithError(err).Warn("callback: framework token not issued")
		}
	}
	log.Info("signed in")
	h.Metrics.Record(metrics.Callback, h.Name, "ok")
	http.Redirect(w, r, baseURL(r)+h.SuccessRedirectPath, http.StatusFound)
}

// callbackFailed redirects to the error page. notify runs OnError for
// failures detected before the callback handler ran.
func (h *AuthHandler) callbackFailed(w http.ResponseWriter, r *http.Request, err error, notify bool) {
	if notify && h.Flow.OnError != nil {
		h.Flow.OnError(r.Context(), err, r)
	}
	typ := callbackErrorType(err)
	h.Log.WithError(err).WithFields(logrus.Fields{"instance": h.Name, "type": typ}).Warn("callback failed")
	h.Metrics.Record(metrics.Callback, h.Name, typ)
	h.redirectError(w, r, typ, err.Error(), h.authPath("signin"))
}

func callbackErrorType(err error) string {
	var apiErr *workos.APIError
	switch {
	case errors.Is(err, errs.ErrMissingCode):
		return ErrorMissingCode
	case errors.Is(err, errs.ErrSignUpDisabled):
		return ErrorSignUpDisabled
	case errors.As(err, &apiErr):
		return ErrorTokenExchangeFailed
	}
	msg := err.Error()
	if strings.Contains(msg, "token") || strings.Contains(msg, "exchange") {
		return ErrorTokenExchangeFailed
	}
	return ErrorCallback
}

// SignOut expires the framework cookies and drops the user's sessions.
func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	redirectPath := "/"
	if h.UseAdmin {
		redirectPath = "/admin/login"
	}

	app := framework.FromContext(r.Context())
	if app == nil {
		h.Metrics.Record(metrics.SignOut, h.Name, ErrorSignOutFailed)
		h.redirectError(w, r, ErrorSignOutFailed, "Failed to sign out", redirectPath)
		return
	}
	cookies, err := auth.ExpiredSessionCookies(app, h.UsersCollection)
	if err != nil {
		h.Log.WithError(err).WithField("instance", h.Name).Error("signout")
		h.Metrics.Record(metrics.SignOut, h.Name, ErrorSignOutFailed)
		h.redirectError(w, r, ErrorSignOutFailed, err.Error(), redirectPath)
		return
	}
	if u := framework.UserFromContext(r.Context()); u != nil && u.Collection == h.UsersCollection {
		if err := app.Sessions.DeleteAllForUser(r.Context(), h.UsersCollection, u.ID); err != nil {
			h.Log.WithError(err).WithField("user_id", u.ID).Warn("signout: sessions not cleared")
		}
	}
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
	h.Metrics.Record(metrics.SignOut, h.Name, "ok")
	http.Redirect(w, r, baseURL(r)+redirectPath, http.StatusFound)
}

type sessionResponse struct {
	Authenticated bool                `json:"authenticated"`
	User          *framework.AuthUser `json:"user,omitempty"`
}

// Session reports the user resolved by the framework for this request.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	if framework.FromContext(r.Context()) == nil {
		respond.InternalServerError("Failed to check session").Respond(w)
		return
	}
	u := framework.UserFromContext(r.Context())
	respond.JSON(w, http.StatusOK, sessionResponse{Authenticated: u != nil, User: u})
}

type refreshResponse struct {
	Message string              `json:"message"`
	Exp     int64               `json:"exp"`
	User    *framework.AuthUser `json:"user"`
}

// Refresh renews the WorkOS tokens stored for the current user and
// re-issues the framework session cookie.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	app := framework.FromContext(r.Context())
	u := framework.UserFromContext(r.Context())
	if app == nil || u == nil {
		respond.Unauthorized("unauthorized").Respond(w)
		return
	}
	if u.Collection != h.UsersCollection {
		respond.Forbidden("user does not belong to this auth instance").Respond(w)
		return
	}
	log := h.Log.WithFields(logrus.Fields{"instance": h.Name, "user_id": u.ID})

	a, err := auth.RefreshAccount(r.Context(), h.Provider, h.Flow.Accounts, h.Flow.AccountsCollection, u.ID)
	if err != nil {
		var apiErr *workos.APIError
		switch {
		case errors.Is(err, errs.ErrNotFound):
			h.Metrics.Record(metrics.Refresh, h.Name, "no_account")
			respond.NotFound("no refreshable WorkOS account").Respond(w)
		case errors.As(err, &apiErr):
			log.WithError(err).Warn("refresh: provider rejected token")
			h.Metrics.Record(metrics.Refresh, h.Name, ErrorTokenExchangeFailed)
			respond.New(http.StatusBadGateway, apiErr.Error()).Respond(w)
		default:
			log.WithError(err).Error("refresh")
			h.Metrics.Record(metrics.Refresh, h.Name, "error")
			respond.Database().Respond(w)
		}
		return
	}

	if err := auth.SyncProfile(r.Context(), h.Provider, h.Flow.Users, u.User, a.AccessToken); err != nil {
		log.WithError(err).Warn("refresh: profile not synced")
	}

	exp, err := setSessionCookies(r.Context(), w, app, h.UsersCollection, u.ID)
	if err != nil {
		log.WithError(err).Error("refresh: issue token")
		h.Metrics.Record(metrics.Refresh, h.Name, "error")
		respond.InternalServerError("token refresh failed").Respond(w)
		return
	}
	h.Metrics.Record(metrics.Refresh, h.Name, "ok")
	respond.JSON(w, http.StatusOK, refreshResponse{Message: "Token refresh successful", Exp: exp.Unix(), User: u})
}

func (h *AuthHandler) redirectError(w http.ResponseWriter, r *http.Request, typ, message, returnURL string) {
	q := url.Values{}
	q.Set("error", typ)
	q.Set("message", message)
	q.Set("returnUrl", returnURL)
	http.Redirect(w, r, baseURL(r)+h.ErrorRedirectPath+"?"+q.Encode(), http.StatusFound)
}

// setSessionCookies signs a framework token for userID and sets the
// collection's session cookies on w.
func setSessionCookies(ctx context.Context, w http.ResponseWriter, app *framework.App, slug string, userID uuid.UUID) (time.Time, error) {
	token, exp, err := auth.GenerateUserToken(ctx, app, slug, userID)
	if err != nil {
		return time.Time{}, err
	}
	cookies, err := auth.SessionCookies(app, slug, token)
	if err != nil {
		return time.Time{}, err
	}
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
	return exp, nil
}

// baseURL is the externally visible origin of the request. WorkOS rejects
// localhost redirect URIs, hence the loopback address fallback.
func baseURL(r *http.Request) string {
	host := r.Host
	if host == "" {
		return fallbackBaseURL
	}
	proto := r.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = "http"
	}
	return proto + "://" + host
}
