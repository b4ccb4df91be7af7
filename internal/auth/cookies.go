package auth

import (
	"net/http"
	"time"

	"github.com/jmartynas/workos-auth/internal/errs"
	"github.com/jmartynas/workos-auth/internal/framework"
)

// SessionCookies returns the cookies that carry token for a users
// collection.
func SessionCookies(app *framework.App, slug, token string) ([]*http.Cookie, error) {
	coll := app.Collection(slug)
	if coll == nil || coll.Auth == nil {
		return nil, errs.ErrAuthDisabled
	}
	return []*http.Cookie{
		buildCookie(app, coll.Auth, app.CookieName(slug), token, int(coll.Auth.Expiration()/time.Second)),
	}, nil
}

// ExpiredSessionCookies returns cookies that clear the session of a users
// collection. Attributes match SessionCookies so browsers replace them.
func ExpiredSessionCookies(app *framework.App, slug string) ([]*http.Cookie, error) {
	coll := app.Collection(slug)
	if coll == nil || coll.Auth == nil {
		return nil, errs.ErrAuthDisabled
	}
	return []*http.Cookie{
		buildCookie(app, coll.Auth, app.CookieName(slug), "", -1),
	}, nil
}

// buildCookie maps maxAge onto net/http semantics: negative emits Max-Age=0.
func buildCookie(app *framework.App, opts *framework.AuthOptions, name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   opts.Cookies.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   opts.Cookies.IsSecure(app.Production),
		SameSite: opts.Cookies.SameSiteMode(),
	}
}
