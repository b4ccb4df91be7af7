package auth

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/jmartynas/workos-auth/internal/framework"
)

const StrategyName = "workos"

// Strategy authenticates requests of one users collection from the
// framework session cookie minted after a WorkOS sign-in.
type Strategy struct {
	collection string
}

func NewStrategy(collection string) *Strategy {
	return &Strategy{collection: collection}
}

func (s *Strategy) Name() string { return StrategyName }

func (s *Strategy) Authenticate(r *http.Request, app *framework.App) *framework.AuthUser {
	coll := app.Collection(s.collection)
	if coll == nil || coll.Auth == nil {
		return nil
	}
	if !app.OriginAllowed(r.Header.Get("Origin")) {
		return nil
	}

	c, err := r.Cookie(app.CookieName(s.collection))
	if err != nil || c.Value == "" {
		return nil
	}
	claims, err := ParseToken(c.Value, app.Secret)
	if err != nil {
		return nil
	}
	if claims.Collection != "" && claims.Collection != s.collection {
		return nil
	}

	if claims.SessionID != "" {
		sid, err := uuid.Parse(claims.SessionID)
		if err != nil {
			return nil
		}
		ok, err := app.Sessions.Exists(r.Context(), s.collection, claims.ID, sid)
		if err != nil {
			if app.Log != nil {
				app.Log.WithError(err).WithField("collection", s.collection).Warn("session lookup failed")
			}
			return nil
		}
		if !ok {
			return nil
		}
	}

	u, err := app.Users.FindByID(r.Context(), s.collection, claims.ID)
	if err != nil {
		return nil
	}
	return &framework.AuthUser{User: u, Strategy: StrategyName}
}
