package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jmartynas/workos-auth/internal/errs"
	"github.com/jmartynas/workos-auth/internal/framework"
)

// Claims are the fields signed into a framework session token.
type Claims struct {
	jwt.RegisteredClaims
	ID         uuid.UUID `json:"id"`
	Email      string    `json:"email"`
	Collection string    `json:"collection"`
	SessionID  string    `json:"sid,omitempty"`
}

// GenerateUserToken signs a session token for a user of an auth-enabled
// collection. Collections using sessions get a new session whose id is
// carried in the token.
func GenerateUserToken(ctx context.Context, app *framework.App, slug string, userID uuid.UUID) (string, time.Time, error) {
	if app.Secret == "" {
		return "", time.Time{}, errs.ErrSecretRequired
	}
	coll := app.Collection(slug)
	if coll == nil || coll.Auth == nil {
		return "", time.Time{}, errs.ErrAuthDisabled
	}

	u, err := app.Users.FindByID(ctx, slug, userID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("find user %s: %w", userID, err)
	}

	lifetime := coll.Auth.Expiration()
	now := time.Now()
	exp := now.Add(lifetime)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		ID:         u.ID,
		Email:      u.Email,
		Collection: slug,
	}
	if coll.Auth.UseSessions {
		sid, err := app.Sessions.Create(ctx, slug, u.ID, lifetime)
		if err != nil {
			return "", time.Time{}, fmt.Errorf("create session: %w", err)
		}
		claims.SessionID = sid.String()
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(app.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, exp, nil
}

// ParseToken verifies a framework session token.
func ParseToken(token, secret string) (*Claims, error) {
	if secret == "" {
		return nil, errs.ErrSecretRequired
	}
	var claims Claims
	t, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !t.Valid {
		return nil, errs.ErrInvalidSession
	}
	if claims.ID == uuid.Nil {
		return nil, errs.ErrInvalidSession
	}
	return &claims, nil
}
