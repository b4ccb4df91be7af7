package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmartynas/workos-auth/internal/account"
	"github.com/jmartynas/workos-auth/internal/errs"
	"github.com/jmartynas/workos-auth/internal/user"
	"github.com/jmartynas/workos-auth/internal/workos"
)

// Refresher trades a WorkOS refresh token for new tokens.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*workos.AuthenticateResponse, error)
}

// ProfileFetcher reads the WorkOS profile behind an access token.
type ProfileFetcher interface {
	GetUser(ctx context.Context, accessToken string) (*workos.User, error)
}

// RefreshAccount renews the provider tokens stored on the WorkOS account of
// userID. Accounts without a refresh token are reported as not found.
func RefreshAccount(ctx context.Context, p Refresher, accounts account.Store, collection string, userID uuid.UUID) (*account.Account, error) {
	a, err := accounts.FindByUserProvider(ctx, collection, userID, account.ProviderWorkOS)
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	if a.RefreshToken == "" {
		return nil, fmt.Errorf("account %s has no refresh token: %w", a.ID, errs.ErrNotFound)
	}

	res, err := p.RefreshToken(ctx, a.RefreshToken)
	if err != nil {
		return nil, err
	}
	tok := res.Token(time.Now())
	a.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		a.RefreshToken = tok.RefreshToken
	}
	if tok.Expiry.IsZero() {
		a.ExpiresAt = nil
	} else {
		a.ExpiresAt = &tok.Expiry
	}
	if err := accounts.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("update account: %w", err)
	}
	return a, nil
}

// SyncProfile copies the current WorkOS profile onto u and stores it. A
// profile of a different WorkOS user is rejected.
func SyncProfile(ctx context.Context, p ProfileFetcher, users user.Store, u *user.User, accessToken string) error {
	profile, err := p.GetUser(ctx, accessToken)
	if err != nil {
		return err
	}
	if u.WorkOSUserID != "" && profile.ID != u.WorkOSUserID {
		return fmt.Errorf("profile %s does not belong to user %s", profile.ID, u.ID)
	}

	next := *u
	next.WorkOSUserID = profile.ID
	if profile.Email != "" {
		next.Email = profile.Email
	}
	applyProfile(&next, *profile)
	if err := users.Update(ctx, &next); err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	*u = next
	return nil
}
