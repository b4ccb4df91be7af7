package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmartynas/workos-auth/internal/account"
	"github.com/jmartynas/workos-auth/internal/errs"
	"github.com/jmartynas/workos-auth/internal/user"
	"github.com/jmartynas/workos-auth/internal/workos"
)

// Exchanger trades an authorization code for the WorkOS session.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*workos.AuthenticateResponse, error)
}

// SuccessFunc runs after the user and account records are stored.
type SuccessFunc func(ctx context.Context, u *user.User, session *workos.AuthenticateResponse, r *http.Request) error

// ErrorFunc observes a failed sign-in. It cannot change the outcome.
type ErrorFunc func(ctx context.Context, err error, r *http.Request)

// Callback maps a WorkOS sign-in onto the users and accounts collections.
type Callback struct {
	Provider           Exchanger
	Users              user.Store
	Accounts           account.Store
	UsersCollection    string
	AccountsCollection string
	AllowSignUp        bool
	OnSuccess          SuccessFunc
	OnError            ErrorFunc

	now func() time.Time
}

// Handle exchanges code and creates, links or updates the user and its
// WorkOS account.
func (c *Callback) Handle(ctx context.Context, code string, r *http.Request) (*user.User, error) {
	u, err := c.handle(ctx, code, r)
	if err != nil {
		if c.OnError != nil {
			c.OnError(ctx, err, r)
		}
		return nil, err
	}
	return u, nil
}

func (c *Callback) handle(ctx context.Context, code string, r *http.Request) (*user.User, error) {
	res, err := c.Provider.ExchangeCode(ctx, code)
	if err != nil {
		return nil, err
	}
	profile := res.User

	u, err := c.Users.FindByWorkOSID(ctx, c.UsersCollection, profile.ID)
	switch {
	case err == nil:
		u.Email = profile.Email
		applyProfile(u, profile)
		if err := c.Users.Update(ctx, u); err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	case errors.Is(err, errs.ErrNotFound):
		if !c.AllowSignUp {
			return nil, errs.ErrSignUpDisabled
		}
		u, err = c.linkOrCreate(ctx, profile)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("find user by workos id: %w", err)
	}

	if err := c.upsertAccount(ctx, u, res); err != nil {
		return nil, err
	}

	if c.OnSuccess != nil {
		if err := c.OnSuccess(ctx, u, res, r); err != nil {
			return nil, fmt.Errorf("on success: %w", err)
		}
	}
	return u, nil
}

func (c *Callback) linkOrCreate(ctx context.Context, profile workos.User) (*user.User, error) {
	u, err := c.Users.FindByEmail(ctx, c.UsersCollection, profile.Email)
	switch {
	case err == nil:
		u.WorkOSUserID = profile.ID
		applyProfile(u, profile)
		if err := c.Users.Update(ctx, u); err != nil {
			return nil, fmt.Errorf("link user: %w", err)
		}
		return u, nil
	case errors.Is(err, errs.ErrNotFound):
		u = &user.User{
			Collection:   c.UsersCollection,
			Email:        profile.Email,
			WorkOSUserID: profile.ID,
		}
		applyProfile(u, profile)
		if err := c.Users.Create(ctx, u); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
		return u, nil
	default:
		return nil, fmt.Errorf("find user by email: %w", err)
	}
}

func (c *Callback) upsertAccount(ctx context.Context, u *user.User, res *workos.AuthenticateResponse) error {
	tok := res.Token(c.clock())
	var expiresAt *time.Time
	if !tok.Expiry.IsZero() {
		expiresAt = &tok.Expiry
	}

	a, err := c.Accounts.FindByUserProvider(ctx, c.AccountsCollection, u.ID, account.ProviderWorkOS)
	switch {
	case err == nil:
		a.AccessToken = tok.AccessToken
		a.RefreshToken = tok.RefreshToken
		a.ExpiresAt = expiresAt
		a.ProviderAccountID = res.User.ID
		a.OrganizationID = res.Organization()
		if err := c.Accounts.Update(ctx, a); err != nil {
			return fmt.Errorf("update account: %w", err)
		}
		return nil
	case errors.Is(err, errs.ErrNotFound):
		a = &account.Account{
			Collection:        c.AccountsCollection,
			UserID:            u.ID,
			Provider:          account.ProviderWorkOS,
			ProviderAccountID: res.User.ID,
			OrganizationID:    res.Organization(),
			AccessToken:       tok.AccessToken,
			RefreshToken:      tok.RefreshToken,
			ExpiresAt:         expiresAt,
		}
		if err := c.Accounts.Create(ctx, a); err != nil {
			return fmt.Errorf("create account: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("find account: %w", err)
	}
}

func (c *Callback) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func applyProfile(u *user.User, p workos.User) {
	u.FirstName = p.FirstName
	u.LastName = p.LastName
	u.ProfilePictureURL = p.ProfilePictureURL
}
