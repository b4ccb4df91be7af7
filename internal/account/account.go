package account

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmartynas/workos-auth/internal/user"
)

// ProviderWorkOS is the provider name stored on accounts created by the
// WorkOS sign-in flow.
const ProviderWorkOS = "workos"

// Account links a user to an identity at an OAuth provider and keeps the
// provider tokens needed to call it on the user's behalf.
type Account struct {
	ID                uuid.UUID       `json:"id"`
	Collection        string          `json:"collection"`
	UserID            uuid.UUID       `json:"user"`
	Provider          string          `json:"provider"`
	ProviderAccountID string          `json:"providerAccountId"`
	OrganizationID    string          `json:"organizationId,omitempty"`
	AccessToken       string          `json:"-"`
	RefreshToken      string          `json:"-"`
	ExpiresAt         *time.Time      `json:"expiresAt,omitempty"`
	Metadata          json.RawMessage `json:"metadata,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Store persists accounts. Lookups return errs.ErrNotFound when nothing
// matches.
type Store interface {
	FindByID(ctx context.Context, collection string, id uuid.UUID) (*Account, error)
	FindByUserProvider(ctx context.Context, collection string, userID uuid.UUID, provider string) (*Account, error)
	ListByUser(ctx context.Context, collection string, userID uuid.UUID) ([]Account, error)
	Create(ctx context.Context, a *Account) error
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, collection string, id uuid.UUID) error
	DeleteByUser(ctx context.Context, collection string, userID uuid.UUID) (int64, error)
}

// DeleteLinkedAccounts returns a users-collection hook that removes every
// account of accountsCollection pointing at the deleted user.
func DeleteLinkedAccounts(store Store, accountsCollection string) user.AfterDeleteHook {
	return func(ctx context.Context, u *user.User) error {
		if _, err := store.DeleteByUser(ctx, accountsCollection, u.ID); err != nil {
			return fmt.Errorf("delete linked accounts of %s: %w", u.ID, err)
		}
		return nil
	}
}
