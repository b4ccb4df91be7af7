package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User is a record of a users collection. Records of different collections
// share storage and are told apart by Collection.
type User struct {
	ID                uuid.UUID `json:"id"`
	Collection        string    `json:"collection"`
	Email             string    `json:"email"`
	FirstName         string    `json:"firstName,omitempty"`
	LastName          string    `json:"lastName,omitempty"`
	ProfilePictureURL string    `json:"profilePictureUrl,omitempty"`
	WorkOSUserID      string    `json:"workosUserId,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Store persists users. Lookups return errs.ErrNotFound when nothing
// matches. Email and WorkOSUserID are unique within a collection.
type Store interface {
	FindByID(ctx context.Context, collection string, id uuid.UUID) (*User, error)
	FindByWorkOSID(ctx context.Context, collection, workosUserID string) (*User, error)
	FindByEmail(ctx context.Context, collection, email string) (*User, error)
	Create(ctx context.Context, u *User) error
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, collection string, id uuid.UUID) error
}

// AfterDeleteHook runs once a user record has been removed.
type AfterDeleteHook func(ctx context.Context, u *User) error

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
