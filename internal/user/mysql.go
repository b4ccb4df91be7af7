package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/bxcodec/dbresolver/v2"
	"github.com/google/uuid"

	"github.com/jmartynas/workos-auth/internal/errs"
)

var userColumns = []string{
	"id", "collection", "email",
	"COALESCE(first_name, '')", "COALESCE(last_name, '')",
	"COALESCE(profile_picture_url, '')", "COALESCE(workos_user_id, '')",
	"created_at", "updated_at",
}

type MySQLStore struct {
	dbc dbresolver.DB
}

func NewMySQLStore(dbc dbresolver.DB) *MySQLStore {
	return &MySQLStore{dbc: dbc}
}

func (s *MySQLStore) FindByID(ctx context.Context, collection string, id uuid.UUID) (*User, error) {
	return s.findOne(ctx, squirrel.Eq{"collection": collection, "id": id.String()})
}

func (s *MySQLStore) FindByWorkOSID(ctx context.Context, collection, workosUserID string) (*User, error) {
	return s.findOne(ctx, squirrel.Eq{"collection": collection, "workos_user_id": workosUserID})
}

func (s *MySQLStore) FindByEmail(ctx context.Context, collection, email string) (*User, error) {
	return s.findOne(ctx, squirrel.Eq{"collection": collection, "email": email})
}

func (s *MySQLStore) findOne(ctx context.Context, where squirrel.Eq) (*User, error) {
	var (
		u     User
		idStr string
	)
	err := squirrel.Select(userColumns...).
		From("users").
		Where(where).
		Limit(1).
		RunWith(s.dbc).
		QueryRowContext(ctx).
		Scan(&idStr, &u.Collection, &u.Email, &u.FirstName, &u.LastName,
			&u.ProfilePictureURL, &u.WorkOSUserID, &u.CreatedAt, &u.UpdatedAt)
	switch {
	case err == nil: // OK
	case errors.Is(err, sql.ErrNoRows):
		return nil, errs.ErrNotFound
	default:
		return nil, fmt.Errorf("select user: %w", err)
	}
	u.ID, err = uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parse user id %q: %w", idStr, err)
	}
	return &u, nil
}

func (s *MySQLStore) Create(ctx context.Context, u *User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := squirrel.Insert("users").
		SetMap(map[string]any{
			"id":                  u.ID.String(),
			"collection":          u.Collection,
			"email":               u.Email,
			"first_name":          nullStr(u.FirstName),
			"last_name":           nullStr(u.LastName),
			"profile_picture_url": nullStr(u.ProfilePictureURL),
			"workos_user_id":      nullStr(u.WorkOSUserID),
			"created_at":          u.CreatedAt,
			"updated_at":          u.UpdatedAt,
		}).
		RunWith(s.dbc).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *MySQLStore) Update(ctx context.Context, u *User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := squirrel.Update("users").
		SetMap(map[string]any{
			"email":               u.Email,
			"first_name":          nullStr(u.FirstName),
			"last_name":           nullStr(u.LastName),
			"profile_picture_url": nullStr(u.ProfilePictureURL),
			"workos_user_id":      nullStr(u.WorkOSUserID),
			"updated_at":          u.UpdatedAt,
		}).
		Where(squirrel.Eq{"collection": u.Collection, "id": u.ID.String()}).
		RunWith(s.dbc).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireAffected(res)
}

func (s *MySQLStore) Delete(ctx context.Context, collection string, id uuid.UUID) error {
	res, err := squirrel.Delete("users").
		Where(squirrel.Eq{"collection": collection, "id": id.String()}).
		RunWith(s.dbc).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}
