package account

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

var accountColumns = []string{
	"id", "collection", "user_id", "provider", "provider_account_id",
	"COALESCE(organization_id, '')", "COALESCE(access_token, '')", "COALESCE(refresh_token, '')",
	"expires_at", "metadata", "created_at", "updated_at",
}

type MySQLStore struct {
	dbc dbresolver.DB
}

func NewMySQLStore(dbc dbresolver.DB) *MySQLStore {
	return &MySQLStore{dbc: dbc}
}

func (s *MySQLStore) FindByID(ctx context.Context, collection string, id uuid.UUID) (*Account, error) {
	return s.findOne(ctx, squirrel.Eq{"collection": collection, "id": id.String()})
}

func (s *MySQLStore) FindByUserProvider(ctx context.Context, collection string, userID uuid.UUID, provider string) (*Account, error) {
	return s.findOne(ctx, squirrel.Eq{"collection": collection, "user_id": userID.String(), "provider": provider})
}

func (s *MySQLStore) findOne(ctx context.Context, where squirrel.Eq) (*Account, error) {
	row := squirrel.Select(accountColumns...).
		From("accounts").
		Where(where).
		Limit(1).
		RunWith(s.dbc).
		QueryRowContext(ctx)
	a, err := scanAccount(row)
	switch {
	case err == nil:
		return a, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, errs.ErrNotFound
	default:
		return nil, fmt.Errorf("select account: %w", err)
	}
}

func (s *MySQLStore) ListByUser(ctx context.Context, collection string, userID uuid.UUID) ([]Account, error) {
	rows, err := squirrel.Select(accountColumns...).
		From("accounts").
		Where(squirrel.Eq{"collection": collection, "user_id": userID.String()}).
		OrderBy("created_at").
		RunWith(s.dbc).
		QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

func (s *MySQLStore) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Provider == "" {
		a.Provider = ProviderWorkOS
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now

	_, err := squirrel.Insert("accounts").
		SetMap(map[string]any{
			"id":                  a.ID.String(),
			"collection":          a.Collection,
			"user_id":             a.UserID.String(),
			"provider":            a.Provider,
			"provider_account_id": a.ProviderAccountID,
			"organization_id":     nullStr(a.OrganizationID),
			"access_token":        nullStr(a.AccessToken),
			"refresh_token":       nullStr(a.RefreshToken),
			"expires_at":          nullTime(a.ExpiresAt),
			"metadata":            nullJSON(a.Metadata),
			"created_at":          a.CreatedAt,
			"updated_at":          a.UpdatedAt,
		}).
		RunWith(s.dbc).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *MySQLStore) Update(ctx context.Context, a *Account) error {
	a.UpdatedAt = time.Now().UTC()
	res, err := squirrel.Update("accounts").
		SetMap(map[string]any{
			"provider_account_id": a.ProviderAccountID,
			"organization_id":     nullStr(a.OrganizationID),
			"access_token":        nullStr(a.AccessToken),
			"refresh_token":       nullStr(a.RefreshToken),
			"expires_at":          nullTime(a.ExpiresAt),
			"metadata":            nullJSON(a.Metadata),
			"updated_at":          a.UpdatedAt,
		}).
		Where(squirrel.Eq{"collection": a.Collection, "id": a.ID.String()}).
		RunWith(s.dbc).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *MySQLStore) Delete(ctx context.Context, collection string, id uuid.UUID) error {
	res, err := squirrel.Delete("accounts").
		Where(squirrel.Eq{"collection": collection, "id": id.String()}).
		RunWith(s.dbc).
		ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (s *MySQLStore) DeleteByUser(ctx context.Context, collection string, userID uuid.UUID) (int64, error) {
	res, err := squirrel.Delete("accounts").
		Where(squirrel.Eq{"collection": collection, "user_id": userID.String()}).
		RunWith(s.dbc).
		ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete accounts by user: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(sc scanner) (*Account, error) {
	var (
		a         Account
		idStr     string
		userIDStr string
		expiresAt sql.NullTime
		metadata  []byte
	)
	if err := sc.Scan(&idStr, &a.Collection, &userIDStr, &a.Provider, &a.ProviderAccountID,
		&a.OrganizationID, &a.AccessToken, &a.RefreshToken,
		&expiresAt, &metadata, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if a.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("parse account id %q: %w", idStr, err)
	}
	if a.UserID, err = uuid.Parse(userIDStr); err != nil {
		return nil, fmt.Errorf("parse account user id %q: %w", userIDStr, err)
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		a.ExpiresAt = &t
	}
	if len(metadata) > 0 {
		a.Metadata = metadata
	}
	return &a, nil
}

func nullStr(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nullJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
