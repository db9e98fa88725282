package user

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

var accountColumns = []string{
	"id", "site_id", "email", "password_hash", "first_name", "last_name",
	"auth_provider", "email_confirmed_at", "created_at", "updated_at",
}

// CreateAccountIfAbsent inserts the account unless one already exists for the
// same lower(email). The unique index makes this atomic across concurrent signups.
func (r *repository) CreateAccountIfAbsent(ctx context.Context, a *Account) (bool, error) {
	query, args, err := r.psql.Insert("auth_accounts").
		Columns(accountColumns...).
		Values(a.ID, a.SiteID, a.Email, a.PasswordHash, a.FirstName, a.LastName,
			a.AuthProvider, a.EmailConfirmedAt, a.CreatedAt, a.UpdatedAt).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return false, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repository) FindAccountByEmail(ctx context.Context, email string) (*Account, error) {
	return r.findAccount(ctx, squirrel.Expr("lower(email) = lower(?)", email))
}

func (r *repository) FindAccountByID(ctx context.Context, id string) (*Account, error) {
	return r.findAccount(ctx, squirrel.Eq{"id": id})
}

func (r *repository) findAccount(ctx context.Context, where squirrel.Sqlizer) (*Account, error) {
	query, args, err := r.psql.Select(accountColumns...).
		From("auth_accounts").
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	var a Account
	if err := pgxscan.Get(ctx, r.db, &a, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound.WithCause(err)
		}
		return nil, err
	}
	return &a, nil
}

func (r *repository) DeleteAccount(ctx context.Context, id string) error {
	query, args, err := r.psql.Delete("auth_accounts").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func (r *repository) ConfirmAccountEmail(ctx context.Context, id string, at time.Time) error {
	query, args, err := r.psql.Update("auth_accounts").
		Set("email_confirmed_at", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		Where("email_confirmed_at IS NULL").
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func (r *repository) UpdatePassword(ctx context.Context, id string, passwordHash string) error {
	query, args, err := r.psql.Update("auth_accounts").
		Set("password_hash", passwordHash).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteStaleUnconfirmedAccounts removes signups that were never confirmed and
// no longer have a live confirmation code.
func (r *repository) DeleteStaleUnconfirmedAccounts(ctx context.Context, createdBefore, now time.Time) (int64, error) {
	query, args, err := r.psql.Delete("auth_accounts a").
		Where("a.email_confirmed_at IS NULL").
		Where(squirrel.Lt{"a.created_at": createdBefore}).
		Where(`NOT EXISTS (
			SELECT 1 FROM otp_tokens t
			WHERE t.email = lower(a.email)
			  AND t.purpose = ?
			  AND t.is_used = false
			  AND t.expires_at > ?
		)`, string(OTPPurposeConfirmSignup), now).
		ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// --- Profiles ---

func (r *repository) CreateProfile(ctx context.Context, p *Profile) error {
	query, args, err := r.psql.Insert("user_profiles").
		Columns("id", "site_id", "first_name", "last_name", "email", "role", "is_active", "created_at", "updated_at").
		Values(p.ID, p.SiteID, p.FirstName, p.LastName, p.Email, p.Role, p.IsActive, p.CreatedAt, p.UpdatedAt).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func (r *repository) ActivateProfile(ctx context.Context, id string) (int64, error) {
	query, args, err := r.psql.Update("user_profiles").
		Set("is_active", true).
		Set("updated_at", time.Now()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repository) FindProfile(ctx context.Context, id string) (*Profile, error) {
	query, args, err := r.psql.Select("id", "site_id", "first_name", "last_name", "email", "role", "is_active", "created_at", "updated_at").
		From("user_profiles").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := pgxscan.Get(ctx, r.db, &p, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound.WithCause(err)
		}
		return nil, err
	}
	return &p, nil
}

// UpdateNames patches the account and mirrors the change onto its profile.
func (r *repository) UpdateNames(ctx context.Context, id string, firstName, lastName *string) error {
	if firstName == nil && lastName == nil {
		_, err := r.FindAccountByID(ctx, id)
		return err
	}
	now := time.Now()
	for _, table := range []string{"auth_accounts", "user_profiles"} {
		q := r.psql.Update(table).
			Set("updated_at", now).
			Where(squirrel.Eq{"id": id})
		if firstName != nil {
			q = q.Set("first_name", *firstName)
		}
		if lastName != nil {
			q = q.Set("last_name", *lastName)
		}
		query, args, err := q.ToSql()
		if err != nil {
			return err
		}
		tag, err := r.db.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if table == "auth_accounts" && tag.RowsAffected() == 0 {
			return ErrNotFound
		}
	}
	return nil
}
