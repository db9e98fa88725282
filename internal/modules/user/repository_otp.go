package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

var otpColumns = []string{
	"id", "site_id", "email", "code_hash", "purpose", "expires_at", "is_used", "used_at",
	"attempts", "max_attempts", "metadata", "requester_ip", "user_agent", "created_at",
}

func otpKeyWhere(key OTPKey) squirrel.Eq {
	return squirrel.Eq{
		"site_id": key.SiteID,
		"email":   key.Email,
		"purpose": string(key.Purpose),
	}
}

func (r *repository) InsertOTP(ctx context.Context, t *OTPToken) error {
	metadata := t.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	query, args, err := r.psql.Insert("otp_tokens").
		Columns(otpColumns...).
		Values(t.ID, t.SiteID, t.Email, t.CodeHash, string(t.Purpose), t.ExpiresAt, t.IsUsed, t.UsedAt,
			t.Attempts, t.MaxAttempts, metadata, t.RequesterIP, t.UserAgent, t.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// InvalidateActiveOTPs marks every active token of the key as used.
func (r *repository) InvalidateActiveOTPs(ctx context.Context, key OTPKey, now time.Time) (int64, error) {
	query, args, err := r.psql.Update("otp_tokens").
		Set("is_used", true).
		Set("used_at", now).
		Where(otpKeyWhere(key)).
		Where(squirrel.Eq{"is_used": false}).
		Where(squirrel.Gt{"expires_at": now}).
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

// FindActiveOTP returns the newest unused, unexpired token for the key.
func (r *repository) FindActiveOTP(ctx context.Context, key OTPKey, now time.Time) (*OTPToken, error) {
	query, args, err := r.psql.Select(otpColumns...).
		From("otp_tokens").
		Where(otpKeyWhere(key)).
		Where(squirrel.Eq{"is_used": false}).
		Where(squirrel.Gt{"expires_at": now}).
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	var t OTPToken
	if err := pgxscan.Get(ctx, r.db, &t, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound.WithCause(err)
		}
		return nil, err
	}
	return &t, nil
}

// OTPCodeIssued reports whether another active token of the key already carries codeHash.
func (r *repository) OTPCodeIssued(ctx context.Context, key OTPKey, codeHash string, now time.Time) (bool, error) {
	query, args, err := r.psql.Select("1").
		Prefix("SELECT EXISTS (").
		From("otp_tokens").
		Where(otpKeyWhere(key)).
		Where(squirrel.Eq{"code_hash": codeHash, "is_used": false}).
		Where(squirrel.Gt{"expires_at": now}).
		Suffix(")").
		ToSql()
	if err != nil {
		return false, err
	}
	var exists bool
	if err := r.db.QueryRow(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (r *repository) IncrementOTPAttempts(ctx context.Context, id string) (int, int, error) {
	query, args, err := r.psql.Update("otp_tokens").
		Set("attempts", squirrel.Expr("attempts + 1")).
		Where(squirrel.Eq{"id": id}).
		Suffix("RETURNING attempts, max_attempts").
		ToSql()
	if err != nil {
		return 0, 0, err
	}
	var attempts, maxAttempts int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&attempts, &maxAttempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, ErrNotFound.WithCause(err)
		}
		return 0, 0, err
	}
	return attempts, maxAttempts, nil
}

// ClaimOTP consumes the token if it is still active. Only one caller can win;
// the others get ErrNotFound.
func (r *repository) ClaimOTP(ctx context.Context, id string, now time.Time) (*OTPToken, error) {
	query, args, err := r.psql.Update("otp_tokens").
		Set("is_used", true).
		Set("used_at", now).
		Where(squirrel.Eq{"id": id, "is_used": false}).
		Where(squirrel.Gt{"expires_at": now}).
		Suffix("RETURNING " + strings.Join(otpColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, err
	}
	var t OTPToken
	if err := pgxscan.Get(ctx, r.db, &t, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound.WithCause(err)
		}
		return nil, err
	}
	return &t, nil
}

// MarkOTPUsed retires a token regardless of its state.
func (r *repository) MarkOTPUsed(ctx context.Context, id string, now time.Time) error {
	query, args, err := r.psql.Update("otp_tokens").
		Set("is_used", true).
		Set("used_at", squirrel.Expr("COALESCE(used_at, ?)", now)).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}
