package user

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (r *repository) FindMFASettings(ctx context.Context, userID string) (*MFASettings, error) {
	query, args, err := r.psql.Select("user_id", "totp_secret", "totp_enabled", "totp_verified_at", "created_at", "updated_at").
		From("mfa_settings").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var s MFASettings
	if err := pgxscan.Get(ctx, r.db, &s, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound.WithCause(err)
		}
		return nil, err
	}
	return &s, nil
}

// SaveTOTPSecret stores a pending secret. An already enabled secret is left untouched.
func (r *repository) SaveTOTPSecret(ctx context.Context, userID, sealedSecret string) error {
	now := time.Now()
	query, args, err := r.psql.Insert("mfa_settings").
		Columns("user_id", "totp_secret", "totp_enabled", "created_at", "updated_at").
		Values(userID, sealedSecret, false, now, now).
		Suffix(`ON CONFLICT (user_id) DO UPDATE SET
			totp_secret = EXCLUDED.totp_secret,
			updated_at = EXCLUDED.updated_at
			WHERE mfa_settings.totp_enabled = false`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func (r *repository) EnableTOTP(ctx context.Context, userID string, at time.Time) error {
	query, args, err := r.psql.Update("mfa_settings").
		Set("totp_enabled", true).
		Set("totp_verified_at", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"user_id": userID}).
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

func (r *repository) DisableTOTP(ctx context.Context, userID string) error {
	query, args, err := r.psql.Delete("mfa_settings").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// ReplaceBackupCodes swaps the whole set in a single statement.
func (r *repository) ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error {
	ids := make([]string, len(codeHashes))
	for i := range codeHashes {
		ids[i] = uuid.Must(uuid.NewV7()).String()
	}
	const query = `
		WITH removed AS (
			DELETE FROM mfa_backup_codes WHERE user_id = $1
		)
		INSERT INTO mfa_backup_codes (id, user_id, code_hash, created_at)
		SELECT id, $1, hash, now()
		FROM unnest($2::uuid[], $3::text[]) AS c(id, hash)`
	_, err := r.db.Exec(ctx, query, userID, ids, codeHashes)
	return err
}

// ClaimBackupCode marks the code used. It reports false when the code does not
// exist or was already consumed.
func (r *repository) ClaimBackupCode(ctx context.Context, userID, codeHash string, now time.Time) (bool, error) {
	query, args, err := r.psql.Update("mfa_backup_codes").
		Set("used_at", now).
		Where(squirrel.Eq{"user_id": userID, "code_hash": codeHash, "used_at": nil}).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return false, err
	}
	var id string
	if err := r.db.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *repository) CountUnusedBackupCodes(ctx context.Context, userID string) (int, error) {
	query, args, err := r.psql.Select("count(*)").
		From("mfa_backup_codes").
		Where(squirrel.Eq{"user_id": userID, "used_at": nil}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *repository) DeleteBackupCodes(ctx context.Context, userID string) error {
	query, args, err := r.psql.Delete("mfa_backup_codes").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}
