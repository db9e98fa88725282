package user

import (
	"context"
	"errors"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

var deviceColumns = []string{
	"user_id", "device_id", "device_name", "device_type", "fingerprint", "is_trusted",
	"trusted_at", "trust_expires_at", "last_ip", "last_seen_at", "created_at",
}

// UpsertTrustedDevice creates the device row or refreshes its trust window.
func (r *repository) UpsertTrustedDevice(ctx context.Context, d *TrustedDevice) error {
	query, args, err := r.psql.Insert("trusted_devices").
		Columns(deviceColumns...).
		Values(d.UserID, d.DeviceID, d.DeviceName, d.DeviceType, d.Fingerprint, d.IsTrusted,
			d.TrustedAt, d.TrustExpiresAt, d.LastIP, d.LastSeenAt, d.CreatedAt).
		Suffix(`ON CONFLICT (user_id, device_id) DO UPDATE SET
			device_name = EXCLUDED.device_name,
			device_type = EXCLUDED.device_type,
			fingerprint = EXCLUDED.fingerprint,
			is_trusted = EXCLUDED.is_trusted,
			trusted_at = EXCLUDED.trusted_at,
			trust_expires_at = EXCLUDED.trust_expires_at,
			last_ip = EXCLUDED.last_ip,
			last_seen_at = EXCLUDED.last_seen_at`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func (r *repository) FindTrustedDevice(ctx context.Context, userID, deviceID string) (*TrustedDevice, error) {
	query, args, err := r.psql.Select(deviceColumns...).
		From("trusted_devices").
		Where(squirrel.Eq{"user_id": userID, "device_id": deviceID}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var d TrustedDevice
	if err := pgxscan.Get(ctx, r.db, &d, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound.WithCause(err)
		}
		return nil, err
	}
	return &d, nil
}

func (r *repository) ListTrustedDevices(ctx context.Context, userID string) ([]TrustedDevice, error) {
	query, args, err := r.psql.Select(deviceColumns...).
		From("trusted_devices").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("last_seen_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	devices := []TrustedDevice{}
	if err := pgxscan.Select(ctx, r.db, &devices, query, args...); err != nil {
		return nil, err
	}
	return devices, nil
}

func (r *repository) UpdateTrustedDevice(ctx context.Context, userID, deviceID string, patch TrustedDevicePatch) (int64, error) {
	q := r.psql.Update("trusted_devices").
		Where(squirrel.Eq{"user_id": userID, "device_id": deviceID})
	if patch.DeviceName == nil && patch.IsTrusted == nil {
		return r.countDevice(ctx, userID, deviceID)
	}
	if patch.DeviceName != nil {
		q = q.Set("device_name", *patch.DeviceName)
	}
	if patch.IsTrusted != nil {
		q = q.Set("is_trusted", *patch.IsTrusted)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repository) countDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	query, args, err := r.psql.Select("count(*)").
		From("trusted_devices").
		Where(squirrel.Eq{"user_id": userID, "device_id": deviceID}).
		ToSql()
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.db.QueryRow(ctx, query, args...).Scan(&n)
	return n, err
}

func (r *repository) DeleteTrustedDevice(ctx context.Context, userID, deviceID string) (int64, error) {
	query, args, err := r.psql.Delete("trusted_devices").
		Where(squirrel.Eq{"user_id": userID, "device_id": deviceID}).
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

func (r *repository) DeleteTrustedDevices(ctx context.Context, userID string) error {
	query, args, err := r.psql.Delete("trusted_devices").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}
