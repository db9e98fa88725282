package session

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/delordemm1/siteauth/internal/database"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

var sessionColumns = []string{
	"id", "user_id", "session_token",
	"COALESCE(device_id, '') AS device_id",
	"COALESCE(device_name, '') AS device_name",
	"COALESCE(browser, '') AS browser",
	"COALESCE(os, '') AS os",
	"COALESCE(ip_address, '') AS ip_address",
	"COALESCE(country, '') AS country",
	"COALESCE(city, '') AS city",
	"auth_method", "is_active", "mfa_verified", "last_activity_at", "expires_at", "created_at",
}

type postgresStore struct {
	db   database.DBTX
	psql squirrel.StatementBuilderType
}

// NewPostgresStore returns a Store backed by the user_sessions table.
func NewPostgresStore(db database.DBTX) Store {
	return &postgresStore{db: db, psql: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)}
}

func (p *postgresStore) Insert(ctx context.Context, s *Session) error {
	sql, args, err := p.psql.Insert("user_sessions").
		Columns("id", "user_id", "session_token", "device_id", "device_name", "browser", "os", "ip_address",
			"country", "city", "auth_method", "is_active", "mfa_verified", "last_activity_at", "expires_at", "created_at").
		Values(s.ID, s.UserID, s.SessionToken, nullable(s.DeviceID), nullable(s.DeviceName), nullable(s.Browser),
			nullable(s.OS), nullable(s.IPAddress), nullable(s.Country), nullable(s.City), s.AuthMethod, s.IsActive,
			s.MFAVerified, s.LastActivityAt, s.ExpiresAt, s.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, sql, args...)
	return err
}

func (p *postgresStore) FindByToken(ctx context.Context, token string) (*Session, error) {
	sql, args, err := p.psql.Select(sessionColumns...).
		From("user_sessions").
		Where(squirrel.Eq{"session_token": token}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}
	var s Session
	if err := pgxscan.Get(ctx, p.db, &s, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (p *postgresStore) Touch(ctx context.Context, id string, at time.Time) error {
	sql, args, err := p.psql.Update("user_sessions").
		Set("last_activity_at", at).
		Where(squirrel.Eq{"id": id, "is_active": true}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = p.db.Exec(ctx, sql, args...)
	return err
}

func (p *postgresStore) ListActive(ctx context.Context, userID string) ([]Session, error) {
	sql, args, err := p.psql.Select(sessionColumns...).
		From("user_sessions").
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		OrderBy("last_activity_at DESC").
		ToSql()
	if err != nil {
		return nil, err
	}
	var out []Session
	if err := pgxscan.Select(ctx, p.db, &out, sql, args...); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *postgresStore) Deactivate(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	sql, args, err := p.psql.Update("user_sessions").
		Set("is_active", false).
		Where(squirrel.Eq{"user_id": userID, "id": ids, "is_active": true}).
		ToSql()
	if err != nil {
		return 0, err
	}
	tag, err := p.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
