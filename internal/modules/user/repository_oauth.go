package user

import (
	"context"
	"errors"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

// InsertOAuthState inserts a new OAuth state record into the database.
func (r *repository) InsertOAuthState(ctx context.Context, state *OAuthState) error {
	if state.CreatedAt.IsZero() {
		state.CreatedAt = time.Now()
	}
	query, args, err := r.psql.Insert("oauth_states").
		Columns("state", "provider", "site_id", "verifier", "redirect_to", "expires_at", "created_at").
		Values(state.State, string(state.Provider), state.SiteID, state.Verifier, state.RedirectTo, state.ExpiresAt, state.CreatedAt).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

// ConsumeOAuthState deletes the state and returns it, so a state can be used once.
func (r *repository) ConsumeOAuthState(ctx context.Context, state string) (*OAuthState, error) {
	query, args, err := r.psql.Delete("oauth_states").
		Where(squirrel.Eq{"state": state}).
		Suffix("RETURNING state, provider, site_id, verifier, redirect_to, expires_at, created_at").
		ToSql()
	if err != nil {
		return nil, err
	}
	var s OAuthState
	if err := pgxscan.Get(ctx, r.db, &s, query, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound.WithCause(err)
		}
		return nil, err
	}
	return &s, nil
}

func (r *repository) DeleteExpiredOAuthStates(ctx context.Context, now time.Time) (int64, error) {
	query, args, err := r.psql.Delete("oauth_states").
		Where(squirrel.Lt{"expires_at": now}).
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
