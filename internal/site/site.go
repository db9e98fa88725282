// Package site holds tenant records and resolves the branding used in emails.
package site

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/delordemm1/siteauth/internal/database"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
)

var ErrNotFound = errors.New("site not found")

// Site is a tenant. Branding columns are optional; empty means "use the fallback".
type Site struct {
	ID                string    `db:"id"`
	Name              string    `db:"name"`
	Domain            string    `db:"domain"`
	FromEmail         string    `db:"from_email"`
	FromName          string    `db:"from_name"`
	SupportEmail      string    `db:"support_email"`
	LogoURL           string    `db:"logo_url"`
	PrimaryColor      string    `db:"primary_color"`
	AllowedSSODomains []string  `db:"allowed_sso_domains"`
	CreatedAt         time.Time `db:"created_at"`
}

// AllowsSSODomain reports whether an SSO email domain may sign in to this site.
// An empty allow-list admits every domain.
func (s *Site) AllowsSSODomain(email string) bool {
	if len(s.AllowedSSODomains) == 0 {
		return true
	}
	_, domain, ok := strings.Cut(strings.ToLower(email), "@")
	if !ok {
		return false
	}
	for _, d := range s.AllowedSSODomains {
		if strings.EqualFold(strings.TrimPrefix(d, "@"), domain) {
			return true
		}
	}
	return false
}

type Repository interface {
	FindByID(ctx context.Context, id string) (*Site, error)
}

type repository struct {
	db   database.DBTX
	psql squirrel.StatementBuilderType
}

func NewRepository(db database.DBTX) Repository {
	return &repository{
		db:   db,
		psql: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *repository) FindByID(ctx context.Context, id string) (*Site, error) {
	sql, args, err := r.psql.Select(
		"id", "name",
		"COALESCE(domain, '') AS domain",
		"COALESCE(from_email, '') AS from_email",
		"COALESCE(from_name, '') AS from_name",
		"COALESCE(support_email, '') AS support_email",
		"COALESCE(logo_url, '') AS logo_url",
		"COALESCE(primary_color, '') AS primary_color",
		"COALESCE(allowed_sso_domains, '{}') AS allowed_sso_domains",
		"created_at",
	).From("sites").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, err
	}
	var s Site
	if err := pgxscan.Get(ctx, r.db, &s, sql, args...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &s, nil
}
