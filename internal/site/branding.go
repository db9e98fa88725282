package site

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/delordemm1/siteauth/internal/config"
	gocache "github.com/patrickmn/go-cache"
)

// Branding is everything an outgoing email needs to look like it came from the site.
type Branding struct {
	SiteName     string
	FromEmail    string
	FromName     string
	SupportEmail string
	LogoURL      string
	PrimaryColor string
	Domain       string
}

// FallbackBranding builds the default brand from configuration.
func FallbackBranding(cfg config.BrandConfig) Branding {
	return Branding{
		SiteName:     cfg.FromName,
		FromEmail:    cfg.FromEmail,
		FromName:     cfg.FromName,
		SupportEmail: cfg.SupportEmail,
		LogoURL:      cfg.LogoURL,
		PrimaryColor: cfg.PrimaryColor,
		Domain:       cfg.Domain,
	}
}

// Resolver looks up sites and their branding through a short-lived cache.
type Resolver struct {
	repo     Repository
	cache    *gocache.Cache
	fallback Branding
	logger   *slog.Logger
}

func NewResolver(repo Repository, fallback Branding, ttl time.Duration, logger *slog.Logger) *Resolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Resolver{
		repo:     repo,
		cache:    gocache.New(ttl, 2*ttl),
		fallback: fallback,
		logger:   logger,
	}
}

// Site returns the site or ErrNotFound. Misses are not cached.
func (r *Resolver) Site(ctx context.Context, id string) (*Site, error) {
	if v, ok := r.cache.Get(id); ok {
		return v.(*Site), nil
	}
	s, err := r.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.SetDefault(id, s)
	return s, nil
}

// Branding never fails: a missing site or a lookup error yields the fallback
// brand, and a site with partial branding inherits the missing fields.
func (r *Resolver) Branding(ctx context.Context, siteID string) Branding {
	if siteID == "" {
		return r.fallback
	}
	s, err := r.Site(ctx, siteID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Warn("branding lookup failed, using fallback", "site_id", siteID, "error", err)
		}
		return r.fallback
	}
	return merge(r.fallback, s)
}

// Invalidate drops a cached site, e.g. after its branding changed.
func (r *Resolver) Invalidate(siteID string) {
	r.cache.Delete(siteID)
}

func merge(fb Branding, s *Site) Branding {
	b := fb
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&b.SiteName, s.Name)
	pick(&b.FromEmail, s.FromEmail)
	pick(&b.FromName, s.FromName)
	if s.FromName == "" && s.Name != "" {
		b.FromName = s.Name
	}
	pick(&b.SupportEmail, s.SupportEmail)
	pick(&b.LogoURL, s.LogoURL)
	pick(&b.PrimaryColor, s.PrimaryColor)
	pick(&b.Domain, s.Domain)
	return b
}
