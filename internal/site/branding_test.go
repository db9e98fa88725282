package site

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	sites map[string]*Site
	err   error
	calls int
}

func (f *fakeRepo) FindByID(_ context.Context, id string) (*Site, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sites[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

var fallback = Branding{
	SiteName: "SiteBuilder", FromEmail: "noreply@sitebuilder.test", FromName: "SiteBuilder",
	SupportEmail: "support@sitebuilder.test", PrimaryColor: "#f97316",
}

func newResolver(repo Repository) *Resolver {
	return NewResolver(repo, fallback, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestBrandingFallsBackWhenSiteMissing(t *testing.T) {
	r := newResolver(&fakeRepo{sites: map[string]*Site{}})
	assert.Equal(t, fallback, r.Branding(context.Background(), "missing"))
}

func TestBrandingFallsBackOnError(t *testing.T) {
	r := newResolver(&fakeRepo{err: errors.New("connection refused")})
	assert.Equal(t, fallback, r.Branding(context.Background(), "s1"))
}

func TestBrandingMergesPartialSite(t *testing.T) {
	repo := &fakeRepo{sites: map[string]*Site{
		"s1": {ID: "s1", Name: "Acme Builders", FromEmail: "hello@acme.test", PrimaryColor: "#0044ff"},
	}}
	b := newResolver(repo).Branding(context.Background(), "s1")

	assert.Equal(t, "Acme Builders", b.SiteName)
	assert.Equal(t, "Acme Builders", b.FromName)
	assert.Equal(t, "hello@acme.test", b.FromEmail)
	assert.Equal(t, "#0044ff", b.PrimaryColor)
	assert.Equal(t, fallback.SupportEmail, b.SupportEmail)
}

func TestSiteIsCached(t *testing.T) {
	repo := &fakeRepo{sites: map[string]*Site{"s1": {ID: "s1", Name: "Acme"}}}
	r := newResolver(repo)

	for i := 0; i < 3; i++ {
		_, err := r.Site(context.Background(), "s1")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, repo.calls)

	r.Invalidate("s1")
	_, err := r.Site(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestAllowsSSODomain(t *testing.T) {
	s := &Site{}
	assert.True(t, s.AllowsSSODomain("a@anything.test"))

	s.AllowedSSODomains = []string{"acme.test", "@partner.test"}
	assert.True(t, s.AllowsSSODomain("Bob@ACME.test"))
	assert.True(t, s.AllowsSSODomain("x@partner.test"))
	assert.False(t, s.AllowsSSODomain("x@evil.test"))
	assert.False(t, s.AllowsSSODomain("not-an-email"))
}
