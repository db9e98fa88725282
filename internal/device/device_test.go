package device

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chromeMac = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

func TestFingerprintIsStableAndOrderSensitive(t *testing.T) {
	a := Traits{UserAgent: chromeMac, Language: "en-US", ColorDepth: 24, ScreenWidth: 1920, ScreenHeight: 1080, TimezoneOffset: -60, HardwareConcurrency: 8, Platform: "macOS"}
	b := a

	assert.Equal(t, Fingerprint(a), Fingerprint(b))
	assert.Len(t, Fingerprint(a), 64)

	b.ScreenWidth, b.ScreenHeight = 1080, 1920
	assert.NotEqual(t, Fingerprint(a), Fingerprint(b))

	c := a
	c.TimezoneOffset = 0
	assert.NotEqual(t, Fingerprint(a), Fingerprint(c))
}

func TestParseLabels(t *testing.T) {
	cases := []struct {
		ua      string
		browser string
		os      string
		typ     string
	}{
		{chromeMac, "Chrome", "macOS", "desktop"},
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36 Edg/126.0", "Edge", "Windows", "desktop"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_5 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Mobile/15E148 Safari/604.1", "Safari", "iOS", "mobile"},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0", "Firefox", "Linux", "desktop"},
		{"", "Unknown", "Unknown", "desktop"},
	}
	for _, tc := range cases {
		l := Parse(tc.ua)
		assert.Equal(t, tc.browser, l.Browser, tc.ua)
		assert.Equal(t, tc.os, l.OS, tc.ua)
		assert.Equal(t, tc.typ, l.Type, tc.ua)
	}
	assert.Equal(t, "Chrome on macOS", Parse(chromeMac).Name())
}

func TestFromRequestPrefersHeaderThenCookie(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set(HeaderDeviceID, "dev-header")
	r.AddCookie(&http.Cookie{Name: CookieDeviceID, Value: "dev-cookie"})
	id, err := FromRequest(r).GetOrCreateDeviceID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev-header", id)

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: CookieDeviceID, Value: "dev-cookie"})
	ri := FromRequest(r)
	assert.Equal(t, "dev-cookie", ri.DeviceID())
	assert.False(t, ri.Minted())
}

func TestFromRequestMintsDeviceID(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	ri := FromRequest(r)
	assert.True(t, ri.Minted())
	assert.NotEmpty(t, ri.DeviceID())
}

func TestFromRequestFingerprintUsesHints(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("User-Agent", chromeMac)
	r.Header.Set("Accept-Language", "en-GB,en;q=0.9")
	r.Header.Set(headerScreen, "1440x900x30")
	r.Header.Set(headerTimezone, "-120")
	r.Header.Set(headerCores, "10")
	r.Header.Set("Sec-CH-UA-Platform", `"macOS"`)

	got, err := FromRequest(r).CurrentFingerprint(context.Background())
	require.NoError(t, err)
	want := Fingerprint(Traits{
		UserAgent: chromeMac, Language: "en-GB", ColorDepth: 30, ScreenWidth: 1440, ScreenHeight: 900,
		TimezoneOffset: -120, HardwareConcurrency: 10, Platform: "macOS",
	})
	assert.Equal(t, want, got)
}

func TestClientIPAndGeo(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIP(r))

	r.Header.Set("CF-Connecting-IP", "198.51.100.2")
	assert.Equal(t, "198.51.100.2", ClientIP(r))

	r.Header.Set("CF-IPCountry", "DE")
	r.Header.Set("CF-IPCity", "Berlin")
	country, city := Geo(r)
	assert.Equal(t, "DE", country)
	assert.Equal(t, "Berlin", city)

	r.Header.Set("CF-IPCountry", "XX")
	country, _ = Geo(r)
	assert.Empty(t, country)
}
