package device

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	HeaderDeviceID = "X-Device-ID"
	CookieDeviceID = "device_id"

	// Optional client hints for the fingerprint, sent by the web client.
	headerScreen   = "X-Device-Screen"   // e.g. 1920x1080x24
	headerTimezone = "X-Device-Timezone" // minutes offset from UTC
	headerCores    = "X-Device-Cores"
)

// RequestIdentity reads the device identity from an HTTP request.
type RequestIdentity struct {
	deviceID string
	minted   bool
	traits   Traits
}

// FromRequest reads the device id from the X-Device-ID header, then the
// device_id cookie; when neither is present a new id is minted.
func FromRequest(r *http.Request) *RequestIdentity {
	id := strings.TrimSpace(r.Header.Get(HeaderDeviceID))
	if id == "" {
		if c, err := r.Cookie(CookieDeviceID); err == nil {
			id = strings.TrimSpace(c.Value)
		}
	}
	ri := &RequestIdentity{deviceID: id, traits: traitsFrom(r)}
	if ri.deviceID == "" {
		ri.deviceID = uuid.NewString()
		ri.minted = true
	}
	return ri
}

func (ri *RequestIdentity) GetOrCreateDeviceID(context.Context) (string, error) {
	return ri.deviceID, nil
}

func (ri *RequestIdentity) CurrentFingerprint(context.Context) (string, error) {
	return Fingerprint(ri.traits), nil
}

// Minted reports whether the id was generated for this request and should be
// handed back to the client.
func (ri *RequestIdentity) Minted() bool { return ri.minted }

// DeviceID returns the resolved id.
func (ri *RequestIdentity) DeviceID() string { return ri.deviceID }

func traitsFrom(r *http.Request) Traits {
	t := Traits{
		UserAgent: r.UserAgent(),
		Language:  firstLanguage(r.Header.Get("Accept-Language")),
		Platform:  strings.Trim(r.Header.Get("Sec-CH-UA-Platform"), `"`),
	}
	if s := r.Header.Get(headerScreen); s != "" {
		dims := strings.Split(s, "x")
		if len(dims) >= 2 {
			t.ScreenWidth, _ = strconv.Atoi(dims[0])
			t.ScreenHeight, _ = strconv.Atoi(dims[1])
		}
		if len(dims) == 3 {
			t.ColorDepth, _ = strconv.Atoi(dims[2])
		}
	}
	if tz := r.Header.Get(headerTimezone); tz != "" {
		t.TimezoneOffset, _ = strconv.Atoi(tz)
	}
	if c := r.Header.Get(headerCores); c != "" {
		t.HardwareConcurrency, _ = strconv.Atoi(c)
	}
	return t
}

func firstLanguage(h string) string {
	if h == "" {
		return ""
	}
	lang, _, _ := strings.Cut(h, ",")
	lang, _, _ = strings.Cut(lang, ";")
	return strings.TrimSpace(lang)
}

// ClientIP prefers Cloudflare's CF-Connecting-IP, then the first X-Forwarded-For
// hop, then RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Geo reads country and city from edge proxy headers. Both are best effort.
func Geo(r *http.Request) (country, city string) {
	country = r.Header.Get("CF-IPCountry")
	if country == "" {
		country = r.Header.Get("X-Country-Code")
	}
	if country == "XX" || country == "T1" {
		country = ""
	}
	city = r.Header.Get("CF-IPCity")
	if city == "" {
		city = r.Header.Get("X-City")
	}
	return country, city
}
