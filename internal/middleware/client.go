package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/device"
)

const deviceCookieMaxAge = 400 * 24 * time.Hour

// ClientInfo resolves the caller's device id, fingerprint, IP and location
// once per request. A device id minted here is handed back as a cookie.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ri := device.FromRequest(r)
		if ri.Minted() {
			http.SetCookie(w, &http.Cookie{
				Name:     device.CookieDeviceID,
				Value:    ri.DeviceID(),
				Path:     "/",
				MaxAge:   int(deviceCookieMaxAge.Seconds()),
				HttpOnly: true,
				Secure:   r.TLS != nil,
				SameSite: http.SameSiteLaxMode,
			})
		}

		fp, _ := ri.CurrentFingerprint(r.Context())
		country, city := device.Geo(r)
		client := &contextx.Client{
			IP:          device.ClientIP(r),
			UserAgent:   r.UserAgent(),
			Country:     country,
			City:        city,
			Fingerprint: fp,
		}

		ctx := context.WithValue(r.Context(), contextx.DeviceIDKey, ri.DeviceID())
		ctx = context.WithValue(ctx, contextx.ClientKey, client)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
