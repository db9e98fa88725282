package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/session"
)

// SessionAuthenticator resolves an opaque session token.
type SessionAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*session.Session, error)
}

// RequireSession is a Huma middleware that accepts a session token from the
// Authorization header ("Bearer auth:...") or the session cookie, and injects
// the user, session and device into the request context.
func RequireSession(api huma.API, auth SessionAuthenticator, cookieName string, logger *slog.Logger) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		token := tokenFrom(ctx, cookieName)
		if token == "" {
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}

		sess, err := auth.Authenticate(ctx.Context(), token)
		if err != nil {
			logger.Warn("session rejected", "error", err)
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "Invalid or expired session")
			return
		}

		ctx = huma.WithValue(ctx, contextx.UserIDKey, sess.UserID)
		ctx = huma.WithValue(ctx, contextx.SessionIDKey, sess.ID)
		ctx = huma.WithValue(ctx, contextx.SessionTokenKey, token)
		if sess.DeviceID != "" {
			// the device that opened the session is the current device
			ctx = huma.WithValue(ctx, contextx.DeviceIDKey, sess.DeviceID)
		}
		next(ctx)
	}
}

func tokenFrom(ctx huma.Context, cookieName string) string {
	if h := ctx.Header("Authorization"); h != "" {
		if t, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(t)
		}
	}
	if c, err := huma.ReadCookie(ctx, cookieName); err == nil {
		return c.Value
	}
	return ""
}
