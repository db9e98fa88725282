package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/delordemm1/siteauth/internal/config"
	"github.com/delordemm1/siteauth/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, checks map[string]HealthChecker) http.Handler {
	t.Helper()
	prev := huma.NewError
	t.Cleanup(func() { huma.NewError = prev })

	cfg := &config.Config{}
	cfg.Server.CORSOrigins = []string{"https://app.example.com"}
	cfg.Session.CookieName = "site_session"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, logger, nil, metrics.New(nil), checks)
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		h := newRouter(t, map[string]HealthChecker{
			"postgres": func(context.Context) error { return nil },
		})
		rec := serve(h, http.MethodGet, "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "ok", body["status"])
		assert.Equal(t, map[string]any{"postgres": "up"}, body["checks"])
	})

	t.Run("degraded", func(t *testing.T) {
		h := newRouter(t, map[string]HealthChecker{
			"postgres": func(context.Context) error { return nil },
			"redis":    func(context.Context) error { return errors.New("connection refused") },
		})
		rec := serve(h, http.MethodGet, "/health")
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "degraded", body["status"])
		assert.Equal(t, map[string]any{"postgres": "up", "redis": "down"}, body["checks"])
	})
}

func TestRouting(t *testing.T) {
	h := newRouter(t, nil)

	rec := serve(h, http.MethodOptions, "/signup-with-otp")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = serve(h, http.MethodGet, "/signup-with-otp")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = serve(h, http.MethodGet, "/me")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	serve(h, http.MethodGet, "/health")
	rec = serve(h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="GET",path="/health",status="200"} 1`)
}
