package middleware

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
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/device"
	"github.com/delordemm1/siteauth/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tokenAuth map[string]*session.Session

func (a tokenAuth) Authenticate(_ context.Context, token string) (*session.Session, error) {
	if s, ok := a[token]; ok {
		return s, nil
	}
	return nil, errors.New("unknown session")
}

type whoAmI struct {
	Body struct {
		UserID    string `json:"userId"`
		SessionID string `json:"sessionId"`
		DeviceID  string `json:"deviceId"`
		Token     string `json:"token"`
	}
}

func TestRequireSession(t *testing.T) {
	_, api := humatest.New(t)
	auth := tokenAuth{"auth:abc": {ID: "s-1", UserID: "u-1", DeviceID: "d-1"}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	huma.Register(api, huma.Operation{
		OperationID: "whoami",
		Method:      http.MethodGet,
		Path:        "/whoami",
		Middlewares: huma.Middlewares{RequireSession(api, auth, "site_session", logger)},
	}, func(ctx context.Context, _ *struct{}) (*whoAmI, error) {
		out := &whoAmI{}
		out.Body.UserID = contextx.UserID(ctx)
		out.Body.SessionID = contextx.SessionID(ctx)
		out.Body.DeviceID = contextx.DeviceID(ctx)
		out.Body.Token = contextx.SessionToken(ctx)
		return out, nil
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"no credentials", "", http.StatusUnauthorized},
		{"unknown token", "Authorization: Bearer auth:nope", http.StatusUnauthorized},
		{"not a bearer", "Authorization: Basic YWRhOnB3", http.StatusUnauthorized},
		{"bearer", "Authorization: Bearer auth:abc", http.StatusOK},
		{"cookie", "Cookie: site_session=auth:abc", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var args []any
			if tt.header != "" {
				args = append(args, tt.header)
			}
			resp := api.Get("/whoami", args...)
			require.Equal(t, tt.status, resp.Code, resp.Body.String())
			if tt.status == http.StatusOK {
				var body map[string]any
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, "u-1", body["userId"])
				assert.Equal(t, "s-1", body["sessionId"])
				assert.Equal(t, "d-1", body["deviceId"])
				assert.Equal(t, "auth:abc", body["token"])
			}
		})
	}
}

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := CORS([]string{"https://app.example.com/", " https://admin.example.com"})(next)

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Origin", "https://APP.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Equal(t, "https://APP.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("other origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Origin", "https://evil.example")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/auth/login", nil)
		req.Header.Set("Origin", "https://admin.example.com")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Device-ID")
	})

	t.Run("wildcard never allows credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://anything.example")
		rec := httptest.NewRecorder()
		CORS([]string{"*"})(next).ServeHTTP(rec, req)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("listed origin beside wildcard keeps credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		CORS([]string{"*", "https://app.example.com"})(next).ServeHTTP(rec, req)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
	})

	t.Run("no origin header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		CORS([]string{"*"})(next).ServeHTTP(rec, req)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})
}

func TestClientInfo(t *testing.T) {
	var got *contextx.Client
	var deviceID string
	h := ClientInfo(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = contextx.ClientFrom(r.Context())
		deviceID = contextx.DeviceID(r.Context())
	}))

	t.Run("mints a device id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "198.51.100.4:5555"
		req.Header.Set("User-Agent", "curl/8.0")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.NotEmpty(t, deviceID)
		assert.Equal(t, "198.51.100.4", got.IP)
		assert.Equal(t, "curl/8.0", got.UserAgent)
		assert.NotEmpty(t, got.Fingerprint)

		cookies := rec.Result().Cookies()
		require.Len(t, cookies, 1)
		assert.Equal(t, device.CookieDeviceID, cookies[0].Name)
		assert.Equal(t, deviceID, cookies[0].Value)
		assert.True(t, cookies[0].HttpOnly)
	})

	t.Run("keeps a known device id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(device.HeaderDeviceID, "dev-42")
		req.Header.Set("CF-Connecting-IP", "203.0.113.9")
		req.Header.Set("CF-IPCountry", "NG")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, "dev-42", deviceID)
		assert.Equal(t, "203.0.113.9", got.IP)
		assert.Equal(t, "NG", got.Country)
		assert.Empty(t, rec.Result().Cookies())
	})
}
