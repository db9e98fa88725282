package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/delordemm1/siteauth/internal/config"
	"github.com/delordemm1/siteauth/internal/httpx"
	"github.com/delordemm1/siteauth/internal/metrics"
	appmw "github.com/delordemm1/siteauth/internal/middleware"
	"github.com/delordemm1/siteauth/internal/modules/user"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// HealthChecker reports whether a backing service is reachable.
type HealthChecker func(ctx context.Context) error

type HealthResponse struct {
	Body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks,omitempty"`
	}
}

// New creates and configures the HTTP router.
func New(cfg *config.Config, log *slog.Logger, userService user.Service, m *metrics.Metrics, checks map[string]HealthChecker) chi.Router {
	httpx.InstallErrorFormat()

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))
	router.Use(appmw.CORS(cfg.Server.CORSOrigins))
	router.Use(m.Middleware)
	router.Use(appmw.ClientInfo)

	apiConfig := huma.DefaultConfig("Site Auth API", "1.0.0")
	apiConfig.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"session": {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "Opaque",
		},
	}
	api := humachi.New(router, apiConfig)

	requireSession := appmw.RequireSession(api, userService, cfg.Session.CookieName, log)
	userHandler := user.NewHandler(userService, log, cfg)
	userHandler.RegisterRoutes(api, requireSession)

	huma.Register(api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health Check",
		Description: "Responds with the server's health status and the state of its dependencies.",
	}, func(ctx context.Context, _ *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{}
		resp.Body.Status = "ok"
		if len(checks) == 0 {
			return resp, nil
		}
		resp.Body.Checks = make(map[string]string, len(checks))
		for name, check := range checks {
			cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			err := check(cctx)
			cancel()
			if err != nil {
				log.Warn("health check failed", "check", name, "error", err)
				resp.Body.Status = "degraded"
				resp.Body.Checks[name] = "down"
				continue
			}
			resp.Body.Checks[name] = "up"
		}
		return resp, nil
	})

	router.Method(http.MethodGet, "/metrics", m.Handler())

	return router
}
