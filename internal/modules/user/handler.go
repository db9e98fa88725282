package user

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/delordemm1/siteauth/internal/config"
	"github.com/delordemm1/siteauth/internal/session"
)

// Handler holds the dependencies for the user module's HTTP handlers.
type Handler struct {
	service Service
	logger  *slog.Logger
	config  *config.Config
}

// NewHandler creates a new handler for the user module.
func NewHandler(service Service, logger *slog.Logger, cfg *config.Config) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
		config:  cfg,
	}
}

var sessionSecurity = []map[string][]string{{"session": {}}}

// RegisterRoutes sets up the routing for the user module. Routes that need a
// signed-in user run behind requireSession.
func (h *Handler) RegisterRoutes(api huma.API, requireSession func(huma.Context, func(huma.Context))) {
	authed := huma.Middlewares{requireSession}

	// --- Signup ---
	huma.Register(api, huma.Operation{
		OperationID: "signup-with-otp",
		Method:      http.MethodPost,
		Path:        "/signup-with-otp",
		Summary:     "Create an account and email a confirmation code",
		Tags:        []string{"Signup"},
	}, h.SignupWithOTPHandler)

	huma.Register(api, huma.Operation{
		OperationID: "verify-signup-otp",
		Method:      http.MethodPost,
		Path:        "/verify-signup-otp",
		Summary:     "Confirm an account with the emailed code",
		Tags:        []string{"Signup"},
	}, h.VerifySignupOTPHandler)

	huma.Register(api, huma.Operation{
		OperationID: "resend-signup-otp",
		Method:      http.MethodPost,
		Path:        "/resend-signup-otp",
		Summary:     "Send a new confirmation code",
		Tags:        []string{"Signup"},
	}, h.ResendSignupOTPHandler)

	// --- Authentication ---
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Log in with email and password",
		Tags:        []string{"Auth"},
	}, h.LoginHandler)

	huma.Register(api, huma.Operation{
		OperationID: "logout",
		Method:      http.MethodPost,
		Path:        "/auth/logout",
		Summary:     "Revoke the current session",
		Tags:        []string{"Auth"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.LogoutHandler)

	huma.Register(api, huma.Operation{
		OperationID: "verify-mfa-login",
		Method:      http.MethodPost,
		Path:        "/verify-mfa-login",
		Summary:     "Complete a login with a TOTP or backup code",
		Tags:        []string{"Auth"},
	}, h.VerifyMFALoginHandler)

	// --- Password Management Routes ---
	huma.Register(api, huma.Operation{
		OperationID: "forgot-password",
		Method:      http.MethodPost,
		Path:        "/auth/password/forgot",
		Summary:     "Email a password reset code",
		Tags:        []string{"Password"},
	}, h.ForgotPasswordHandler)

	huma.Register(api, huma.Operation{
		OperationID: "reset-password",
		Method:      http.MethodPost,
		Path:        "/auth/password/reset",
		Summary:     "Reset the password with an emailed code",
		Tags:        []string{"Password"},
	}, h.ResetPasswordHandler)

	// --- OAuth Routes ---
	huma.Register(api, huma.Operation{
		OperationID:   "oauth-begin",
		Method:        http.MethodGet,
		Path:          "/auth/oauth/{provider}",
		Summary:       "Redirect to the OAuth provider",
		Tags:          []string{"OAuth"},
		DefaultStatus: http.StatusFound,
	}, h.OAuthBeginHandler)

	huma.Register(api, huma.Operation{
		OperationID:   "oauth-callback",
		Method:        http.MethodGet,
		Path:          "/auth/oauth/{provider}/callback",
		Summary:       "Handle the OAuth provider callback",
		Tags:          []string{"OAuth"},
		DefaultStatus: http.StatusFound,
	}, h.OAuthCallbackHandler)

	huma.Register(api, huma.Operation{
		OperationID:   "magic-link",
		Method:        http.MethodGet,
		Path:          "/auth/magic-link",
		Summary:       "Exchange a one-time link for a session",
		Tags:          []string{"OAuth"},
		DefaultStatus: http.StatusFound,
	}, h.MagicLinkHandler)

	// --- Profile Routes ---
	huma.Register(api, huma.Operation{
		OperationID: "get-me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Get the current user",
		Tags:        []string{"Profile"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.GetMeHandler)

	huma.Register(api, huma.Operation{
		OperationID: "update-me",
		Method:      http.MethodPatch,
		Path:        "/me",
		Summary:     "Update the current user's profile",
		Tags:        []string{"Profile"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.UpdateMeHandler)

	// --- MFA enrollment ---
	huma.Register(api, huma.Operation{
		OperationID: "mfa-status",
		Method:      http.MethodGet,
		Path:        "/mfa/status",
		Summary:     "MFA status and remaining backup codes",
		Tags:        []string{"MFA"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.MFAStatusHandler)

	huma.Register(api, huma.Operation{
		OperationID: "mfa-totp-setup",
		Method:      http.MethodPost,
		Path:        "/mfa/totp/setup",
		Summary:     "Start TOTP enrollment",
		Tags:        []string{"MFA"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.SetupTOTPHandler)

	huma.Register(api, huma.Operation{
		OperationID: "mfa-totp-activate",
		Method:      http.MethodPost,
		Path:        "/mfa/totp/activate",
		Summary:     "Enable TOTP and receive backup codes",
		Tags:        []string{"MFA"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.ActivateTOTPHandler)

	huma.Register(api, huma.Operation{
		OperationID: "mfa-totp-disable",
		Method:      http.MethodPost,
		Path:        "/mfa/totp/disable",
		Summary:     "Disable TOTP",
		Tags:        []string{"MFA"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.DisableTOTPHandler)

	huma.Register(api, huma.Operation{
		OperationID: "mfa-backup-codes-regenerate",
		Method:      http.MethodPost,
		Path:        "/mfa/backup-codes/regenerate",
		Summary:     "Replace all backup codes",
		Tags:        []string{"MFA"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.RegenerateBackupCodesHandler)

	// --- Trusted devices ---
	huma.Register(api, huma.Operation{
		OperationID: "list-devices",
		Method:      http.MethodGet,
		Path:        "/devices",
		Summary:     "List trusted devices",
		Tags:        []string{"Devices"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.ListDevicesHandler)

	huma.Register(api, huma.Operation{
		OperationID: "trust-device",
		Method:      http.MethodPost,
		Path:        "/devices",
		Summary:     "Trust a device",
		Tags:        []string{"Devices"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.TrustDeviceHandler)

	huma.Register(api, huma.Operation{
		OperationID: "device-trust-status",
		Method:      http.MethodGet,
		Path:        "/devices/{deviceId}/trust",
		Summary:     "Check whether a device is trusted",
		Tags:        []string{"Devices"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.DeviceTrustStatusHandler)

	huma.Register(api, huma.Operation{
		OperationID: "update-device",
		Method:      http.MethodPatch,
		Path:        "/devices/{deviceId}",
		Summary:     "Rename a device or change its trust",
		Tags:        []string{"Devices"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.UpdateDeviceHandler)

	huma.Register(api, huma.Operation{
		OperationID: "revoke-device",
		Method:      http.MethodDelete,
		Path:        "/devices/{deviceId}",
		Summary:     "Forget a trusted device",
		Tags:        []string{"Devices"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.RevokeDeviceHandler)

	// --- Sessions ---
	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List active sessions",
		Tags:        []string{"Sessions"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.ListSessionsHandler)

	huma.Register(api, huma.Operation{
		OperationID: "revoke-session",
		Method:      http.MethodDelete,
		Path:        "/sessions/{sessionId}",
		Summary:     "Revoke one session",
		Tags:        []string{"Sessions"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.RevokeSessionHandler)

	huma.Register(api, huma.Operation{
		OperationID: "revoke-other-sessions",
		Method:      http.MethodPost,
		Path:        "/sessions/revoke-others",
		Summary:     "Revoke every session on other devices",
		Tags:        []string{"Sessions"},
		Security:    sessionSecurity,
		Middlewares: authed,
	}, h.RevokeOtherSessionsHandler)
}

// sessionCookie carries the session token for browser clients.
func (h *Handler) sessionCookie(s *session.Session) http.Cookie {
	return http.Cookie{
		Name:     h.config.Session.CookieName,
		Value:    s.SessionToken,
		Path:     "/",
		Expires:  s.ExpiresAt,
		HttpOnly: true,
		Secure:   h.config.Server.Env == "production",
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) clearSessionCookie() http.Cookie {
	return http.Cookie{
		Name:     h.config.Session.CookieName,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.Server.Env == "production",
		SameSite: http.SameSiteLaxMode,
	}
}

// MessageResponse is the body of endpoints that only acknowledge.
type MessageResponse struct {
	Body struct {
		Success bool   `json:"success"`
		Message string `json:"message,omitempty"`
	}
}

func message(msg string) *MessageResponse {
	resp := &MessageResponse{}
	resp.Body.Success = true
	resp.Body.Message = msg
	return resp
}
