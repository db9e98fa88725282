package user

import (
	"context"
	"log/slog"
	"time"

	"github.com/delordemm1/siteauth/internal/audit"
	"github.com/delordemm1/siteauth/internal/config"
	"github.com/delordemm1/siteauth/internal/device"
	"github.com/delordemm1/siteauth/internal/metrics"
	"github.com/delordemm1/siteauth/internal/notification"
	"github.com/delordemm1/siteauth/internal/rate"
	"github.com/delordemm1/siteauth/internal/secretbox"
	"github.com/delordemm1/siteauth/internal/session"
	"github.com/delordemm1/siteauth/internal/site"
)

// Service defines the interface for the user module's business logic.
// It orchestrates the flow of data between the handlers and the repository,
// and contains the core business rules.
type Service interface {
	// Signup
	SignupWithOTP(ctx context.Context, in SignupInput) (*SignupResult, error)
	VerifySignupOTP(ctx context.Context, in VerifyCodeInput) error
	ResendSignupOTP(ctx context.Context, email, siteID string) error

	// Login
	Login(ctx context.Context, in LoginInput) (*LoginResult, error)
	Logout(ctx context.Context, token string) error
	Authenticate(ctx context.Context, token string) (*session.Session, error)

	// Password
	ForgotPassword(ctx context.Context, email, siteID string) error
	ResetPassword(ctx context.Context, in ResetPasswordInput) error

	// MFA
	VerifyMFALogin(ctx context.Context, in MFALoginInput) (*MFALoginResult, error)
	SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error)
	ActivateTOTP(ctx context.Context, userID, code string) ([]string, error)
	DisableTOTP(ctx context.Context, userID, code string) error
	RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error)
	MFAStatus(ctx context.Context, userID string) (*MFAStatus, error)

	// Trusted devices
	ListDevices(ctx context.Context, userID string) ([]TrustedDevice, error)
	TrustDevice(ctx context.Context, userID string, d device.Descriptor) ([]TrustedDevice, error)
	RevokeDevice(ctx context.Context, userID, deviceID string) ([]TrustedDevice, error)
	UpdateDeviceTrust(ctx context.Context, userID, deviceID string, patch TrustedDevicePatch) ([]TrustedDevice, error)
	IsDeviceTrusted(ctx context.Context, userID, deviceID string) (bool, error)

	// Sessions
	ListSessions(ctx context.Context, userID string) ([]session.Session, error)
	RevokeSession(ctx context.Context, userID, sessionID string) error
	RevokeOtherSessions(ctx context.Context, userID, currentDeviceID string) (int, error)

	// OAuth and magic links
	BeginOAuth(ctx context.Context, provider OAuthProvider, siteID, redirectTo string) (string, error)
	HandleOAuthCallback(ctx context.Context, in OAuthCallbackInput) string
	ConsumeMagicLink(ctx context.Context, token string) (*MagicLinkResult, error)

	// Profile
	GetMe(ctx context.Context, userID string) (*Me, error)
	UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*Me, error)

	// Maintenance
	SweepStaleSignups(ctx context.Context) (int, error)
	PurgeExpiredOAuthStates(ctx context.Context) (int, error)
}

// SiteDirectory resolves tenants and their email branding.
type SiteDirectory interface {
	Site(ctx context.Context, id string) (*site.Site, error)
	Branding(ctx context.Context, siteID string) site.Branding
}

// Auditor receives security events. Recording never blocks the request.
type Auditor interface {
	Record(e audit.Event)
}

// service implements the Service interface.
type service struct {
	repo     Repository
	sites    SiteDirectory
	notifier notification.Service
	sessions session.Provider
	limiter  rate.Limiter
	locker   rate.Locker
	audit    Auditor
	metrics  *metrics.Metrics
	box      *secretbox.Box
	oauth    map[OAuthProvider]OAuthConnector
	logger   *slog.Logger
	config   *config.Config
	now      func() time.Time
}

// Config holds the dependencies for the user service.
type Config struct {
	Repo     Repository
	Sites    SiteDirectory
	Notifier notification.Service
	Sessions session.Provider
	Limiter  rate.Limiter
	Locker   rate.Locker
	Audit    Auditor
	Metrics  *metrics.Metrics
	Box      *secretbox.Box
	// OAuth overrides the connectors built from Config.Google/GitHub/Microsoft.
	OAuth  map[OAuthProvider]OAuthConnector
	Logger *slog.Logger
	Config *config.Config
	Now    func() time.Time
}

// NewService creates a new user service with the given dependencies.
func NewService(cfg *Config) Service {
	s := &service{
		repo:     cfg.Repo,
		sites:    cfg.Sites,
		notifier: cfg.Notifier,
		sessions: cfg.Sessions,
		limiter:  cfg.Limiter,
		locker:   cfg.Locker,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		box:      cfg.Box,
		oauth:    cfg.OAuth,
		logger:   cfg.Logger,
		config:   cfg.Config,
		now:      cfg.Now,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.audit == nil {
		s.audit = nopAuditor{}
	}
	if s.oauth == nil {
		s.oauth = connectorsFromConfig(cfg.Config)
	}
	return s
}

type nopAuditor struct{}

func (nopAuditor) Record(audit.Event) {}
