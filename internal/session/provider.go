// Package session is the registry of login sessions. Sessions are opaque
// "auth:" tokens; revocation only flips is_active so history stays queryable.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/delordemm1/siteauth/internal/device"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrExpired  = errors.New("session expired")
)

// Auth methods recorded on a session.
const (
	MethodPassword  = "password"
	MethodMFATOTP   = "mfa_totp"
	MethodMFABackup = "mfa_backup"
	MethodMagicLink = "magic_link"
)

// MethodOAuth is the auth method for a provider login, e.g. "oauth:google".
func MethodOAuth(provider string) string { return "oauth:" + provider }

type Session struct {
	ID             string    `db:"id"`
	UserID         string    `db:"user_id"`
	SessionToken   string    `db:"session_token"`
	DeviceID       string    `db:"device_id"`
	DeviceName     string    `db:"device_name"`
	Browser        string    `db:"browser"`
	OS             string    `db:"os"`
	IPAddress      string    `db:"ip_address"`
	Country        string    `db:"country"`
	City           string    `db:"city"`
	AuthMethod     string    `db:"auth_method"`
	IsActive       bool      `db:"is_active"`
	MFAVerified    bool      `db:"mfa_verified"`
	LastActivityAt time.Time `db:"last_activity_at"`
	ExpiresAt      time.Time `db:"expires_at"`
	CreatedAt      time.Time `db:"created_at"`
}

// NewSession describes a successful authentication.
type NewSession struct {
	UserID      string
	DeviceID    string
	DeviceName  string
	UserAgent   string
	IPAddress   string
	Country     string
	City        string
	AuthMethod  string
	MFAVerified bool
}

// Store is the persistence boundary of the registry.
type Store interface {
	Insert(ctx context.Context, s *Session) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	// ListActive returns active rows ordered by last_activity_at, newest first.
	ListActive(ctx context.Context, userID string) ([]Session, error)
	// Deactivate flips is_active for the given ids of one user and returns how many changed.
	Deactivate(ctx context.Context, userID string, ids []string) (int64, error)
}

// Provider manages the session lifecycle.
type Provider interface {
	Create(ctx context.Context, in NewSession) (*Session, error)
	GetAndExtend(ctx context.Context, token string) (*Session, error)
	ListActive(ctx context.Context, userID string) ([]Session, error)
	Revoke(ctx context.Context, userID, sessionID string) error
	RevokeToken(ctx context.Context, token string) error
	RevokeAllOther(ctx context.Context, userID, currentDeviceID string) (int, error)
	RevokeAll(ctx context.Context, userID string) (int, error)
}

// Config controls session TTLs.
type Config struct {
	// SlidingTTL is the idle timeout. Default 7 days.
	SlidingTTL time.Duration
	// AbsoluteTTL is the maximum lifetime from creation. Default 30 days.
	AbsoluteTTL time.Duration
	Now         func() time.Time
	Logger      *slog.Logger
}

type Registry struct {
	store Store
	cfg   Config
}

func NewRegistry(store Store, cfg Config) *Registry {
	if cfg.SlidingTTL == 0 {
		cfg.SlidingTTL = 7 * 24 * time.Hour
	}
	if cfg.AbsoluteTTL == 0 {
		cfg.AbsoluteTTL = 30 * 24 * time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{store: store, cfg: cfg}
}

func (r *Registry) Create(ctx context.Context, in NewSession) (*Session, error) {
	raw, err := randomOpaque(32)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session row id: %w", err)
	}

	labels := device.Parse(in.UserAgent)
	name := in.DeviceName
	if name == "" {
		name = labels.Name()
	}
	method := in.AuthMethod
	if method == "" {
		method = MethodPassword
	}

	now := r.cfg.Now()
	s := &Session{
		ID:             id.String(),
		UserID:         in.UserID,
		SessionToken:   "auth:" + raw,
		DeviceID:       in.DeviceID,
		DeviceName:     name,
		Browser:        labels.Browser,
		OS:             labels.OS,
		IPAddress:      in.IPAddress,
		Country:        in.Country,
		City:           in.City,
		AuthMethod:     method,
		IsActive:       true,
		MFAVerified:    in.MFAVerified,
		LastActivityAt: now,
		ExpiresAt:      now.Add(r.cfg.AbsoluteTTL),
		CreatedAt:      now,
	}
	if err := r.store.Insert(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return s, nil
}

// GetAndExtend validates both TTLs and bumps last_activity_at. Expired sessions
// are deactivated, not deleted.
func (r *Registry) GetAndExtend(ctx context.Context, token string) (*Session, error) {
	if !strings.HasPrefix(token, "auth:") {
		return nil, ErrNotFound
	}
	s, err := r.store.FindByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !s.IsActive {
		return nil, ErrNotFound
	}

	now := r.cfg.Now()
	if !now.Before(s.ExpiresAt) || now.Sub(s.LastActivityAt) > r.cfg.SlidingTTL {
		if _, err := r.store.Deactivate(ctx, s.UserID, []string{s.ID}); err != nil {
			// the row stays active but is still refused on every lookup
			r.cfg.Logger.Warn("failed to deactivate expired session", "error", err, "session_id", s.ID, "user_id", s.UserID)
		}
		return nil, ErrExpired
	}

	if err := r.store.Touch(ctx, s.ID, now); err != nil {
		return nil, err
	}
	s.LastActivityAt = now
	return s, nil
}

func (r *Registry) ListActive(ctx context.Context, userID string) ([]Session, error) {
	return r.store.ListActive(ctx, userID)
}

// Revoke deactivates one session owned by userID.
func (r *Registry) Revoke(ctx context.Context, userID, sessionID string) error {
	n, err := r.store.Deactivate(ctx, userID, []string{sessionID})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// RevokeToken deactivates the session behind a token, e.g. on logout. Idempotent.
func (r *Registry) RevokeToken(ctx context.Context, token string) error {
	s, err := r.store.FindByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	_, err = r.store.Deactivate(ctx, s.UserID, []string{s.ID})
	return err
}

// RevokeAllOther deactivates every active session whose device id differs from
// currentDeviceID. All sessions on the current device survive, whatever their id.
func (r *Registry) RevokeAllOther(ctx context.Context, userID, currentDeviceID string) (int, error) {
	active, err := r.store.ListActive(ctx, userID)
	if err != nil {
		return 0, err
	}
	var ids []string
	for _, s := range active {
		if s.DeviceID != currentDeviceID {
			ids = append(ids, s.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := r.store.Deactivate(ctx, userID, ids)
	return int(n), err
}

func (r *Registry) RevokeAll(ctx context.Context, userID string) (int, error) {
	active, err := r.store.ListActive(ctx, userID)
	if err != nil {
		return 0, err
	}
	ids := make([]string, 0, len(active))
	for _, s := range active {
		ids = append(ids, s.ID)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	n, err := r.store.Deactivate(ctx, userID, ids)
	return int(n), err
}

func randomOpaque(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("rand read: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
