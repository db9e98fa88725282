package user

import (
	"context"
	"errors"

	"github.com/delordemm1/siteauth/internal/audit"
	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/device"
	"github.com/delordemm1/siteauth/internal/session"
)

type LoginInput struct {
	Email    string
	Password string
	Device   *device.Descriptor
}

// LoginResult carries either a session or the instruction to complete MFA
// with the single-use MFAChallenge.
type LoginResult struct {
	MFARequired  bool
	MFAChallenge string
	UserID       string
	Session      *session.Session
}

// Login handles the business logic for authenticating a user.
func (s *service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	email := normalizeEmail(in.Email)
	reject := func(err error, userID *string) (*LoginResult, error) {
		s.record(ctx, audit.Event{UserID: userID, Email: email, Action: audit.ActionLogin, Outcome: audit.OutcomeRejected, Reason: codeOf(err)})
		return nil, err
	}

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Use a generic error to avoid telling attackers that the email exists.
			return reject(ErrInvalidCredentials, nil)
		}
		s.logger.Error("failed to find account by email", "error", err)
		return nil, ErrInternal.WithCause(err)
	}
	if account.PasswordHash == nil || !checkPasswordHash(in.Password, *account.PasswordHash) {
		return reject(ErrInvalidCredentials, &account.ID)
	}
	if !account.Confirmed() {
		return reject(ErrEmailNotVerified, &account.ID)
	}

	mfaOn, err := s.totpEnabled(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	if mfaOn {
		deviceID := contextx.DeviceID(ctx)
		if in.Device != nil && in.Device.DeviceID != "" {
			deviceID = in.Device.DeviceID
		}
		trusted, err := s.IsDeviceTrusted(ctx, account.ID, deviceID)
		if err != nil {
			return nil, err
		}
		if !trusted {
			challenge, err := s.issueMFAChallenge(account.ID)
			if err != nil {
				s.logger.Error("login: issue mfa challenge failed", "error", err, "user_id", account.ID)
				return nil, ErrInternal.WithCause(err)
			}
			return &LoginResult{MFARequired: true, MFAChallenge: challenge, UserID: account.ID}, nil
		}
	}

	sess, err := s.startSession(ctx, account.ID, session.MethodPassword, false, in.Device)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user logged in successfully", "user_id", account.ID)
	s.record(ctx, audit.Event{UserID: &account.ID, SiteID: strPtr(account.SiteID), Email: email, Action: audit.ActionLogin, Outcome: audit.OutcomeSuccess})
	return &LoginResult{UserID: account.ID, Session: sess}, nil
}

// Logout revokes the session behind token. Unknown tokens are ignored.
func (s *service) Logout(ctx context.Context, token string) error {
	if err := s.sessions.RevokeToken(ctx, token); err != nil {
		s.logger.Error("logout failed", "error", err)
		return ErrInternal.WithCause(err)
	}
	if uid := contextx.UserID(ctx); uid != "" {
		s.record(ctx, audit.Event{UserID: &uid, Action: audit.ActionLogout, Outcome: audit.OutcomeSuccess})
	}
	return nil
}

// Authenticate resolves a session token and extends its sliding window.
func (s *service) Authenticate(ctx context.Context, token string) (*session.Session, error) {
	sess, err := s.sessions.GetAndExtend(ctx, token)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrExpired) {
			return nil, ErrUnauthorized.WithCause(err)
		}
		s.logger.Error("authenticate session failed", "error", err)
		return nil, ErrInternal.WithCause(err)
	}
	return sess, nil
}

func (s *service) totpEnabled(ctx context.Context, userID string) (bool, error) {
	settings, err := s.repo.FindMFASettings(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		s.logger.Error("failed to load mfa settings", "error", err, "user_id", userID)
		return false, ErrInternal.WithCause(err)
	}
	return settings.TOTPEnabled, nil
}
