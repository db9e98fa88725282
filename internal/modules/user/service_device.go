package user

import (
	"context"
	"errors"

	"github.com/delordemm1/siteauth/internal/audit"
	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/device"
	"github.com/delordemm1/siteauth/internal/session"
	"github.com/google/uuid"
)

func (s *service) ListDevices(ctx context.Context, userID string) ([]TrustedDevice, error) {
	devices, err := s.repo.ListTrustedDevices(ctx, userID)
	if err != nil {
		s.logger.Error("list trusted devices failed", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}
	return devices, nil
}

// TrustDevice marks the device trusted for the configured window, creating
// the row on first use.
func (s *service) TrustDevice(ctx context.Context, userID string, d device.Descriptor) ([]TrustedDevice, error) {
	c := contextx.ClientFrom(ctx)
	ua := d.UserAgent
	if ua == "" {
		ua = c.UserAgent
	}
	labels := device.Parse(ua)
	name := d.DeviceName
	if name == "" {
		name = labels.Name()
	}
	kind := d.DeviceType
	if kind == "" {
		kind = labels.Type
	}

	now := s.now()
	td := &TrustedDevice{
		UserID:         userID,
		DeviceID:       d.DeviceID,
		DeviceName:     name,
		DeviceType:     kind,
		Fingerprint:    c.Fingerprint,
		IsTrusted:      true,
		TrustedAt:      now,
		TrustExpiresAt: now.Add(s.trustTTL()),
		LastIP:         c.IP,
		LastSeenAt:     now,
		CreatedAt:      now,
	}
	if err := s.repo.UpsertTrustedDevice(ctx, td); err != nil {
		s.logger.Error("trust device failed", "error", err, "user_id", userID, "device_id", d.DeviceID)
		return nil, ErrInternal.WithCause(err)
	}
	s.record(ctx, audit.Event{UserID: &userID, Action: audit.ActionDeviceTrust, Outcome: audit.OutcomeSuccess, Reason: d.DeviceID})
	return s.ListDevices(ctx, userID)
}

func (s *service) RevokeDevice(ctx context.Context, userID, deviceID string) ([]TrustedDevice, error) {
	n, err := s.repo.DeleteTrustedDevice(ctx, userID, deviceID)
	if err != nil {
		s.logger.Error("revoke device failed", "error", err, "user_id", userID, "device_id", deviceID)
		return nil, ErrInternal.WithCause(err)
	}
	if n == 0 {
		return nil, ErrDeviceNotFound
	}
	s.record(ctx, audit.Event{UserID: &userID, Action: audit.ActionDeviceRevoke, Outcome: audit.OutcomeSuccess, Reason: deviceID})
	return s.ListDevices(ctx, userID)
}

func (s *service) UpdateDeviceTrust(ctx context.Context, userID, deviceID string, patch TrustedDevicePatch) ([]TrustedDevice, error) {
	n, err := s.repo.UpdateTrustedDevice(ctx, userID, deviceID, patch)
	if err != nil {
		s.logger.Error("update device failed", "error", err, "user_id", userID, "device_id", deviceID)
		return nil, ErrInternal.WithCause(err)
	}
	if n == 0 {
		return nil, ErrDeviceNotFound
	}
	return s.ListDevices(ctx, userID)
}

// IsDeviceTrusted is evaluated against the service clock; expired rows stay
// in the table but no longer count.
func (s *service) IsDeviceTrusted(ctx context.Context, userID, deviceID string) (bool, error) {
	if deviceID == "" {
		return false, nil
	}
	d, err := s.repo.FindTrustedDevice(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		s.logger.Error("find trusted device failed", "error", err, "user_id", userID)
		return false, ErrInternal.WithCause(err)
	}
	return d.ValidAt(s.now()), nil
}

func (s *service) ListSessions(ctx context.Context, userID string) ([]session.Session, error) {
	list, err := s.sessions.ListActive(ctx, userID)
	if err != nil {
		s.logger.Error("list sessions failed", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}
	return list, nil
}

func (s *service) RevokeSession(ctx context.Context, userID, sessionID string) error {
	if uuid.Validate(sessionID) != nil {
		return ErrSessionNotFound
	}
	if err := s.sessions.Revoke(ctx, userID, sessionID); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return ErrSessionNotFound
		}
		s.logger.Error("revoke session failed", "error", err, "user_id", userID)
		return ErrInternal.WithCause(err)
	}
	s.record(ctx, audit.Event{UserID: &userID, Action: audit.ActionSessionRevoke, Outcome: audit.OutcomeSuccess, Reason: sessionID})
	return nil
}

// RevokeOtherSessions signs out every device except currentDeviceID.
func (s *service) RevokeOtherSessions(ctx context.Context, userID, currentDeviceID string) (int, error) {
	n, err := s.sessions.RevokeAllOther(ctx, userID, currentDeviceID)
	if err != nil {
		s.logger.Error("revoke other sessions failed", "error", err, "user_id", userID)
		return 0, ErrInternal.WithCause(err)
	}
	s.record(ctx, audit.Event{UserID: &userID, Action: audit.ActionSessionRevokeRest, Outcome: audit.OutcomeSuccess})
	return n, nil
}
