package user

import (
	"context"
	"errors"
	"strings"

	"github.com/delordemm1/siteauth/internal/audit"
)

type ResetPasswordInput struct {
	Email       string
	SiteID      string
	Code        string
	NewPassword string
}

// ForgotPassword emails a password reset code. Unknown emails succeed silently
// so the endpoint cannot be used to discover accounts.
func (s *service) ForgotPassword(ctx context.Context, email, siteID string) error {
	email = normalizeEmail(email)
	if _, err := s.resolveSite(ctx, siteID); err != nil {
		return err
	}

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		s.logger.Error("forgot password: find account failed", "error", err)
		return ErrInternal.WithCause(err)
	}

	key := OTPKey{SiteID: siteID, Email: email, Purpose: OTPPurposePasswordReset}
	if err := s.resendAllowed(ctx, key); err != nil {
		return err
	}
	code, _, err := s.issueOTP(ctx, key, map[string]string{"user_id": account.ID})
	if err != nil {
		s.logger.Error("forgot password: issue code failed", "error", err, "user_id", account.ID)
		return ErrOTPStoreFailed.WithCause(err)
	}
	if err := s.sendOTPEmail(ctx, siteID, email, account.FirstName, code, OTPPurposePasswordReset); err != nil {
		s.logger.Error("forgot password: send email failed", "error", err, "user_id", account.ID)
		return ErrEmailSendFailed.WithCause(err)
	}
	return nil
}

// ResetPassword sets a new password after a valid reset code and signs the
// account out everywhere.
func (s *service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	email := normalizeEmail(in.Email)
	key := OTPKey{SiteID: in.SiteID, Email: email, Purpose: OTPPurposePasswordReset}

	if _, err := s.verifyOTP(ctx, key, strings.TrimSpace(in.Code)); err != nil {
		s.record(ctx, audit.Event{SiteID: strPtr(in.SiteID), Email: email, Action: audit.ActionPasswordReset, Outcome: audit.OutcomeRejected, Reason: codeOf(err)})
		return err
	}

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidOTP
		}
		s.logger.Error("reset password: find account failed", "error", err)
		return ErrInternal.WithCause(err)
	}

	hashed, err := hashPassword(in.NewPassword)
	if err != nil {
		s.logger.Error("reset password: hash failed", "error", err)
		return ErrInternal.WithCause(err)
	}
	if err := s.repo.UpdatePassword(ctx, account.ID, hashed); err != nil {
		s.logger.Error("reset password: update failed", "error", err, "user_id", account.ID)
		return ErrInternal.WithCause(err)
	}
	// the code proves control of the mailbox
	if !account.Confirmed() {
		if err := s.repo.ConfirmAccountEmail(ctx, account.ID, s.now()); err != nil {
			s.logger.Warn("reset password: confirm email failed", "error", err, "user_id", account.ID)
		}
	}

	if n, err := s.sessions.RevokeAll(ctx, account.ID); err != nil {
		s.logger.Error("reset password: revoke sessions failed", "error", err, "user_id", account.ID)
	} else {
		s.logger.Info("password reset, sessions revoked", "user_id", account.ID, "count", n)
	}
	s.record(ctx, audit.Event{UserID: &account.ID, SiteID: strPtr(in.SiteID), Email: email, Action: audit.ActionPasswordReset, Outcome: audit.OutcomeSuccess})
	return nil
}
