package user

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/notification"
	"github.com/delordemm1/siteauth/internal/notification/templates"
	"github.com/google/uuid"
)

const maxCodeRegenerations = 5

func (s *service) otpTTL() time.Duration {
	return time.Duration(s.config.Verification.TTLMinutes) * time.Minute
}

// issueOTP stores a fresh code for key and retires the older active ones. The
// plaintext code is returned to the caller and never persisted.
func (s *service) issueOTP(ctx context.Context, key OTPKey, metadata map[string]string) (string, *OTPToken, error) {
	now := s.now()

	var code, hash string
	for i := 0; ; i++ {
		c, err := generateNumericCode(s.config.Verification.CodeLength)
		if err != nil {
			return "", nil, err
		}
		taken, err := s.repo.OTPCodeIssued(ctx, key, hashToken(c), now)
		if err != nil {
			return "", nil, err
		}
		if !taken {
			code, hash = c, hashToken(c)
			break
		}
		if i+1 >= maxCodeRegenerations {
			return "", nil, errors.New("could not generate a unique code")
		}
	}

	if _, err := s.repo.InvalidateActiveOTPs(ctx, key, now); err != nil {
		return "", nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", nil, err
	}
	client := contextx.ClientFrom(ctx)
	tok := &OTPToken{
		ID:          id.String(),
		SiteID:      key.SiteID,
		Email:       key.Email,
		CodeHash:    hash,
		Purpose:     key.Purpose,
		ExpiresAt:   now.Add(s.otpTTL()),
		MaxAttempts: s.config.Verification.MaxAttempts,
		Metadata:    metadata,
		RequesterIP: client.IP,
		UserAgent:   client.UserAgent,
		CreatedAt:   now,
	}
	if err := s.repo.InsertOTP(ctx, tok); err != nil {
		return "", nil, err
	}
	return code, tok, nil
}

// sendOTPEmail renders the purpose's template with the site's branding and
// delivers it synchronously.
func (s *service) sendOTPEmail(ctx context.Context, siteID, to, firstName, code string, purpose OTPPurpose) error {
	h, ok := templates.ForPurpose(string(purpose))
	if !ok {
		return errors.New("no template for purpose " + string(purpose))
	}
	br := s.sites.Branding(ctx, siteID)
	data := templates.OTPData{
		FirstName:        firstName,
		Code:             code,
		ExpiresInMinutes: s.config.Verification.TTLMinutes,
		Brand: templates.Brand{
			SiteName:     br.SiteName,
			LogoURL:      br.LogoURL,
			PrimaryColor: br.PrimaryColor,
			SupportEmail: br.SupportEmail,
			Domain:       br.Domain,
		},
	}
	from := notification.Sender{Email: br.FromEmail, Name: br.FromName, ReplyTo: br.SupportEmail}
	return notification.SendTemplate(ctx, s.notifier, h, to, from, data)
}

// checkLimit consults the limiter. Limiter outages are logged and let through;
// the per-token attempt counter still bounds guessing.
func (s *service) checkLimit(ctx context.Context, kind, key string) error {
	if s.limiter == nil {
		return nil
	}
	res, err := s.limiter.Allow(ctx, kind+":"+key)
	if err != nil {
		s.logger.Warn("rate limiter unavailable", "error", err, "kind", kind)
		return nil
	}
	if !res.Allowed {
		s.metrics.VerificationRejected(kind, "rate_limited")
		return ErrRateLimited
	}
	return nil
}

// verifyOTP checks code against the active token of key and claims it. Every
// mismatch fails closed with ErrInvalidOTP.
func (s *service) verifyOTP(ctx context.Context, key OTPKey, code string) (*OTPToken, error) {
	if err := s.checkLimit(ctx, "otp", string(key.Purpose)+":"+key.SiteID+":"+key.Email); err != nil {
		return nil, err
	}
	now := s.now()

	tok, err := s.repo.FindActiveOTP(ctx, key, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.VerificationRejected("otp", "no_active_code")
			return nil, ErrInvalidOTP
		}
		s.logger.Error("verify otp: find active token failed", "error", err)
		return nil, ErrInternal.WithCause(err)
	}
	if tok.MaxAttempts > 0 && tok.Attempts >= tok.MaxAttempts {
		s.metrics.VerificationRejected("otp", "too_many_attempts")
		return nil, ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(hashToken(code)), []byte(tok.CodeHash)) != 1 {
		attempts, maxAttempts, incErr := s.repo.IncrementOTPAttempts(ctx, tok.ID)
		if incErr != nil && !errors.Is(incErr, ErrNotFound) {
			s.logger.Error("verify otp: increment attempts failed", "error", incErr)
			return nil, ErrInternal.WithCause(incErr)
		}
		if maxAttempts > 0 && attempts >= maxAttempts {
			s.metrics.VerificationRejected("otp", "too_many_attempts")
			return nil, ErrTooManyAttempts
		}
		s.metrics.VerificationRejected("otp", "mismatch")
		return nil, ErrInvalidOTP
	}

	claimed, err := s.repo.ClaimOTP(ctx, tok.ID, now)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.VerificationRejected("otp", "already_claimed")
			return nil, ErrInvalidOTP
		}
		s.logger.Error("verify otp: claim failed", "error", err)
		return nil, ErrInternal.WithCause(err)
	}
	return claimed, nil
}

// resendAllowed enforces the cooldown between two codes for the same key.
func (s *service) resendAllowed(ctx context.Context, key OTPKey) error {
	active, err := s.repo.FindActiveOTP(ctx, key, s.now())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return ErrInternal.WithCause(err)
	}
	cooldown := time.Duration(s.config.Verification.ResendCooldownSeconds) * time.Second
	if s.now().Sub(active.CreatedAt) < cooldown {
		return ErrResendTooSoon
	}
	return nil
}
