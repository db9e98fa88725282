package user

import (
	"context"
	"errors"
	"strings"

	"github.com/delordemm1/siteauth/internal/audit"
	"github.com/delordemm1/siteauth/internal/rate"
	"github.com/delordemm1/siteauth/internal/saga"
	"github.com/delordemm1/siteauth/internal/site"
	"github.com/google/uuid"
)

// SignupInput is a validated signup request.
type SignupInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	SiteID    string
	Role      string
}

type SignupResult struct {
	UserID           string
	ExpiresInMinutes int
}

// VerifyCodeInput carries a one-time code for a (site, email) pair.
type VerifyCodeInput struct {
	Email  string
	SiteID string
	Code   string
}

// SignupWithOTP creates an unconfirmed account, its profile and a confirmation
// code, then emails the code. A failing fatal step undoes the earlier ones.
func (s *service) SignupWithOTP(ctx context.Context, in SignupInput) (*SignupResult, error) {
	email := normalizeEmail(in.Email)
	firstName := strings.TrimSpace(in.FirstName)
	lastName := strings.TrimSpace(in.LastName)
	role := in.Role
	if role == "" {
		role = RoleMember
	}

	if _, err := s.resolveSite(ctx, in.SiteID); err != nil {
		return nil, err
	}

	if s.locker != nil {
		release, err := s.locker.Acquire(ctx, "signup:"+email, s.config.RateLimit.SignupLock)
		switch {
		case errors.Is(err, rate.ErrLocked):
			s.metrics.SignupResult("in_progress")
			return nil, ErrSignupInProgress
		case err != nil:
			s.logger.Warn("signup lock unavailable", "error", err)
		default:
			defer release()
		}
	}

	if _, err := s.repo.FindAccountByEmail(ctx, email); err == nil {
		s.metrics.SignupResult("exists")
		return nil, ErrAccountExists
	} else if !errors.Is(err, ErrNotFound) {
		s.logger.Error("signup: find account failed", "error", err)
		return nil, ErrInternal.WithCause(err)
	}

	hashed, err := hashPassword(in.Password)
	if err != nil {
		s.logger.Error("signup: hash password failed", "error", err)
		return nil, ErrInternal.WithCause(err)
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}
	now := s.now()
	account := &Account{
		ID:           id.String(),
		SiteID:       in.SiteID,
		Email:        email,
		PasswordHash: &hashed,
		FirstName:    firstName,
		LastName:     lastName,
		AuthProvider: AuthProviderEmail,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	key := OTPKey{SiteID: in.SiteID, Email: email, Purpose: OTPPurposeConfirmSignup}

	var (
		code  string
		token *OTPToken
	)
	steps := []saga.Step{
		{
			Name:   "create_account",
			Policy: saga.Fatal,
			Action: func(ctx context.Context) error {
				created, err := s.repo.CreateAccountIfAbsent(ctx, account)
				if err != nil {
					return ErrAccountCreateFailed.WithCause(err)
				}
				if !created {
					return ErrAccountExists
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return s.repo.DeleteAccount(ctx, account.ID)
			},
		},
		{
			Name:   "create_profile",
			Policy: saga.Tolerated,
			Action: func(ctx context.Context) error {
				return s.repo.CreateProfile(ctx, &Profile{
					ID:        account.ID,
					SiteID:    in.SiteID,
					FirstName: firstName,
					LastName:  lastName,
					Email:     email,
					Role:      role,
					IsActive:  false,
					CreatedAt: now,
					UpdatedAt: now,
				})
			},
		},
		{
			Name:   "store_otp",
			Policy: saga.Fatal,
			Action: func(ctx context.Context) error {
				c, tok, err := s.issueOTP(ctx, key, map[string]string{"user_id": account.ID})
				if err != nil {
					return ErrOTPStoreFailed.WithCause(err)
				}
				code, token = c, tok
				return nil
			},
			Compensate: func(ctx context.Context) error {
				return s.repo.MarkOTPUsed(ctx, token.ID, s.now())
			},
		},
		{
			Name:   "send_email",
			Policy: saga.Fatal,
			Action: func(ctx context.Context) error {
				if err := s.sendOTPEmail(ctx, in.SiteID, email, firstName, code, OTPPurposeConfirmSignup); err != nil {
					return ErrEmailSendFailed.WithCause(err)
				}
				return nil
			},
		},
	}

	err = saga.New("signup", s.logger, steps...).
		WithHooks(saga.Hooks{
			OnCompensated: func(step string) {
				s.metrics.Compensation("signup", step, true)
			},
			OnCompensationFailed: func(step string, err error) {
				s.metrics.Compensation("signup", step, false)
				s.logger.Error("signup compensation failed; left for sweeper", "step", step, "error", err, "user_id", account.ID)
			},
		}).
		Run(ctx)
	if err != nil {
		se, ok := saga.AsStepError(err)
		if ok {
			err = se.Err
		}
		if errors.Is(err, ErrAccountExists) {
			s.metrics.SignupResult("exists")
		} else {
			s.metrics.SignupResult("failed")
			s.logger.Error("signup failed", "error", err, "step", stepName(se))
		}
		s.record(ctx, audit.Event{SiteID: strPtr(in.SiteID), Email: email, Action: audit.ActionSignup, Outcome: audit.OutcomeFailed, Reason: stepName(se)})
		return nil, err
	}

	s.metrics.SignupResult("created")
	s.record(ctx, audit.Event{UserID: &account.ID, SiteID: strPtr(in.SiteID), Email: email, Action: audit.ActionSignup, Outcome: audit.OutcomeSuccess})
	return &SignupResult{UserID: account.ID, ExpiresInMinutes: s.config.Verification.TTLMinutes}, nil
}

func stepName(se *saga.StepError) string {
	if se == nil {
		return ""
	}
	return se.Step
}

// resolveSite maps an unknown site id to ErrInvalidSite.
func (s *service) resolveSite(ctx context.Context, siteID string) (*site.Site, error) {
	st, err := s.sites.Site(ctx, siteID)
	if err != nil {
		if errors.Is(err, site.ErrNotFound) {
			return nil, ErrInvalidSite
		}
		s.logger.Error("resolve site failed", "error", err, "site_id", siteID)
		return nil, ErrInternal.WithCause(err)
	}
	return st, nil
}

// VerifySignupOTP confirms the account behind a confirmation code and
// activates its profile.
func (s *service) VerifySignupOTP(ctx context.Context, in VerifyCodeInput) error {
	email := normalizeEmail(in.Email)
	key := OTPKey{SiteID: in.SiteID, Email: email, Purpose: OTPPurposeConfirmSignup}

	reject := func(err error) error {
		s.record(ctx, audit.Event{SiteID: strPtr(in.SiteID), Email: email, Action: audit.ActionSignupVerify, Outcome: audit.OutcomeRejected, Reason: codeOf(err)})
		return err
	}

	tok, err := s.verifyOTP(ctx, key, strings.TrimSpace(in.Code))
	if err != nil {
		return reject(err)
	}

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject(ErrInvalidOTP)
		}
		s.logger.Error("verify signup: find account failed", "error", err)
		return ErrInternal.WithCause(err)
	}
	if uid := tok.Metadata["user_id"]; uid != "" && uid != account.ID {
		return reject(ErrInvalidOTP)
	}

	now := s.now()
	if err := s.repo.ConfirmAccountEmail(ctx, account.ID, now); err != nil {
		s.logger.Error("verify signup: confirm account failed", "error", err, "user_id", account.ID)
		return ErrInternal.WithCause(err)
	}

	n, err := s.repo.ActivateProfile(ctx, account.ID)
	if err != nil {
		s.logger.Error("verify signup: activate profile failed", "error", err, "user_id", account.ID)
		return ErrInternal.WithCause(err)
	}
	if n == 0 {
		// the profile step was tolerated at signup; create it now
		err := s.repo.CreateProfile(ctx, &Profile{
			ID:        account.ID,
			SiteID:    account.SiteID,
			FirstName: account.FirstName,
			LastName:  account.LastName,
			Email:     account.Email,
			Role:      RoleMember,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			s.logger.Error("verify signup: create missing profile failed", "error", err, "user_id", account.ID)
			return ErrInternal.WithCause(err)
		}
	}

	s.record(ctx, audit.Event{UserID: &account.ID, SiteID: strPtr(in.SiteID), Email: email, Action: audit.ActionSignupVerify, Outcome: audit.OutcomeSuccess})
	return nil
}

// ResendSignupOTP issues a new confirmation code. Unknown and already confirmed
// addresses succeed silently.
func (s *service) ResendSignupOTP(ctx context.Context, email, siteID string) error {
	email = normalizeEmail(email)
	if _, err := s.resolveSite(ctx, siteID); err != nil {
		return err
	}

	account, err := s.repo.FindAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		s.logger.Error("resend signup: find account failed", "error", err)
		return ErrInternal.WithCause(err)
	}
	if account.Confirmed() {
		return nil
	}

	key := OTPKey{SiteID: siteID, Email: email, Purpose: OTPPurposeConfirmSignup}
	if err := s.resendAllowed(ctx, key); err != nil {
		return err
	}
	code, _, err := s.issueOTP(ctx, key, map[string]string{"user_id": account.ID})
	if err != nil {
		s.logger.Error("resend signup: issue code failed", "error", err, "user_id", account.ID)
		return ErrOTPStoreFailed.WithCause(err)
	}
	if err := s.sendOTPEmail(ctx, siteID, email, account.FirstName, code, OTPPurposeConfirmSignup); err != nil {
		s.logger.Error("resend signup: send email failed", "error", err, "user_id", account.ID)
		return ErrEmailSendFailed.WithCause(err)
	}
	return nil
}

// SweepStaleSignups deletes unconfirmed accounts older than the stale age that
// no longer hold a live confirmation code.
func (s *service) SweepStaleSignups(ctx context.Context) (int, error) {
	now := s.now()
	n, err := s.repo.DeleteStaleUnconfirmedAccounts(ctx, now.Add(-s.config.Sweep.StaleAge), now)
	if err != nil {
		return 0, err
	}
	s.metrics.Swept(int(n))
	if n > 0 {
		s.logger.Info("swept stale signups", "count", n)
	}
	return int(n), nil
}

func codeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "error"
}
