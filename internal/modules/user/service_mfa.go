package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/delordemm1/siteauth/internal/audit"
	"github.com/delordemm1/siteauth/internal/device"
	"github.com/delordemm1/siteauth/internal/session"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	MFAActionVerify       = "verify"
	MFAActionVerifyBackup = "verify_backup"
)

// MFALoginInput is the second factor of a login. Action selects which factor
// the code is checked against; the two are never tried together. Challenge is
// the token Login or the OAuth callback issued with mfaRequired.
type MFALoginInput struct {
	Action      string
	Challenge   string
	Code        string
	TrustDevice bool
	Device      *device.Descriptor
}

type MFALoginResult struct {
	Session        *session.Session
	RemainingCodes *int
}

type TOTPSetup struct {
	Secret     string
	OTPAuthURL string
}

type MFAStatus struct {
	Enabled              bool
	RemainingBackupCodes int
}

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// VerifyMFALogin completes a login that returned mfaRequired. The user comes
// from the challenge token, never from the caller.
func (s *service) VerifyMFALogin(ctx context.Context, in MFALoginInput) (*MFALoginResult, error) {
	action := audit.ActionMFAVerify
	if in.Action == MFAActionVerifyBackup {
		action = audit.ActionMFABackup
	}
	var userID string
	reject := func(reason string, err error) (*MFALoginResult, error) {
		s.metrics.VerificationRejected("mfa", reason)
		s.record(ctx, audit.Event{UserID: strPtr(userID), Action: action, Outcome: audit.OutcomeRejected, Reason: reason})
		return nil, err
	}

	challenge, err := s.parseMFAChallenge(in.Challenge)
	if err != nil {
		return reject("invalid_challenge", err)
	}
	userID = challenge.Subject

	if err := s.checkLimit(ctx, "mfa", userID); err != nil {
		s.record(ctx, audit.Event{UserID: &userID, Action: action, Outcome: audit.OutcomeRejected, Reason: "rate_limited"})
		return nil, err
	}

	account, err := s.repo.FindAccountByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject("unknown_user", ErrInvalidMFACode)
		}
		s.logger.Error("mfa login: find account failed", "error", err)
		return nil, ErrInternal.WithCause(err)
	}

	var (
		method    string
		remaining *int
	)
	switch in.Action {
	case MFAActionVerify:
		if !isDigits(in.Code, 6) {
			return reject("malformed_code", ErrInvalidMFACode)
		}
		settings, err := s.repo.FindMFASettings(ctx, account.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			s.logger.Error("mfa login: load settings failed", "error", err, "user_id", account.ID)
			return nil, ErrInternal.WithCause(err)
		}
		if settings == nil || !settings.TOTPEnabled {
			return reject("mfa_not_enabled", ErrInvalidMFACode)
		}
		ok, err := s.validateTOTP(settings, in.Code)
		if err != nil {
			s.logger.Error("mfa login: decrypt secret failed", "error", err, "user_id", account.ID)
			return nil, ErrInternal.WithCause(err)
		}
		if !ok {
			return reject("invalid_totp", ErrInvalidMFACode)
		}
		method = session.MethodMFATOTP

	case MFAActionVerifyBackup:
		code := normalizeBackupCode(in.Code)
		if code == "" {
			return reject("malformed_code", ErrInvalidMFACode)
		}
		claimed, err := s.repo.ClaimBackupCode(ctx, account.ID, hashToken(code), s.now())
		if err != nil {
			s.logger.Error("mfa login: claim backup code failed", "error", err, "user_id", account.ID)
			return nil, ErrInternal.WithCause(err)
		}
		if !claimed {
			return reject("invalid_backup_code", ErrInvalidMFACode)
		}
		n, err := s.repo.CountUnusedBackupCodes(ctx, account.ID)
		if err != nil {
			s.logger.Warn("mfa login: count backup codes failed", "error", err, "user_id", account.ID)
		}
		remaining = &n
		method = session.MethodMFABackup

	default:
		return reject("unknown_action", ErrInvalidMFACode)
	}

	first, err := s.spendMFAChallenge(ctx, challenge)
	if err != nil {
		s.logger.Error("mfa login: claim challenge failed", "error", err, "user_id", account.ID)
		return nil, ErrInternal.WithCause(err)
	}
	if !first {
		return reject("challenge_replayed", ErrInvalidMFAChallenge)
	}

	if in.TrustDevice && in.Device != nil && in.Device.DeviceID != "" {
		if _, err := s.TrustDevice(ctx, account.ID, *in.Device); err != nil {
			s.logger.Warn("mfa login: trust device failed", "error", err, "user_id", account.ID)
		}
	}

	sess, err := s.startSession(ctx, account.ID, method, true, in.Device)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.Event{UserID: &account.ID, SiteID: strPtr(account.SiteID), Email: account.Email, Action: action, Outcome: audit.OutcomeSuccess})
	return &MFALoginResult{Session: sess, RemainingCodes: remaining}, nil
}

func (s *service) validateTOTP(settings *MFASettings, code string) (bool, error) {
	secret, err := s.box.Decrypt(settings.TOTPSecret)
	if err != nil {
		return false, err
	}
	ok, err := totp.ValidateCustom(code, secret, s.now().UTC(), totpOpts)
	if err != nil {
		// malformed input is just a wrong code
		return false, nil
	}
	return ok, nil
}

// SetupTOTP creates a pending secret. It is enabled by ActivateTOTP.
func (s *service) SetupTOTP(ctx context.Context, userID string) (*TOTPSetup, error) {
	enabled, err := s.totpEnabled(ctx, userID)
	if err != nil {
		return nil, err
	}
	if enabled {
		return nil, ErrMFAAlreadyEnabled
	}
	account, err := s.repo.FindAccountByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, ErrInternal.WithCause(err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.config.MFA.Issuer,
		AccountName: account.Email,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		s.logger.Error("mfa setup: generate secret failed", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}
	sealed, err := s.box.Encrypt(key.Secret())
	if err != nil {
		s.logger.Error("mfa setup: encrypt secret failed", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}
	if err := s.repo.SaveTOTPSecret(ctx, userID, sealed); err != nil {
		s.logger.Error("mfa setup: save secret failed", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}
	return &TOTPSetup{Secret: key.Secret(), OTPAuthURL: key.URL()}, nil
}

// ActivateTOTP proves the authenticator works and returns the first set of
// backup codes in clear. They are not retrievable afterwards.
func (s *service) ActivateTOTP(ctx context.Context, userID, code string) ([]string, error) {
	settings, err := s.repo.FindMFASettings(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrMFASetupRequired
		}
		return nil, ErrInternal.WithCause(err)
	}
	if settings.TOTPEnabled {
		return nil, ErrMFAAlreadyEnabled
	}
	ok, err := s.validateTOTP(settings, strings.TrimSpace(code))
	if err != nil {
		return nil, ErrInternal.WithCause(err)
	}
	if !ok {
		return nil, ErrInvalidMFACode
	}
	if err := s.repo.EnableTOTP(ctx, userID, s.now()); err != nil {
		s.logger.Error("mfa activate: enable failed", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}
	codes, err := s.replaceBackupCodes(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.Event{UserID: &userID, Action: audit.ActionMFAEnable, Outcome: audit.OutcomeSuccess})
	return codes, nil
}

// DisableTOTP turns MFA off. The code may be a TOTP or an unused backup code.
// Backup codes and device trust go with it.
func (s *service) DisableTOTP(ctx context.Context, userID, code string) error {
	if err := s.requireSecondFactor(ctx, userID, code, true); err != nil {
		return err
	}
	if err := s.repo.DisableTOTP(ctx, userID); err != nil {
		s.logger.Error("mfa disable failed", "error", err, "user_id", userID)
		return ErrInternal.WithCause(err)
	}
	if err := s.repo.DeleteBackupCodes(ctx, userID); err != nil {
		s.logger.Error("mfa disable: delete backup codes failed", "error", err, "user_id", userID)
		return ErrInternal.WithCause(err)
	}
	if err := s.repo.DeleteTrustedDevices(ctx, userID); err != nil {
		s.logger.Error("mfa disable: delete trusted devices failed", "error", err, "user_id", userID)
		return ErrInternal.WithCause(err)
	}
	s.record(ctx, audit.Event{UserID: &userID, Action: audit.ActionMFADisable, Outcome: audit.OutcomeSuccess})
	return nil
}

func (s *service) RegenerateBackupCodes(ctx context.Context, userID, code string) ([]string, error) {
	if err := s.requireSecondFactor(ctx, userID, code, false); err != nil {
		return nil, err
	}
	return s.replaceBackupCodes(ctx, userID)
}

func (s *service) MFAStatus(ctx context.Context, userID string) (*MFAStatus, error) {
	enabled, err := s.totpEnabled(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := &MFAStatus{Enabled: enabled}
	if enabled {
		n, err := s.repo.CountUnusedBackupCodes(ctx, userID)
		if err != nil {
			return nil, ErrInternal.WithCause(err)
		}
		st.RemainingBackupCodes = n
	}
	return st, nil
}

// requireSecondFactor checks code against the enabled TOTP secret and, when
// allowBackup is set, falls back to consuming a backup code.
func (s *service) requireSecondFactor(ctx context.Context, userID, code string, allowBackup bool) error {
	settings, err := s.repo.FindMFASettings(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrMFANotEnabled
		}
		return ErrInternal.WithCause(err)
	}
	if !settings.TOTPEnabled {
		return ErrMFANotEnabled
	}
	code = strings.TrimSpace(code)
	if isDigits(code, 6) {
		ok, err := s.validateTOTP(settings, code)
		if err != nil {
			return ErrInternal.WithCause(err)
		}
		if ok {
			return nil
		}
	}
	if allowBackup {
		if n := normalizeBackupCode(code); n != "" {
			claimed, err := s.repo.ClaimBackupCode(ctx, userID, hashToken(n), s.now())
			if err != nil {
				return ErrInternal.WithCause(err)
			}
			if claimed {
				return nil
			}
		}
	}
	s.metrics.VerificationRejected("mfa", "invalid_code")
	return ErrInvalidMFACode
}

func (s *service) replaceBackupCodes(ctx context.Context, userID string) ([]string, error) {
	count := s.config.MFA.BackupCodeCount
	codes := make([]string, 0, count)
	hashes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		c, err := generateBackupCode()
		if err != nil {
			return nil, ErrInternal.WithCause(err)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		codes = append(codes, c)
		hashes = append(hashes, hashToken(c))
	}
	if err := s.repo.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		s.logger.Error("replace backup codes failed", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}
	return codes, nil
}

// trustTTL is how long a device skips MFA after a successful challenge.
func (s *service) trustTTL() time.Duration {
	return s.config.DeviceTrust.TTL
}
