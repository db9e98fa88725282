package user

import (
	"context"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/delordemm1/siteauth/internal/database"
)

// Repository defines the database operations of the user module. Every read
// decodes into a typed entity; not-found is reported as ErrNotFound.
type Repository interface {
	// Accounts
	CreateAccountIfAbsent(ctx context.Context, a *Account) (created bool, err error)
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountByID(ctx context.Context, id string) (*Account, error)
	DeleteAccount(ctx context.Context, id string) error
	ConfirmAccountEmail(ctx context.Context, id string, at time.Time) error
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
	DeleteStaleUnconfirmedAccounts(ctx context.Context, createdBefore, now time.Time) (int64, error)

	// Profiles
	CreateProfile(ctx context.Context, p *Profile) error
	ActivateProfile(ctx context.Context, id string) (int64, error)
	FindProfile(ctx context.Context, id string) (*Profile, error)
	UpdateNames(ctx context.Context, id string, firstName, lastName *string) error

	// One-time codes
	InsertOTP(ctx context.Context, t *OTPToken) error
	InvalidateActiveOTPs(ctx context.Context, key OTPKey, now time.Time) (int64, error)
	FindActiveOTP(ctx context.Context, key OTPKey, now time.Time) (*OTPToken, error)
	OTPCodeIssued(ctx context.Context, key OTPKey, codeHash string, now time.Time) (bool, error)
	IncrementOTPAttempts(ctx context.Context, id string) (attempts int, maxAttempts int, err error)
	ClaimOTP(ctx context.Context, id string, now time.Time) (*OTPToken, error)
	MarkOTPUsed(ctx context.Context, id string, now time.Time) error

	// Trusted devices
	UpsertTrustedDevice(ctx context.Context, d *TrustedDevice) error
	FindTrustedDevice(ctx context.Context, userID, deviceID string) (*TrustedDevice, error)
	ListTrustedDevices(ctx context.Context, userID string) ([]TrustedDevice, error)
	UpdateTrustedDevice(ctx context.Context, userID, deviceID string, patch TrustedDevicePatch) (int64, error)
	DeleteTrustedDevice(ctx context.Context, userID, deviceID string) (int64, error)
	DeleteTrustedDevices(ctx context.Context, userID string) error

	// MFA
	FindMFASettings(ctx context.Context, userID string) (*MFASettings, error)
	SaveTOTPSecret(ctx context.Context, userID, sealedSecret string) error
	EnableTOTP(ctx context.Context, userID string, at time.Time) error
	DisableTOTP(ctx context.Context, userID string) error
	ReplaceBackupCodes(ctx context.Context, userID string, codeHashes []string) error
	ClaimBackupCode(ctx context.Context, userID, codeHash string, now time.Time) (bool, error)
	CountUnusedBackupCodes(ctx context.Context, userID string) (int, error)
	DeleteBackupCodes(ctx context.Context, userID string) error

	// OAuth states
	InsertOAuthState(ctx context.Context, s *OAuthState) error
	ConsumeOAuthState(ctx context.Context, state string) (*OAuthState, error)
	DeleteExpiredOAuthStates(ctx context.Context, now time.Time) (int64, error)
}

// TrustedDevicePatch is a partial update; nil fields are left alone.
type TrustedDevicePatch struct {
	DeviceName *string
	IsTrusted  *bool
}

// repository implements the Repository interface using pgx and squirrel.
type repository struct {
	db   database.DBTX
	psql squirrel.StatementBuilderType
}

// NewRepository creates a new user repository with the given database connection.
func NewRepository(db database.DBTX) Repository {
	return &repository{
		db:   db,
		psql: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}
