package user

import (
	"time"
)

// Account is the identity record. A nil EmailConfirmedAt means the signup has not
// been confirmed with a one-time code yet.
type Account struct {
	ID               string     `db:"id"`
	SiteID           string     `db:"site_id"`
	Email            string     `db:"email"`
	PasswordHash     *string    `db:"password_hash"`
	FirstName        string     `db:"first_name"`
	LastName         string     `db:"last_name"`
	AuthProvider     string     `db:"auth_provider"`
	EmailConfirmedAt *time.Time `db:"email_confirmed_at"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
}

func (a *Account) Confirmed() bool { return a.EmailConfirmedAt != nil }

const (
	AuthProviderEmail = "email"
	RoleMember        = "member"
)

// Profile is the site scoped view of an account. It stays inactive until the
// email is confirmed.
type Profile struct {
	ID        string    `db:"id"`
	SiteID    string    `db:"site_id"`
	FirstName string    `db:"first_name"`
	LastName  string    `db:"last_name"`
	Email     string    `db:"email"`
	Role      string    `db:"role"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// OTPPurpose defines the reason a one-time code is issued.
type OTPPurpose string

const (
	OTPPurposeConfirmSignup OTPPurpose = "confirm_signup"
	OTPPurposePasswordReset OTPPurpose = "password_reset"
	OTPPurposeLoginVerify   OTPPurpose = "login_verify"
)

// OTPKey identifies the slot that holds at most one active code.
type OTPKey struct {
	SiteID  string
	Email   string
	Purpose OTPPurpose
}

// OTPToken is a persisted one-time code. Only the sha256 of the code is stored.
type OTPToken struct {
	ID          string            `db:"id"`
	SiteID      string            `db:"site_id"`
	Email       string            `db:"email"`
	CodeHash    string            `db:"code_hash"`
	Purpose     OTPPurpose        `db:"purpose"`
	ExpiresAt   time.Time         `db:"expires_at"`
	IsUsed      bool              `db:"is_used"`
	UsedAt      *time.Time        `db:"used_at"`
	Attempts    int               `db:"attempts"`
	MaxAttempts int               `db:"max_attempts"`
	Metadata    map[string]string `db:"metadata"`
	RequesterIP string            `db:"requester_ip"`
	UserAgent   string            `db:"user_agent"`
	CreatedAt   time.Time         `db:"created_at"`
}

// ActiveAt reports whether the token may still be claimed at t.
func (t *OTPToken) ActiveAt(now time.Time) bool {
	return !t.IsUsed && now.Before(t.ExpiresAt)
}

// TrustedDevice exempts a device from MFA until TrustExpiresAt.
type TrustedDevice struct {
	UserID         string    `db:"user_id"`
	DeviceID       string    `db:"device_id"`
	DeviceName     string    `db:"device_name"`
	DeviceType     string    `db:"device_type"`
	Fingerprint    string    `db:"fingerprint"`
	IsTrusted      bool      `db:"is_trusted"`
	TrustedAt      time.Time `db:"trusted_at"`
	TrustExpiresAt time.Time `db:"trust_expires_at"`
	LastIP         string    `db:"last_ip"`
	LastSeenAt     time.Time `db:"last_seen_at"`
	CreatedAt      time.Time `db:"created_at"`
}

// ValidAt reports whether the trust grant holds at now. Expiry is checked at
// read time; expired rows are kept.
func (d *TrustedDevice) ValidAt(now time.Time) bool {
	return d.IsTrusted && d.TrustExpiresAt.After(now)
}

// MFASettings holds the encrypted TOTP seed of a user.
type MFASettings struct {
	UserID         string     `db:"user_id"`
	TOTPSecret     string     `db:"totp_secret"`
	TOTPEnabled    bool       `db:"totp_enabled"`
	TOTPVerifiedAt *time.Time `db:"totp_verified_at"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
}

type OAuthProvider string

const (
	OAuthProviderGoogle    OAuthProvider = "google"
	OAuthProviderGitHub    OAuthProvider = "github"
	OAuthProviderMicrosoft OAuthProvider = "microsoft"
)

type OAuthState struct {
	State      string        `db:"state"`
	Provider   OAuthProvider `db:"provider"`
	SiteID     string        `db:"site_id"`
	Verifier   string        `db:"verifier"`
	RedirectTo string        `db:"redirect_to"`
	ExpiresAt  time.Time     `db:"expires_at"`
	CreatedAt  time.Time     `db:"created_at"`
}
