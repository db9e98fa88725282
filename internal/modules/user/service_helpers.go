package user

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strings"

	"github.com/delordemm1/siteauth/internal/audit"
	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/device"
	"github.com/delordemm1/siteauth/internal/session"
	"golang.org/x/crypto/bcrypt"
)

// hashPassword uses bcrypt to generate a hash from a plaintext password.
func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// checkPasswordHash compares a plaintext password with a bcrypt hash.
func checkPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// generateSecureToken creates a random, URL-safe string of a given length.
func generateSecureToken(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// hashToken returns the hex sha256 of a code. Codes are never stored in clear.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// generateNumericCode returns a uniformly random string of n digits.
func generateNumericCode(n int) (string, error) {
	if n <= 0 {
		n = 6
	}
	var b strings.Builder
	b.Grow(n)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func generateBackupCode() (string, error) {
	const length = 10
	max := big.NewInt(int64(len(backupCodeAlphabet)))
	out := make([]byte, length)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = backupCodeAlphabet[idx.Int64()]
	}
	return string(out), nil
}

// normalizeBackupCode trims and upper-cases user input before hashing.
func normalizeBackupCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// record stamps the event with the caller and hands it to the auditor.
func (s *service) record(ctx context.Context, e audit.Event) {
	c := contextx.ClientFrom(ctx)
	if e.IPAddress == "" {
		e.IPAddress = c.IP
	}
	if e.UserAgent == "" {
		e.UserAgent = c.UserAgent
	}
	e.CreatedAt = s.now()
	s.audit.Record(e)
}

// startSession opens a session for the current caller. The descriptor, when
// present, wins over what the request headers say about the device.
func (s *service) startSession(ctx context.Context, userID, method string, mfaVerified bool, d *device.Descriptor) (*session.Session, error) {
	c := contextx.ClientFrom(ctx)
	in := session.NewSession{
		UserID:      userID,
		DeviceID:    contextx.DeviceID(ctx),
		UserAgent:   c.UserAgent,
		IPAddress:   c.IP,
		Country:     c.Country,
		City:        c.City,
		AuthMethod:  method,
		MFAVerified: mfaVerified,
	}
	if d != nil {
		if d.DeviceID != "" {
			in.DeviceID = d.DeviceID
		}
		if d.UserAgent != "" {
			in.UserAgent = d.UserAgent
		}
		in.DeviceName = d.DeviceName
	}
	sess, err := s.sessions.Create(ctx, in)
	if err != nil {
		s.logger.Error("create session failed", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}
	return sess, nil
}
