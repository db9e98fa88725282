package user

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/delordemm1/siteauth/internal/audit"
	"github.com/delordemm1/siteauth/internal/config"
	"github.com/delordemm1/siteauth/internal/notification"
	"github.com/delordemm1/siteauth/internal/notification/templates"
	"github.com/delordemm1/siteauth/internal/rate"
	"github.com/delordemm1/siteauth/internal/secretbox"
	"github.com/delordemm1/siteauth/internal/session"
	"github.com/delordemm1/siteauth/internal/site"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

// --- repository ---

type memRepo struct {
	mu       sync.Mutex
	accounts map[string]*Account
	profiles map[string]*Profile
	otps     []*OTPToken
	devices  map[string]*TrustedDevice
	mfa      map[string]*MFASettings
	backup   map[string]map[string]*time.Time
	states   map[string]*OAuthState

	failCreateAccount bool
	failCreateProfile bool
	failInsertOTP     bool
	failDeleteAccount bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		accounts: map[string]*Account{},
		profiles: map[string]*Profile{},
		devices:  map[string]*TrustedDevice{},
		mfa:      map[string]*MFASettings{},
		backup:   map[string]map[string]*time.Time{},
		states:   map[string]*OAuthState{},
	}
}

func deviceKey(userID, deviceID string) string { return userID + "/" + deviceID }

func (m *memRepo) CreateAccountIfAbsent(_ context.Context, a *Account) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateAccount {
		return false, errBoom
	}
	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Email, a.Email) {
			return false, nil
		}
	}
	cp := *a
	m.accounts[a.ID] = &cp
	return true, nil
}

func (m *memRepo) FindAccountByEmail(_ context.Context, email string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if strings.EqualFold(a.Email, email) {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) FindAccountByID(_ context.Context, id string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memRepo) DeleteAccount(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failDeleteAccount {
		return errBoom
	}
	delete(m.accounts, id)
	delete(m.profiles, id)
	return nil
}

func (m *memRepo) ConfirmAccountEmail(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.EmailConfirmedAt = &at
	return nil
}

func (m *memRepo) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.PasswordHash = &hash
	return nil
}

func (m *memRepo) DeleteStaleUnconfirmedAccounts(_ context.Context, createdBefore, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.accounts {
		if a.Confirmed() || !a.CreatedAt.Before(createdBefore) {
			continue
		}
		live := false
		for _, t := range m.otps {
			if t.Purpose == OTPPurposeConfirmSignup && strings.EqualFold(t.Email, a.Email) && t.ActiveAt(now) {
				live = true
			}
		}
		if !live {
			delete(m.accounts, id)
			delete(m.profiles, id)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) CreateProfile(_ context.Context, p *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failCreateProfile {
		return errBoom
	}
	if _, ok := m.profiles[p.ID]; !ok {
		cp := *p
		m.profiles[p.ID] = &cp
	}
	return nil
}

func (m *memRepo) ActivateProfile(_ context.Context, id string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return 0, nil
	}
	p.IsActive = true
	return 1, nil
}

func (m *memRepo) FindProfile(_ context.Context, id string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memRepo) UpdateNames(_ context.Context, id string, first, last *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	p := m.profiles[id]
	if first != nil {
		a.FirstName = *first
		if p != nil {
			p.FirstName = *first
		}
	}
	if last != nil {
		a.LastName = *last
		if p != nil {
			p.LastName = *last
		}
	}
	return nil
}

func (m *memRepo) matches(t *OTPToken, key OTPKey) bool {
	return t.SiteID == key.SiteID && strings.EqualFold(t.Email, key.Email) && t.Purpose == key.Purpose
}

func (m *memRepo) InsertOTP(_ context.Context, t *OTPToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failInsertOTP {
		return errBoom
	}
	cp := *t
	m.otps = append(m.otps, &cp)
	return nil
}

func (m *memRepo) InvalidateActiveOTPs(_ context.Context, key OTPKey, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.otps {
		if m.matches(t, key) && t.ActiveAt(now) {
			t.IsUsed = true
			t.UsedAt = &now
			n++
		}
	}
	return n, nil
}

func (m *memRepo) FindActiveOTP(_ context.Context, key OTPKey, now time.Time) (*OTPToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.otps) - 1; i >= 0; i-- {
		t := m.otps[i]
		if m.matches(t, key) && t.ActiveAt(now) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memRepo) OTPCodeIssued(_ context.Context, key OTPKey, hash string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.otps {
		if m.matches(t, key) && t.CodeHash == hash && t.ActiveAt(now) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRepo) otp(id string) *OTPToken {
	for _, t := range m.otps {
		if t.ID == id {
			return t
		}
	}
	return nil
}

func (m *memRepo) IncrementOTPAttempts(_ context.Context, id string) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.otp(id)
	if t == nil {
		return 0, 0, ErrNotFound
	}
	t.Attempts++
	return t.Attempts, t.MaxAttempts, nil
}

func (m *memRepo) ClaimOTP(_ context.Context, id string, now time.Time) (*OTPToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.otp(id)
	if t == nil || !t.ActiveAt(now) {
		return nil, ErrNotFound
	}
	t.IsUsed = true
	t.UsedAt = &now
	cp := *t
	return &cp, nil
}

func (m *memRepo) MarkOTPUsed(_ context.Context, id string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t := m.otp(id); t != nil {
		t.IsUsed = true
		t.UsedAt = &now
	}
	return nil
}

func (m *memRepo) UpsertTrustedDevice(_ context.Context, d *TrustedDevice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := deviceKey(d.UserID, d.DeviceID)
	cp := *d
	if old, ok := m.devices[k]; ok {
		cp.CreatedAt = old.CreatedAt
	}
	m.devices[k] = &cp
	return nil
}

func (m *memRepo) FindTrustedDevice(_ context.Context, userID, deviceID string) (*TrustedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceKey(userID, deviceID)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memRepo) ListTrustedDevices(_ context.Context, userID string) ([]TrustedDevice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []TrustedDevice{}
	for _, d := range m.devices {
		if d.UserID == userID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

func (m *memRepo) UpdateTrustedDevice(_ context.Context, userID, deviceID string, patch TrustedDevicePatch) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[deviceKey(userID, deviceID)]
	if !ok {
		return 0, nil
	}
	if patch.DeviceName != nil {
		d.DeviceName = *patch.DeviceName
	}
	if patch.IsTrusted != nil {
		d.IsTrusted = *patch.IsTrusted
	}
	return 1, nil
}

func (m *memRepo) DeleteTrustedDevice(_ context.Context, userID, deviceID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := deviceKey(userID, deviceID)
	if _, ok := m.devices[k]; !ok {
		return 0, nil
	}
	delete(m.devices, k)
	return 1, nil
}

func (m *memRepo) DeleteTrustedDevices(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, d := range m.devices {
		if d.UserID == userID {
			delete(m.devices, k)
		}
	}
	return nil
}

func (m *memRepo) FindMFASettings(_ context.Context, userID string) (*MFASettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.mfa[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) SaveTOTPSecret(_ context.Context, userID, sealed string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.mfa[userID]; ok {
		if !s.TOTPEnabled {
			s.TOTPSecret = sealed
		}
		return nil
	}
	m.mfa[userID] = &MFASettings{UserID: userID, TOTPSecret: sealed}
	return nil
}

func (m *memRepo) EnableTOTP(_ context.Context, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.mfa[userID]
	if !ok {
		return ErrNotFound
	}
	s.TOTPEnabled = true
	s.TOTPVerifiedAt = &at
	return nil
}

func (m *memRepo) DisableTOTP(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mfa, userID)
	return nil
}

func (m *memRepo) ReplaceBackupCodes(_ context.Context, userID string, hashes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := make(map[string]*time.Time, len(hashes))
	for _, h := range hashes {
		codes[h] = nil
	}
	m.backup[userID] = codes
	return nil
}

func (m *memRepo) ClaimBackupCode(_ context.Context, userID, hash string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	codes := m.backup[userID]
	used, ok := codes[hash]
	if !ok || used != nil {
		return false, nil
	}
	codes[hash] = &now
	return true, nil
}

func (m *memRepo) CountUnusedBackupCodes(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, used := range m.backup[userID] {
		if used == nil {
			n++
		}
	}
	return n, nil
}

func (m *memRepo) DeleteBackupCodes(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.backup, userID)
	return nil
}

func (m *memRepo) InsertOAuthState(_ context.Context, s *OAuthState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.states[s.State] = &cp
	return nil
}

func (m *memRepo) ConsumeOAuthState(_ context.Context, state string) (*OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[state]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.states, state)
	return s, nil
}

func (m *memRepo) DeleteExpiredOAuthStates(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, s := range m.states {
		if !now.Before(s.ExpiresAt) {
			delete(m.states, k)
			n++
		}
	}
	return n, nil
}

func (m *memRepo) accountByEmail(t *testing.T, email string) *Account {
	t.Helper()
	a, err := m.FindAccountByEmail(context.Background(), email)
	require.NoError(t, err)
	return a
}

func (m *memRepo) activeOTPs(key OTPKey, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.otps {
		if m.matches(t, key) && t.ActiveAt(now) {
			n++
		}
	}
	return n
}

// --- sites ---

type memSites struct {
	sites map[string]*site.Site
}

func (s *memSites) Site(_ context.Context, id string) (*site.Site, error) {
	st, ok := s.sites[id]
	if !ok {
		return nil, site.ErrNotFound
	}
	return st, nil
}

func (s *memSites) Branding(_ context.Context, siteID string) site.Branding {
	b := site.Branding{SiteName: "Fallback", FromEmail: "noreply@example.com", FromName: "Fallback"}
	if st, ok := s.sites[siteID]; ok {
		b.SiteName, b.FromName = st.Name, st.Name
	}
	return b
}

// --- notifier ---

type sentEmail struct {
	To   string
	From notification.Sender
	Data templates.OTPData
}

type memNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	last templates.OTPData
	fail bool
}

func (n *memNotifier) Render(_ context.Context, id string, data any) (templates.Rendered, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if d, ok := data.(templates.OTPData); ok {
		n.last = d
	}
	return templates.Rendered{Subject: id, EmailText: "code"}, nil
}

func (n *memNotifier) Send(_ context.Context, msg notification.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errBoom
	}
	n.sent = append(n.sent, sentEmail{To: msg.Recipient, From: msg.From, Data: n.last})
	return nil
}

func (n *memNotifier) lastCode(t *testing.T) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.sent, "no email was sent")
	return n.sent[len(n.sent)-1].Data.Code
}

// --- sessions ---

type memSessionStore struct {
	mu   sync.Mutex
	rows map[string]*session.Session
}

func (m *memSessionStore) Insert(_ context.Context, s *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memSessionStore) FindByToken(_ context.Context, token string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.rows {
		if s.SessionToken == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, session.ErrNotFound
}

func (m *memSessionStore) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.rows[id]; ok {
		s.LastActivityAt = at
	}
	return nil
}

func (m *memSessionStore) ListActive(_ context.Context, userID string) ([]session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []session.Session
	for _, s := range m.rows {
		if s.UserID == userID && s.IsActive {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memSessionStore) Deactivate(_ context.Context, userID string, ids []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, id := range ids {
		if s, ok := m.rows[id]; ok && s.UserID == userID && s.IsActive {
			s.IsActive = false
			n++
		}
	}
	return n, nil
}

// --- audit ---

// brokenLocker stands in for an unreachable lock backend.
type brokenLocker struct{}

func (brokenLocker) Acquire(context.Context, string, time.Duration) (func(), error) {
	return nil, errBoom
}

func (brokenLocker) Claim(context.Context, string, time.Duration) (bool, error) {
	return false, errBoom
}

type memAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *memAuditor) Record(e audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, e)
}

func (a *memAuditor) last() audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.events) == 0 {
		return audit.Event{}
	}
	return a.events[len(a.events)-1]
}

// --- clock ---

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// --- harness ---

const testSiteID = "site-1"

type harness struct {
	svc      Service
	repo     *memRepo
	notifier *memNotifier
	sessions *memSessionStore
	audit    *memAuditor
	clock    *testClock
	locker   rate.Locker
	box      *secretbox.Box
	oauth    map[OAuthProvider]OAuthConnector
	sites    *memSites
	cfg      *config.Config
}

func testConfig() *config.Config {
	return &config.Config{
		Server:       config.ServerConfig{SiteURL: "https://app.example.com"},
		Verification: config.VerificationConfig{TTLMinutes: 15, ResendCooldownSeconds: 60, MaxAttempts: 5, CodeLength: 6},
		MFA:          config.MFAConfig{Issuer: "SiteBuilder", BackupCodeCount: 10},
		DeviceTrust:  config.DeviceTrustConfig{TTL: 90 * 24 * time.Hour},
		Session:      config.SessionConfig{SlidingTTL: 7 * 24 * time.Hour, AbsoluteTTL: 30 * 24 * time.Hour, CookieName: "site_session"},
		RateLimit:    config.RateLimitConfig{VerifyMax: 100, VerifyWindow: time.Minute, SignupLock: 30 * time.Second},
		Sweep:        config.SweepConfig{Interval: time.Hour, StaleAge: 24 * time.Hour},
		JWTSecret:    "test-secret",
	}
}

func newHarness(t *testing.T, opts ...func(*harness)) *harness {
	t.Helper()
	box, err := secretbox.New("test-encryption-key")
	require.NoError(t, err)

	h := &harness{
		repo:     newMemRepo(),
		notifier: &memNotifier{},
		sessions: &memSessionStore{rows: map[string]*session.Session{}},
		audit:    &memAuditor{},
		clock:    &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		locker:   rate.NewMemoryLocker("test:"),
		box:      box,
		oauth:    map[OAuthProvider]OAuthConnector{},
		sites: &memSites{sites: map[string]*site.Site{
			testSiteID: {ID: testSiteID, Name: "Acme"},
		}},
		cfg: testConfig(),
	}
	for _, o := range opts {
		o(h)
	}

	h.svc = NewService(&Config{
		Repo:     h.repo,
		Sites:    h.sites,
		Notifier: h.notifier,
		Sessions: session.NewRegistry(h.sessions, session.Config{Now: h.clock.Now}),
		Limiter:  rate.NewMemoryLimiter("test:", h.cfg.RateLimit.VerifyMax, h.cfg.RateLimit.VerifyWindow),
		Locker:   h.locker,
		Audit:    h.audit,
		Box:      h.box,
		OAuth:    h.oauth,
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		Config:   h.cfg,
		Now:      h.clock.Now,
	})
	return h
}

// confirmedUser creates a verified email account with the given password.
func (h *harness) confirmedUser(t *testing.T, email, password string) *Account {
	t.Helper()
	hash, err := hashPassword(password)
	require.NoError(t, err)
	now := h.clock.Now()
	a := &Account{
		ID:               "user-" + strings.Split(email, "@")[0],
		SiteID:           testSiteID,
		Email:            email,
		PasswordHash:     &hash,
		FirstName:        "Ada",
		AuthProvider:     AuthProviderEmail,
		EmailConfirmedAt: &now,
		CreatedAt:        now,
	}
	created, err := h.repo.CreateAccountIfAbsent(context.Background(), a)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, h.repo.CreateProfile(context.Background(), &Profile{ID: a.ID, SiteID: testSiteID, Email: email, Role: RoleMember, IsActive: true}))
	return a
}
