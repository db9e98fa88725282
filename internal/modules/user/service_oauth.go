package user

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/delordemm1/siteauth/internal/audit"
	"github.com/delordemm1/siteauth/internal/config"
	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/microsoft"
)

const (
	oauthStateTTL    = 10 * time.Minute
	oauthHTTPTimeout = 10 * time.Second
)

// OAuth failure reasons, reported to the site as /auth?error=<reason>.
const (
	ReasonInvalidCallback       = "invalid_callback"
	ReasonInvalidState          = "invalid_state"
	ReasonStateExpired          = "state_expired"
	ReasonTokenExchangeFailed   = "token_exchange_failed"
	ReasonNoAccessToken         = "no_access_token"
	ReasonUserInfoFailed        = "userinfo_failed"
	ReasonDomainNotAllowed      = "domain_not_allowed"
	ReasonUserCreationFailed    = "user_creation_failed"
	ReasonSessionCreationFailed = "session_creation_failed"
	ReasonCallbackFailed        = "oauth_callback_failed"
)

// OAuthUserInfo holds the standardized user information extracted from a provider.
type OAuthUserInfo struct {
	ID            string
	Email         string
	EmailVerified bool
	Name          string
}

// OAuthConnector wraps one provider's authorization code flow.
type OAuthConnector interface {
	AuthCodeURL(state, verifier string) string
	Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error)
	UserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error)
}

type OAuthCallbackInput struct {
	Provider OAuthProvider
	Code     string
	State    string
	Error    string
}

// connectorsFromConfig enables every provider that has a client id.
func connectorsFromConfig(cfg *config.Config) map[OAuthProvider]OAuthConnector {
	out := map[OAuthProvider]OAuthConnector{}
	if cfg == nil {
		return out
	}
	if c := cfg.Google; c.ClientID != "" {
		out[OAuthProviderGoogle] = &oauth2Connector{
			config: &oauth2.Config{
				ClientID:     c.ClientID,
				ClientSecret: c.ClientSecret,
				RedirectURL:  c.RedirectURL,
				Endpoint:     google.Endpoint,
				Scopes:       []string{"openid", "email", "profile"},
			},
			fetch: googleUserInfo,
		}
	}
	if c := cfg.GitHub; c.ClientID != "" {
		out[OAuthProviderGitHub] = &oauth2Connector{
			config: &oauth2.Config{
				ClientID:     c.ClientID,
				ClientSecret: c.ClientSecret,
				RedirectURL:  c.RedirectURL,
				Endpoint:     github.Endpoint,
				Scopes:       []string{"read:user", "user:email"},
			},
			fetch: githubUserInfo,
		}
	}
	if c := cfg.Microsoft; c.ClientID != "" {
		tenant := c.Tenant
		if tenant == "" {
			tenant = "common"
		}
		out[OAuthProviderMicrosoft] = &oauth2Connector{
			config: &oauth2.Config{
				ClientID:     c.ClientID,
				ClientSecret: c.ClientSecret,
				RedirectURL:  c.RedirectURL,
				Endpoint:     microsoft.AzureADEndpoint(tenant),
				Scopes:       []string{"openid", "email", "profile", "User.Read"},
			},
			fetch: microsoftUserInfo,
		}
	}
	return out
}

type oauth2Connector struct {
	config *oauth2.Config
	fetch  func(ctx context.Context, client *http.Client) (*OAuthUserInfo, error)
}

func withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, &http.Client{Timeout: oauthHTTPTimeout})
}

func (c *oauth2Connector) AuthCodeURL(state, verifier string) string {
	return c.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

func (c *oauth2Connector) Exchange(ctx context.Context, code, verifier string) (*oauth2.Token, error) {
	return c.config.Exchange(withHTTPClient(ctx), code, oauth2.VerifierOption(verifier))
}

func (c *oauth2Connector) UserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error) {
	ctx = withHTTPClient(ctx)
	return c.fetch(ctx, c.config.Client(ctx, token))
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func googleUserInfo(ctx context.Context, client *http.Client) (*OAuthUserInfo, error) {
	var u struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		VerifiedEmail bool   `json:"verified_email"`
		Name          string `json:"name"`
	}
	if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &u); err != nil {
		return nil, err
	}
	return &OAuthUserInfo{ID: u.ID, Email: u.Email, EmailVerified: u.VerifiedEmail, Name: u.Name}, nil
}

func githubUserInfo(ctx context.Context, client *http.Client) (*OAuthUserInfo, error) {
	var u struct {
		ID    int64  `json:"id"`
		Login string `json:"login"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user", &u); err != nil {
		return nil, err
	}
	info := &OAuthUserInfo{ID: strconv.FormatInt(u.ID, 10), Name: u.Name}
	if info.Name == "" {
		info.Name = u.Login
	}

	// the profile email may be private; the emails endpoint says which one is verified
	var emails []struct {
		Email    string `json:"email"`
		Primary  bool   `json:"primary"`
		Verified bool   `json:"verified"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user/emails", &emails); err != nil {
		return nil, err
	}
	for _, e := range emails {
		if e.Primary && e.Verified {
			info.Email, info.EmailVerified = e.Email, true
			break
		}
	}
	return info, nil
}

func microsoftUserInfo(ctx context.Context, client *http.Client) (*OAuthUserInfo, error) {
	var u struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := getJSON(ctx, client, "https://graph.microsoft.com/v1.0/me", &u); err != nil {
		return nil, err
	}
	email := u.Mail
	if email == "" && strings.Contains(u.UserPrincipalName, "@") {
		email = u.UserPrincipalName
	}
	return &OAuthUserInfo{ID: u.ID, Email: email, EmailVerified: email != "", Name: u.DisplayName}, nil
}

// BeginOAuth stores a single-use state with its PKCE verifier and returns the
// provider's consent URL.
func (s *service) BeginOAuth(ctx context.Context, provider OAuthProvider, siteID, redirectTo string) (string, error) {
	conn, ok := s.oauth[provider]
	if !ok {
		return "", ErrUnsupportedOAuthProvider.WithDetail(fmt.Sprintf("unsupported oauth provider: %s", provider))
	}
	if _, err := s.resolveSite(ctx, siteID); err != nil {
		return "", err
	}

	state, err := generateSecureToken(32)
	if err != nil {
		return "", ErrInternal.WithCause(fmt.Errorf("failed to generate oauth state: %w", err))
	}
	verifier := oauth2.GenerateVerifier()
	now := s.now()
	err = s.repo.InsertOAuthState(ctx, &OAuthState{
		State:      state,
		Provider:   provider,
		SiteID:     siteID,
		Verifier:   verifier,
		RedirectTo: safeRedirectPath(redirectTo),
		ExpiresAt:  now.Add(oauthStateTTL),
		CreatedAt:  now,
	})
	if err != nil {
		s.logger.Error("failed to store oauth state", "error", err)
		return "", ErrInternal.WithCause(err)
	}
	return conn.AuthCodeURL(state, verifier), nil
}

// HandleOAuthCallback finishes the provider flow and returns where to send the
// browser: a magic link on success, the site's /auth page with a reason otherwise.
func (s *service) HandleOAuthCallback(ctx context.Context, in OAuthCallbackInput) string {
	fail := func(reason string, err error, userID *string) string {
		if err != nil {
			s.logger.Warn("oauth callback failed", "provider", in.Provider, "reason", reason, "error", err)
		} else {
			s.logger.Warn("oauth callback failed", "provider", in.Provider, "reason", reason)
		}
		s.metrics.VerificationRejected("oauth", reason)
		s.record(ctx, audit.Event{UserID: userID, Action: audit.ActionOAuthCallback, Outcome: audit.OutcomeRejected, Reason: reason})
		return s.siteURL("/auth", url.Values{"error": {reason}})
	}

	conn, ok := s.oauth[in.Provider]
	if !ok || in.Error != "" || in.Code == "" || in.State == "" {
		return fail(ReasonInvalidCallback, nil, nil)
	}

	st, err := s.repo.ConsumeOAuthState(ctx, in.State)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fail(ReasonInvalidState, nil, nil)
		}
		return fail(ReasonCallbackFailed, err, nil)
	}
	if st.Provider != in.Provider {
		return fail(ReasonInvalidState, nil, nil)
	}
	if !s.now().Before(st.ExpiresAt) {
		return fail(ReasonStateExpired, nil, nil)
	}

	token, err := conn.Exchange(ctx, in.Code, st.Verifier)
	if err != nil {
		return fail(ReasonTokenExchangeFailed, err, nil)
	}
	if token == nil || token.AccessToken == "" {
		return fail(ReasonNoAccessToken, nil, nil)
	}
	info, err := conn.UserInfo(ctx, token)
	if err != nil {
		return fail(ReasonUserInfoFailed, err, nil)
	}
	if info.Email == "" || !info.EmailVerified {
		return fail(ReasonUserInfoFailed, ErrOAuthEmailMissing, nil)
	}

	tenant, err := s.resolveSite(ctx, st.SiteID)
	if err != nil {
		return fail(ReasonCallbackFailed, err, nil)
	}
	if !tenant.AllowsSSODomain(info.Email) {
		return fail(ReasonDomainNotAllowed, nil, nil)
	}

	account, err := s.provisionOAuthAccount(ctx, st, info)
	if err != nil {
		return fail(ReasonUserCreationFailed, err, nil)
	}

	mfaOn, err := s.totpEnabled(ctx, account.ID)
	if err != nil {
		return fail(ReasonCallbackFailed, err, &account.ID)
	}
	if mfaOn {
		trusted, err := s.IsDeviceTrusted(ctx, account.ID, contextx.DeviceID(ctx))
		if err != nil {
			return fail(ReasonCallbackFailed, err, &account.ID)
		}
		if !trusted {
			challenge, err := s.issueMFAChallenge(account.ID)
			if err != nil {
				return fail(ReasonSessionCreationFailed, err, &account.ID)
			}
			return s.siteURL("/auth/mfa", url.Values{"challenge": {challenge}})
		}
	}

	link, err := s.issueMagicLink(account.ID, st.SiteID, "oauth:"+string(in.Provider), st.RedirectTo)
	if err != nil {
		return fail(ReasonSessionCreationFailed, err, &account.ID)
	}
	s.record(ctx, audit.Event{UserID: &account.ID, SiteID: strPtr(st.SiteID), Email: account.Email, Action: audit.ActionOAuthCallback, Outcome: audit.OutcomeSuccess, Reason: string(in.Provider)})
	return "/auth/magic-link?" + url.Values{"token": {link}}.Encode()
}

// provisionOAuthAccount finds the confirmed account by email or creates one.
// A pending signup for the address is discarded, never linked.
func (s *service) provisionOAuthAccount(ctx context.Context, st *OAuthState, info *OAuthUserInfo) (*Account, error) {
	email := normalizeEmail(info.Email)
	account, err := s.repo.FindAccountByEmail(ctx, email)
	switch {
	case err == nil && account.Confirmed():
		return account, nil
	case err == nil:
		if err := s.discardPendingSignup(ctx, account); err != nil {
			return nil, err
		}
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	firstName, lastName := splitName(info.Name)
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	now := s.now()
	account = &Account{
		ID:               id.String(),
		SiteID:           st.SiteID,
		Email:            email,
		FirstName:        firstName,
		LastName:         lastName,
		AuthProvider:     string(st.Provider),
		EmailConfirmedAt: &now,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	created, err := s.repo.CreateAccountIfAbsent(ctx, account)
	if err != nil {
		return nil, err
	}
	if !created {
		// lost a race with another signup for the same address
		return s.repo.FindAccountByEmail(ctx, email)
	}
	err = s.repo.CreateProfile(ctx, &Profile{
		ID:        account.ID,
		SiteID:    st.SiteID,
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Role:      RoleMember,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.logger.Warn("oauth: create profile failed", "error", err, "user_id", account.ID)
	}
	s.logger.Info("new user created via oauth", "user_id", account.ID, "provider", st.Provider)
	return account, nil
}

func (s *service) discardPendingSignup(ctx context.Context, account *Account) error {
	key := OTPKey{SiteID: account.SiteID, Email: account.Email, Purpose: OTPPurposeConfirmSignup}
	if _, err := s.repo.InvalidateActiveOTPs(ctx, key, s.now()); err != nil {
		return err
	}
	if err := s.repo.DeleteAccount(ctx, account.ID); err != nil {
		return err
	}
	s.logger.Info("oauth: discarded unconfirmed signup", "user_id", account.ID)
	return nil
}

func (s *service) PurgeExpiredOAuthStates(ctx context.Context) (int, error) {
	n, err := s.repo.DeleteExpiredOAuthStates(ctx, s.now())
	return int(n), err
}

func splitName(name string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(name), " ", 2)
	first := parts[0]
	last := ""
	if len(parts) > 1 {
		last = strings.TrimSpace(parts[1])
	}
	return first, last
}

// safeRedirectPath keeps only same-site absolute paths.
func safeRedirectPath(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.Contains(p, "\\") {
		return ""
	}
	return p
}

func (s *service) siteURL(path string, q url.Values) string {
	u := strings.TrimRight(s.config.Server.SiteURL, "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}
