package user

import (
	"context"
	"net/http"

	"github.com/delordemm1/siteauth/internal/httpx"
)

// --- DTOs ---

type OAuthBeginRequest struct {
	Provider   string `path:"provider" enum:"google,github,microsoft"`
	SiteID     string `query:"siteId" required:"true"`
	RedirectTo string `query:"redirectTo"`
}

// RedirectResponse sends the browser elsewhere with a 302.
type RedirectResponse struct {
	Status    int
	Location  string        `header:"Location"`
	SetCookie []http.Cookie `header:"Set-Cookie"`
}

// OAuthCallbackRequest defines the query parameters sent by the OAuth provider.
type OAuthCallbackRequest struct {
	Provider string `path:"provider"`
	Code     string `query:"code"`
	State    string `query:"state"`
	Error    string `query:"error"`
}

type MagicLinkRequest struct {
	Token string `query:"token" required:"true"`
}

func redirect(location string) *RedirectResponse {
	return &RedirectResponse{Status: http.StatusFound, Location: location}
}

// --- Handlers ---

// OAuthBeginHandler redirects to the provider's consent page.
func (h *Handler) OAuthBeginHandler(ctx context.Context, input *OAuthBeginRequest) (*RedirectResponse, error) {
	h.logger.Info("initiating oauth login", "provider", input.Provider)

	authURL, err := h.service.BeginOAuth(ctx, OAuthProvider(input.Provider), input.SiteID, input.RedirectTo)
	if err != nil {
		h.logger.Error("failed to initiate oauth login", "error", err)
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return redirect(authURL), nil
}

// OAuthCallbackHandler always redirects: to a magic link on success, to the
// site's /auth page with an error reason otherwise.
func (h *Handler) OAuthCallbackHandler(ctx context.Context, input *OAuthCallbackRequest) (*RedirectResponse, error) {
	h.logger.Info("handling oauth callback", "provider", input.Provider)

	location := h.service.HandleOAuthCallback(ctx, OAuthCallbackInput{
		Provider: OAuthProvider(input.Provider),
		Code:     input.Code,
		State:    input.State,
		Error:    input.Error,
	})
	return redirect(location), nil
}

// MagicLinkHandler consumes a one-time link, sets the session cookie and
// continues to the site.
func (h *Handler) MagicLinkHandler(ctx context.Context, input *MagicLinkRequest) (*RedirectResponse, error) {
	res, err := h.service.ConsumeMagicLink(ctx, input.Token)
	if err != nil {
		h.logger.Warn("magic link rejected", "error", err)
		return redirect(h.siteErrorURL("invalid_magic_link")), nil
	}
	resp := redirect(res.RedirectTo)
	resp.SetCookie = []http.Cookie{h.sessionCookie(res.Session)}
	return resp, nil
}

func (h *Handler) siteErrorURL(reason string) string {
	base := h.config.Server.SiteURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/auth?error=" + reason
}
