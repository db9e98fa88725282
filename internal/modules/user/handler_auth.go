package user

import (
	"context"
	"net/http"
	"time"

	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/device"
	"github.com/delordemm1/siteauth/internal/httpx"
	"github.com/delordemm1/siteauth/internal/validation"
)

// --- DTOs (Data Transfer Objects) ---

// LoginRequest defines the structure for the user login request body.
type LoginRequest struct {
	Body struct {
		Email      string             `json:"email" validate:"required,email"`
		Password   string             `json:"password" validate:"required"`
		DeviceInfo *device.Descriptor `json:"deviceInfo,omitempty" validate:"omitempty"`
	}
}

// LoginResponse carries a session, or mfaRequired when a second factor is due.
type LoginResponse struct {
	SetCookie []http.Cookie `header:"Set-Cookie"`
	Body      struct {
		Success      bool       `json:"success"`
		MFARequired  bool       `json:"mfaRequired,omitempty"`
		MFAChallenge string     `json:"mfaChallenge,omitempty"`
		UserID       string     `json:"userId,omitempty"`
		SessionToken string     `json:"sessionToken,omitempty"`
		ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	}
}

type LogoutResponse struct {
	SetCookie []http.Cookie `header:"Set-Cookie"`
	Body      struct {
		Success bool `json:"success"`
	}
}

// VerifyMFALoginRequest selects one factor through Action. Challenge is the
// mfaChallenge returned by login.
type VerifyMFALoginRequest struct {
	Body struct {
		Action      string             `json:"action" validate:"required,oneof=verify verify_backup"`
		Challenge   string             `json:"challenge" validate:"required,jwt"`
		Code        string             `json:"code" validate:"required,max=32"`
		TrustDevice bool               `json:"trustDevice,omitempty"`
		DeviceInfo  *device.Descriptor `json:"deviceInfo,omitempty" validate:"omitempty"`
	}
}

// totpCode is checked only for action=verify, before any lookup.
type totpCode struct {
	Code string `json:"code" validate:"numeric,len=6"`
}

type VerifyMFALoginResponse struct {
	SetCookie []http.Cookie `header:"Set-Cookie"`
	Body      struct {
		Success        bool   `json:"success"`
		RemainingCodes *int   `json:"remainingCodes,omitempty"`
		SessionToken   string `json:"sessionToken,omitempty"`
	}
}

// --- Handlers ---

// LoginHandler handles the user login endpoint.
func (h *Handler) LoginHandler(ctx context.Context, input *LoginRequest) (*LoginResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}

	res, err := h.service.Login(ctx, LoginInput{
		Email:    input.Body.Email,
		Password: input.Body.Password,
		Device:   input.Body.DeviceInfo,
	})
	if err != nil {
		h.logger.Warn("login attempt failed", "error", err)
		return nil, httpx.ToEnvelope(ctx, err)
	}

	resp := &LoginResponse{}
	resp.Body.Success = true
	if res.MFARequired {
		resp.Body.MFARequired = true
		resp.Body.MFAChallenge = res.MFAChallenge
		resp.Body.UserID = res.UserID
		return resp, nil
	}
	resp.Body.UserID = res.UserID
	resp.Body.SessionToken = res.Session.SessionToken
	resp.Body.ExpiresAt = &res.Session.ExpiresAt
	resp.SetCookie = []http.Cookie{h.sessionCookie(res.Session)}
	return resp, nil
}

func (h *Handler) LogoutHandler(ctx context.Context, _ *struct{}) (*LogoutResponse, error) {
	if err := h.service.Logout(ctx, contextx.SessionToken(ctx)); err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	resp := &LogoutResponse{SetCookie: []http.Cookie{h.clearSessionCookie()}}
	resp.Body.Success = true
	return resp, nil
}

// VerifyMFALoginHandler checks a TOTP or backup code and opens the session.
// Rejections share one generic message.
func (h *Handler) VerifyMFALoginHandler(ctx context.Context, input *VerifyMFALoginRequest) (*VerifyMFALoginResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}
	if input.Body.Action == MFAActionVerify {
		if verr := validation.ValidateStruct(&totpCode{Code: input.Body.Code}); verr != nil {
			return nil, httpx.ToEnvelope(ctx, verr)
		}
	}

	res, err := h.service.VerifyMFALogin(ctx, MFALoginInput{
		Action:      input.Body.Action,
		Challenge:   input.Body.Challenge,
		Code:        input.Body.Code,
		TrustDevice: input.Body.TrustDevice,
		Device:      input.Body.DeviceInfo,
	})
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}

	resp := &VerifyMFALoginResponse{SetCookie: []http.Cookie{h.sessionCookie(res.Session)}}
	resp.Body.Success = true
	resp.Body.RemainingCodes = res.RemainingCodes
	resp.Body.SessionToken = res.Session.SessionToken
	return resp, nil
}
