package user

import (
	"context"

	"github.com/delordemm1/siteauth/internal/httpx"
	"github.com/delordemm1/siteauth/internal/validation"
)

// --- DTOs ---

type ForgotPasswordRequest struct {
	Body struct {
		Email  string `json:"email" validate:"required,email"`
		SiteID string `json:"siteId" validate:"required,uuid"`
	}
}

type ResetPasswordRequest struct {
	Body struct {
		Email       string `json:"email" validate:"required,email"`
		SiteID      string `json:"siteId" validate:"required,uuid"`
		Code        string `json:"code" validate:"required,numeric,min=4,max=10"`
		NewPassword string `json:"newPassword" validate:"required,min=8,max=72"`
	}
}

// --- Handlers ---

// ForgotPasswordHandler always acknowledges, whether or not the email exists.
func (h *Handler) ForgotPasswordHandler(ctx context.Context, input *ForgotPasswordRequest) (*MessageResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}
	if err := h.service.ForgotPassword(ctx, input.Body.Email, input.Body.SiteID); err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return message("If an account with that email exists, a reset code has been sent."), nil
}

func (h *Handler) ResetPasswordHandler(ctx context.Context, input *ResetPasswordRequest) (*MessageResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}
	err := h.service.ResetPassword(ctx, ResetPasswordInput{
		Email:       input.Body.Email,
		SiteID:      input.Body.SiteID,
		Code:        input.Body.Code,
		NewPassword: input.Body.NewPassword,
	})
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return message("Password updated. Please sign in again."), nil
}
