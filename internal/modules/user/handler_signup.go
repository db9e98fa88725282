package user

import (
	"context"

	"github.com/delordemm1/siteauth/internal/httpx"
	"github.com/delordemm1/siteauth/internal/validation"
)

// --- DTOs ---

type SignupWithOTPRequest struct {
	Body struct {
		Email     string `json:"email" validate:"required,email,max=254"`
		Password  string `json:"password" validate:"required,min=8,max=72"`
		FirstName string `json:"firstName" validate:"required,max=100"`
		LastName  string `json:"lastName" validate:"required,max=100"`
		SiteID    string `json:"siteId" validate:"required,uuid"`
		Role      string `json:"role,omitempty" validate:"omitempty,max=32"`
	}
}

type SignupWithOTPResponse struct {
	Body struct {
		Success          bool   `json:"success"`
		Message          string `json:"message"`
		UserID           string `json:"userId"`
		ExpiresInMinutes int    `json:"expiresInMinutes"`
	}
}

type VerifySignupOTPRequest struct {
	Body struct {
		Email  string `json:"email" validate:"required,email"`
		SiteID string `json:"siteId" validate:"required,uuid"`
		Code   string `json:"code" validate:"required,numeric,min=4,max=10"`
	}
}

type ResendSignupOTPRequest struct {
	Body struct {
		Email  string `json:"email" validate:"required,email"`
		SiteID string `json:"siteId" validate:"required,uuid"`
	}
}

// --- Handlers ---

// SignupWithOTPHandler creates an unconfirmed account and emails its code. The
// code itself is never part of the response.
func (h *Handler) SignupWithOTPHandler(ctx context.Context, input *SignupWithOTPRequest) (*SignupWithOTPResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}

	res, err := h.service.SignupWithOTP(ctx, SignupInput{
		Email:     input.Body.Email,
		Password:  input.Body.Password,
		FirstName: input.Body.FirstName,
		LastName:  input.Body.LastName,
		SiteID:    input.Body.SiteID,
		Role:      input.Body.Role,
	})
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}

	resp := &SignupWithOTPResponse{}
	resp.Body.Success = true
	resp.Body.Message = "Account created. Check your email for the verification code."
	resp.Body.UserID = res.UserID
	resp.Body.ExpiresInMinutes = res.ExpiresInMinutes
	return resp, nil
}

func (h *Handler) VerifySignupOTPHandler(ctx context.Context, input *VerifySignupOTPRequest) (*MessageResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}

	err := h.service.VerifySignupOTP(ctx, VerifyCodeInput{
		Email:  input.Body.Email,
		SiteID: input.Body.SiteID,
		Code:   input.Body.Code,
	})
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return message("Email verified. You can now sign in."), nil
}

// ResendSignupOTPHandler does not reveal whether the email belongs to an account.
func (h *Handler) ResendSignupOTPHandler(ctx context.Context, input *ResendSignupOTPRequest) (*MessageResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}

	if err := h.service.ResendSignupOTP(ctx, input.Body.Email, input.Body.SiteID); err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return message("If the account is awaiting verification, a new code has been sent."), nil
}
