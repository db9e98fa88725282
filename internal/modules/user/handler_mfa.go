package user

import (
	"context"

	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/httpx"
	"github.com/delordemm1/siteauth/internal/validation"
)

// --- DTOs ---

type MFACodeRequest struct {
	Body struct {
		Code string `json:"code" validate:"required,max=32"`
	}
}

type MFAStatusResponse struct {
	Body struct {
		Enabled              bool `json:"enabled"`
		RemainingBackupCodes int  `json:"remainingBackupCodes"`
	}
}

type TOTPSetupResponse struct {
	Body struct {
		Secret     string `json:"secret"`
		OTPAuthURL string `json:"otpauthUrl"`
	}
}

// BackupCodesResponse shows the codes once; only their hashes are kept.
type BackupCodesResponse struct {
	Body struct {
		Success     bool     `json:"success"`
		BackupCodes []string `json:"backupCodes"`
	}
}

func backupCodes(codes []string) *BackupCodesResponse {
	resp := &BackupCodesResponse{}
	resp.Body.Success = true
	resp.Body.BackupCodes = codes
	return resp
}

// --- Handlers ---

func (h *Handler) MFAStatusHandler(ctx context.Context, _ *struct{}) (*MFAStatusResponse, error) {
	st, err := h.service.MFAStatus(ctx, contextx.UserID(ctx))
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	resp := &MFAStatusResponse{}
	resp.Body.Enabled = st.Enabled
	resp.Body.RemainingBackupCodes = st.RemainingBackupCodes
	return resp, nil
}

func (h *Handler) SetupTOTPHandler(ctx context.Context, _ *struct{}) (*TOTPSetupResponse, error) {
	setup, err := h.service.SetupTOTP(ctx, contextx.UserID(ctx))
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	resp := &TOTPSetupResponse{}
	resp.Body.Secret = setup.Secret
	resp.Body.OTPAuthURL = setup.OTPAuthURL
	return resp, nil
}

func (h *Handler) ActivateTOTPHandler(ctx context.Context, input *MFACodeRequest) (*BackupCodesResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}
	codes, err := h.service.ActivateTOTP(ctx, contextx.UserID(ctx), input.Body.Code)
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return backupCodes(codes), nil
}

func (h *Handler) DisableTOTPHandler(ctx context.Context, input *MFACodeRequest) (*MessageResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}
	if err := h.service.DisableTOTP(ctx, contextx.UserID(ctx), input.Body.Code); err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return message("Two-factor authentication disabled."), nil
}

func (h *Handler) RegenerateBackupCodesHandler(ctx context.Context, input *MFACodeRequest) (*BackupCodesResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}
	codes, err := h.service.RegenerateBackupCodes(ctx, contextx.UserID(ctx), input.Body.Code)
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return backupCodes(codes), nil
}
