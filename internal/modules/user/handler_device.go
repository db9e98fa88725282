package user

import (
	"context"
	"time"

	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/device"
	"github.com/delordemm1/siteauth/internal/httpx"
	"github.com/delordemm1/siteauth/internal/session"
	"github.com/delordemm1/siteauth/internal/validation"
)

// --- DTOs ---

type DeviceDTO struct {
	DeviceID       string    `json:"deviceId"`
	DeviceName     string    `json:"deviceName"`
	DeviceType     string    `json:"deviceType"`
	IsTrusted      bool      `json:"isTrusted"`
	TrustedAt      time.Time `json:"trustedAt"`
	TrustExpiresAt time.Time `json:"trustExpiresAt"`
	LastIP         string    `json:"lastIp,omitempty"`
	LastSeenAt     time.Time `json:"lastSeenAt"`
	Current        bool      `json:"current"`
}

type DeviceListResponse struct {
	Body struct {
		Success bool        `json:"success"`
		Devices []DeviceDTO `json:"devices"`
	}
}

type TrustDeviceRequest struct {
	Body device.Descriptor
}

type DeviceIDPath struct {
	DeviceID string `path:"deviceId" maxLength:"128"`
}

type UpdateDeviceRequest struct {
	DeviceID string `path:"deviceId" maxLength:"128"`
	Body     struct {
		DeviceName *string `json:"deviceName,omitempty" validate:"omitempty,min=1,max=255"`
		IsTrusted  *bool   `json:"isTrusted,omitempty"`
	}
}

type DeviceTrustStatusResponse struct {
	Body struct {
		Trusted bool `json:"trusted"`
	}
}

type SessionDTO struct {
	ID             string    `json:"id"`
	DeviceID       string    `json:"deviceId"`
	DeviceName     string    `json:"deviceName"`
	Browser        string    `json:"browser"`
	OS             string    `json:"os"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	Country        string    `json:"country,omitempty"`
	City           string    `json:"city,omitempty"`
	AuthMethod     string    `json:"authMethod"`
	MFAVerified    bool      `json:"mfaVerified"`
	LastActivityAt time.Time `json:"lastActivityAt"`
	CreatedAt      time.Time `json:"createdAt"`
	Current        bool      `json:"current"`
}

type SessionListResponse struct {
	Body struct {
		Success  bool         `json:"success"`
		Sessions []SessionDTO `json:"sessions"`
	}
}

type SessionIDPath struct {
	SessionID string `path:"sessionId" format:"uuid"`
}

type RevokeOthersResponse struct {
	Body struct {
		Success bool `json:"success"`
		Revoked int  `json:"revoked"`
	}
}

// --- Mappers ---

func toDeviceList(ctx context.Context, devices []TrustedDevice) *DeviceListResponse {
	current := contextx.DeviceID(ctx)
	resp := &DeviceListResponse{}
	resp.Body.Success = true
	resp.Body.Devices = make([]DeviceDTO, 0, len(devices))
	for _, d := range devices {
		resp.Body.Devices = append(resp.Body.Devices, DeviceDTO{
			DeviceID:       d.DeviceID,
			DeviceName:     d.DeviceName,
			DeviceType:     d.DeviceType,
			IsTrusted:      d.IsTrusted,
			TrustedAt:      d.TrustedAt,
			TrustExpiresAt: d.TrustExpiresAt,
			LastIP:         d.LastIP,
			LastSeenAt:     d.LastSeenAt,
			Current:        d.DeviceID == current,
		})
	}
	return resp
}

func toSessionList(ctx context.Context, sessions []session.Session) *SessionListResponse {
	current := contextx.SessionID(ctx)
	resp := &SessionListResponse{}
	resp.Body.Success = true
	resp.Body.Sessions = make([]SessionDTO, 0, len(sessions))
	for _, s := range sessions {
		resp.Body.Sessions = append(resp.Body.Sessions, SessionDTO{
			ID:             s.ID,
			DeviceID:       s.DeviceID,
			DeviceName:     s.DeviceName,
			Browser:        s.Browser,
			OS:             s.OS,
			IPAddress:      s.IPAddress,
			Country:        s.Country,
			City:           s.City,
			AuthMethod:     s.AuthMethod,
			MFAVerified:    s.MFAVerified,
			LastActivityAt: s.LastActivityAt,
			CreatedAt:      s.CreatedAt,
			Current:        s.ID == current,
		})
	}
	return resp
}

// --- Device handlers ---

func (h *Handler) ListDevicesHandler(ctx context.Context, _ *struct{}) (*DeviceListResponse, error) {
	devices, err := h.service.ListDevices(ctx, contextx.UserID(ctx))
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return toDeviceList(ctx, devices), nil
}

func (h *Handler) TrustDeviceHandler(ctx context.Context, input *TrustDeviceRequest) (*DeviceListResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}
	devices, err := h.service.TrustDevice(ctx, contextx.UserID(ctx), input.Body)
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return toDeviceList(ctx, devices), nil
}

func (h *Handler) DeviceTrustStatusHandler(ctx context.Context, input *DeviceIDPath) (*DeviceTrustStatusResponse, error) {
	trusted, err := h.service.IsDeviceTrusted(ctx, contextx.UserID(ctx), input.DeviceID)
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	resp := &DeviceTrustStatusResponse{}
	resp.Body.Trusted = trusted
	return resp, nil
}

func (h *Handler) UpdateDeviceHandler(ctx context.Context, input *UpdateDeviceRequest) (*DeviceListResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}
	devices, err := h.service.UpdateDeviceTrust(ctx, contextx.UserID(ctx), input.DeviceID, TrustedDevicePatch{
		DeviceName: input.Body.DeviceName,
		IsTrusted:  input.Body.IsTrusted,
	})
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return toDeviceList(ctx, devices), nil
}

func (h *Handler) RevokeDeviceHandler(ctx context.Context, input *DeviceIDPath) (*DeviceListResponse, error) {
	devices, err := h.service.RevokeDevice(ctx, contextx.UserID(ctx), input.DeviceID)
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return toDeviceList(ctx, devices), nil
}

// --- Session handlers ---

func (h *Handler) ListSessionsHandler(ctx context.Context, _ *struct{}) (*SessionListResponse, error) {
	list, err := h.service.ListSessions(ctx, contextx.UserID(ctx))
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return toSessionList(ctx, list), nil
}

func (h *Handler) RevokeSessionHandler(ctx context.Context, input *SessionIDPath) (*MessageResponse, error) {
	if err := h.service.RevokeSession(ctx, contextx.UserID(ctx), input.SessionID); err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return message("Session revoked."), nil
}

// RevokeOtherSessionsHandler keeps every session of the current device.
func (h *Handler) RevokeOtherSessionsHandler(ctx context.Context, _ *struct{}) (*RevokeOthersResponse, error) {
	n, err := h.service.RevokeOtherSessions(ctx, contextx.UserID(ctx), contextx.DeviceID(ctx))
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	resp := &RevokeOthersResponse{}
	resp.Body.Success = true
	resp.Body.Revoked = n
	return resp, nil
}
