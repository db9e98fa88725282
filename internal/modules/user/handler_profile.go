package user

import (
	"context"
	"time"

	"github.com/delordemm1/siteauth/internal/contextx"
	"github.com/delordemm1/siteauth/internal/httpx"
	"github.com/delordemm1/siteauth/internal/validation"
)

// --- DTOs ---

type MeBody struct {
	ID             string    `json:"id"`
	Email          string    `json:"email"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	SiteID         string    `json:"siteId"`
	AuthProvider   string    `json:"authProvider"`
	EmailConfirmed bool      `json:"emailConfirmed"`
	Role           string    `json:"role,omitempty"`
	ProfileActive  bool      `json:"profileActive"`
	MFAEnabled     bool      `json:"mfaEnabled"`
	CreatedAt      time.Time `json:"createdAt"`
}

type MeResponse struct {
	Body MeBody
}

// UpdateMeRequest defines the request body for updating a user's profile.
// Pointers are used to allow for partial updates.
type UpdateMeRequest struct {
	Body struct {
		FirstName *string `json:"firstName,omitempty" validate:"omitempty,min=1,max=100"`
		LastName  *string `json:"lastName,omitempty" validate:"omitempty,min=1,max=100"`
	}
}

// --- Mapper ---

func toMeResponse(me *Me) *MeResponse {
	a := me.Account
	body := MeBody{
		ID:             a.ID,
		Email:          a.Email,
		FirstName:      a.FirstName,
		LastName:       a.LastName,
		SiteID:         a.SiteID,
		AuthProvider:   a.AuthProvider,
		EmailConfirmed: a.Confirmed(),
		MFAEnabled:     me.MFA,
		CreatedAt:      a.CreatedAt,
	}
	if me.Profile != nil {
		body.Role = me.Profile.Role
		body.ProfileActive = me.Profile.IsActive
	}
	return &MeResponse{Body: body}
}

// --- Handlers ---

// GetMeHandler retrieves the profile of the currently authenticated user.
func (h *Handler) GetMeHandler(ctx context.Context, _ *struct{}) (*MeResponse, error) {
	me, err := h.service.GetMe(ctx, contextx.UserID(ctx))
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return toMeResponse(me), nil
}

// UpdateMeHandler updates the profile of the currently authenticated user.
func (h *Handler) UpdateMeHandler(ctx context.Context, input *UpdateMeRequest) (*MeResponse, error) {
	if verr := validation.ValidateStruct(&input.Body); verr != nil {
		return nil, httpx.ToEnvelope(ctx, verr)
	}
	me, err := h.service.UpdateProfile(ctx, contextx.UserID(ctx), UpdateProfileInput{
		FirstName: input.Body.FirstName,
		LastName:  input.Body.LastName,
	})
	if err != nil {
		return nil, httpx.ToEnvelope(ctx, err)
	}
	return toMeResponse(me), nil
}
