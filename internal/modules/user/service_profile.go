package user

import (
	"context"
	"errors"
	"strings"
)

// UpdateProfileInput defines the updatable fields for a user's profile.
// Using pointers allows us to distinguish between a field not being provided (nil)
// and a field being set to its zero value.
type UpdateProfileInput struct {
	FirstName *string
	LastName  *string
}

// Me is the signed-in user as shown to the client.
type Me struct {
	Account *Account
	Profile *Profile
	MFA     bool
}

// GetMe retrieves the account and, when present, the site profile.
func (s *service) GetMe(ctx context.Context, userID string) (*Me, error) {
	account, err := s.repo.FindAccountByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound.WithCause(err)
		}
		s.logger.Error("failed to get account from repository", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}
	me := &Me{Account: account}

	profile, err := s.repo.FindProfile(ctx, userID)
	switch {
	case err == nil:
		me.Profile = profile
	case !errors.Is(err, ErrNotFound):
		s.logger.Error("failed to get profile from repository", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}

	if me.MFA, err = s.totpEnabled(ctx, userID); err != nil {
		return nil, err
	}
	return me, nil
}

// UpdateProfile updates the names on the account and its profile.
func (s *service) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*Me, error) {
	if input.FirstName != nil {
		v := strings.TrimSpace(*input.FirstName)
		input.FirstName = &v
	}
	if input.LastName != nil {
		v := strings.TrimSpace(*input.LastName)
		input.LastName = &v
	}
	if err := s.repo.UpdateNames(ctx, userID, input.FirstName, input.LastName); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound.WithCause(err)
		}
		s.logger.Error("failed to update profile", "error", err, "user_id", userID)
		return nil, ErrInternal.WithCause(err)
	}
	s.logger.Info("user profile updated successfully", "user_id", userID)
	return s.GetMe(ctx, userID)
}
