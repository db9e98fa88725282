package user

import (
	"context"
	"errors"
	"time"

	"github.com/delordemm1/siteauth/internal/audit"
	"github.com/delordemm1/siteauth/internal/session"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	magicLinkTTL      = 5 * time.Minute
	magicLinkAudience = "magic-link"
	magicLinkIssuer   = "siteauth"
)

type magicLinkClaims struct {
	SiteID     string `json:"sid"`
	Method     string `json:"amr"`
	RedirectTo string `json:"rto,omitempty"`
	jwt.RegisteredClaims
}

type MagicLinkResult struct {
	Session    *session.Session
	RedirectTo string
}

func (s *service) issueMagicLink(userID, siteID, method, redirectTo string) (string, error) {
	if s.config.JWTSecret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	jti, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	now := s.now()
	claims := magicLinkClaims{
		SiteID:     siteID,
		Method:     method,
		RedirectTo: redirectTo,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   userID,
			Issuer:    magicLinkIssuer,
			Audience:  jwt.ClaimStrings{magicLinkAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(magicLinkTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
}

// ConsumeMagicLink trades a link token for a session. Each token works once.
func (s *service) ConsumeMagicLink(ctx context.Context, token string) (*MagicLinkResult, error) {
	reject := func(reason string, err error) (*MagicLinkResult, error) {
		s.metrics.VerificationRejected("magic_link", reason)
		s.record(ctx, audit.Event{Action: audit.ActionMagicLink, Outcome: audit.OutcomeRejected, Reason: reason})
		return nil, err
	}

	var claims magicLinkClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(magicLinkAudience),
		jwt.WithIssuer(magicLinkIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || s.config.JWTSecret == "" {
		return reject("invalid_token", ErrInvalidMagicLink.WithCause(err))
	}
	if claims.ID == "" || claims.Subject == "" {
		return reject("invalid_token", ErrInvalidMagicLink)
	}

	if s.locker == nil {
		s.logger.Error("magic link: no locker configured")
		return reject("replay_guard_unavailable", ErrInvalidMagicLink)
	}
	ttl := claims.ExpiresAt.Sub(s.now()) + time.Minute
	first, err := s.locker.Claim(ctx, "magic:"+claims.ID, ttl)
	if err != nil {
		s.logger.Error("magic link: claim failed", "error", err)
		return nil, ErrInternal.WithCause(err)
	}
	if !first {
		return reject("replayed", ErrInvalidMagicLink)
	}

	account, err := s.repo.FindAccountByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return reject("unknown_user", ErrInvalidMagicLink)
		}
		return nil, ErrInternal.WithCause(err)
	}

	method := claims.Method
	if method == "" {
		method = session.MethodMagicLink
	}
	sess, err := s.startSession(ctx, account.ID, method, false, nil)
	if err != nil {
		return nil, err
	}
	s.record(ctx, audit.Event{UserID: &account.ID, SiteID: strPtr(claims.SiteID), Email: account.Email, Action: audit.ActionMagicLink, Outcome: audit.OutcomeSuccess})

	return &MagicLinkResult{Session: sess, RedirectTo: s.siteURL(claims.RedirectTo, nil)}, nil
}
