package user

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	mfaChallengeTTL      = 5 * time.Minute
	mfaChallengeAudience = "mfa-challenge"
	mfaChallengeType     = "mfa_challenge"
)

// mfaChallengeClaims is handed out when the first factor succeeded and a
// second one is due. The subject is the user being challenged.
type mfaChallengeClaims struct {
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

func (s *service) issueMFAChallenge(userID string) (string, error) {
	if s.config.JWTSecret == "" {
		return "", errors.New("jwt secret is not configured")
	}
	jti, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	now := s.now()
	claims := mfaChallengeClaims{
		TokenType: mfaChallengeType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			Subject:   userID,
			Issuer:    magicLinkIssuer,
			Audience:  jwt.ClaimStrings{mfaChallengeAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(mfaChallengeTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.JWTSecret))
}

func (s *service) parseMFAChallenge(token string) (*mfaChallengeClaims, error) {
	if token == "" || s.config.JWTSecret == "" {
		return nil, ErrInvalidMFAChallenge
	}
	var claims mfaChallengeClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return []byte(s.config.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(mfaChallengeAudience),
		jwt.WithIssuer(magicLinkIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, ErrInvalidMFAChallenge.WithCause(err)
	}
	if claims.TokenType != mfaChallengeType || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalidMFAChallenge
	}
	return &claims, nil
}

// spendMFAChallenge marks the challenge used. Only the first caller wins.
func (s *service) spendMFAChallenge(ctx context.Context, claims *mfaChallengeClaims) (bool, error) {
	if s.locker == nil {
		s.logger.Error("mfa login: no locker configured")
		return false, nil
	}
	ttl := claims.ExpiresAt.Sub(s.now()) + time.Minute
	return s.locker.Claim(ctx, "mfa:"+claims.ID, ttl)
}
