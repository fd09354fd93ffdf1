// Package auth issues and verifies the two token families: HS256 user
// access/refresh tokens and the short-lived ES256 tokens runners present.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AudienceAccess  = "urn:defcon:access"
	AudienceRefresh = "urn:defcon:refresh"

	accessTTL  = 15 * time.Minute
	refreshTTL = 30 * 24 * time.Hour
)

// ErrInvalidToken covers every verification failure; callers map it to 401
// without leaking the cause.
var ErrInvalidToken = errors.New("invalid token")

// TokenPair is the response body of token and refresh endpoints.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// UserTokens mints and verifies HS256 user tokens.
type UserTokens struct {
	key []byte
}

func NewUserTokens(signingKey string) (*UserTokens, error) {
	if signingKey == "" {
		return nil, errors.New("JWT_SIGNING_KEY is required when the API is enabled")
	}
	return &UserTokens{key: []byte(signingKey)}, nil
}

// Issue mints a fresh access/refresh pair for the user.
func (u *UserTokens) Issue(userUUID string) (*TokenPair, error) {
	now := time.Now()
	access, err := u.sign(userUUID, AudienceAccess, now, accessTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := u.sign(userUUID, AudienceRefresh, now, refreshTTL)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (u *UserTokens) sign(userUUID, audience string, now time.Time, ttl time.Duration) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userUUID,
		Audience:  jwt.ClaimStrings{audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// VerifyAccess returns the user uuid carried by a valid access token.
func (u *UserTokens) VerifyAccess(token string) (string, error) {
	return u.verify(token, AudienceAccess)
}

// VerifyRefresh returns the user uuid carried by a valid refresh token.
func (u *UserTokens) VerifyRefresh(token string) (string, error) {
	return u.verify(token, AudienceRefresh)
}

func (u *UserTokens) verify(token, audience string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return u.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
