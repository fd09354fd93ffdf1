package auth

import (
	"crypto/ecdsa"
	"regexp"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RunnerTokenTTL is the lifetime of a runner token. Runners mint a new
// token per request, so 30 seconds only needs to absorb clock skew.
const RunnerTokenTTL = 30 * time.Second

var siteSlugRe = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidSiteSlug reports whether s is an acceptable remote site name.
func ValidSiteSlug(s string) bool {
	return siteSlugRe.MatchString(s)
}

type runnerClaims struct {
	Site string `json:"site"`
	jwt.RegisteredClaims
}

// SignRunnerToken mints the ES256 token a runner presents for one request.
func SignRunnerToken(key *ecdsa.PrivateKey, site string) (string, error) {
	now := time.Now()
	claims := runnerClaims{
		Site: site,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(RunnerTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(key)
}

// VerifyRunnerToken validates signature, expiry and site slug, returning
// the site the caller represents.
func VerifyRunnerToken(key *ecdsa.PublicKey, token string) (string, error) {
	var claims runnerClaims
	parsed, err := jwt.ParseWithClaims(token, &claims,
		func(t *jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if !ValidSiteSlug(claims.Site) {
		return "", ErrInvalidToken
	}
	return claims.Site, nil
}
