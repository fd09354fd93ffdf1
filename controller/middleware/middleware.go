// Package middleware carries the HTTP concerns shared by every API route:
// bearer authentication for users and runners, and request logging.
package middleware

import (
	"context"
	"crypto/ecdsa"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/itskum47/defcon/controller/auth"
)

type contextKey int

const (
	userKey contextKey = iota
	siteKey
)

// UserUUID returns the authenticated user set by RequireUser.
func UserUUID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userKey).(string)
	return v, ok
}

// Site returns the runner site set by RequireRunner.
func Site(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(siteKey).(string)
	return v, ok
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		return token
	}
	return ""
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"code":"invalid_credentials","message":"invalid or missing token"}`))
}

// RequireUser rejects requests without a valid access token. When skip is
// true the check is bypassed entirely, for installations that front the API
// with their own authentication.
func RequireUser(tokens *auth.UserTokens, skip bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip {
				next.ServeHTTP(w, r)
				return
			}
			userUUID, err := tokens.VerifyAccess(bearerToken(r))
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, userUUID)))
		})
	}
}

// RequireRunner rejects requests without a valid ES256 runner token and
// records the caller's site in the request context.
func RequireRunner(key *ecdsa.PublicKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == nil {
				unauthorized(w)
				return
			}
			site, err := auth.VerifyRunnerToken(key, bearerToken(r))
			if err != nil {
				unauthorized(w)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), siteKey, site)))
		})
	}
}

// RequestLogger emits one structured line per request.
func RequestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Dur("elapsed", time.Since(start)).
				Str("request_id", chimw.GetReqID(r.Context())).
				Msg("request")
		})
	}
}
