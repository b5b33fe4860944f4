// Package httpauth authenticates the operator API surface. Flightline has
// no human login flow — flightctl and any other caller present a single
// static bearer token provisioned via configuration, compared in constant
// time the way the teacher's API-key authenticator compares hashed tokens.
package httpauth

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/flightline-dev/flightline/internal/httpserver"
)

type contextKey string

const authenticatedKey contextKey = "operator_authenticated"

// RequireAPIKey returns middleware that requires a Bearer token equal to
// apiKey. If apiKey is empty, authentication is disabled (useful for local
// development) and every request is allowed through.
func RequireAPIKey(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authenticatedKey, true)))
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), authenticatedKey, true)))
		})
	}
}

// Authenticated reports whether RequireAPIKey accepted the request bound to ctx.
func Authenticated(ctx context.Context) bool {
	v, _ := ctx.Value(authenticatedKey).(bool)
	return v
}
