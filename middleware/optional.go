package middleware

import (
	"context"
	"net/http"

	"github.com/MrEthical07/credguard"
)

// Optional attaches claims when a valid bearer token is present and lets
// every request through. Handlers check ClaimsFromContext.
func Optional(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := credguard.WithClientIP(r.Context(), clientIP(r))
			if token, ok := bearerToken(r.Header.Get("Authorization")); ok && v != nil {
				if claims, err := v.ValidateAccess(ctx, token); err == nil {
					ctx = context.WithValue(ctx, claimsContextKey{}, claims)
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
