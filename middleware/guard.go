package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/MrEthical07/credguard"
)

// Validator is satisfied by *credguard.Engine.
type Validator interface {
	ValidateAccess(ctx context.Context, accessToken string) (*credguard.AccessClaims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by Guard or Optional.
func ClaimsFromContext(ctx context.Context) (*credguard.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*credguard.AccessClaims)
	return claims, ok && claims != nil
}

// Guard rejects requests without a valid, unrevoked bearer token with 401.
// The client IP is attached to the context so audit events carry it.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				unauthorized(w)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			ctx := credguard.WithClientIP(r.Context(), clientIP(r))
			claims, err := v.ValidateAccess(ctx, token)
			if err != nil {
				unauthorized(w)
				return
			}

			ctx = context.WithValue(ctx, claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// clientIP prefers the first X-Forwarded-For hop, then RemoteAddr without
// its port.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host := r.RemoteAddr
	if i := strings.LastIndexByte(host, ':'); i > 0 && !strings.HasSuffix(host, "]") {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
