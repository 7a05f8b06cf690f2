package main

import (
	"context"
	"net/http"

	"github.com/PaulBabatuyi/skillswap-realtime/internal/auth"
	"github.com/PaulBabatuyi/skillswap-realtime/internal/logging"
)

// context key type for storing auth claims in context
type authContextKey struct{}

// getClaimsFromContext extracts auth claims from the context, if present.
func getClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(authContextKey{}).(*auth.Claims)
	return c, ok && c != nil
}

func withClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, authContextKey{}, c)
}

// requestToken reads the bearer token from the Authorization header, or from
// the token query parameter for websocket clients that cannot set headers.
func requestToken(r *http.Request) (string, bool) {
	if tok, ok := auth.BearerToken(r.Header.Get("Authorization")); ok {
		return tok, true
	}
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok, true
	}
	return "", false
}

// authenticate rejects requests without a valid token and attaches the
// claims for the handlers.
func authenticate(j *auth.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := requestToken(r)
			if !ok {
				respondJSON(w, http.StatusUnauthorized, map[string]string{"message": "missing authorization header"})
				return
			}
			claims, err := j.VerifyToken(token)
			if err != nil {
				respondError(w, r, err)
				return
			}

			ctx := withClaims(r.Context(), claims)
			log := logging.Ctx(ctx).With().Str(logging.FieldUserID, claims.UserID).Logger()
			next.ServeHTTP(w, r.WithContext(logging.WithLogger(ctx, log)))
		})
	}
}
