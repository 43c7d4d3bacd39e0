package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/internal/httperr"
)

// Guard authenticates the bearer access token and stores the result in the request context.
// Missing tokens get 401 AUTHENTICATION_REQUIRED; other failures use the engine's error code.
func Guard(engine *lovelace.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				httperr.Write(w, r, lovelace.ErrEngineNotReady)
				return
			}

			token, ok := BearerToken(r.Header.Get("Authorization"))
			if !ok {
				httperr.Write(w, r, lovelace.ErrAuthenticationRequired)
				return
			}

			res, err := engine.Authenticate(r.Context(), token)
			if err != nil {
				httperr.Write(w, r, err)
				return
			}

			ctx := lovelace.WithAuthResult(r.Context(), res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole rejects authenticated requests that carry none of roles. It must run after Guard.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := lovelace.AuthResultFromContext(r.Context())
			if !ok {
				httperr.Write(w, r, lovelace.ErrAuthenticationRequired)
				return
			}
			if !slices.ContainsFunc(roles, res.HasRole) {
				httperr.WriteStatus(w, r, http.StatusForbidden, "ACCESS_DENIED", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
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
