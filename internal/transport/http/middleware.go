package http

import (
	"context"
	"net/http"

	"quiz-session-service/internal/auth"
	"quiz-session-service/internal/domain"
)

type ctxKey int

const principalKey ctxKey = iota

// PrincipalFrom extracts the authenticated principal placed by Authenticate.
func PrincipalFrom(ctx context.Context) (domain.Principal, bool) {
	p, ok := ctx.Value(principalKey).(domain.Principal)
	return p, ok
}

// Authenticate resolves the Authorization header into a Principal and
// stores it on the request context. Requests without a valid credential are
// rejected before any handler runs.
func Authenticate(verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := verifier.Verify(r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, domain.ErrUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey, principal)))
		})
	}
}

// RequireAdmin asserts the resolved principal carries the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFrom(r.Context())
		if !ok {
			writeError(w, domain.ErrUnauthorized)
			return
		}
		if !principal.IsAdmin() {
			writeError(w, domain.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
