package httpapi

import (
	"net/http"

	"dupulse.app/internal/auth"
)

// RequireAdmin guards next with the admin gate. Denied requests get the
// gate's status and message; allowed ones carry the verified identity.
// Preflight requests are gated like any other method.
func RequireAdmin(gate *auth.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := gate.Check(r.Context(), r.Header)
			if !v.Allowed() {
				writeVerdict(w, v)
				return
			}
			ctx := auth.ContextWithIdentity(r.Context(), *v.Identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
