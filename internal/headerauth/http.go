package headerauth

import (
	"net/http"
)

// Middleware rejects requests whose forwarded headers do not evaluate to an Identity and
// stores the Identity in the request context otherwise. The response never says which
// header was missing.
func Middleware(ev *Evaluator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := ev.Evaluate(r.Context(), FromHTTP(r.Header))
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthenticated"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
