// Package server wires the chat front door: an HTTP router and a gRPC server, both
// guarded by proxy header-trust authentication when it is enabled.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"lakechat/internal/headerauth"
)

// NewRouter returns the HTTP handler. /healthz is always public. /api/me is mounted only
// when deps.HeaderAuth is set, behind the header-trust middleware.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.HeaderAuth != nil {
		r.Route("/api", func(api chi.Router) {
			api.Use(headerauth.Middleware(deps.HeaderAuth))
			api.Get("/me", handleMe)
		})
	}

	return otelhttp.NewHandler(r, "lakechat-http")
}

// handleMe returns the caller's identity without the forwarded token.
func handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := headerauth.FromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthenticated"})
		return
	}
	writeJSON(w, http.StatusOK, id.Public())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
