// Package httpapi implements the wire protocol's HTTP surface: the six
// routes avala-client speaks to reach the server.
package httpapi

import (
	"net/http"

	"github.com/avalactf/avala/internal/auth"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// API bundles the collaborators the HTTP handlers need.
type API struct {
	Auth    *auth.Authentication
	Handler *Handler
}

// MountRoutes registers the wire protocol's routes on r.
func (a *API) MountRoutes(r *mux.Router) {
	r.HandleFunc("/metrics", a.Handler.Metrics).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(a.Auth.Middleware)

	protected.HandleFunc("/connect/health", a.Handler.Health).Methods(http.MethodGet)
	protected.HandleFunc("/connect/game", a.Handler.Game).Methods(http.MethodGet)
	protected.HandleFunc("/connect/schedule", a.Handler.Schedule).Methods(http.MethodGet)
	protected.HandleFunc("/flags/queue", a.Handler.EnqueueFlags).Methods(http.MethodPost)
	protected.HandleFunc("/attack-data/current", a.Handler.AttackDataCurrent).Methods(http.MethodGet)
	protected.HandleFunc("/attack-data/subscribe", a.Handler.AttackDataSubscribe).Methods(http.MethodGet)
}

// WithMiddleware wraps h with the ambient request-logging and
// panic-recovery middleware, in the shape cmd/cc-backend/server.go wires
// gorilla/handlers around the router.
func WithMiddleware(h http.Handler) http.Handler {
	return handlers.RecoveryHandler()(handlers.CombinedLoggingHandler(logWriter{}, h))
}
