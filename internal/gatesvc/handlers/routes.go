package handlers

import (
	"net/http"

	"github.com/avvvet/gatepass-services/internal/gatesvc/metrics"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

const (
	RoleAdmin    = "admin"
	RoleSecurity = "security"
)

func (h *Handler) SetRoutes(r chi.Router) {
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {

		// public routes here
		r.Get("/health", h.HealthHandler)
		r.Post("/cards/provision", h.ProvisionCards)

		r.Group(h.feedRoutes)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)
			r.Use(RequireRole(RoleAdmin, RoleSecurity))

			r.Route("/cards", func(r chi.Router) {
				r.Get("/available", h.AvailableCards)
				r.Get("/assigned", h.AssignedCards)
				r.Get("/availability", h.CheckAvailability)
				r.Get("/summary", h.CardSummary)
			})

			r.Route("/visitors", func(r chi.Router) {
				r.Post("/checkin", h.Checkin)
				r.Post("/checkout", h.Checkout)
				r.Get("/sessions", h.ListSessions)
				r.Get("/lookup", h.LookupByPhone)
				r.Get("/access", h.VisitorAccess)
				r.Get("/purposes", h.SearchPurposes)
				r.Get("/details", h.VisitorDetails)
			})

			r.Get("/reports/visitors", h.VisitorReport)

			r.With(RequireRole(RoleAdmin)).Post("/admin/reconcile", h.Reconcile)
		})
	})
}

// SetRelayRoutes mounts only the health check and the live feed, for a
// process that relays gate events without serving the gate API.
func (h *Handler) SetRelayRoutes(r chi.Router) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.HealthHandler)
		r.Group(h.feedRoutes)
	})
}

// browsers cannot set headers on a websocket handshake
func (h *Handler) feedRoutes(r chi.Router) {
	r.Use(jwtauth.Verify(h.tokenAuth, jwtauth.TokenFromHeader, TokenFromQuery))
	r.Use(jwtauth.Authenticator)
	r.Use(RequireRole(RoleAdmin, RoleSecurity))

	r.Get("/ws", h.hub.ServeWS)
}

// TokenFromQuery reads the bearer token from the "token" query parameter.
func TokenFromQuery(r *http.Request) string {
	return r.URL.Query().Get("token")
}

// InitAuth sets the HS256 key used to verify bearer tokens.
func (h *Handler) InitAuth(secret string) {
	h.tokenAuth = jwtauth.New("HS256", []byte(secret), nil)
}
