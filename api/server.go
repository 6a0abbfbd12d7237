/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

SECURITY NOTE:
  No authentication middleware. The identity collaborator is out of
  scope here; deployments front this with their auth proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/users/{id}", func(r chi.Router) {
			r.Post("/account", h.CreateAccount)
			r.Delete("/account", h.DeleteAccount)
			r.Put("/currency", h.SetCurrency)
			r.Get("/balance", h.GetBalance)
			r.Get("/state", h.GetState)

			r.Route("/records", func(r chi.Router) {
				r.Post("/", h.CreateRecord)
				r.Get("/", h.GetRecords)
				r.Delete("/{recordID}", h.DeleteRecord)
			})
		})
	})

	return r
}
