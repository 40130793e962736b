/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the frontend

ROUTE GROUPS:
  /api/students/*    Student ledgers, reads and writes
  /api/billings/*    Billing soft deletes
  /api/payments/*    Payment soft deletes and replacement
  /api/bursaries     Bursary catalog
  /api/services      Service catalog
  /api/audit         Audit log
  /api/integrity     Integrity warnings
  /api/scenarios/*   Demo scenarios

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins is used when no origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.CreateStudent)
			r.Get("/{id}", h.GetStudent)
			r.Get("/{id}/terms", h.GetTermOptions)
			r.Get("/{id}/view", h.GetView)
			r.Get("/{id}/summary", h.GetSummary)
			r.Get("/{id}/statement", h.GetStatement)
			r.Get("/{id}/trash", h.GetTrash)
			r.Post("/{id}/billings", h.AddBilling)
			r.Post("/{id}/payments", h.RecordPayment)
			r.Post("/{id}/corrections", h.ApplyCorrection)
			r.Post("/{id}/status", h.ChangeStatus)
			r.Post("/{id}/promote", h.PromoteStudent)
		})

		r.Route("/billings", func(r chi.Router) {
			r.Delete("/{id}", h.DeleteBilling)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Delete("/{id}", h.DeletePayment)
			r.Put("/{id}", h.ReplacePayment)
		})

		r.Get("/bursaries", h.ListBursaries)
		r.Post("/bursaries", h.SaveBursary)
		r.Get("/services", h.ListServices)
		r.Post("/services", h.SaveService)

		r.Get("/audit", h.ListAudit)
		r.Get("/integrity", h.GetIntegrity)

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
