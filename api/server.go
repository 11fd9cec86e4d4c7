/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the school office frontend

ROUTE GROUPS:
  /api/classes/*        Class management
  /api/students/*       Enrollment, charges per student, transfers
  /api/charges/*        Payments and charge lifecycle
  /api/settings/*       Billing policy
  /api/admin/*          Status recalculation
  /api/scenarios/*      Demo scenarios and database reset (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Class routes
		r.Route("/classes", func(r chi.Router) {
			r.Get("/", h.ListClasses)
			r.Post("/", h.CreateClass)
			r.Get("/{id}", h.GetClass)
			r.Put("/{id}", h.UpdateClass)
			r.Delete("/{id}", h.DeleteClass)
			r.Get("/{id}/students", h.ListClassStudents)
		})

		// Student routes
		r.Route("/students", func(r chi.Router) {
			r.Get("/", h.ListStudents)
			r.Post("/", h.EnrollStudent)
			r.Get("/inactive", h.ListInactiveStudents)
			r.Get("/{id}", h.GetStudent)
			r.Put("/{id}", h.UpdateStudent)
			r.Get("/{id}/contracts", h.GetContracts)
			r.Get("/{id}/charges", h.GetStudentCharges)
			r.Get("/{id}/statement", h.GetStatement)
			r.Post("/{id}/charges/generate", h.GenerateCharges)
			r.Post("/{id}/contracts/{cid}/charges/generate", h.GenerateContractCharges)

			r.Post("/{id}/transfer", h.Transfer)
			r.Post("/{id}/transfer/same-year", h.TransferSameYear)
			r.Post("/{id}/transfer/new-year", h.TransferNewYear)
			r.Post("/{id}/transfer/validate", h.ValidateTransfer)
			r.Post("/{id}/deactivate", h.Deactivate)
			r.Post("/{id}/reactivate", h.Reactivate)
			r.Get("/{id}/transfers", h.GetTransferHistory)
		})

		// Charge routes
		r.Route("/charges", func(r chi.Router) {
			r.Get("/", h.ListCharges)
			r.Get("/{id}", h.GetCharge)
			r.Get("/{id}/preview", h.PreviewCharge)
			r.Post("/{id}/pay", h.PayCharge)
			r.Post("/{id}/payment", h.RecordPayment)
			r.Post("/{id}/cancel-payment", h.CancelPayment)
			r.Post("/{id}/void", h.VoidCharge)
		})

		// Settings routes
		r.Route("/settings", func(r chi.Router) {
			r.Get("/billing-policy", h.GetBillingPolicy)
			r.Put("/billing-policy", h.UpdateBillingPolicy)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/recalculate-statuses", h.RecalculateStatuses)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Tuition Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Tuition Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><a href="/api/classes">/api/classes</a> - List classes</li>
<li><a href="/api/students">/api/students</a> - List students</li>
<li><a href="/api/students/inactive">/api/students/inactive</a> - Inactive students with debt</li>
<li><a href="/api/charges?unpaid=true">/api/charges?unpaid=true</a> - Outstanding charges</li>
<li><a href="/api/settings/billing-policy">/api/settings/billing-policy</a> - Billing policy</li>
<li><a href="/api/scenarios">/api/scenarios</a> - Demo scenarios</li>
</ul>
</body>
</html>`))
	})

	return r
}
