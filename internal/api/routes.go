package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the router. The feedback webhook is mounted
// outside /api because the SNS topic calls it unauthenticated.
func SetupRoutes(h *Handlers, feedbackWebhook http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://app.campuslink.io", "http://localhost:5173"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.HealthCheck)

	if feedbackWebhook != nil {
		r.Post("/webhooks/ses-feedback", feedbackWebhook.ServeHTTP)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/notifications", h.SendNotification)
		r.Post("/notifications/batch", h.SendBatch)
		r.Post("/events", h.IngestEvents)

		r.Get("/suppressions", h.ListSuppressions)
		r.Post("/suppressions", h.AddSuppression)
		r.Get("/suppressions/{address}", h.GetSuppression)
		r.Delete("/suppressions/{address}", h.RemoveSuppression)

		r.Get("/deliveries", h.ListDeliveries)
	})

	return r
}
