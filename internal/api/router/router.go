// Package router wires the HTTP surface: public health, metrics and webhook
// endpoints, and the authenticated appointment and payment routes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/equicare/equicare-platform/internal/appointments"
	httpmiddleware "github.com/equicare/equicare-platform/internal/http/middleware"
	"github.com/equicare/equicare-platform/internal/payments"
	"github.com/equicare/equicare-platform/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	AppointmentsHandler *appointments.Handler
	IntentHandler       *payments.IntentHandler
	StripeWebhook       *payments.WebhookHandler
	MetricsHandler      http.Handler
	AuthJWTSecret       string
	CORSAllowedOrigins  []string
}

// New creates a new Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints (webhooks, health checks).
	r.Group(func(public chi.Router) {
		public.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
		if cfg.StripeWebhook != nil {
			public.Post("/webhooks/stripe", cfg.StripeWebhook.Handle)
		}
	})

	// Authenticated API.
	r.Group(func(authed chi.Router) {
		authed.Use(httpmiddleware.Auth(cfg.AuthJWTSecret))
		if cfg.AppointmentsHandler != nil {
			appts := cfg.AppointmentsHandler.Routes()
			if cfg.IntentHandler != nil {
				appts.Post("/{appointmentID}/payment-intent", cfg.IntentHandler.CreateIntent)
			}
			authed.Mount("/appointments", appts)
		}
	})

	return r
}
