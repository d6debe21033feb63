package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wolfman30/replybridge/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/replybridge/internal/http/middleware"
	"github.com/wolfman30/replybridge/internal/messaging"
	"github.com/wolfman30/replybridge/pkg/logging"
)

// Config holds router configuration
type Config struct {
	Logger           *logging.Logger
	MessagingHandler *messaging.Handler
	AdminSessions    *handlers.AdminSessionsHandler
	AdminAuthSecret  string
	MetricsHandler   http.Handler

	// Per-IP limit applied to the webhook routes; zero disables it.
	WebhookRatePerSecond float64
	WebhookRateBurst     int
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	if cfg == nil || cfg.MessagingHandler == nil {
		panic("router: messaging handler is required")
	}
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httpmiddleware.RequestLogger(cfg.Logger))

	r.Get("/health", cfg.MessagingHandler.HealthCheck)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/webhooks", func(hooks chi.Router) {
		if cfg.WebhookRatePerSecond > 0 {
			hooks.Use(httpmiddleware.RateLimit(cfg.WebhookRatePerSecond, cfg.WebhookRateBurst))
		}
		hooks.Post("/twilio", cfg.MessagingHandler.TwilioWebhook)
		hooks.Get("/whatsapp", cfg.MessagingHandler.WhatsAppVerify)
		hooks.Post("/whatsapp", cfg.MessagingHandler.WhatsAppWebhook)
		hooks.Post("/telnyx", cfg.MessagingHandler.TelnyxWebhook)
	})

	if cfg.AdminSessions != nil && cfg.AdminAuthSecret != "" {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Use(middleware.Compress(5))
			admin.Post("/sessions/reset", cfg.AdminSessions.ResetAll)
			admin.Get("/sessions/{sender}", cfg.AdminSessions.GetSession)
			admin.Delete("/sessions/{sender}", cfg.AdminSessions.ClearSession)
			admin.Get("/inbound", cfg.AdminSessions.ListInbound)
		})
	}

	return r
}
