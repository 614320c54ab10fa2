package routes

import (
	"net/http"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AfyaLink/afyachat-backend/internal/handlers"
	"github.com/AfyaLink/afyachat-backend/internal/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, whatsapp *handlers.WhatsAppHandler, payments *handlers.PaymentHandler, admin *handlers.AdminHandler, health *handlers.HealthHandler) {

	// Root endpoint
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message": "Welcome to AfyaChat Backend!",
			"version": "1.0.0",
			"endpoints": fiber.Map{
				"health":         "/health",
				"metrics":        "/metrics",
				"webhook":        "/webhook/whatsapp",
				"mpesa_callback": "/mpesa-callback",
				"stripe_webhook": "/webhook/stripe",
				"admin":          "/admin",
			},
		})
	})

	app.Get("/health", health.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// ========== WEBHOOK ROUTES ==========
	webhooks := app.Group("/webhook")

	// WhatsApp webhook - signature validation is skipped when developing
	// against tunnelled URLs
	if os.Getenv("ENVIRONMENT") == "development" || os.Getenv("DISABLE_WEBHOOK_VALIDATION") == "true" {
		webhooks.Post("/whatsapp", whatsapp.HandleWebhook)
	} else {
		webhooks.Post("/whatsapp", middleware.ValidateTwilioSignature(), whatsapp.HandleWebhook)
	}

	// Payment provider callbacks. The M-Pesa path matches the CallBackURL
	// registered with the push request; Stripe signs its own payloads.
	app.Post("/mpesa-callback", payments.HandleMpesaCallback)
	webhooks.Post("/stripe", payments.HandleStripeWebhook)

	// ========== TEST ROUTES (Development Only) ==========
	if os.Getenv("ENVIRONMENT") == "development" {
		app.Post("/test/whatsapp", whatsapp.HandleTestWebhook)
	}

	// ========== ADMIN ROUTES ==========
	adminGroup := app.Group("/admin", middleware.RequireAdminToken())
	adminGroup.Get("/appointments", admin.ListAppointments)
	adminGroup.Get("/payments", admin.ListPendingPayments)
	adminGroup.Get("/payments/:reference/status", admin.QueryPaymentStatus)

	// Anything else is a 404 with the standard envelope
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(http.StatusNotFound).JSON(fiber.Map{
			"status":  "error",
			"message": "endpoint not found",
		})
	})
}
