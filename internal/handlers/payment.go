package handlers

import (
	"encoding/json"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	stripe "github.com/stripe/stripe-go/v80"
	"github.com/stripe/stripe-go/v80/webhook"

	"github.com/AfyaLink/afyachat-backend/internal/services"
)

// PaymentHandler handles asynchronous payment-provider callbacks
type PaymentHandler struct {
	reconciler *services.ReconcilerService
}

// NewPaymentHandler creates a new payment callback handler
func NewPaymentHandler(reconciler *services.ReconcilerService) *PaymentHandler {
	return &PaymentHandler{reconciler: reconciler}
}

// HandleMpesaCallback processes the Daraja STK callback. Parse errors and
// unknown transactions are acknowledged with a 200 so the provider stops
// retrying; only a persistence failure surfaces as a server error, which is
// safe to retry thanks to the atomic confirm.
func (h *PaymentHandler) HandleMpesaCallback(c *fiber.Ctx) error {
	result, err := h.reconciler.ReconcileMpesaCallback(c.Body())
	if err != nil {
		log.Printf("❌ Callback reconciliation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "failed to process callback",
		})
	}

	return c.JSON(fiber.Map{
		"status":  result.Status,
		"message": result.Message,
	})
}

// HandleStripeWebhook verifies and processes Stripe checkout events. The
// session metadata carries the merchant reference, so confirmed checkouts
// feed the same reconciliation path as M-Pesa callbacks. API-version
// mismatches are tolerated: the endpoint may be registered on a different
// Stripe API version than the one the SDK pins, and that must not read as
// a signature failure.
func (h *PaymentHandler) HandleStripeWebhook(c *fiber.Ctx) error {
	endpointSecret := os.Getenv("STRIPE_WEBHOOK_SECRET")
	event, err := webhook.ConstructEventWithOptions(c.Body(), c.Get("Stripe-Signature"), endpointSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		log.Printf("⚠️  Stripe webhook signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "invalid signature",
		})
	}

	var callback *services.CallbackResult
	switch event.Type {
	case "checkout.session.completed", "checkout.session.expired":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			log.Printf("⚠️  Discarding unparseable stripe event: %v", err)
			return c.JSON(fiber.Map{"status": "error", "message": "unrecognized event payload"})
		}
		callback = &services.CallbackResult{
			Reference:     session.Metadata["reference"],
			Success:       event.Type == "checkout.session.completed",
			ResultDesc:    string(event.Type),
			AmountPaid:    session.AmountTotal,
			TransactionID: session.ID,
		}
	default:
		// Other event types are noise for this flow.
		return c.JSON(fiber.Map{"status": "success", "message": "event ignored"})
	}

	result, err := h.reconciler.Reconcile(callback)
	if err != nil {
		log.Printf("❌ Stripe reconciliation failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"status":  "error",
			"message": "failed to process event",
		})
	}

	return c.JSON(fiber.Map{
		"status":  result.Status,
		"message": result.Message,
	})
}
