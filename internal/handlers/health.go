package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/AfyaLink/afyachat-backend/internal/models"
	"github.com/AfyaLink/afyachat-backend/internal/storage"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	version            string
	store              storage.Store
	notifierConfigured bool
	paymentChannel     string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(version string, store storage.Store, notifierConfigured bool, paymentChannel string) *HealthHandler {
	return &HealthHandler{
		version:            version,
		store:              store,
		notifierConfigured: notifierConfigured,
		paymentChannel:     paymentChannel,
	}
}

// Check reports service health. Storage is probed with a cheap ledger read;
// a failing store makes the endpoint report unhealthy with a 503.
func (h *HealthHandler) Check(c *fiber.Ctx) error {
	status := "healthy"
	statusCode := fiber.StatusOK

	storageHealthy := true
	if _, err := h.store.GetPendingPaymentsByStatus(models.PaymentStatusInitiated); err != nil {
		storageHealthy = false
		status = "unhealthy"
		statusCode = fiber.StatusServiceUnavailable
	}

	return c.Status(statusCode).JSON(fiber.Map{
		"status":  status,
		"version": h.version,
		"services": fiber.Map{
			"storage":         storageHealthy,
			"notifier":        h.notifierConfigured,
			"payment_channel": h.paymentChannel,
		},
	})
}
