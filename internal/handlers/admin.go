package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/AfyaLink/afyachat-backend/internal/models"
	"github.com/AfyaLink/afyachat-backend/internal/services"
	"github.com/AfyaLink/afyachat-backend/internal/storage"
)

// AdminHandler serves the JWT-protected operational API
type AdminHandler struct {
	store storage.Store
	mpesa *services.MpesaService // nil when the stripe channel is configured
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(store storage.Store, mpesa *services.MpesaService) *AdminHandler {
	return &AdminHandler{
		store: store,
		mpesa: mpesa,
	}
}

// ListAppointments returns all appointments, newest first. An optional
// ?phone= filter narrows to one user.
func (h *AdminHandler) ListAppointments(c *fiber.Ctx) error {
	var (
		appointments []*models.Appointment
		err          error
	)
	if phone := c.Query("phone"); phone != "" {
		appointments, err = h.store.GetAppointmentsByPhone(phone)
	} else {
		appointments, err = h.store.GetAllAppointments()
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch appointments",
		})
	}

	return c.JSON(fiber.Map{
		"count":        len(appointments),
		"appointments": appointments,
	})
}

// ListPendingPayments returns ledger entries by status (default: initiated).
func (h *AdminHandler) ListPendingPayments(c *fiber.Ctx) error {
	status := c.Query("status", models.PaymentStatusInitiated)
	payments, err := h.store.GetPendingPaymentsByStatus(status)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to fetch payments",
		})
	}

	return c.JSON(fiber.Map{
		"count":    len(payments),
		"payments": payments,
	})
}

// QueryPaymentStatus asks the provider for the live state of a pending
// M-Pesa push, for entries whose callback never arrived.
func (h *AdminHandler) QueryPaymentStatus(c *fiber.Ctx) error {
	if h.mpesa == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "provider status query is only available on the mpesa channel",
		})
	}

	reference := c.Params("reference")
	payment, err := h.store.GetPendingPayment(reference)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "payment not found",
		})
	}
	if payment.CheckoutRequestID == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "payment has no provider correlation token",
		})
	}

	status, err := h.mpesa.QueryStatus(payment.CheckoutRequestID)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "provider status query failed",
		})
	}

	return c.JSON(fiber.Map{
		"payment": payment,
		"status":  status,
	})
}
