package handlers

import (
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/AfyaLink/afyachat-backend/internal/services"
	"github.com/AfyaLink/afyachat-backend/internal/utils"
)

// WhatsAppHandler handles the inbound message webhook
type WhatsAppHandler struct {
	whatsappService *services.WhatsAppService
	notifier        services.Notifier
}

// NewWhatsAppHandler creates a new WhatsApp handler
func NewWhatsAppHandler(whatsappService *services.WhatsAppService, notifier services.Notifier) *WhatsAppHandler {
	return &WhatsAppHandler{
		whatsappService: whatsappService,
		notifier:        notifier,
	}
}

// TwilioWebhookPayload represents an incoming WhatsApp message from Twilio
type TwilioWebhookPayload struct {
	MessageSid string `form:"MessageSid"`
	AccountSid string `form:"AccountSid"`
	From       string `form:"From"` // channel-prefixed sender (whatsapp:+2547XXXXXXXX)
	To         string `form:"To"`
	Body       string `form:"Body"`
	NumMedia   string `form:"NumMedia"`
}

// HandleWebhook processes incoming WhatsApp messages
func (h *WhatsAppHandler) HandleWebhook(c *fiber.Ctx) error {
	var payload TwilioWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		log.Printf("Error parsing webhook: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid webhook payload",
		})
	}

	// Status updates arrive on the same webhook without a body; only real
	// messages get processed.
	if payload.Body == "" || payload.From == "" {
		return c.JSON(fiber.Map{"status": "success"})
	}

	log.Printf("📱 WhatsApp message from %s: %s", payload.From, payload.Body)

	response, err := h.whatsappService.ProcessMessage(c.UserContext(), payload.From, payload.Body)
	if err != nil {
		log.Printf("Error processing message: %v", err)
		response = "❌ Sorry, something went wrong. Please try again."
	}

	if h.notifier != nil && response != "" {
		if err := h.notifier.SendWhatsAppMessage(utils.NormalizePhone(payload.From), response); err != nil {
			log.Printf("❌ Failed to send WhatsApp response: %v", err)
		}
	} else if response != "" {
		log.Printf("📤 Response (not sent - notifier not configured): %s", response)
	}

	return c.JSON(fiber.Map{"status": "success"})
}

// TestWebhookPayload is the JSON shape for exercising the flow without Twilio
type TestWebhookPayload struct {
	From    string `json:"from"`
	Message string `json:"message"`
}

// HandleTestWebhook processes test messages during development
func (h *WhatsAppHandler) HandleTestWebhook(c *fiber.Ctx) error {
	var payload TestWebhookPayload
	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Invalid test payload",
		})
	}

	response, err := h.whatsappService.ProcessMessage(c.UserContext(), payload.From, payload.Message)
	if err != nil {
		log.Printf("Error processing test message: %v", err)
		response = "❌ Sorry, something went wrong. Please try again."
	}

	return c.JSON(fiber.Map{
		"status":   "success",
		"response": response,
	})
}
