package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/AfyaLink/afyachat-backend/internal/metrics"
	"github.com/AfyaLink/afyachat-backend/internal/models"
	"github.com/AfyaLink/afyachat-backend/internal/storage"
	"github.com/AfyaLink/afyachat-backend/internal/utils"
)

// Bounded timeout for the answer-provider call so a slow upstream cannot
// exhaust the webhook handler pool.
const answerTimeout = 10 * time.Second

// WhatsAppService routes inbound messages: booking requests into the
// payment flow, everything else into the answer provider.
type WhatsAppService struct {
	store      storage.Store
	payments   *PaymentService
	answers    AnswerProvider
	metrics    *metrics.Metrics
	bookingFee int64 // minor units
}

// NewWhatsAppService creates a new WhatsApp message service
func NewWhatsAppService(store storage.Store, payments *PaymentService, answers AnswerProvider, m *metrics.Metrics, bookingFee int64) *WhatsAppService {
	return &WhatsAppService{
		store:      store,
		payments:   payments,
		answers:    answers,
		metrics:    m,
		bookingFee: bookingFee,
	}
}

// ProcessMessage classifies one inbound message and returns the reply text.
// The caller is responsible for sending it, so exactly one outbound
// notification leaves per inbound message.
func (w *WhatsAppService) ProcessMessage(ctx context.Context, from, message string) (string, error) {
	phone := utils.NormalizePhone(from)
	intent := ClassifyIntent(message)

	log.Printf("📱 Message from %s classified as %s", phone, intent)
	w.metrics.ObserveMessage(string(intent))

	var response string
	var err error

	switch intent {
	case IntentBookAppointment:
		response = w.handleBookingRequest(phone)
	case IntentMedicalQuery:
		response, err = w.answerWithTimeout(ctx, phone, message, true)
	default:
		if captured := w.captureRequestedDateTime(phone, message); captured {
			response = "Thank you! We've noted your preferred date and time. Our team will confirm your appointment shortly."
		} else {
			response, err = w.answerWithTimeout(ctx, phone, message, false)
		}
	}
	if err != nil {
		return "", err
	}

	w.recordChat(phone, message, response, intent)
	return response, nil
}

// handleBookingRequest starts the payment flow for an eligible number. All
// payment failures collapse into a generic retry message for the user; the
// taxonomy only matters for logs and metrics.
func (w *WhatsAppService) handleBookingRequest(phone string) string {
	if !w.payments.EligiblePhone(phone) {
		return w.payments.IneligibleNotice()
	}

	request, err := w.payments.RequestPayment(phone, w.bookingFee)
	if err != nil {
		log.Printf("❌ Payment initiation for %s failed: %v", phone, err)
		return "Sorry, there was an issue initiating the payment. " +
			"Please try again later or contact support."
	}

	if request.PromptSent {
		return "I've sent an M-PESA payment request to your phone. " +
			"Please enter your PIN to complete the payment. " +
			"Once confirmed, we'll help you schedule your appointment."
	}
	return fmt.Sprintf("To book your appointment, please complete the payment here: %s\n"+
		"Once confirmed, we'll help you schedule your appointment.", request.CheckoutURL)
}

func (w *WhatsAppService) answerWithTimeout(ctx context.Context, phone, message string, medical bool) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, answerTimeout)
	defer cancel()

	if medical {
		return w.answers.AnswerMedical(ctx, message)
	}
	return w.answers.AnswerGeneral(ctx, message)
}

// captureRequestedDateTime stores a free-text follow-up on the newest
// appointment still waiting for a preferred date/time. Returns false when
// there is no such appointment, so the message falls through to chat.
func (w *WhatsAppService) captureRequestedDateTime(phone, message string) bool {
	appointments, err := w.store.GetAppointmentsByPhone(phone)
	if err != nil || len(appointments) == 0 {
		return false
	}

	newest := appointments[0]
	if newest.RequestedDateTime != "" {
		return false
	}

	newest.RequestedDateTime = message
	if err := w.store.UpdateAppointment(newest); err != nil {
		log.Printf("❌ Failed to store requested date for appointment %s: %v", newest.AppointmentID, err)
		return false
	}
	log.Printf("📅 Appointment %s requested date recorded: %s", newest.AppointmentID, message)
	return true
}

func (w *WhatsAppService) recordChat(phone, message, response string, intent Intent) {
	entry := &models.ChatHistory{
		UserPhone:   phone,
		Message:     message,
		Response:    response,
		MessageType: string(intent),
	}
	if err := w.store.CreateChatHistory(entry); err != nil {
		log.Printf("⚠️  Failed to record chat history for %s: %v", phone, err)
	}
}
