package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AfyaLink/afyachat-backend/internal/models"
	"github.com/AfyaLink/afyachat-backend/internal/storage"
)

// fakeAnswers returns canned answers and records what it was asked.
type fakeAnswers struct {
	medicalQuestions []string
	generalMessages  []string
}

func (f *fakeAnswers) AnswerMedical(ctx context.Context, question string) (string, error) {
	f.medicalQuestions = append(f.medicalQuestions, question)
	return "medical answer", nil
}

func (f *fakeAnswers) AnswerGeneral(ctx context.Context, message string) (string, error) {
	f.generalMessages = append(f.generalMessages, message)
	return "general answer", nil
}

func newTestWhatsAppService(store storage.Store, initiator PaymentInitiator, answers AnswerProvider) *WhatsAppService {
	payments := NewPaymentService(store, initiator, nil)
	return NewWhatsAppService(store, payments, answers, nil, 100000)
}

func TestProcessMessageBookingEligible(t *testing.T) {
	store := storage.NewMemoryStore()
	initiator := &stubInitiator{prefix: "254", checkoutID: "ws_CO_1", promptSent: true}
	service := newTestWhatsAppService(store, initiator, &fakeAnswers{})

	response, err := service.ProcessMessage(context.Background(), "whatsapp:+254712345678", "I need an appointment")
	require.NoError(t, err)
	assert.Contains(t, response, "payment")

	pending, err := store.GetPendingPayment("ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusInitiated, pending.Status)
	assert.Equal(t, "254712345678", pending.Phone)
	assert.Equal(t, int64(100000), pending.Amount)
}

func TestProcessMessageBookingIneligible(t *testing.T) {
	store := storage.NewMemoryStore()
	initiator := &stubInitiator{prefix: "254", notice: (&MpesaService{}).IneligibleNotice()}
	service := newTestWhatsAppService(store, initiator, &fakeAnswers{})

	response, err := service.ProcessMessage(context.Background(), "whatsapp:+14155550100", "I need an appointment")
	require.NoError(t, err)
	assert.Contains(t, response, "Kenyan phone numbers")
	assert.Zero(t, initiator.calls, "no initiation for ineligible numbers")

	rows, err := store.GetPendingPaymentsByStatus(models.PaymentStatusInitiated)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestProcessMessageDeclineNamesConfiguredChannel(t *testing.T) {
	store := storage.NewMemoryStore()
	initiator := &stubInitiator{
		channel: models.PaymentChannelStripe,
		prefix:  "unmatchable",
		notice:  (&StripeCheckoutService{}).IneligibleNotice(),
	}
	service := newTestWhatsAppService(store, initiator, &fakeAnswers{})

	response, err := service.ProcessMessage(context.Background(), "whatsapp:+14155550100", "I need an appointment")
	require.NoError(t, err)
	// The hosted-checkout channel has its own restriction text; the M-PESA
	// wording must not leak through.
	assert.Equal(t, (&StripeCheckoutService{}).IneligibleNotice(), response)
	assert.NotContains(t, response, "M-PESA")
}

func TestProcessMessageBookingProviderFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	initiator := &stubInitiator{
		prefix: "254",
		err:    &PaymentError{Kind: PaymentErrTransport, Err: context.DeadlineExceeded},
	}
	service := newTestWhatsAppService(store, initiator, &fakeAnswers{})

	response, err := service.ProcessMessage(context.Background(), "whatsapp:+254712345678", "appointment please")
	require.NoError(t, err)
	assert.Contains(t, response, "try again later")

	rows, err := store.GetPendingPaymentsByStatus(models.PaymentStatusInitiated)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestProcessMessageHostedCheckoutIncludesLink(t *testing.T) {
	store := storage.NewMemoryStore()
	initiator := &stubInitiator{
		channel:     models.PaymentChannelStripe,
		prefix:      "",
		checkoutID:  "cs_test_1",
		checkoutURL: "https://checkout.stripe.com/pay/cs_test_1",
		promptSent:  false,
	}
	service := newTestWhatsAppService(store, initiator, &fakeAnswers{})

	response, err := service.ProcessMessage(context.Background(), "whatsapp:+14155550100", "I need an appointment")
	require.NoError(t, err)
	assert.Contains(t, response, "https://checkout.stripe.com/pay/cs_test_1")
}

func TestProcessMessageMedicalQuery(t *testing.T) {
	store := storage.NewMemoryStore()
	answers := &fakeAnswers{}
	service := newTestWhatsAppService(store, &stubInitiator{prefix: "254"}, answers)

	response, err := service.ProcessMessage(context.Background(), "whatsapp:+254712345678", "I have a symptom in my chest")
	require.NoError(t, err)
	assert.Equal(t, "medical answer", response)
	require.Len(t, answers.medicalQuestions, 1)
	assert.Empty(t, answers.generalMessages)
}

func TestProcessMessageGeneralChat(t *testing.T) {
	store := storage.NewMemoryStore()
	answers := &fakeAnswers{}
	service := newTestWhatsAppService(store, &stubInitiator{prefix: "254"}, answers)

	response, err := service.ProcessMessage(context.Background(), "whatsapp:+254712345678", "hello there")
	require.NoError(t, err)
	assert.Equal(t, "general answer", response)
	require.Len(t, answers.generalMessages, 1)
}

func TestProcessMessageCapturesRequestedDateTime(t *testing.T) {
	store := storage.NewMemoryStore()
	answers := &fakeAnswers{}
	service := newTestWhatsAppService(store, &stubInitiator{prefix: "254", checkoutID: "ws_CO_9", promptSent: true}, answers)

	// A confirmed payment leaves an appointment waiting for a date.
	seedPending(t, store, "APPT_9", "ws_CO_9x", "254712345678", 100000)
	appointment, created, err := store.ConfirmPaymentAndCreateAppointment("APPT_9", 100000, "RCPT")
	require.NoError(t, err)
	require.True(t, created)

	response, err := service.ProcessMessage(context.Background(), "whatsapp:+254712345678", "Next Tuesday at 10am")
	require.NoError(t, err)
	assert.Contains(t, response, "noted your preferred date")
	assert.Empty(t, answers.generalMessages, "date capture must not fall through to chat")

	stored, err := store.GetAppointment(appointment.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, "Next Tuesday at 10am", stored.RequestedDateTime)

	// Once the date is set, general chat resumes.
	response, err = service.ProcessMessage(context.Background(), "whatsapp:+254712345678", "thanks a lot")
	require.NoError(t, err)
	assert.Equal(t, "general answer", response)
}

func TestProcessMessageRecordsChatHistory(t *testing.T) {
	store := storage.NewMemoryStore()
	service := newTestWhatsAppService(store, &stubInitiator{prefix: "254", promptSent: true}, &fakeAnswers{})

	_, err := service.ProcessMessage(context.Background(), "whatsapp:+254712345678", "I need an appointment")
	require.NoError(t, err)
	_, err = service.ProcessMessage(context.Background(), "whatsapp:+254712345678", "hello")
	require.NoError(t, err)

	entries, err := store.GetChatHistoryByPhone("254712345678", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "general", entries[0].MessageType)
	assert.Equal(t, "appointment", entries[1].MessageType)
}
