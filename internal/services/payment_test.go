package services

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AfyaLink/afyachat-backend/internal/models"
	"github.com/AfyaLink/afyachat-backend/internal/storage"
)

// stubInitiator is a configurable PaymentInitiator for tests.
type stubInitiator struct {
	channel     string
	prefix      string
	notice      string
	checkoutID  string
	checkoutURL string
	promptSent  bool
	err         error
	calls       int
}

func (s *stubInitiator) Initiate(phone string, amount int64, reference string) (*PaymentRequest, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &PaymentRequest{
		Reference:         reference,
		CheckoutRequestID: s.checkoutID,
		CheckoutURL:       s.checkoutURL,
		PromptSent:        s.promptSent,
	}, nil
}

func (s *stubInitiator) EligiblePhone(phone string) bool {
	return strings.HasPrefix(phone, s.prefix)
}

func (s *stubInitiator) IneligibleNotice() string {
	if s.notice == "" {
		return "Sorry, payments are not available for this phone number."
	}
	return s.notice
}

func (s *stubInitiator) Channel() string {
	if s.channel == "" {
		return models.PaymentChannelMpesa
	}
	return s.channel
}

func TestRequestPaymentWritesLedgerBeforeSend(t *testing.T) {
	store := storage.NewMemoryStore()
	initiator := &stubInitiator{prefix: "254", checkoutID: "ws_CO_1", promptSent: true}
	service := NewPaymentService(store, initiator, nil)

	request, err := service.RequestPayment("254712345678", 100000)
	require.NoError(t, err)
	assert.True(t, request.PromptSent)
	assert.Equal(t, "ws_CO_1", request.CheckoutRequestID)
	assert.True(t, strings.HasPrefix(request.Reference, "APPT_"))

	pending, err := store.GetPendingPayment("ws_CO_1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusInitiated, pending.Status)
	assert.Equal(t, "254712345678", pending.Phone)
	assert.Equal(t, int64(100000), pending.Amount)
	assert.Equal(t, request.Reference, pending.Reference)
}

func TestRequestPaymentLeavesNoPartialStateOnFailure(t *testing.T) {
	store := storage.NewMemoryStore()
	initiator := &stubInitiator{
		prefix: "254",
		err:    &PaymentError{Kind: PaymentErrProviderRejected, Err: errors.New("rejected")},
	}
	service := NewPaymentService(store, initiator, nil)

	_, err := service.RequestPayment("254712345678", 100000)
	require.Error(t, err)
	var paymentErr *PaymentError
	assert.ErrorAs(t, err, &paymentErr)

	// No partial ledger entry may survive a failed initiation.
	for _, status := range []string{
		models.PaymentStatusInitiated,
		models.PaymentStatusConfirmed,
		models.PaymentStatusFailed,
		models.PaymentStatusExpired,
	} {
		rows, err := store.GetPendingPaymentsByStatus(status)
		require.NoError(t, err)
		assert.Empty(t, rows, "status %s must have no rows", status)
	}
}

func TestRequestPaymentUniqueReferences(t *testing.T) {
	store := storage.NewMemoryStore()
	initiator := &stubInitiator{prefix: "254", promptSent: true}
	service := NewPaymentService(store, initiator, nil)

	first, err := service.RequestPayment("254712345678", 100000)
	require.NoError(t, err)
	second, err := service.RequestPayment("254712345678", 100000)
	require.NoError(t, err)

	assert.NotEqual(t, first.Reference, second.Reference)
}
