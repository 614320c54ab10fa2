package services

import (
	"fmt"
	"log"

	"github.com/AfyaLink/afyachat-backend/internal/metrics"
	"github.com/AfyaLink/afyachat-backend/internal/models"
	"github.com/AfyaLink/afyachat-backend/internal/storage"
	"github.com/AfyaLink/afyachat-backend/internal/utils"
)

// PaymentError kinds. All of them are non-fatal to the request handler: the
// user gets a generic retry message and nothing is retried automatically.
const (
	PaymentErrCredential       = "credential"        // auth step against the provider failed
	PaymentErrProviderRejected = "provider_rejected" // explicit non-zero response code
	PaymentErrTransport        = "transport"         // network failure or timeout
)

// PaymentError wraps a failed payment initiation with its taxonomy kind.
type PaymentError struct {
	Kind string
	Err  error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment %s error: %v", e.Kind, e.Err)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

// PaymentRequest is the outcome of a successful payment initiation.
type PaymentRequest struct {
	Reference         string // merchant reference, written to the ledger before the provider call
	CheckoutRequestID string // provider correlation token
	CheckoutURL       string // hosted-checkout link, empty for push channels
	PromptSent        bool   // true when the provider pushed a prompt to the payer's device
}

// PaymentInitiator starts an asynchronous payment. Implemented by the M-Pesa
// STK push client and the Stripe hosted-checkout client; selected by
// configuration at startup.
type PaymentInitiator interface {
	Initiate(phone string, amount int64, reference string) (*PaymentRequest, error)
	EligiblePhone(phone string) bool
	IneligibleNotice() string // user-facing decline naming the channel's restriction
	Channel() string
}

// PaymentService owns the pending-payment ledger side of initiation.
type PaymentService struct {
	store     storage.Store
	initiator PaymentInitiator
	metrics   *metrics.Metrics
}

// NewPaymentService creates a new payment service
func NewPaymentService(store storage.Store, initiator PaymentInitiator, m *metrics.Metrics) *PaymentService {
	return &PaymentService{
		store:     store,
		initiator: initiator,
		metrics:   m,
	}
}

// Channel returns the configured payment channel name.
func (p *PaymentService) Channel() string {
	return p.initiator.Channel()
}

// EligiblePhone reports whether the number qualifies for the configured
// payment channel. Callers must branch on this before RequestPayment.
func (p *PaymentService) EligiblePhone(phone string) bool {
	return p.initiator.EligiblePhone(phone)
}

// IneligibleNotice is the decline message for numbers EligiblePhone rejects.
func (p *PaymentService) IneligibleNotice() string {
	return p.initiator.IneligibleNotice()
}

// RequestPayment writes the ledger entry, then calls the provider. Writing
// before the send closes the window where a provider callback could arrive
// for a reference the ledger has never seen. If the provider call fails the
// entry is removed again, so a PaymentError leaves no partial state.
func (p *PaymentService) RequestPayment(phone string, amount int64) (*PaymentRequest, error) {
	reference := utils.GenerateReference("APPT")

	pending := &models.PendingPayment{
		Reference: reference,
		Phone:     phone,
		Amount:    amount,
		Channel:   p.initiator.Channel(),
		Status:    models.PaymentStatusInitiated,
	}
	if _, err := p.store.CreatePendingPayment(pending); err != nil {
		return nil, fmt.Errorf("failed to record pending payment: %w", err)
	}

	request, err := p.initiator.Initiate(phone, amount, reference)
	if err != nil {
		if delErr := p.store.DeletePendingPayment(reference); delErr != nil {
			log.Printf("❌ Failed to remove pending payment %s after initiation error: %v", reference, delErr)
		}
		p.metrics.ObservePayment(p.initiator.Channel(), "initiation_failed")
		return nil, err
	}

	if request.CheckoutRequestID != "" {
		if err := p.store.AttachCheckoutRequestID(reference, request.CheckoutRequestID); err != nil {
			log.Printf("⚠️  Failed to attach checkout request ID to %s: %v", reference, err)
		}
	}

	p.metrics.ObservePayment(p.initiator.Channel(), "initiated")
	log.Printf("💳 Payment initiated: ref=%s checkout=%s phone=%s amount=%d",
		reference, request.CheckoutRequestID, phone, amount)
	return request, nil
}
