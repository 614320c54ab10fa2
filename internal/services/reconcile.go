package services

import (
	"errors"
	"log"
	"time"

	"github.com/AfyaLink/afyachat-backend/internal/metrics"
	"github.com/AfyaLink/afyachat-backend/internal/models"
	"github.com/AfyaLink/afyachat-backend/internal/storage"
)

// Reconciliation outcome statuses, returned verbatim on the callback
// endpoint.
const (
	ReconcileStatusSuccess = "success"
	ReconcileStatusFailed  = "failed"
	ReconcileStatusError   = "error"
)

// CallbackResult is the provider-independent view of a payment callback.
// Each channel's webhook handler produces one of these; the reconciler does
// not care which shape it came from.
type CallbackResult struct {
	Reference     string // correlation token or merchant reference
	Success       bool
	ResultDesc    string
	AmountPaid    int64 // minor units, as reported by the provider
	TransactionID string
	PayerPhone    string
}

// ReconcileResult is what the callback endpoint reports back.
type ReconcileResult struct {
	Status      string
	Message     string
	Appointment *models.Appointment
	Duplicate   bool
}

// ReconcilerService matches asynchronous payment callbacks against the
// pending-payment ledger and commits the resulting state transition exactly
// once.
type ReconcilerService struct {
	store    storage.Store
	notifier Notifier
	metrics  *metrics.Metrics
}

// NewReconcilerService creates a new reconciler
func NewReconcilerService(store storage.Store, notifier Notifier, m *metrics.Metrics) *ReconcilerService {
	return &ReconcilerService{
		store:    store,
		notifier: notifier,
		metrics:  m,
	}
}

const confirmationMessage = "Your payment has been confirmed! Please reply with your preferred appointment date and time."

// A provider can deliver the callback before the initiating request has
// finished attaching the correlation token to the ledger row. A short
// lookup retry covers that window before the callback is written off as
// unknown.
const (
	lookupAttempts = 3
	lookupBackoff  = 150 * time.Millisecond
)

func (r *ReconcilerService) lookupPending(ref string) (*models.PendingPayment, error) {
	for attempt := 1; ; attempt++ {
		pending, err := r.store.GetPendingPayment(ref)
		if err == nil || !errors.Is(err, storage.ErrNotFound) || attempt == lookupAttempts {
			return pending, err
		}
		time.Sleep(lookupBackoff)
	}
}

// ReconcileMpesaCallback parses a raw STK callback payload and reconciles
// it. A malformed payload is reported as a parse error without touching any
// state; the endpoint still acknowledges it to stop provider retries.
func (r *ReconcilerService) ReconcileMpesaCallback(payload []byte) (*ReconcileResult, error) {
	callback, err := ParseSTKCallback(payload)
	if err != nil {
		log.Printf("⚠️  Discarding unparseable payment callback: %v", err)
		r.metrics.ObserveCallback("parse_error")
		return &ReconcileResult{Status: ReconcileStatusError, Message: "unrecognized callback payload"}, nil
	}
	return r.Reconcile(callback)
}

// Reconcile applies one callback to the ledger. The returned error is
// non-nil only for persistence failures, which the endpoint surfaces as a
// server error so the provider retries; every other outcome is in the
// result. Duplicate deliveries are no-ops and do not re-send the
// confirmation message.
func (r *ReconcilerService) Reconcile(callback *CallbackResult) (*ReconcileResult, error) {
	pending, err := r.lookupPending(callback.Reference)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("⚠️  Callback for unknown transaction %s - discarding", callback.Reference)
			r.metrics.ObserveCallback("unknown")
			return &ReconcileResult{Status: ReconcileStatusSuccess, Message: "transaction not recognized"}, nil
		}
		return nil, err
	}

	if !callback.Success {
		if err := r.store.MarkPaymentFailed(pending.Reference); err != nil {
			return nil, err
		}
		log.Printf("❌ Payment %s failed: %s", pending.Reference, callback.ResultDesc)
		r.metrics.ObserveCallback("failed")
		return &ReconcileResult{Status: ReconcileStatusFailed, Message: callback.ResultDesc}, nil
	}

	// The provider is authoritative for what was actually paid; a mismatch
	// with the requested amount is logged but does not block creation.
	if callback.AmountPaid != pending.Amount {
		log.Printf("⚠️  Amount mismatch for %s: requested %d, callback reports %d",
			pending.Reference, pending.Amount, callback.AmountPaid)
	}

	appointment, created, err := r.store.ConfirmPaymentAndCreateAppointment(
		pending.Reference, callback.AmountPaid, callback.TransactionID)
	if err != nil {
		return nil, err
	}
	if !created {
		log.Printf("🔁 Duplicate callback for %s - already confirmed", pending.Reference)
		r.metrics.ObserveCallback("duplicate")
		return &ReconcileResult{Status: ReconcileStatusSuccess, Message: callback.ResultDesc, Duplicate: true}, nil
	}

	log.Printf("✅ Payment %s confirmed, appointment %s created", pending.Reference, appointment.AppointmentID)
	r.metrics.ObserveCallback("confirmed")

	// Notification is best-effort: the appointment exists once the commit
	// above succeeds, whether or not this send goes through.
	if r.notifier != nil {
		if err := r.notifier.SendWhatsAppMessage(pending.Phone, confirmationMessage); err != nil {
			log.Printf("❌ Failed to send confirmation to %s: %v", pending.Phone, err)
		}
	}

	return &ReconcileResult{
		Status:      ReconcileStatusSuccess,
		Message:     callback.ResultDesc,
		Appointment: appointment,
	}, nil
}
