package storage

import (
	"errors"
	"time"

	"github.com/AfyaLink/afyachat-backend/internal/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Store defines the interface for storage operations
type Store interface {
	// Pending-payment ledger operations
	CreatePendingPayment(payment *models.PendingPayment) (*models.PendingPayment, error)
	GetPendingPayment(ref string) (*models.PendingPayment, error) // matches CheckoutRequestID first, then Reference
	GetPendingPaymentsByStatus(status string) ([]*models.PendingPayment, error)
	AttachCheckoutRequestID(reference, checkoutRequestID string) error
	MarkPaymentConfirmed(ref string) (bool, error) // false if absent or not in "initiated" state
	MarkPaymentFailed(ref string) error
	DeletePendingPayment(reference string) error
	ExpirePendingPayments(olderThan time.Time) (int64, error)

	// Appointment operations
	ConfirmPaymentAndCreateAppointment(ref string, amountPaid int64, transactionID string) (*models.Appointment, bool, error)
	GetAppointment(appointmentID string) (*models.Appointment, error)
	GetAppointmentsByPhone(phone string) ([]*models.Appointment, error)
	GetAllAppointments() ([]*models.Appointment, error)
	UpdateAppointment(appointment *models.Appointment) error

	// Chat history operations
	CreateChatHistory(entry *models.ChatHistory) error
	GetChatHistoryByPhone(phone string, limit int) ([]*models.ChatHistory, error)
}
