package storage

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AfyaLink/afyachat-backend/internal/models"
)

// MemoryStore holds all data in memory for tests and local development
type MemoryStore struct {
	payments     map[string]*models.PendingPayment // keyed by merchant reference
	appointments map[string]*models.Appointment    // keyed by public appointment ID
	chats        []*models.ChatHistory

	// Mutexes for thread safety. Lock ordering: paymentMu before appointmentMu.
	paymentMu     sync.RWMutex
	appointmentMu sync.RWMutex
	chatMu        sync.RWMutex

	// Counters for row ID generation
	paymentCounter     uint
	appointmentCounter uint
	chatCounter        uint
}

// NewMemoryStore creates a new in-memory storage
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		payments:     make(map[string]*models.PendingPayment),
		appointments: make(map[string]*models.Appointment),
	}
}

// Pending-payment ledger operations

func (m *MemoryStore) CreatePendingPayment(payment *models.PendingPayment) (*models.PendingPayment, error) {
	m.paymentMu.Lock()
	defer m.paymentMu.Unlock()

	m.paymentCounter++
	payment.ID = m.paymentCounter
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt
	if payment.Status == "" {
		payment.Status = models.PaymentStatusInitiated
	}

	m.payments[payment.Reference] = payment
	return payment, nil
}

func (m *MemoryStore) GetPendingPayment(ref string) (*models.PendingPayment, error) {
	m.paymentMu.RLock()
	defer m.paymentMu.RUnlock()

	return m.findPaymentLocked(ref)
}

// findPaymentLocked matches the provider token first, then the merchant
// reference. Callers must hold paymentMu.
func (m *MemoryStore) findPaymentLocked(ref string) (*models.PendingPayment, error) {
	for _, payment := range m.payments {
		if payment.CheckoutRequestID != "" && payment.CheckoutRequestID == ref {
			return payment, nil
		}
	}
	if payment, exists := m.payments[ref]; exists {
		return payment, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) GetPendingPaymentsByStatus(status string) ([]*models.PendingPayment, error) {
	m.paymentMu.RLock()
	defer m.paymentMu.RUnlock()

	var payments []*models.PendingPayment
	for _, payment := range m.payments {
		if payment.Status == status {
			payments = append(payments, payment)
		}
	}
	sort.Slice(payments, func(i, j int) bool {
		return payments[i].CreatedAt.Before(payments[j].CreatedAt)
	})
	return payments, nil
}

func (m *MemoryStore) AttachCheckoutRequestID(reference, checkoutRequestID string) error {
	m.paymentMu.Lock()
	defer m.paymentMu.Unlock()

	payment, exists := m.payments[reference]
	if !exists {
		return ErrNotFound
	}
	payment.CheckoutRequestID = checkoutRequestID
	payment.UpdatedAt = time.Now()
	return nil
}

// MarkPaymentConfirmed is a compare-and-swap from "initiated" to "confirmed".
// It returns false when the entry is absent or already past "initiated", which
// is what makes duplicate callback deliveries no-ops.
func (m *MemoryStore) MarkPaymentConfirmed(ref string) (bool, error) {
	m.paymentMu.Lock()
	defer m.paymentMu.Unlock()

	return m.confirmPaymentLocked(ref) != nil, nil
}

func (m *MemoryStore) confirmPaymentLocked(ref string) *models.PendingPayment {
	payment, err := m.findPaymentLocked(ref)
	if err != nil || payment.Status != models.PaymentStatusInitiated {
		return nil
	}
	payment.Status = models.PaymentStatusConfirmed
	payment.UpdatedAt = time.Now()
	return payment
}

func (m *MemoryStore) MarkPaymentFailed(ref string) error {
	m.paymentMu.Lock()
	defer m.paymentMu.Unlock()

	payment, err := m.findPaymentLocked(ref)
	if err != nil {
		return err
	}
	if payment.Status == models.PaymentStatusInitiated {
		payment.Status = models.PaymentStatusFailed
		payment.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemoryStore) DeletePendingPayment(reference string) error {
	m.paymentMu.Lock()
	defer m.paymentMu.Unlock()

	delete(m.payments, reference)
	return nil
}

// ExpirePendingPayments transitions entries still "initiated" past the
// deadline to "expired". Confirmed and failed entries are never touched.
func (m *MemoryStore) ExpirePendingPayments(olderThan time.Time) (int64, error) {
	m.paymentMu.Lock()
	defer m.paymentMu.Unlock()

	var expired int64
	for _, payment := range m.payments {
		if payment.Status == models.PaymentStatusInitiated && payment.CreatedAt.Before(olderThan) {
			payment.Status = models.PaymentStatusExpired
			payment.UpdatedAt = time.Now()
			expired++
		}
	}
	return expired, nil
}

// Appointment operations

// ConfirmPaymentAndCreateAppointment performs the confirm CAS and the
// appointment insert under one lock section, mirroring the single database
// transaction of the GORM store. The bool is false when the payment was
// absent or already confirmed, in which case no appointment is created.
func (m *MemoryStore) ConfirmPaymentAndCreateAppointment(ref string, amountPaid int64, transactionID string) (*models.Appointment, bool, error) {
	m.paymentMu.Lock()
	defer m.paymentMu.Unlock()

	payment := m.confirmPaymentLocked(ref)
	if payment == nil {
		return nil, false, nil
	}

	m.appointmentMu.Lock()
	defer m.appointmentMu.Unlock()

	m.appointmentCounter++
	now := time.Now()
	appointment := &models.Appointment{
		AppointmentID:    uuid.NewString(),
		UserPhone:        payment.Phone,
		PaymentReference: payment.Reference,
		PaymentStatus:    models.AppointmentPaymentCompleted,
		AmountPaid:       amountPaid,
		TransactionID:    transactionID,
	}
	appointment.ID = m.appointmentCounter
	appointment.CreatedAt = now
	appointment.UpdatedAt = now

	m.appointments[appointment.AppointmentID] = appointment
	return appointment, true, nil
}

func (m *MemoryStore) GetAppointment(appointmentID string) (*models.Appointment, error) {
	m.appointmentMu.RLock()
	defer m.appointmentMu.RUnlock()

	appointment, exists := m.appointments[appointmentID]
	if !exists {
		return nil, ErrNotFound
	}
	return appointment, nil
}

// GetAppointmentsByPhone returns the phone's appointments, newest first.
func (m *MemoryStore) GetAppointmentsByPhone(phone string) ([]*models.Appointment, error) {
	m.appointmentMu.RLock()
	defer m.appointmentMu.RUnlock()

	var appointments []*models.Appointment
	for _, appointment := range m.appointments {
		if strings.EqualFold(appointment.UserPhone, phone) {
			appointments = append(appointments, appointment)
		}
	}
	sort.Slice(appointments, func(i, j int) bool {
		return appointments[i].CreatedAt.After(appointments[j].CreatedAt)
	})
	return appointments, nil
}

func (m *MemoryStore) GetAllAppointments() ([]*models.Appointment, error) {
	m.appointmentMu.RLock()
	defer m.appointmentMu.RUnlock()

	appointments := make([]*models.Appointment, 0, len(m.appointments))
	for _, appointment := range m.appointments {
		appointments = append(appointments, appointment)
	}
	sort.Slice(appointments, func(i, j int) bool {
		return appointments[i].CreatedAt.After(appointments[j].CreatedAt)
	})
	return appointments, nil
}

func (m *MemoryStore) UpdateAppointment(appointment *models.Appointment) error {
	m.appointmentMu.Lock()
	defer m.appointmentMu.Unlock()

	if _, exists := m.appointments[appointment.AppointmentID]; !exists {
		return ErrNotFound
	}
	appointment.UpdatedAt = time.Now()
	m.appointments[appointment.AppointmentID] = appointment
	return nil
}

// Chat history operations

func (m *MemoryStore) CreateChatHistory(entry *models.ChatHistory) error {
	m.chatMu.Lock()
	defer m.chatMu.Unlock()

	m.chatCounter++
	entry.ID = m.chatCounter
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	m.chats = append(m.chats, entry)
	return nil
}

func (m *MemoryStore) GetChatHistoryByPhone(phone string, limit int) ([]*models.ChatHistory, error) {
	m.chatMu.RLock()
	defer m.chatMu.RUnlock()

	var entries []*models.ChatHistory
	for i := len(m.chats) - 1; i >= 0; i-- {
		if m.chats[i].UserPhone == phone {
			entries = append(entries, m.chats[i])
			if limit > 0 && len(entries) >= limit {
				break
			}
		}
	}
	return entries, nil
}
