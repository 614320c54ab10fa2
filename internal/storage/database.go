package storage

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/AfyaLink/afyachat-backend/internal/models"
)

// DatabaseStore implements Store using GORM/PostgreSQL
type DatabaseStore struct {
	db *gorm.DB
}

// NewDatabaseStore creates a new database-backed storage
func NewDatabaseStore(db *gorm.DB) *DatabaseStore {
	return &DatabaseStore{db: db}
}

// Pending-payment ledger operations

func (d *DatabaseStore) CreatePendingPayment(payment *models.PendingPayment) (*models.PendingPayment, error) {
	if payment.Status == "" {
		payment.Status = models.PaymentStatusInitiated
	}
	if err := d.db.Create(payment).Error; err != nil {
		return nil, err
	}
	return payment, nil
}

func (d *DatabaseStore) GetPendingPayment(ref string) (*models.PendingPayment, error) {
	var payment models.PendingPayment
	err := d.db.Where("checkout_request_id = ?", ref).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		err = d.db.Where("reference = ?", ref).First(&payment).Error
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (d *DatabaseStore) GetPendingPaymentsByStatus(status string) ([]*models.PendingPayment, error) {
	var payments []*models.PendingPayment
	if err := d.db.Where("status = ?", status).Order("created_at asc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

func (d *DatabaseStore) AttachCheckoutRequestID(reference, checkoutRequestID string) error {
	result := d.db.Model(&models.PendingPayment{}).
		Where("reference = ?", reference).
		Update("checkout_request_id", checkoutRequestID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkPaymentConfirmed is the atomic check-and-set: the conditional UPDATE
// only matches a row still in "initiated" state, so of two racing callback
// deliveries exactly one observes RowsAffected == 1.
func (d *DatabaseStore) MarkPaymentConfirmed(ref string) (bool, error) {
	return d.confirmPayment(d.db, ref)
}

func (d *DatabaseStore) confirmPayment(tx *gorm.DB, ref string) (bool, error) {
	result := tx.Model(&models.PendingPayment{}).
		Where("(checkout_request_id = ? OR reference = ?) AND status = ?", ref, ref, models.PaymentStatusInitiated).
		Update("status", models.PaymentStatusConfirmed)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (d *DatabaseStore) MarkPaymentFailed(ref string) error {
	return d.db.Model(&models.PendingPayment{}).
		Where("(checkout_request_id = ? OR reference = ?) AND status = ?", ref, ref, models.PaymentStatusInitiated).
		Update("status", models.PaymentStatusFailed).Error
}

func (d *DatabaseStore) DeletePendingPayment(reference string) error {
	return d.db.Unscoped().Where("reference = ?", reference).Delete(&models.PendingPayment{}).Error
}

func (d *DatabaseStore) ExpirePendingPayments(olderThan time.Time) (int64, error) {
	result := d.db.Model(&models.PendingPayment{}).
		Where("status = ? AND created_at < ?", models.PaymentStatusInitiated, olderThan).
		Update("status", models.PaymentStatusExpired)
	return result.RowsAffected, result.Error
}

// Appointment operations

// ConfirmPaymentAndCreateAppointment runs the confirm CAS and the appointment
// insert in a single transaction. If the insert fails the status flip rolls
// back, so a provider retry can still commit the appointment.
func (d *DatabaseStore) ConfirmPaymentAndCreateAppointment(ref string, amountPaid int64, transactionID string) (*models.Appointment, bool, error) {
	var appointment *models.Appointment
	created := false

	err := d.db.Transaction(func(tx *gorm.DB) error {
		ok, err := d.confirmPayment(tx, ref)
		if err != nil {
			return err
		}
		if !ok {
			return nil // absent or already confirmed; idempotent no-op
		}

		var payment models.PendingPayment
		if err := tx.Where("checkout_request_id = ? OR reference = ?", ref, ref).First(&payment).Error; err != nil {
			return err
		}

		appointment = &models.Appointment{
			AppointmentID:    uuid.NewString(),
			UserPhone:        payment.Phone,
			PaymentReference: payment.Reference,
			PaymentStatus:    models.AppointmentPaymentCompleted,
			AmountPaid:       amountPaid,
			TransactionID:    transactionID,
		}
		if err := tx.Create(appointment).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if !created {
		return nil, false, nil
	}
	return appointment, true, nil
}

func (d *DatabaseStore) GetAppointment(appointmentID string) (*models.Appointment, error) {
	var appointment models.Appointment
	err := d.db.Where("appointment_id = ?", appointmentID).First(&appointment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &appointment, nil
}

func (d *DatabaseStore) GetAppointmentsByPhone(phone string) ([]*models.Appointment, error) {
	var appointments []*models.Appointment
	if err := d.db.Where("user_phone = ?", phone).Order("created_at desc").Find(&appointments).Error; err != nil {
		return nil, err
	}
	return appointments, nil
}

func (d *DatabaseStore) GetAllAppointments() ([]*models.Appointment, error) {
	var appointments []*models.Appointment
	if err := d.db.Order("created_at desc").Find(&appointments).Error; err != nil {
		return nil, err
	}
	return appointments, nil
}

func (d *DatabaseStore) UpdateAppointment(appointment *models.Appointment) error {
	return d.db.Save(appointment).Error
}

// Chat history operations

func (d *DatabaseStore) CreateChatHistory(entry *models.ChatHistory) error {
	return d.db.Create(entry).Error
}

func (d *DatabaseStore) GetChatHistoryByPhone(phone string, limit int) ([]*models.ChatHistory, error) {
	var entries []*models.ChatHistory
	query := d.db.Where("user_phone = ?", phone).Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
