package models

import (
	"gorm.io/gorm"
)

// Appointment is created exactly once, when a pending payment transitions to
// confirmed. Only RequestedDateTime and Notes change after creation, from
// follow-up messages by the same user.
type Appointment struct {
	gorm.Model
	AppointmentID     string `json:"appointment_id" gorm:"uniqueIndex;not null"` // public identifier (UUID)
	UserPhone         string `json:"user_phone" gorm:"not null;index"`
	PaymentReference  string `json:"payment_reference" gorm:"index"` // reference of the confirmed PendingPayment
	PaymentStatus     string `json:"payment_status" gorm:"not null"` // "completed"
	AmountPaid        int64  `json:"amount_paid" gorm:"not null"`    // callback-reported amount, minor units
	TransactionID     string `json:"transaction_id"`                 // provider receipt number
	RequestedDateTime string `json:"requested_date_time"`            // free text from the user's follow-up message
	Notes             string `json:"notes" gorm:"type:text"`
}

// Appointment payment status at creation time
const (
	AppointmentPaymentCompleted = "completed"
)

// ChatHistory records one inbound message and the reply it produced.
type ChatHistory struct {
	gorm.Model
	UserPhone   string `json:"user_phone" gorm:"not null;index"`
	Message     string `json:"message" gorm:"type:text"`
	Response    string `json:"response" gorm:"type:text"`
	MessageType string `json:"message_type"` // "appointment", "medical_query", "general"
}
