package models

import (
	"gorm.io/gorm"
)

// PendingPayment is the durable join point between an outbound payment
// request and the provider callback that later confirms or fails it.
// Amounts are stored in minor units (cents) to avoid rounding drift.
type PendingPayment struct {
	gorm.Model
	Reference         string `json:"reference" gorm:"uniqueIndex;not null"`          // merchant reference, unique per attempt
	CheckoutRequestID string `json:"checkout_request_id" gorm:"index"`               // provider correlation token, attached after initiation
	Phone             string `json:"phone" gorm:"not null;index"`                    // E.164 without the + sign
	Amount            int64  `json:"amount" gorm:"not null"`                         // requested amount, minor units
	Channel           string `json:"channel" gorm:"not null"`                        // "mpesa" or "stripe"
	Status            string `json:"status" gorm:"not null;index;default:initiated"` // "initiated", "confirmed", "failed", "expired"
}

// PendingPayment status constants
const (
	PaymentStatusInitiated = "initiated"
	PaymentStatusConfirmed = "confirmed"
	PaymentStatusFailed    = "failed"
	PaymentStatusExpired   = "expired"
)

// Payment channel constants
const (
	PaymentChannelMpesa  = "mpesa"
	PaymentChannelStripe = "stripe"
)
