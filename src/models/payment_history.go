package models

import (
	"mentorhub/src/types"

	"github.com/google/uuid"
)

// PaymentHistory is the immutable settlement record, created exactly once when
// the provider confirms a payment. Refund transitions live on the Booking.
type PaymentHistory struct {
	ID              uuid.UUID              `gorm:"primarykey;type:uuid" json:"id"`
	Amount          int64                  `json:"amount"`
	TransactionCode string                 `json:"transaction_code,omitempty"`
	Method          string                 `json:"method,omitempty"`
	Status          types.SettlementStatus `json:"status,omitempty"`

	types.Timestamps
}
