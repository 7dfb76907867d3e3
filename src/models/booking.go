package models

import (
	"mentorhub/src/types"

	"github.com/google/uuid"
)

// Booking is the central entity. At most one Booking per Schedule may hold
// PaymentProcess = completed; several pending ones may coexist while their
// customers are still checking out.
type Booking struct {
	ID               uint                       `gorm:"primarykey" json:"id"`
	Description      string                     `json:"description,omitempty"`
	Comment          string                     `json:"comment,omitempty"`
	Status           types.BookingStatus        `gorm:"default:'pending'" json:"status,omitempty"`
	PaymentProcess   types.PaymentProcessStatus `gorm:"default:'pending'" json:"payment_process,omitempty"`
	MentorID         uint                       `gorm:"index" json:"mentor_id,omitempty"`
	CustomerID       uint                       `gorm:"index" json:"customer_id,omitempty"`
	ScheduleID       uint                       `gorm:"index" json:"schedule_id,omitempty"`
	PaymentHistoryID *uuid.UUID                 `gorm:"type:uuid" json:"payment_history_id,omitempty"`

	Mentor         *User           `gorm:"foreignKey:mentor_id" json:"mentor,omitempty"`
	Customer       *User           `gorm:"foreignKey:customer_id" json:"customer,omitempty"`
	Schedule       *Schedule       `gorm:"foreignKey:schedule_id" json:"schedule,omitempty"`
	PaymentHistory *PaymentHistory `gorm:"foreignKey:payment_history_id" json:"payment_history,omitempty"`
	Histories      []*History      `gorm:"foreignKey:booking_id" json:"histories,omitempty"`

	types.Timestamps
}
