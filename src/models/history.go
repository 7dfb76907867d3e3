package models

import (
	"mentorhub/src/types"

	"github.com/google/uuid"
)

// History is the append-only audit note on a Booking. Never updated, never deleted.
type History struct {
	ID          uuid.UUID `gorm:"primarykey;type:uuid" json:"id"`
	BookingID   uint      `gorm:"index" json:"booking_id,omitempty"`
	Description string    `json:"description,omitempty"`

	Booking *Booking `gorm:"foreignKey:booking_id" json:"-"`

	types.Timestamps
}
