package models

import (
	"mentorhub/src/types"
	"time"
)

// Schedule is a mentor's offered slot instance. IsBooked is advisory only;
// the authoritative signal is a completed Booking for this schedule.
type Schedule struct {
	ID       uint      `gorm:"primarykey" json:"id"`
	MentorID uint      `gorm:"index" json:"mentor_id,omitempty"`
	Date     time.Time `json:"date,omitempty"`
	Price    int64     `json:"price,omitempty"`
	IsBooked bool      `json:"is_booked"`

	Mentor *User       `gorm:"foreignKey:mentor_id" json:"mentor,omitempty"`
	Slots  []*TimeSlot `gorm:"many2many:schedule_slots;" json:"slots,omitempty"`

	types.Timestamps
}
