package models

import "mentorhub/src/types"

// TimeSlot is immutable reference data: an hour-granularity interval with a
// stable code, e.g. slot-07-08. Shared across schedules via schedule_slots.
type TimeSlot struct {
	ID        uint   `gorm:"primarykey" json:"id"`
	Code      string `gorm:"uniqueIndex" json:"code,omitempty"`
	TimeStart int    `json:"time_start"`
	TimeEnd   int    `json:"time_end"`

	Schedules []*Schedule `gorm:"many2many:schedule_slots;" json:"-"`

	types.Timestamps
}
