package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

type UserRole string

const (
	ROLE_CUSTOMER UserRole = "customer"
	ROLE_MENTOR   UserRole = "mentor"
	ROLE_ADMIN    UserRole = "admin"
)

// BookingStatus is the customer-facing lifecycle of a Booking.
type BookingStatus string

const (
	BOOKING_PENDING   BookingStatus = "pending"
	BOOKING_CONFIRMED BookingStatus = "confirmed"
	BOOKING_CANCELED  BookingStatus = "canceled"
	BOOKING_COMPLETED BookingStatus = "completed"
)

// PaymentProcessStatus is the settlement lifecycle of a Booking. Kept separate
// from BookingStatus: cancellation and refund rules read only this field.
type PaymentProcessStatus string

const (
	PAYMENT_PENDING     PaymentProcessStatus = "pending"
	PAYMENT_COMPLETED   PaymentProcessStatus = "completed"
	PAYMENT_FAILED      PaymentProcessStatus = "failed"
	PAYMENT_WAIT_REFUND PaymentProcessStatus = "wait_refund"
	PAYMENT_REFUNDED    PaymentProcessStatus = "refunded"
)

type SettlementStatus string

const (
	SETTLEMENT_PAID SettlementStatus = "paid"
)

type CreateBookingRequestBody struct {
	ScheduleID  uint   `json:"schedule_id" binding:"required"`
	Description string `json:"description,omitempty"`
}

type CancelBookingRequestBody struct {
	Comment string `json:"comment,omitempty"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type ScheduleQueryFilters struct {
	Mentor uint   `form:"mentor" binding:"required"`
	From   string `form:"from" binding:"omitempty,rangedate"`
	To     string `form:"to" binding:"omitempty,rangedate"`
}

type CreateBookingResponse struct {
	BookingID  uint   `json:"booking_id"`
	PaymentURL string `json:"payment_url"`
	QRCode     string `json:"qr_code,omitempty"`
}

type APIResponseTimeSlot struct {
	ID        uint   `json:"id"`
	Code      string `json:"code"`
	TimeStart int    `json:"time_start"`
	TimeEnd   int    `json:"time_end"`
}

type APIResponseSchedule struct {
	ID           uint                  `json:"id"`
	MentorID     uint                  `json:"mentor_id"`
	MentorHandle string                `json:"mentor_handle,omitempty"`
	Date         time.Time             `json:"date"`
	Price        int64                 `json:"price"`
	IsBooked     bool                  `json:"is_booked"`
	Slots        []APIResponseTimeSlot `json:"slots,omitempty"`
}
