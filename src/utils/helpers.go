package utils

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"mentorhub/src/config"
	"mentorhub/src/db"
	"mentorhub/src/lib"
	"mentorhub/src/models"
	"mentorhub/src/types"

	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrSlotUnavailable = errors.New("schedule already has a completed booking")
	ErrBookingNotFound = errors.New("booking not found")
	ErrForbidden       = errors.New("booking does not belong to caller")
	ErrInvalidState    = errors.New("booking is not in a valid state for this operation")
	ErrTooLateToCancel = errors.New("cancellation window has closed")
)

// CreateBookingAndGetPaymentURL records a pending booking for the schedule and
// returns the signed provider redirect URL. The completed-booking check here is
// advisory only: it narrows the race window for the customer's benefit, but the
// authoritative decision is made when the provider calls back.
func CreateBookingAndGetPaymentURL(customerId uint, params *types.CreateBookingRequestBody, clientIP string) (*types.CreateBookingResponse, error) {
	db := db.GetDb()

	var customer models.User
	if err := db.Model(&models.User{}).Where(&models.User{ID: customerId}).First(&customer).Error; err != nil {
		log.Printf("Customer [%d] not found: %s\n", customerId, err.Error())
		return nil, ErrNotFound
	}
	var schedule models.Schedule
	if err := db.Model(&models.Schedule{}).Where("id = ?", params.ScheduleID).First(&schedule).Error; err != nil {
		log.Printf("Schedule [%d] not found: %s\n", params.ScheduleID, err.Error())
		return nil, ErrNotFound
	}

	taken, err := ScheduleHasCompletedBooking(db, schedule.ID, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrSlotUnavailable
	}

	booking := models.Booking{
		Description:    params.Description,
		Status:         types.BOOKING_PENDING,
		PaymentProcess: types.PAYMENT_PENDING,
		MentorID:       schedule.MentorID,
		CustomerID:     customerId,
		ScheduleID:     schedule.ID,
	}
	if err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&booking).Error; err != nil {
			log.Printf("error in Booking transaction: %s\n", err.Error())
			return err
		}
		return nil
	}); err != nil {
		return nil, err
	}

	cfg := lib.GetVNPayConfig()
	orderInfo := fmt.Sprintf("Booking %d - mentor %d on %s", booking.ID, schedule.MentorID, schedule.Date.Format(config.DATE_PARSE_FORMAT))
	paymentURL := lib.VNPayBuildPaymentURL(cfg, booking.ID, schedule.Price, orderInfo, clientIP, lib.GetClock().Now())

	qr, err := lib.RenderPaymentQR(paymentURL)
	if err != nil {
		log.Printf("Could not render payment QR for Booking [%d]: %s\n", booking.ID, err.Error())
		qr = ""
	}

	return &types.CreateBookingResponse{
		BookingID:  booking.ID,
		PaymentURL: paymentURL,
		QRCode:     qr,
	}, nil
}

// ScheduleHasCompletedBooking reports whether any booking other than excludeId
// already holds payment_process = completed for the schedule.
func ScheduleHasCompletedBooking(tx *gorm.DB, scheduleId uint, excludeId uint) (bool, error) {
	q := tx.
		Model(&models.Booking{}).
		Where("schedule_id = ?", scheduleId).
		Where("payment_process = ?", types.PAYMENT_COMPLETED)
	if excludeId > 0 {
		q = q.Where("id <> ?", excludeId)
	}
	var count int64
	if err := q.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// SettlePaymentCallback resolves one verified provider callback. Success
// callbacks race for the slot: whichever commits first wins it, every other
// confirmed payment for the same schedule is parked as wait_refund. Failure
// callbacks mark the booking failed and drop it. Returns the mentor id so the
// caller can route the user to the mentor confirmation page either way.
func SettlePaymentCallback(params map[string]string) (uint, error) {
	ref := params[lib.VNPayParamTxnRef]
	atoi, err := strconv.Atoi(ref)
	if err != nil {
		log.Printf("Bad transaction reference [%s]: %s\n", ref, err.Error())
		return 0, ErrBookingNotFound
	}
	bookingId := uint(atoi)

	db := db.GetDb()
	var booking models.Booking
	if err := db.Model(&models.Booking{}).Where("id = ?", bookingId).First(&booking).Error; err != nil {
		log.Printf("Booking [%d] not found for callback: %s\n", bookingId, err.Error())
		return 0, ErrBookingNotFound
	}
	mentorId := booking.MentorID

	responseCode := params[lib.VNPayParamResponseCode]
	if responseCode != lib.VNPayResponseSuccess {
		// only an unsettled reservation can fail; a late failure callback for a
		// booking that already settled (or is owed a refund) must change nothing
		if booking.PaymentProcess != types.PAYMENT_PENDING {
			log.Printf("Ignoring failure callback with code [%s] for Booking [%d] in state [%s]\n", responseCode, bookingId, booking.PaymentProcess)
			return mentorId, nil
		}
		// a failed, unpaid reservation has no further value
		if err := db.Transaction(func(tx *gorm.DB) error {
			if err := tx.
				Model(&models.Booking{}).
				Where("id = ?", bookingId).
				Update("payment_process", types.PAYMENT_FAILED).
				Error; err != nil {
				return err
			}
			if err := tx.Unscoped().Delete(&models.Booking{}, bookingId).Error; err != nil {
				return err
			}
			return nil
		}); err != nil {
			log.Printf("Error discarding failed Booking [%d]: %s\n", bookingId, err.Error())
			return mentorId, err
		}
		log.Printf("Booking [%d] payment failed with code [%s], record removed\n", bookingId, responseCode)
		return mentorId, nil
	}

	// re-driven callback for an already settled booking
	if booking.PaymentProcess == types.PAYMENT_COMPLETED && booking.PaymentHistoryID != nil {
		log.Printf("Duplicate success callback for Booking [%d], already settled\n", bookingId)
		return mentorId, nil
	}

	lostRace := false
	duplicate := false
	err = db.Transaction(func(tx *gorm.DB) error {
		var fresh models.Booking
		if err := tx.Model(&models.Booking{}).Where("id = ?", bookingId).First(&fresh).Error; err != nil {
			return err
		}
		if fresh.PaymentProcess == types.PAYMENT_COMPLETED {
			duplicate = true
			return nil
		}

		taken, err := ScheduleHasCompletedBooking(tx, fresh.ScheduleID, fresh.ID)
		if err != nil {
			return err
		}
		if taken {
			lostRace = true
			return markWaitRefund(tx, fresh.ID, "payment captured but slot already taken; refund pending")
		}

		var schedule models.Schedule
		if err := tx.Model(&models.Schedule{}).Where("id = ?", fresh.ScheduleID).First(&schedule).Error; err != nil {
			return err
		}
		history := models.PaymentHistory{
			ID:              uuid.New(),
			Amount:          schedule.Price,
			TransactionCode: params[lib.VNPayParamTransactionNo],
			Method:          paymentMethodOf(params),
			Status:          types.SETTLEMENT_PAID,
		}
		if err := tx.Create(&history).Error; err != nil {
			return err
		}
		if err := tx.
			Model(&models.Booking{}).
			Where("id = ?", fresh.ID).
			Updates(&models.Booking{
				Status:           types.BOOKING_CONFIRMED,
				PaymentProcess:   types.PAYMENT_COMPLETED,
				PaymentHistoryID: &history.ID,
			}).
			Error; err != nil {
			return err
		}
		// advisory flag only; the completed booking itself is the source of truth
		if err := tx.
			Model(&models.Schedule{}).
			Where("id = ?", schedule.ID).
			Update("is_booked", true).
			Error; err != nil {
			return err
		}
		audit := models.History{ID: uuid.New(), BookingID: fresh.ID, Description: "payment settled"}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if !isUniqueViolation(err) {
			log.Printf("Error settling Booking [%d]: %s\n", bookingId, err.Error())
			return mentorId, err
		}
		// lost the race at commit time: the partial unique index on completed
		// bookings rejected us; the captured payment must still be returned
		lostRace = true
		if err := db.Transaction(func(tx *gorm.DB) error {
			return markWaitRefund(tx, bookingId, "payment captured but slot already taken; refund pending")
		}); err != nil {
			log.Printf("Error flagging Booking [%d] for refund: %s\n", bookingId, err.Error())
			return mentorId, err
		}
	}

	if duplicate {
		log.Printf("Duplicate success callback for Booking [%d], already settled\n", bookingId)
		return mentorId, nil
	}

	event := lib.TopicBookingSettled
	if lostRace {
		log.Printf("Booking [%d] lost the race for Schedule [%d]; flagged for refund\n", bookingId, booking.ScheduleID)
	} else {
		InvalidateMentorScheduleCache(mentorId)
	}
	go NotifyBookingEvent(event, &booking, types.JSONB{"lost_race": lostRace})

	return mentorId, nil
}

func markWaitRefund(tx *gorm.DB, bookingId uint, note string) error {
	if err := tx.
		Model(&models.Booking{}).
		Where("id = ?", bookingId).
		Update("payment_process", types.PAYMENT_WAIT_REFUND).
		Error; err != nil {
		return err
	}
	audit := models.History{ID: uuid.New(), BookingID: bookingId, Description: note}
	if err := tx.Create(&audit).Error; err != nil {
		return err
	}
	return nil
}

func paymentMethodOf(params map[string]string) string {
	if bank := params[lib.VNPayParamBankCode]; bank != "" {
		return bank
	}
	return params[lib.VNPayParamCardType]
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "duplicate key")
}

// CancelBooking applies the customer cancellation rule: owner only, settled
// bookings only, and strictly before the earliest slot start minus the cutoff.
func CancelBooking(customerId uint, bookingId uint, comment string) error {
	db := db.GetDb()
	var booking models.Booking
	if err := db.
		Model(&models.Booking{}).
		Where("id = ?", bookingId).
		Preload("Schedule").
		Preload("Schedule.Slots").
		First(&booking).
		Error; err != nil {
		return ErrBookingNotFound
	}
	if booking.CustomerID != customerId {
		return ErrForbidden
	}
	if booking.PaymentProcess != types.PAYMENT_COMPLETED {
		return ErrInvalidState
	}
	slotStart, ok := EarliestSlotStart(booking.Schedule)
	if !ok {
		log.Printf("Schedule [%d] has no slots; Booking [%d] cannot be canceled\n", booking.ScheduleID, bookingId)
		return ErrInvalidState
	}
	now := lib.GetClock().Now()
	if !CanCancelAt(now, slotStart) {
		return ErrTooLateToCancel
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Model(&models.Booking{}).
			Where("id = ?", bookingId).
			Updates(&models.Booking{
				Status:         types.BOOKING_CANCELED,
				PaymentProcess: types.PAYMENT_WAIT_REFUND,
				Comment:        comment,
			}).
			Error; err != nil {
			return err
		}
		if err := tx.
			Model(&models.Schedule{}).
			Where("id = ?", booking.ScheduleID).
			Update("is_booked", false).
			Error; err != nil {
			return err
		}
		audit := models.History{
			ID:          uuid.New(),
			BookingID:   bookingId,
			Description: fmt.Sprintf("canceled by customer: %s", comment),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		log.Printf("CancelBooking failed for [%d]: %s\n", bookingId, err.Error())
		return err
	}

	InvalidateMentorScheduleCache(booking.MentorID)
	go NotifyBookingEvent(lib.TopicBookingCanceled, &booking, types.JSONB{"comment": comment})

	return nil
}

// EarliestSlotStart combines the schedule date with the smallest slot start
// hour. Returns false when the schedule carries no slots.
func EarliestSlotStart(schedule *models.Schedule) (time.Time, bool) {
	if schedule == nil || len(schedule.Slots) == 0 {
		return time.Time{}, false
	}
	earliest := schedule.Slots[0].TimeStart
	for _, slot := range schedule.Slots[1:] {
		if slot.TimeStart < earliest {
			earliest = slot.TimeStart
		}
	}
	d := schedule.Date
	return time.Date(d.Year(), d.Month(), d.Day(), earliest, 0, 0, 0, d.Location()), true
}

// CanCancelAt reports whether now is strictly before slotStart minus the
// cancellation cutoff.
func CanCancelAt(now time.Time, slotStart time.Time) bool {
	return now.Before(slotStart.Add(-config.CancelCutoff))
}

// ProcessRefund is the admin transition wait_refund -> refunded.
func ProcessRefund(bookingId uint) error {
	db := db.GetDb()
	var booking models.Booking
	if err := db.Model(&models.Booking{}).Where("id = ?", bookingId).First(&booking).Error; err != nil {
		return ErrBookingNotFound
	}
	if booking.PaymentProcess != types.PAYMENT_WAIT_REFUND {
		return ErrInvalidState
	}
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Model(&models.Booking{}).
			Where("id = ?", bookingId).
			Update("payment_process", types.PAYMENT_REFUNDED).
			Error; err != nil {
			return err
		}
		audit := models.History{ID: uuid.New(), BookingID: bookingId, Description: "refund processed"}
		if err := tx.Create(&audit).Error; err != nil {
			return err
		}
		return nil
	})
}

// CleanupUnpaidBookings removes pending bookings that never produced a
// payment record within the retention window. Bookings holding any
// PaymentHistory are never touched, regardless of age.
func CleanupUnpaidBookings() (int, error) {
	db := db.GetDb()
	cutoff := lib.GetClock().Now().Add(-config.BookingRetention())
	var stale []models.Booking
	if err := db.
		Model(&models.Booking{}).
		Where("status = ?", types.BOOKING_PENDING).
		Where("payment_history_id IS NULL").
		Where("created_at < ?", cutoff).
		Find(&stale).
		Error; err != nil {
		log.Printf("Error retrieving stale bookings: %s\n", err.Error())
		return 0, err
	}
	removed := 0
	for _, b := range stale {
		if err := db.Unscoped().Delete(&models.Booking{}, b.ID).Error; err != nil {
			log.Printf("Error removing stale Booking [%d]: %s\n", b.ID, err.Error())
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Printf("Cleanup removed %d stale bookings\n", removed)
	}
	return removed, nil
}

func GetOwnBookings(userId uint) ([]models.Booking, error) {
	db := db.GetDb()
	var bookings []models.Booking
	err := db.
		Model(&models.Booking{}).
		Where(&models.Booking{CustomerID: userId}).
		Preload("Schedule").
		Preload("Schedule.Slots").
		Preload("PaymentHistory").
		Order("created_at DESC").
		Limit(20).
		Find(&bookings).
		Error
	return bookings, err
}

func GetBooking(id uint) (*models.Booking, error) {
	db := db.GetDb()
	var booking models.Booking
	if err := db.
		Model(&models.Booking{}).
		Where("id = ?", id).
		Preload("Schedule").
		Preload("Schedule.Slots").
		Preload("PaymentHistory").
		Preload("Histories").
		First(&booking).
		Error; err != nil {
		return nil, ErrBookingNotFound
	}
	return &booking, nil
}

// UpcomingSchedules lists a mentor's schedules in the date range, each
// annotated with the derived availability: advisory flag OR a completed
// booking exists for it.
func UpcomingSchedules(mentorId uint, from time.Time, to time.Time) ([]types.APIResponseSchedule, error) {
	cacheKey := fmt.Sprintf("schedules:%d:%s:%s", mentorId, from.Format(config.DATE_PARSE_FORMAT), to.Format(config.DATE_PARSE_FORMAT))
	rd := lib.GetRedisClient()
	if rd != nil {
		if cached, err := rd.Get(context.Background(), cacheKey).Result(); err == nil && cached != "" {
			var out []types.APIResponseSchedule
			if err := json.Unmarshal([]byte(cached), &out); err == nil {
				return out, nil
			}
		}
	}

	db := db.GetDb()
	var schedules []models.Schedule
	if err := db.
		Model(&models.Schedule{}).
		Where("mentor_id = ?", mentorId).
		Where("date BETWEEN ? AND ?", from, to).
		Preload("Slots").
		Preload("Mentor").
		Order("date asc").
		Find(&schedules).
		Error; err != nil {
		return nil, err
	}

	out := make([]types.APIResponseSchedule, 0, len(schedules))
	for _, s := range schedules {
		booked := s.IsBooked
		if !booked {
			taken, err := ScheduleHasCompletedBooking(db, s.ID, 0)
			if err != nil {
				return nil, err
			}
			booked = taken
		}
		resp := types.APIResponseSchedule{
			ID:       s.ID,
			MentorID: s.MentorID,
			Date:     s.Date,
			Price:    s.Price,
			IsBooked: booked,
		}
		if s.Mentor != nil {
			resp.MentorHandle = s.Mentor.Handle
		}
		for _, slot := range s.Slots {
			resp.Slots = append(resp.Slots, types.APIResponseTimeSlot{
				ID:        slot.ID,
				Code:      slot.Code,
				TimeStart: slot.TimeStart,
				TimeEnd:   slot.TimeEnd,
			})
		}
		out = append(out, resp)
	}

	if rd != nil {
		if payload, err := json.Marshal(out); err == nil {
			rd.SetEx(context.Background(), cacheKey, string(payload), 60*time.Second)
		}
	}
	return out, nil
}

func InvalidateMentorScheduleCache(mentorId uint) {
	rd := lib.GetRedisClient()
	if rd == nil {
		return
	}
	pattern := fmt.Sprintf("schedules:%d:*", mentorId)
	keys, err := rd.Keys(context.Background(), pattern).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	rd.Del(context.Background(), keys...)
}

// NotifyBookingEvent publishes a settlement/cancellation event for the
// notification consumer. Best effort: failures are logged, never surfaced.
func NotifyBookingEvent(topic string, booking *models.Booking, extra types.JSONB) {
	payload := map[string]any{
		"booking_id":  booking.ID,
		"mentor_id":   booking.MentorID,
		"customer_id": booking.CustomerID,
		"schedule_id": booking.ScheduleID,
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := lib.KafkaProduceMessage("booking_events_producer", topic, payload); err != nil {
		log.Printf("Error producing %s event for Booking [%d]: %s\n", topic, booking.ID, err.Error())
	}
}
