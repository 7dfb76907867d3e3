package utils

import (
	"errors"
	"log"
	"testing"
	"time"

	"mentorhub/src/db"
	"mentorhub/src/lib"
	"mentorhub/src/models"
	"mentorhub/src/types"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func newMockDB() (*gorm.DB, sqlmock.Sqlmock) {
	mockdb, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: mockdb,
	}), &gorm.Config{})
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening gorm database", err)
	}

	return gormDB, mock
}

func TestCanCancelAt(t *testing.T) {
	slotStart := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	assert.True(t, CanCancelAt(slotStart.Add(-3*time.Hour-time.Second), slotStart))
	assert.False(t, CanCancelAt(slotStart.Add(-3*time.Hour), slotStart))
	assert.False(t, CanCancelAt(slotStart.Add(-2*time.Hour), slotStart))
	assert.False(t, CanCancelAt(slotStart.Add(time.Hour), slotStart))
}

func TestEarliestSlotStart(t *testing.T) {
	schedule := &models.Schedule{
		Date: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Slots: []*models.TimeSlot{
			{Code: "slot-14-15", TimeStart: 14, TimeEnd: 15},
			{Code: "slot-09-10", TimeStart: 9, TimeEnd: 10},
		},
	}

	start, ok := EarliestSlotStart(schedule)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), start)

	_, ok = EarliestSlotStart(&models.Schedule{Date: schedule.Date})
	assert.False(t, ok)

	_, ok = EarliestSlotStart(nil)
	assert.False(t, ok)
}

func TestCleanupUnpaidBookings(t *testing.T) {
	gormDB, mock := newMockDB()
	db.NewDB(gormDB)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lib.NewClock(lib.FixedClock{T: now})
	defer lib.NewClock(nil)

	rows := sqlmock.NewRows([]string{"id", "status", "payment_process"}).
		AddRow(7, "pending", "pending").
		AddRow(9, "pending", "pending")
	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE status = (.+) AND payment_history_id IS NULL AND created_at < (.+)`).
		WillReturnRows(rows)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectExec(`DELETE FROM "bookings" WHERE`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	removed, err := CleanupUnpaidBookings()
	assert.Nil(t, err)
	assert.Equal(t, 2, removed)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestCleanupUnpaidBookingsNothingStale(t *testing.T) {
	gormDB, mock := newMockDB()
	db.NewDB(gormDB)

	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE status = (.+) AND payment_history_id IS NULL AND created_at < (.+)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "payment_process"}))

	removed, err := CleanupUnpaidBookings()
	assert.Nil(t, err)
	assert.Equal(t, 0, removed)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestSettlePaymentCallbackBadReference(t *testing.T) {
	_, err := SettlePaymentCallback(map[string]string{
		lib.VNPayParamTxnRef:       "not-a-number",
		lib.VNPayParamResponseCode: lib.VNPayResponseSuccess,
	})
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = SettlePaymentCallback(map[string]string{
		lib.VNPayParamResponseCode: lib.VNPayResponseSuccess,
	})
	assert.ErrorIs(t, err, ErrBookingNotFound)
}

func TestSettlePaymentCallbackDuplicateIsIdempotent(t *testing.T) {
	gormDB, mock := newMockDB()
	db.NewDB(gormDB)

	historyId := uuid.New()
	rows := sqlmock.NewRows([]string{"id", "mentor_id", "customer_id", "schedule_id", "status", "payment_process", "payment_history_id"}).
		AddRow(42, 3, 5, 11, string(types.BOOKING_CONFIRMED), string(types.PAYMENT_COMPLETED), historyId.String())
	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnRows(rows)

	mentorId, err := SettlePaymentCallback(map[string]string{
		lib.VNPayParamTxnRef:       "42",
		lib.VNPayParamResponseCode: lib.VNPayResponseSuccess,
	})
	assert.Nil(t, err)
	assert.Equal(t, uint(3), mentorId)
	// no writes: the booking is already settled
	assert.Nil(t, mock.ExpectationsWereMet())
}

func pendingBookingRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "mentor_id", "customer_id", "schedule_id", "status", "payment_process"}).
		AddRow(42, 3, 5, 11, string(types.BOOKING_PENDING), string(types.PAYMENT_PENDING))
}

func TestSettlePaymentCallbackWinnerTakesSlot(t *testing.T) {
	gormDB, mock := newMockDB()
	db.NewDB(gormDB)

	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnRows(pendingBookingRows())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnRows(pendingBookingRows())
	mock.ExpectQuery(`SELECT count\(\*\) FROM "bookings" WHERE schedule_id = (.+)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT (.+) FROM "schedules" WHERE id = (.+)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mentor_id", "price"}).AddRow(11, 3, 250000))
	mock.ExpectExec(`INSERT INTO "payment_histories"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "bookings" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "schedules" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "histories"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mentorId, err := SettlePaymentCallback(map[string]string{
		lib.VNPayParamTxnRef:        "42",
		lib.VNPayParamResponseCode:  lib.VNPayResponseSuccess,
		lib.VNPayParamTransactionNo: "14422574",
		lib.VNPayParamBankCode:      "NCB",
	})
	assert.Nil(t, err)
	assert.Equal(t, uint(3), mentorId)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestSettlePaymentCallbackLoserParkedForRefund(t *testing.T) {
	gormDB, mock := newMockDB()
	db.NewDB(gormDB)

	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnRows(pendingBookingRows())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnRows(pendingBookingRows())
	// another booking already holds the schedule
	mock.ExpectQuery(`SELECT count\(\*\) FROM "bookings" WHERE schedule_id = (.+)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec(`UPDATE "bookings" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "histories"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mentorId, err := SettlePaymentCallback(map[string]string{
		lib.VNPayParamTxnRef:       "42",
		lib.VNPayParamResponseCode: lib.VNPayResponseSuccess,
	})
	assert.Nil(t, err)
	assert.Equal(t, uint(3), mentorId)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestSettlePaymentCallbackUniqueViolationParksForRefund(t *testing.T) {
	gormDB, mock := newMockDB()
	db.NewDB(gormDB)

	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnRows(pendingBookingRows())

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnRows(pendingBookingRows())
	mock.ExpectQuery(`SELECT count\(\*\) FROM "bookings" WHERE schedule_id = (.+)`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(`SELECT (.+) FROM "schedules" WHERE id = (.+)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mentor_id", "price"}).AddRow(11, 3, 250000))
	mock.ExpectExec(`INSERT INTO "payment_histories"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// the partial unique index rejects the second completed booking at commit time
	mock.ExpectExec(`UPDATE "bookings" SET`).
		WillReturnError(errors.New(`ERROR: duplicate key value violates unique constraint "idx_bookings_one_completed_per_schedule" (SQLSTATE 23505)`))
	mock.ExpectRollback()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "bookings" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "histories"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	mentorId, err := SettlePaymentCallback(map[string]string{
		lib.VNPayParamTxnRef:       "42",
		lib.VNPayParamResponseCode: lib.VNPayResponseSuccess,
	})
	assert.Nil(t, err)
	assert.Equal(t, uint(3), mentorId)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestSettlePaymentCallbackLateFailureLeavesBookingAlone(t *testing.T) {
	gormDB, mock := newMockDB()
	db.NewDB(gormDB)

	historyId := uuid.New()
	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mentor_id", "customer_id", "schedule_id", "status", "payment_process", "payment_history_id"}).
			AddRow(42, 3, 5, 11, string(types.BOOKING_CONFIRMED), string(types.PAYMENT_COMPLETED), historyId.String()))

	mentorId, err := SettlePaymentCallback(map[string]string{
		lib.VNPayParamTxnRef:       "42",
		lib.VNPayParamResponseCode: "24",
	})
	assert.Nil(t, err)
	assert.Equal(t, uint(3), mentorId)
	// no update, no delete: the settled booking survives a late failure callback
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestSettlePaymentCallbackLateFailureKeepsRefundClaim(t *testing.T) {
	gormDB, mock := newMockDB()
	db.NewDB(gormDB)

	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "mentor_id", "customer_id", "schedule_id", "status", "payment_process"}).
			AddRow(42, 3, 5, 11, string(types.BOOKING_PENDING), string(types.PAYMENT_WAIT_REFUND)))

	mentorId, err := SettlePaymentCallback(map[string]string{
		lib.VNPayParamTxnRef:       "42",
		lib.VNPayParamResponseCode: "24",
	})
	assert.Nil(t, err)
	assert.Equal(t, uint(3), mentorId)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestProcessRefundRequiresWaitRefund(t *testing.T) {
	gormDB, mock := newMockDB()
	db.NewDB(gormDB)

	rows := sqlmock.NewRows([]string{"id", "status", "payment_process"}).
		AddRow(42, string(types.BOOKING_CONFIRMED), string(types.PAYMENT_COMPLETED))
	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnRows(rows)

	err := ProcessRefund(42)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Nil(t, mock.ExpectationsWereMet())
}

func TestProcessRefundUnknownBooking(t *testing.T) {
	gormDB, mock := newMockDB()
	db.NewDB(gormDB)

	mock.ExpectQuery(`SELECT (.+) FROM "bookings" WHERE id = (.+)`).
		WillReturnError(gorm.ErrRecordNotFound)

	err := ProcessRefund(404)
	assert.ErrorIs(t, err, ErrBookingNotFound)
	assert.Nil(t, mock.ExpectationsWereMet())
}
