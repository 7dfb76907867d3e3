package boot

import (
	"encoding/json"
	"log"
	"time"

	"mentorhub/src/db"
	"mentorhub/src/lib"
	"mentorhub/src/models"
	"mentorhub/src/utils"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"gorm.io/gorm"
)

func InitDb() *gorm.DB {
	db := db.GetDb()

	err := db.AutoMigrate(
		&models.User{},
		&models.TimeSlot{},
		&models.Schedule{},
		&models.PaymentHistory{},
		&models.Booking{},
		&models.History{},
	)
	if err != nil {
		log.Fatalf("error migration: %s", err.Error())
	}

	// commit-time backstop for the callback race: at most one completed
	// booking per schedule, whatever two concurrent transactions observed
	if err := db.Exec(`
	CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_one_completed_per_schedule
	ON bookings (schedule_id)
	WHERE payment_process = 'completed' AND deleted_at IS NULL;
	`).Error; err != nil {
		log.Printf("Error creating completed-booking index: %s\n", err.Error())
	}

	return db
}

// InitScheduler starts the background sweeper for abandoned bookings.
func InitScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("An error has occurred. Check logs for info")
		return
	}
	id, err := lib.CreateCronJob(func() {
		if _, err := utils.CleanupUnpaidBookings(); err != nil {
			log.Printf("Cleanup run failed: %s\n", err.Error())
		}
	}, 15*time.Minute)
	if err != nil {
		log.Printf("Error scheduling cleanup job: %s\n", err.Error())
		return
	}
	log.Printf("Scheduled cleanup job: %s\n", *id)
	sched.Start()
}

func StopScheduler() {
	sched, err := lib.GetScheduler()
	if err != nil {
		log.Println("Error retrieving Scheduler. Check logs for info")
		return
	}
	if err := sched.Shutdown(); err != nil {
		log.Println("An error has occurred while stopping Scheduler. Check logs for info")
		return
	}
}

// InitBroker wires the settlement topics and the notification consumer that
// emails both parties after completed/canceled transitions.
func InitBroker() {
	go lib.KafkaCreateTopics(lib.TopicBookingSettled, lib.TopicBookingCanceled)
	lib.KafkaConsumeLoop("booking_notifications", []string{lib.TopicBookingSettled, lib.TopicBookingCanceled}, notifyHandler)
}

func notifyHandler(msg *kafka.Message) {
	var payload map[string]any
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		log.Printf("Error decoding notification payload: %s\n", err.Error())
		return
	}
	bookingId, ok := payload["booking_id"].(float64)
	if !ok {
		return
	}
	booking, err := utils.GetBooking(uint(bookingId))
	if err != nil {
		log.Printf("Error loading Booking [%v] for notification: %s\n", payload["booking_id"], err)
		return
	}
	if err := utils.SendBookingEmails(booking, *msg.TopicPartition.Topic, payload); err != nil {
		log.Printf("Error sending notification for Booking [%d]: %s\n", booking.ID, err.Error())
	}
}
