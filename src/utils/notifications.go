package utils

import (
	"fmt"
	"log"
	"os"

	"mentorhub/src/db"
	"mentorhub/src/lib"
	"mentorhub/src/models"
)

// SendBookingEmails mails the customer and the mentor after a settlement or
// cancellation event. Losing-race payers are told explicitly that their money
// is coming back; they must never see a silent success or a silent loss.
func SendBookingEmails(booking *models.Booking, topic string, payload map[string]any) error {
	db := db.GetDb()
	var customer, mentor models.User
	if err := db.Model(&models.User{}).Where("id = ?", booking.CustomerID).First(&customer).Error; err != nil {
		return err
	}
	if err := db.Model(&models.User{}).Where("id = ?", booking.MentorID).First(&mentor).Error; err != nil {
		return err
	}

	var subject, body string
	switch topic {
	case lib.TopicBookingSettled:
		if lost, _ := payload["lost_race"].(bool); lost {
			subject = fmt.Sprintf("Booking #%d: payment received, slot no longer available", booking.ID)
			body = "Your payment was received, but the mentor slot was taken by another booking in the meantime. A refund is pending and will be processed shortly."
		} else {
			subject = fmt.Sprintf("Booking #%d confirmed", booking.ID)
			body = fmt.Sprintf("Your session with %s has been confirmed.", mentor.Name)
		}
	case lib.TopicBookingCanceled:
		subject = fmt.Sprintf("Booking #%d canceled", booking.ID)
		body = "The booking has been canceled. A refund is pending."
	default:
		log.Printf("Unknown notification topic [%s] for Booking [%d]\n", topic, booking.ID)
		return nil
	}

	return lib.SendMail(&lib.SendMailInput{
		From:     os.Getenv("MAIL_FROM"),
		FromName: "MentorHub",
		To:       []string{customer.Email, mentor.Email},
		Subject:  subject,
		Body:     body,
	})
}
