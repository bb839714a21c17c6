package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

// smsSender is implemented by *sms.DialogGateway
type smsSender interface {
	SendSMS(ctx context.Context, phone, message string) (int64, error)
}

// SMSNotifier texts the booking code to the passenger's phone
type SMSNotifier struct {
	sender smsSender
	logger *logrus.Logger
}

// NewSMSNotifier creates an SMS notifier on top of an SMS gateway
func NewSMSNotifier(sender smsSender, logger *logrus.Logger) *SMSNotifier {
	return &SMSNotifier{sender: sender, logger: logger}
}

// BookingConfirmationText renders the SMS body for a booking
func BookingConfirmationText(booking *models.Booking, trip *models.Trip, seatNumbers []string) string {
	return fmt.Sprintf("SmartTransit booking %s: %s, %s, seat(s) %s, total LKR %s. Show this code when boarding.",
		booking.BookingCode,
		trip.Name,
		trip.DepartureAt.Format("2006-01-02 15:04"),
		strings.Join(seatNumbers, ","),
		booking.TotalPrice.StringFixed(2),
	)
}

// SendBookingConfirmation sends the confirmation text. The email argument is unused.
func (n *SMSNotifier) SendBookingConfirmation(ctx context.Context, _ string, booking *models.Booking, trip *models.Trip, seatNumbers []string) error {
	txID, err := n.sender.SendSMS(ctx, booking.PassengerPhone, BookingConfirmationText(booking, trip, seatNumbers))
	if err != nil {
		return fmt.Errorf("failed to send confirmation SMS: %w", err)
	}
	n.logger.WithFields(logrus.Fields{
		"booking_code":   booking.BookingCode,
		"transaction_id": txID,
	}).Debug("Booking confirmation SMS sent")
	return nil
}

// BookingNotifier is implemented by every notifier in this package
type BookingNotifier interface {
	SendBookingConfirmation(ctx context.Context, email string, booking *models.Booking, trip *models.Trip, seatNumbers []string) error
}

// MultiNotifier fans a confirmation out to several channels
type MultiNotifier []BookingNotifier

// SendBookingConfirmation calls every channel and joins their errors
func (m MultiNotifier) SendBookingConfirmation(ctx context.Context, email string, booking *models.Booking, trip *models.Trip, seatNumbers []string) error {
	var errs []error
	for _, n := range m {
		if err := n.SendBookingConfirmation(ctx, email, booking, trip, seatNumbers); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
