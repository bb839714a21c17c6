// Package notification delivers booking confirmation requests to the email
// collaborator. Delivery is best effort.
package notification

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

// BookingConfirmationMessage is the payload handed to the email collaborator
type BookingConfirmationMessage struct {
	Email          string          `json:"email"`
	BookingID      uuid.UUID       `json:"booking_id"`
	BookingCode    string          `json:"booking_code"`
	PassengerName  string          `json:"passenger_name"`
	TripID         uuid.UUID       `json:"trip_id"`
	TripName       string          `json:"trip_name"`
	LicensePlate   string          `json:"license_plate"`
	DepartureAt    time.Time       `json:"departure_at"`
	SeatNumbers    []string        `json:"seat_numbers"`
	TotalPrice     decimal.Decimal `json:"total_price"`
	BookingCreated time.Time       `json:"booking_created"`
}

// NewBookingConfirmationMessage builds the message for a booking on a trip
func NewBookingConfirmationMessage(email string, booking *models.Booking, trip *models.Trip, seatNumbers []string) BookingConfirmationMessage {
	return BookingConfirmationMessage{
		Email:          email,
		BookingID:      booking.ID,
		BookingCode:    booking.BookingCode,
		PassengerName:  booking.PassengerName,
		TripID:         trip.ID,
		TripName:       trip.Name,
		LicensePlate:   trip.LicensePlate,
		DepartureAt:    trip.DepartureAt,
		SeatNumbers:    seatNumbers,
		TotalPrice:     booking.TotalPrice,
		BookingCreated: booking.CreatedAt,
	}
}

// LogNotifier writes confirmations to the log instead of sending them
type LogNotifier struct {
	logger *logrus.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *logrus.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// SendBookingConfirmation logs the confirmation
func (n *LogNotifier) SendBookingConfirmation(_ context.Context, email string, booking *models.Booking, trip *models.Trip, seatNumbers []string) error {
	n.logger.WithFields(logrus.Fields{
		"email":        email,
		"booking_code": booking.BookingCode,
		"trip_id":      trip.ID,
		"seats":        seatNumbers,
	}).Info("Booking confirmation (not sent)")
	return nil
}
