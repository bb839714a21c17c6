package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smarttransit/ticketing-backend/pkg/validator"
)

// ============================================================================
// BOOKING STATUS
// ============================================================================

// BookingStatus represents the status of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"
	BookingStatusConfirmed BookingStatus = "confirmed"
	BookingStatusCancelled BookingStatus = "cancelled"
)

// validBookingTransitions lists the statuses reachable from each status.
// Cancelled is terminal.
var validBookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:   {BookingStatusConfirmed, BookingStatusCancelled},
	BookingStatusConfirmed: {BookingStatusCancelled},
	BookingStatusCancelled: {},
}

// CanTransitionTo checks if a status change is allowed
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range validBookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ============================================================================
// BOOKING (bookings table)
// ============================================================================

// Booking is a passenger's reservation of one or more seats on one trip
type Booking struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	BookingCode    string          `json:"booking_code" db:"booking_code"`
	UserID         uuid.UUID       `json:"user_id" db:"user_id"`
	TripID         uuid.UUID       `json:"trip_id" db:"trip_id"`
	PassengerName  string          `json:"passenger_name" db:"passenger_name"`
	PassengerPhone string          `json:"passenger_phone" db:"passenger_phone"`
	PassengerEmail string          `json:"passenger_email" db:"passenger_email"`
	TotalPrice     decimal.Decimal `json:"total_price" db:"total_price"`
	Status         BookingStatus   `json:"status" db:"status"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`

	BookedSeats []BookedSeat `json:"seats,omitempty" db:"-"`
}

// BookedSeat links a booking to one of the seats it reserved
type BookedSeat struct {
	BookingID  uuid.UUID `json:"booking_id" db:"booking_id"`
	SeatID     uuid.UUID `json:"seat_id" db:"seat_id"`
	SeatNumber string    `json:"seat_number" db:"seat_number"`
}

// SeatNumbers returns the seat labels in booking order
func (b *Booking) SeatNumbers() []string {
	numbers := make([]string, 0, len(b.BookedSeats))
	for _, s := range b.BookedSeats {
		numbers = append(numbers, s.SeatNumber)
	}
	return numbers
}

// CanBeCancelled checks if booking can be cancelled
func (b *Booking) CanBeCancelled() bool {
	return b.Status.CanTransitionTo(BookingStatusCancelled)
}

// ============================================================================
// REQUEST TYPES
// ============================================================================

// MaxSeatsPerBooking caps the number of seats a single booking may hold
const MaxSeatsPerBooking = 10

// CreateBookingRequest reserves seats on a trip
type CreateBookingRequest struct {
	TripID         uuid.UUID   `json:"trip_id" binding:"required"`
	SeatIDs        []uuid.UUID `json:"seat_ids" binding:"required"`
	PassengerName  string      `json:"passenger_name" binding:"required"`
	PassengerPhone string      `json:"passenger_phone" binding:"required"`
	PassengerEmail string      `json:"passenger_email" binding:"required"`
}

// Validate validates the booking request and normalizes contact fields
func (r *CreateBookingRequest) Validate() error {
	if r.TripID == uuid.Nil {
		return invalid("trip_id", "is required")
	}
	if len(r.SeatIDs) == 0 {
		return invalid("seat_ids", "at least one seat must be selected")
	}
	if len(r.SeatIDs) > MaxSeatsPerBooking {
		return invalid("seat_ids", "too many seats in one booking")
	}
	seen := make(map[uuid.UUID]struct{}, len(r.SeatIDs))
	for _, id := range r.SeatIDs {
		if _, dup := seen[id]; dup {
			return invalid("seat_ids", "seat "+id.String()+" is listed more than once")
		}
		seen[id] = struct{}{}
	}

	r.PassengerName = strings.TrimSpace(r.PassengerName)
	if r.PassengerName == "" {
		return invalid("passenger_name", "is required")
	}

	phone, err := validator.NewPhoneValidator().Validate(r.PassengerPhone)
	if err != nil {
		return invalid("passenger_phone", err.Error())
	}
	r.PassengerPhone = phone

	email, err := validator.ValidateEmail(r.PassengerEmail)
	if err != nil {
		return invalid("passenger_email", err.Error())
	}
	r.PassengerEmail = email

	return nil
}

// BookingListParams pages a user's bookings
type BookingListParams struct {
	Limit  int
	Offset int
}

// Normalize applies listing defaults
func (p *BookingListParams) Normalize() {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}
