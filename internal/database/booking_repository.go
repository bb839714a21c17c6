package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

const bookingColumns = `id, booking_code, user_id, trip_id,
	passenger_name, passenger_phone, passenger_email,
	total_price, status, created_at, updated_at`

// BookingRepository reads bookings with their seats. Cancellation goes through SeatLedger.Release.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// GetBooking returns a booking with its seats
func (r *BookingRepository) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := r.db.GetContext(ctx, &booking, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, models.ErrNotFound)
	}

	bookings := []models.Booking{booking}
	if err := r.attachSeats(ctx, bookings); err != nil {
		return nil, err
	}
	return &bookings[0], nil
}

// ListBookingsByUser returns the user's bookings, newest first
func (r *BookingRepository) ListBookingsByUser(ctx context.Context, userID uuid.UUID, params models.BookingListParams) ([]models.Booking, error) {
	params.Normalize()

	bookings := []models.Booking{}
	err := r.db.SelectContext(ctx, &bookings, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		userID, params.Limit, params.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	if err := r.attachSeats(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// attachSeats loads the booked seats of every booking in one query
func (r *BookingRepository) attachSeats(ctx context.Context, bookings []models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	ids := make([]uuid.UUID, len(bookings))
	index := make(map[uuid.UUID]int, len(bookings))
	for i := range bookings {
		ids[i] = bookings[i].ID
		index[bookings[i].ID] = i
	}

	query, args, err := sqlx.In(`
		SELECT bs.booking_id, bs.seat_id, s.seat_number
		FROM booked_seats bs
		JOIN seats s ON s.id = bs.seat_id
		WHERE bs.booking_id IN (?)
		ORDER BY bs.booking_id, bs.position`, ids)
	if err != nil {
		return fmt.Errorf("failed to build seat query: %w", err)
	}

	var seats []models.BookedSeat
	if err := r.db.SelectContext(ctx, &seats, r.db.Rebind(query), args...); err != nil {
		return fmt.Errorf("failed to load booked seats: %w", err)
	}

	for _, s := range seats {
		i := index[s.BookingID]
		bookings[i].BookedSeats = append(bookings[i].BookedSeats, s)
	}
	return nil
}
