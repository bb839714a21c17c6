package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

// SeatLedger flips seat booked flags together with the booking rows that own them.
// Every mutation runs in one transaction with the affected seat rows locked.
type SeatLedger struct {
	db *sqlx.DB
}

// NewSeatLedger creates a new SeatLedger
func NewSeatLedger(db *sqlx.DB) *SeatLedger {
	return &SeatLedger{db: db}
}

type bookedSeatRow struct {
	BookingID uuid.UUID `db:"booking_id"`
	SeatID    uuid.UUID `db:"seat_id"`
	Position  int       `db:"position"`
}

// Reserve books every seat in seatIDs for the booking or none of them.
// The booking row, its booked_seats links and the seat flags are written in one
// transaction. The first unavailable seat in caller order is reported.
func (l *SeatLedger) Reserve(ctx context.Context, booking *models.Booking, seatIDs []uuid.UUID) error {
	if len(seatIDs) == 0 {
		return &models.ValidationError{Field: "seat_ids", Message: "at least one seat must be selected"}
	}
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	booking.Status = models.BookingStatusPending

	return withTx(ctx, l.db, func(tx *sqlx.Tx) error {
		var exists bool
		if err := tx.GetContext(ctx, &exists,
			`SELECT EXISTS(SELECT 1 FROM trips WHERE id = $1)`, booking.TripID); err != nil {
			return fmt.Errorf("failed to check trip: %w", err)
		}
		if !exists {
			return fmt.Errorf("trip %s: %w", booking.TripID, models.ErrNotFound)
		}

		// Lock in id order so concurrent reservations cannot deadlock.
		query, args, err := sqlx.In(
			`SELECT id, trip_id, seat_number, booked FROM seats WHERE id IN (?) ORDER BY id FOR UPDATE`, seatIDs)
		if err != nil {
			return fmt.Errorf("failed to build seat lock: %w", err)
		}
		var locked []models.Seat
		if err := tx.SelectContext(ctx, &locked, tx.Rebind(query), args...); err != nil {
			return fmt.Errorf("failed to lock seats: %w", err)
		}

		byID := make(map[uuid.UUID]models.Seat, len(locked))
		for _, s := range locked {
			byID[s.ID] = s
		}

		links := make([]bookedSeatRow, 0, len(seatIDs))
		booking.BookedSeats = make([]models.BookedSeat, 0, len(seatIDs))
		for i, id := range seatIDs {
			seat, ok := byID[id]
			if !ok || seat.TripID != booking.TripID {
				return &models.SeatConflictError{SeatID: id, Reason: "not a seat of this trip"}
			}
			if seat.Booked {
				return &models.SeatConflictError{SeatID: id, Reason: "already booked"}
			}
			links = append(links, bookedSeatRow{BookingID: booking.ID, SeatID: id, Position: i})
			booking.BookedSeats = append(booking.BookedSeats, models.BookedSeat{
				BookingID:  booking.ID,
				SeatID:     id,
				SeatNumber: seat.SeatNumber,
			})
		}

		err = tx.QueryRowxContext(ctx, `
			INSERT INTO bookings (
				id, booking_code, user_id, trip_id,
				passenger_name, passenger_phone, passenger_email,
				total_price, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at`,
			booking.ID, booking.BookingCode, booking.UserID, booking.TripID,
			booking.PassengerName, booking.PassengerPhone, booking.PassengerEmail,
			booking.TotalPrice, booking.Status,
		).Scan(&booking.CreatedAt, &booking.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, constraintBookingCode) {
				return models.ErrDuplicateBookingCode
			}
			return fmt.Errorf("failed to create booking: %w", err)
		}

		if _, err := tx.NamedExecContext(ctx,
			`INSERT INTO booked_seats (booking_id, seat_id, position) VALUES (:booking_id, :seat_id, :position)`,
			links); err != nil {
			return fmt.Errorf("failed to link booked seats: %w", err)
		}

		query, args, err = sqlx.In(`UPDATE seats SET booked = TRUE WHERE id IN (?) AND booked = FALSE`, seatIDs)
		if err != nil {
			return fmt.Errorf("failed to build seat update: %w", err)
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(query), args...)
		if err != nil {
			return fmt.Errorf("failed to mark seats booked: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n != int64(len(seatIDs)) {
			return fmt.Errorf("%w: expected %d seats flipped, got %d", models.ErrSeatConflict, len(seatIDs), n)
		}
		return nil
	})
}

// Release voids the booking's reservation and frees its seats.
// Releasing an already released booking is a no-op.
func (l *SeatLedger) Release(ctx context.Context, bookingID uuid.UUID) error {
	return withTx(ctx, l.db, func(tx *sqlx.Tx) error {
		status, err := lockBookingStatus(ctx, tx, bookingID)
		if err != nil {
			return err
		}
		if status != models.BookingStatusCancelled {
			if _, err := tx.ExecContext(ctx,
				`UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1`,
				bookingID, models.BookingStatusCancelled); err != nil {
				return fmt.Errorf("failed to void booking: %w", err)
			}
		}
		return releaseSeats(ctx, tx, bookingID)
	})
}

func lockBookingStatus(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) (models.BookingStatus, error) {
	var status models.BookingStatus
	err := tx.GetContext(ctx, &status, `SELECT status FROM bookings WHERE id = $1 FOR UPDATE`, bookingID)
	if err != nil {
		return "", notFound(err, models.ErrNotFound)
	}
	return status, nil
}

// releaseSeats clears the booked flag of the booking's seats unless another
// live booking holds them. Must run after the booking row is locked.
func releaseSeats(ctx context.Context, tx *sqlx.Tx, bookingID uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE seats s SET booked = FALSE
		WHERE s.id IN (SELECT seat_id FROM booked_seats WHERE booking_id = $1)
		  AND s.booked = TRUE
		  AND NOT EXISTS (
			SELECT 1 FROM booked_seats bs
			JOIN bookings b ON b.id = bs.booking_id
			WHERE bs.seat_id = s.id AND bs.booking_id <> $1 AND b.status <> 'cancelled'
		  )`, bookingID)
	if err != nil {
		return fmt.Errorf("failed to release seats: %w", err)
	}
	return nil
}
