package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

var seatColumnNames = []string{"id", "trip_id", "seat_number", "booked"}

func newTestBooking(tripID uuid.UUID) *models.Booking {
	return &models.Booking{
		BookingCode:    "BK260101123456",
		UserID:         uuid.New(),
		TripID:         tripID,
		PassengerName:  "Kamal Silva",
		PassengerPhone: "0771234567",
		PassengerEmail: "kamal@example.com",
		TotalPrice:     decimal.NewFromInt(200),
	}
}

func TestSeatLedgerReserve(t *testing.T) {
	ctx := context.Background()
	tripID := uuid.New()
	seatA, seatB := uuid.New(), uuid.New()

	t.Run("Success", func(t *testing.T) {
		db, mock := newMockDB(t)
		ledger := NewSeatLedger(db)
		booking := newTestBooking(tripID)
		now := time.Now()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM trips WHERE id = \$1\)`).
			WithArgs(tripID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`SELECT id, trip_id, seat_number, booked FROM seats WHERE id IN \(\$1, \$2\) ORDER BY id FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows(seatColumnNames).
				AddRow(seatA.String(), tripID.String(), "1", false).
				AddRow(seatB.String(), tripID.String(), "2", false))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))
		mock.ExpectExec(`INSERT INTO booked_seats`).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectExec(`UPDATE seats SET booked = TRUE WHERE id IN \(\$1, \$2\) AND booked = FALSE`).
			WithArgs(seatB.String(), seatA.String()).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		err := ledger.Reserve(ctx, booking, []uuid.UUID{seatB, seatA})
		require.NoError(t, err)
		assert.NotEqual(t, uuid.Nil, booking.ID)
		assert.Equal(t, models.BookingStatusPending, booking.Status)
		assert.Equal(t, []string{"2", "1"}, booking.SeatNumbers())

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Reports First Conflict In Caller Order", func(t *testing.T) {
		db, mock := newMockDB(t)
		ledger := NewSeatLedger(db)
		seatC := uuid.New()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`SELECT id, trip_id, seat_number, booked FROM seats`).
			WillReturnRows(sqlmock.NewRows(seatColumnNames).
				AddRow(seatA.String(), tripID.String(), "1", false).
				AddRow(seatB.String(), tripID.String(), "2", true).
				AddRow(seatC.String(), tripID.String(), "3", true))
		mock.ExpectRollback()

		err := ledger.Reserve(ctx, newTestBooking(tripID), []uuid.UUID{seatA, seatC, seatB})

		var conflict *models.SeatConflictError
		require.True(t, errors.As(err, &conflict))
		assert.Equal(t, seatC, conflict.SeatID)
		assert.ErrorIs(t, err, models.ErrSeatConflict)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Seat Of Another Trip", func(t *testing.T) {
		db, mock := newMockDB(t)
		ledger := NewSeatLedger(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`SELECT id, trip_id, seat_number, booked FROM seats`).
			WillReturnRows(sqlmock.NewRows(seatColumnNames).
				AddRow(seatA.String(), uuid.New().String(), "1", false))
		mock.ExpectRollback()

		err := ledger.Reserve(ctx, newTestBooking(tripID), []uuid.UUID{seatA})
		assert.ErrorIs(t, err, models.ErrSeatConflict)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown Trip", func(t *testing.T) {
		db, mock := newMockDB(t)
		ledger := NewSeatLedger(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		err := ledger.Reserve(ctx, newTestBooking(tripID), []uuid.UUID{seatA})
		assert.ErrorIs(t, err, models.ErrNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Booking Code Collision", func(t *testing.T) {
		db, mock := newMockDB(t)
		ledger := NewSeatLedger(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT EXISTS`).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectQuery(`SELECT id, trip_id, seat_number, booked FROM seats`).
			WillReturnRows(sqlmock.NewRows(seatColumnNames).
				AddRow(seatA.String(), tripID.String(), "1", false))
		mock.ExpectQuery(`INSERT INTO bookings`).
			WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_booking_code_key"})
		mock.ExpectRollback()

		err := ledger.Reserve(ctx, newTestBooking(tripID), []uuid.UUID{seatA})
		assert.ErrorIs(t, err, models.ErrDuplicateBookingCode)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Empty Seat List", func(t *testing.T) {
		db, mock := newMockDB(t)
		ledger := NewSeatLedger(db)

		err := ledger.Reserve(ctx, newTestBooking(tripID), nil)
		assert.ErrorIs(t, err, models.ErrValidation)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSeatLedgerRelease(t *testing.T) {
	ctx := context.Background()
	bookingID := uuid.New()

	t.Run("Voids Live Booking", func(t *testing.T) {
		db, mock := newMockDB(t)
		ledger := NewSeatLedger(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM bookings WHERE id = \$1 FOR UPDATE`).
			WithArgs(bookingID.String()).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("pending"))
		mock.ExpectExec(`UPDATE bookings SET status = \$2`).
			WithArgs(bookingID.String(), "cancelled").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`UPDATE seats s SET booked = FALSE`).
			WithArgs(bookingID.String()).
			WillReturnResult(sqlmock.NewResult(0, 2))
		mock.ExpectCommit()

		require.NoError(t, ledger.Release(ctx, bookingID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Released Is No-op", func(t *testing.T) {
		db, mock := newMockDB(t)
		ledger := NewSeatLedger(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM bookings WHERE id = \$1 FOR UPDATE`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("cancelled"))
		mock.ExpectExec(`UPDATE seats s SET booked = FALSE`).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		require.NoError(t, ledger.Release(ctx, bookingID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Unknown Booking", func(t *testing.T) {
		db, mock := newMockDB(t)
		ledger := NewSeatLedger(db)

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT status FROM bookings`).
			WillReturnRows(sqlmock.NewRows([]string{"status"}))
		mock.ExpectRollback()

		assert.ErrorIs(t, ledger.Release(ctx, bookingID), models.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
