package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

const tripColumns = `id, route_id, name, license_plate, bus_type, capacity,
	departure_at, price, status, created_at, updated_at`

// seatRow is a seat as written to the seats table
type seatRow struct {
	ID         uuid.UUID `db:"id"`
	TripID     uuid.UUID `db:"trip_id"`
	SeatNumber string    `db:"seat_number"`
	Order      int       `db:"seat_order"`
}

// TripRepository handles trip catalog and seat provisioning
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository creates a new TripRepository
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

// newSeatRows builds seats numbered from..to inclusive
func newSeatRows(tripID uuid.UUID, from, to int) []seatRow {
	rows := make([]seatRow, 0, to-from+1)
	for n := from; n <= to; n++ {
		rows = append(rows, seatRow{
			ID:         uuid.New(),
			TripID:     tripID,
			SeatNumber: models.SeatNumberFor(n),
			Order:      n,
		})
	}
	return rows
}

func insertSeats(ctx context.Context, tx *sqlx.Tx, rows []seatRow) error {
	if len(rows) == 0 {
		return nil
	}
	_, err := tx.NamedExecContext(ctx,
		`INSERT INTO seats (id, trip_id, seat_number, seat_order)
		 VALUES (:id, :trip_id, :seat_number, :seat_order)`, rows)
	if err != nil {
		return fmt.Errorf("failed to provision seats: %w", err)
	}
	return nil
}

// ============================================================================
// TRIP OPERATIONS
// ============================================================================

// CreateTrip inserts the trip and provisions seats 1..capacity in one transaction
func (r *TripRepository) CreateTrip(ctx context.Context, trip *models.Trip) error {
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO trips (
				id, route_id, name, license_plate, bus_type,
				capacity, departure_at, price, status
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING created_at, updated_at`

		err := tx.QueryRowxContext(ctx, query,
			trip.ID, trip.RouteID, trip.Name, trip.LicensePlate, trip.BusType,
			trip.Capacity, trip.DepartureAt, trip.Price, trip.Status,
		).Scan(&trip.CreatedAt, &trip.UpdatedAt)
		if err != nil {
			if isUniqueViolation(err, constraintLicensePlate) {
				return models.ErrDuplicateLicensePlate
			}
			return fmt.Errorf("failed to create trip: %w", err)
		}

		return insertSeats(ctx, tx, newSeatRows(trip.ID, 1, trip.Capacity))
	})
}

// GetTrip returns a trip by id
func (r *TripRepository) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	err := r.db.GetContext(ctx, &trip, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err, models.ErrNotFound)
	}
	return &trip, nil
}

// ListTrips returns trips matching the filter, soonest departure first
func (r *TripRepository) ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	filter.Normalize()

	var (
		conditions []string
		args       []interface{}
	)
	if filter.RouteID != nil {
		args = append(args, *filter.RouteID)
		conditions = append(conditions, fmt.Sprintf("route_id = $%d", len(args)))
	}
	if filter.Date != nil {
		day := time.Date(filter.Date.Year(), filter.Date.Month(), filter.Date.Day(), 0, 0, 0, 0, time.UTC)
		args = append(args, day, day.AddDate(0, 0, 1))
		conditions = append(conditions, fmt.Sprintf("departure_at >= $%d AND departure_at < $%d", len(args)-1, len(args)))
	}

	query := `SELECT ` + tripColumns + ` FROM trips`
	if len(conditions) > 0 {
		query += ` WHERE ` + strings.Join(conditions, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(` ORDER BY departure_at ASC, id ASC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	trips := []models.Trip{}
	if err := r.db.SelectContext(ctx, &trips, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

// ListSeats returns every seat of the trip ordered by seat number
func (r *TripRepository) ListSeats(ctx context.Context, tripID uuid.UUID) ([]models.Seat, error) {
	seats := []models.Seat{}
	err := r.db.SelectContext(ctx, &seats,
		`SELECT id, trip_id, seat_number, booked FROM seats WHERE trip_id = $1 ORDER BY seat_order`, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list seats: %w", err)
	}
	if len(seats) == 0 {
		// Every trip has at least one seat, so no rows means no trip.
		return nil, models.ErrNotFound
	}
	return seats, nil
}

// UpdateTripDetails changes name and/or status; both leave existing bookings untouched
func (r *TripRepository) UpdateTripDetails(ctx context.Context, tripID uuid.UUID, name *string, status *models.TripStatus) (*models.Trip, error) {
	var trip models.Trip
	err := r.db.GetContext(ctx, &trip, `
		UPDATE trips
		SET name = COALESCE($2, name),
		    status = COALESCE($3, status),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+tripColumns,
		tripID, name, status)
	if err != nil {
		return nil, notFound(err, models.ErrNotFound)
	}
	return &trip, nil
}

// ResizeCapacity grows or shrinks the seat pool of a trip.
// Growing appends seats after the highest existing seat number. Shrinking removes
// unbooked seats, highest number first, and fails if too few are unbooked.
func (r *TripRepository) ResizeCapacity(ctx context.Context, tripID uuid.UUID, newCapacity int) (*models.Trip, error) {
	if newCapacity <= 0 {
		return nil, &models.ValidationError{Field: "capacity", Message: "must be a positive integer"}
	}

	var trip models.Trip
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &trip, `SELECT `+tripColumns+` FROM trips WHERE id = $1 FOR UPDATE`, tripID)
		if err != nil {
			return notFound(err, models.ErrNotFound)
		}

		switch {
		case newCapacity == trip.Capacity:
			return nil

		case newCapacity > trip.Capacity:
			// Numbering starts after MAX(seat_order), not capacity+1. A shrink 5->3
			// that kept booked seat 5 leaves 1,2,5; growing back to 5 from capacity+1
			// would mint a second seat 5 and break UNIQUE(trip_id, seat_number).
			var highest int
			if err := tx.GetContext(ctx, &highest,
				`SELECT COALESCE(MAX(seat_order), 0) FROM seats WHERE trip_id = $1`, tripID); err != nil {
				return fmt.Errorf("failed to read seat numbering: %w", err)
			}
			added := newCapacity - trip.Capacity
			if err := insertSeats(ctx, tx, newSeatRows(tripID, highest+1, highest+added)); err != nil {
				return err
			}

		default:
			remove := trip.Capacity - newCapacity
			var ids []uuid.UUID
			err := tx.SelectContext(ctx, &ids, `
				SELECT id FROM seats
				WHERE trip_id = $1 AND booked = FALSE
				ORDER BY seat_order DESC
				LIMIT $2
				FOR UPDATE`, tripID, remove)
			if err != nil {
				return fmt.Errorf("failed to select removable seats: %w", err)
			}
			if len(ids) < remove {
				return fmt.Errorf("%w: only %d unbooked seats, cannot remove %d",
					models.ErrCapacityConflict, len(ids), remove)
			}

			query, args, err := sqlx.In(`DELETE FROM seats WHERE id IN (?)`, ids)
			if err != nil {
				return fmt.Errorf("failed to build seat removal: %w", err)
			}
			if _, err := tx.ExecContext(ctx, tx.Rebind(query), args...); err != nil {
				return fmt.Errorf("failed to remove seats: %w", err)
			}
		}

		err = tx.QueryRowxContext(ctx,
			`UPDATE trips SET capacity = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
			tripID, newCapacity,
		).Scan(&trip.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update capacity: %w", err)
		}
		trip.Capacity = newCapacity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &trip, nil
}
