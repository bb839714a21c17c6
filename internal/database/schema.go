package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Constraint names referenced when translating unique violations
const (
	constraintBookingCode  = "bookings_booking_code_key"
	constraintLicensePlate = "trips_license_plate_key"
	constraintPaymentBook  = "payments_booking_id_key"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS trips (
		id            UUID PRIMARY KEY,
		route_id      UUID NOT NULL,
		name          TEXT NOT NULL,
		license_plate TEXT NOT NULL,
		bus_type      TEXT NOT NULL DEFAULT '',
		capacity      INTEGER NOT NULL CHECK (capacity > 0),
		departure_at  TIMESTAMPTZ NOT NULL,
		price         NUMERIC(12,2) NOT NULL CHECK (price >= 0),
		status        TEXT NOT NULL DEFAULT 'active',
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT trips_license_plate_key UNIQUE (license_plate)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_trips_route_departure ON trips (route_id, departure_at)`,
	`CREATE TABLE IF NOT EXISTS seats (
		id          UUID PRIMARY KEY,
		trip_id     UUID NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
		seat_number TEXT NOT NULL,
		seat_order  INTEGER NOT NULL,
		booked      BOOLEAN NOT NULL DEFAULT FALSE,
		CONSTRAINT seats_trip_id_seat_number_key UNIQUE (trip_id, seat_number)
	)`,
	`CREATE TABLE IF NOT EXISTS bookings (
		id              UUID PRIMARY KEY,
		booking_code    TEXT NOT NULL,
		user_id         UUID NOT NULL,
		trip_id         UUID NOT NULL REFERENCES trips(id),
		passenger_name  TEXT NOT NULL,
		passenger_phone TEXT NOT NULL,
		passenger_email TEXT NOT NULL,
		total_price     NUMERIC(12,2) NOT NULL CHECK (total_price >= 0),
		status          TEXT NOT NULL DEFAULT 'pending',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT bookings_booking_code_key UNIQUE (booking_code)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_bookings_user ON bookings (user_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS booked_seats (
		booking_id UUID NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		seat_id    UUID NOT NULL REFERENCES seats(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		PRIMARY KEY (booking_id, seat_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_booked_seats_seat ON booked_seats (seat_id)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id                    UUID PRIMARY KEY,
		booking_id            UUID NOT NULL REFERENCES bookings(id) ON DELETE CASCADE,
		amount                NUMERIC(12,2) NOT NULL CHECK (amount >= 0),
		payment_method        TEXT NOT NULL,
		transaction_id        TEXT UNIQUE,
		status                TEXT NOT NULL DEFAULT 'pending',
		payment_date          TIMESTAMPTZ,
		refund_amount         NUMERIC(12,2) CHECK (refund_amount IS NULL OR refund_amount <= amount),
		refund_date           TIMESTAMPTZ,
		refund_transaction_id TEXT,
		created_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT payments_booking_id_key UNIQUE (booking_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payments_pending ON payments (status, created_at) WHERE status = 'pending'`,
	`CREATE TABLE IF NOT EXISTS payment_audits (
		id             UUID PRIMARY KEY,
		payment_id     UUID,
		booking_id     UUID,
		transaction_id TEXT,
		event_type     TEXT NOT NULL,
		event_source   TEXT NOT NULL,
		amount         NUMERIC(12,2),
		payment_status TEXT,
		error_message  TEXT,
		user_id        UUID,
		ip_address     TEXT,
		user_agent     TEXT,
		device_type    TEXT,
		platform       TEXT,
		browser        TEXT,
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_payment_audits_booking ON payment_audits (booking_id, created_at)`,
}

// Migrate creates the tables used by the booking core if they do not exist
func Migrate(ctx context.Context, db *sqlx.DB) error {
	return withTx(ctx, db, func(tx *sqlx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply schema: %w", err)
			}
		}
		return nil
	})
}
