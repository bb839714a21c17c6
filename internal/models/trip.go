package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// TRIP STATUS
// ============================================================================

// TripStatus represents the lifecycle status of a trip
type TripStatus string

const (
	TripStatusActive    TripStatus = "active"
	TripStatusCancelled TripStatus = "cancelled"
	TripStatusCompleted TripStatus = "completed"
)

// IsValid checks if the status is one of the known values
func (s TripStatus) IsValid() bool {
	switch s {
	case TripStatusActive, TripStatusCancelled, TripStatusCompleted:
		return true
	}
	return false
}

// ============================================================================
// TRIP (trips table)
// ============================================================================

// Trip is one scheduled run of a bus on a route
type Trip struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	RouteID      uuid.UUID       `json:"route_id" db:"route_id"`
	Name         string          `json:"name" db:"name"`
	LicensePlate string          `json:"license_plate" db:"license_plate"`
	BusType      string          `json:"bus_type" db:"bus_type"`
	Capacity     int             `json:"capacity" db:"capacity"`
	DepartureAt  time.Time       `json:"departure_at" db:"departure_at"`
	Price        decimal.Decimal `json:"price" db:"price"`
	Status       TripStatus      `json:"status" db:"status"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// HasDeparted reports whether the departure instant has been reached
func (t *Trip) HasDeparted(now time.Time) bool {
	return !now.Before(t.DepartureAt)
}

// IsBookable checks if new bookings may be taken for this trip
func (t *Trip) IsBookable(now time.Time) bool {
	return t.Status == TripStatusActive && !t.HasDeparted(now)
}

// Seat is a bookable unit of capacity on a trip
type Seat struct {
	ID         uuid.UUID `json:"id" db:"id"`
	TripID     uuid.UUID `json:"trip_id" db:"trip_id"`
	SeatNumber string    `json:"seat_number" db:"seat_number"`
	Booked     bool      `json:"booked" db:"booked"`
}

// SeatNumberFor returns the seat label for the n-th seat of a trip (1-based)
func SeatNumberFor(n int) string {
	return strconv.Itoa(n)
}

// TripFilter narrows trip listings
type TripFilter struct {
	RouteID *uuid.UUID
	Date    *time.Time // matches the departure calendar day (UTC)
	Limit   int
	Offset  int
}

// Normalize applies listing defaults
func (f *TripFilter) Normalize() {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// ============================================================================
// REQUEST TYPES
// ============================================================================

// CreateTripRequest is the admin payload for scheduling a trip
type CreateTripRequest struct {
	RouteID      uuid.UUID       `json:"route_id" binding:"required"`
	Name         string          `json:"name" binding:"required"`
	LicensePlate string          `json:"license_plate" binding:"required"`
	BusType      string          `json:"bus_type"`
	Capacity     int             `json:"capacity" binding:"required"`
	DepartureAt  time.Time       `json:"departure_at" binding:"required"`
	Price        decimal.Decimal `json:"price"`
	Status       TripStatus      `json:"status"`
}

// Validate validates the trip creation request
func (r *CreateTripRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.LicensePlate = strings.ToUpper(strings.TrimSpace(r.LicensePlate))
	if r.RouteID == uuid.Nil {
		return invalid("route_id", "is required")
	}
	if r.Name == "" {
		return invalid("name", "is required")
	}
	if r.LicensePlate == "" {
		return invalid("license_plate", "is required")
	}
	if r.Capacity <= 0 {
		return invalid("capacity", "must be a positive integer")
	}
	if r.DepartureAt.IsZero() {
		return invalid("departure_at", "is required")
	}
	if r.Price.IsNegative() {
		return invalid("price", "must not be negative")
	}
	if r.Status == "" {
		r.Status = TripStatusActive
	}
	if !r.Status.IsValid() {
		return invalid("status", "must be one of active, cancelled, completed")
	}
	return nil
}

// ResizeCapacityRequest changes the number of seats on a trip
type ResizeCapacityRequest struct {
	Capacity int `json:"capacity" binding:"required"`
}

// Validate validates the resize request
func (r *ResizeCapacityRequest) Validate() error {
	if r.Capacity <= 0 {
		return invalid("capacity", "must be a positive integer")
	}
	return nil
}

// UpdateTripRequest changes fields that never affect existing bookings
type UpdateTripRequest struct {
	Name   *string     `json:"name"`
	Status *TripStatus `json:"status"`
}

// Validate validates the update request
func (r *UpdateTripRequest) Validate() error {
	if r.Name == nil && r.Status == nil {
		return invalid("", "nothing to update")
	}
	if r.Name != nil {
		trimmed := strings.TrimSpace(*r.Name)
		if trimmed == "" {
			return invalid("name", "must not be empty")
		}
		r.Name = &trimmed
	}
	if r.Status != nil && !r.Status.IsValid() {
		return invalid("status", "must be one of active, cancelled, completed")
	}
	return nil
}
