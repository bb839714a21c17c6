package memstore

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

// Reserve books every seat in seatIDs for the booking or none of them.
// The first unavailable seat in caller order is reported.
func (s *Store) Reserve(_ context.Context, booking *models.Booking, seatIDs []uuid.UUID) error {
	if len(seatIDs) == 0 {
		return &models.ValidationError{Field: "seat_ids", Message: "at least one seat must be selected"}
	}

	lock := s.tripLock(booking.TripID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trips[booking.TripID]; !ok {
		return fmt.Errorf("trip %s: %w", booking.TripID, models.ErrNotFound)
	}

	links := make([]models.BookedSeat, 0, len(seatIDs))
	claimed := make(map[uuid.UUID]struct{}, len(seatIDs))
	for _, id := range seatIDs {
		seat, ok := s.seats[id]
		if !ok || seat.TripID != booking.TripID {
			return &models.SeatConflictError{SeatID: id, Reason: "not a seat of this trip"}
		}
		if _, dup := claimed[id]; dup || seat.Booked {
			return &models.SeatConflictError{SeatID: id, Reason: "already booked"}
		}
		claimed[id] = struct{}{}
		links = append(links, models.BookedSeat{SeatID: id, SeatNumber: seat.SeatNumber})
	}

	if _, taken := s.codes[booking.BookingCode]; taken {
		return models.ErrDuplicateBookingCode
	}

	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	for i := range links {
		links[i].BookingID = booking.ID
	}
	now := s.now()
	booking.Status = models.BookingStatusPending
	booking.CreatedAt, booking.UpdatedAt = now, now
	booking.BookedSeats = links

	for _, id := range seatIDs {
		s.seats[id].Booked = true
		s.holders[id] = booking.ID
	}
	s.bookings[booking.ID] = cloneBooking(booking)
	s.codes[booking.BookingCode] = booking.ID
	s.userBookings[booking.UserID] = append(s.userBookings[booking.UserID], booking.ID)
	return nil
}

// Release voids the booking's reservation and frees its seats. Idempotent.
func (s *Store) Release(_ context.Context, bookingID uuid.UUID) error {
	tripID, err := s.bookingTrip(bookingID)
	if err != nil {
		return err
	}

	lock := s.tripLock(tripID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	b := s.bookings[bookingID]
	if b.Status != models.BookingStatusCancelled {
		b.Status = models.BookingStatusCancelled
		b.UpdatedAt = s.now()
	}
	s.releaseSeatsLocked(b)
	return nil
}

// releaseSeatsLocked frees seats still held by the booking. Caller holds the trip lock and mu.
func (s *Store) releaseSeatsLocked(b *models.Booking) {
	for _, bs := range b.BookedSeats {
		if s.holders[bs.SeatID] != b.ID {
			continue
		}
		delete(s.holders, bs.SeatID)
		if seat, ok := s.seats[bs.SeatID]; ok {
			seat.Booked = false
		}
	}
}

func (s *Store) bookingTrip(bookingID uuid.UUID) (uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[bookingID]
	if !ok {
		return uuid.Nil, models.ErrNotFound
	}
	return b.TripID, nil
}

// GetBooking returns a booking with its seats
func (s *Store) GetBooking(_ context.Context, id uuid.UUID) (*models.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.bookings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneBooking(b), nil
}

// ListBookingsByUser returns the user's bookings, newest first
func (s *Store) ListBookingsByUser(_ context.Context, userID uuid.UUID, params models.BookingListParams) ([]models.Booking, error) {
	params.Normalize()

	s.mu.RLock()
	ids := s.userBookings[userID]
	bookings := make([]models.Booking, 0, len(ids))
	for _, id := range ids {
		bookings = append(bookings, *cloneBooking(s.bookings[id]))
	}
	s.mu.RUnlock()

	sort.SliceStable(bookings, func(i, j int) bool {
		return bookings[i].CreatedAt.After(bookings[j].CreatedAt)
	})
	return paginate(bookings, params.Limit, params.Offset), nil
}
