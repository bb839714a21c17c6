package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

// CreateTrip stores the trip and provisions seats 1..capacity
func (s *Store) CreateTrip(_ context.Context, trip *models.Trip) error {
	if trip.Capacity <= 0 {
		return &models.ValidationError{Field: "capacity", Message: "must be a positive integer"}
	}
	if trip.ID == uuid.Nil {
		trip.ID = uuid.New()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.plates[trip.LicensePlate]; taken {
		return models.ErrDuplicateLicensePlate
	}
	if _, exists := s.trips[trip.ID]; exists {
		return fmt.Errorf("trip %s already exists", trip.ID)
	}

	now := s.now()
	trip.CreatedAt, trip.UpdatedAt = now, now
	s.trips[trip.ID] = cloneTrip(trip)
	s.plates[trip.LicensePlate] = trip.ID
	s.appendSeatsLocked(trip.ID, 1, trip.Capacity)
	return nil
}

// appendSeatsLocked adds seats numbered from..to. Caller holds mu.
func (s *Store) appendSeatsLocked(tripID uuid.UUID, from, to int) {
	for n := from; n <= to; n++ {
		seat := &seatRecord{
			Seat: models.Seat{
				ID:         uuid.New(),
				TripID:     tripID,
				SeatNumber: models.SeatNumberFor(n),
			},
			order: n,
		}
		s.seats[seat.ID] = seat
		s.tripSeats[tripID] = append(s.tripSeats[tripID], seat.ID)
	}
}

// GetTrip returns a trip by id
func (s *Store) GetTrip(_ context.Context, id uuid.UUID) (*models.Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trip, ok := s.trips[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneTrip(trip), nil
}

// ListTrips returns trips matching the filter, soonest departure first
func (s *Store) ListTrips(_ context.Context, filter models.TripFilter) ([]models.Trip, error) {
	filter.Normalize()

	var dayStart, dayEnd time.Time
	if filter.Date != nil {
		dayStart = time.Date(filter.Date.Year(), filter.Date.Month(), filter.Date.Day(), 0, 0, 0, 0, time.UTC)
		dayEnd = dayStart.AddDate(0, 0, 1)
	}

	s.mu.RLock()
	trips := make([]models.Trip, 0, len(s.trips))
	for _, t := range s.trips {
		if filter.RouteID != nil && t.RouteID != *filter.RouteID {
			continue
		}
		if filter.Date != nil && (t.DepartureAt.Before(dayStart) || !t.DepartureAt.Before(dayEnd)) {
			continue
		}
		trips = append(trips, *t)
	}
	s.mu.RUnlock()

	sortTrips(trips)
	return paginate(trips, filter.Limit, filter.Offset), nil
}

// ListSeats returns every seat of the trip ordered by seat number
func (s *Store) ListSeats(_ context.Context, tripID uuid.UUID) ([]models.Seat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.trips[tripID]; !ok {
		return nil, models.ErrNotFound
	}
	ids := s.tripSeats[tripID]
	seats := make([]models.Seat, 0, len(ids))
	for _, id := range ids {
		seats = append(seats, s.seats[id].Seat)
	}
	return seats, nil
}

// UpdateTripDetails changes name and/or status
func (s *Store) UpdateTripDetails(_ context.Context, tripID uuid.UUID, name *string, status *models.TripStatus) (*models.Trip, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[tripID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if name != nil {
		trip.Name = *name
	}
	if status != nil {
		trip.Status = *status
	}
	trip.UpdatedAt = s.now()
	return cloneTrip(trip), nil
}

// ResizeCapacity grows the seat pool after the highest seat number, or removes
// unbooked seats highest number first
func (s *Store) ResizeCapacity(_ context.Context, tripID uuid.UUID, newCapacity int) (*models.Trip, error) {
	if newCapacity <= 0 {
		return nil, &models.ValidationError{Field: "capacity", Message: "must be a positive integer"}
	}

	lock := s.tripLock(tripID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	trip, ok := s.trips[tripID]
	if !ok {
		return nil, models.ErrNotFound
	}

	ids := s.tripSeats[tripID]
	switch {
	case newCapacity > trip.Capacity:
		// After a shrink that kept a booked high seat (5->3 leaving 1,2,5),
		// capacity+1 would collide with that seat, so continue after the highest order.
		highest := 0
		if len(ids) > 0 {
			highest = s.seats[ids[len(ids)-1]].order
		}
		s.appendSeatsLocked(tripID, highest+1, highest+newCapacity-trip.Capacity)

	case newCapacity < trip.Capacity:
		remove := trip.Capacity - newCapacity
		doomed := make(map[uuid.UUID]struct{}, remove)
		for i := len(ids) - 1; i >= 0 && len(doomed) < remove; i-- {
			if !s.seats[ids[i]].Booked {
				doomed[ids[i]] = struct{}{}
			}
		}
		if len(doomed) < remove {
			return nil, fmt.Errorf("%w: only %d unbooked seats, cannot remove %d",
				models.ErrCapacityConflict, len(doomed), remove)
		}

		kept := ids[:0:0]
		for _, id := range ids {
			if _, gone := doomed[id]; gone {
				delete(s.seats, id)
				continue
			}
			kept = append(kept, id)
		}
		s.tripSeats[tripID] = kept
		s.dropSeatLinksLocked(doomed)
	}

	trip.Capacity = newCapacity
	trip.UpdatedAt = s.now()
	return cloneTrip(trip), nil
}

// dropSeatLinksLocked removes links from cancelled bookings to deleted seats
func (s *Store) dropSeatLinksLocked(removed map[uuid.UUID]struct{}) {
	for _, b := range s.bookings {
		if b.Status != models.BookingStatusCancelled {
			continue
		}
		kept := b.BookedSeats[:0]
		for _, bs := range b.BookedSeats {
			if _, gone := removed[bs.SeatID]; !gone {
				kept = append(kept, bs)
			}
		}
		b.BookedSeats = kept
	}
}
