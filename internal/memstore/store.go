// Package memstore is an in-process implementation of the booking core's
// storage ports. Seat state of a trip only changes while that trip's lock is
// held; the store-wide RWMutex guards the maps themselves. Lock order is
// trip lock, then mu.
package memstore

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

type seatRecord struct {
	models.Seat
	order int
}

// Store keeps trips, seats, bookings and payments in memory
type Store struct {
	mu        sync.RWMutex
	tripLocks map[uuid.UUID]*sync.Mutex

	trips     map[uuid.UUID]*models.Trip
	plates    map[string]uuid.UUID
	seats     map[uuid.UUID]*seatRecord
	tripSeats map[uuid.UUID][]uuid.UUID // seat ids in seat order
	holders   map[uuid.UUID]uuid.UUID   // seat id -> live booking id

	bookings     map[uuid.UUID]*models.Booking
	codes        map[string]uuid.UUID
	userBookings map[uuid.UUID][]uuid.UUID

	payments         map[uuid.UUID]*models.Payment
	paymentByBooking map[uuid.UUID]uuid.UUID
	paymentByTx      map[string]uuid.UUID

	audits []models.PaymentAudit

	now func() time.Time
}

// New creates an empty store
func New() *Store {
	return &Store{
		tripLocks:        make(map[uuid.UUID]*sync.Mutex),
		trips:            make(map[uuid.UUID]*models.Trip),
		plates:           make(map[string]uuid.UUID),
		seats:            make(map[uuid.UUID]*seatRecord),
		tripSeats:        make(map[uuid.UUID][]uuid.UUID),
		holders:          make(map[uuid.UUID]uuid.UUID),
		bookings:         make(map[uuid.UUID]*models.Booking),
		codes:            make(map[string]uuid.UUID),
		userBookings:     make(map[uuid.UUID][]uuid.UUID),
		payments:         make(map[uuid.UUID]*models.Payment),
		paymentByBooking: make(map[uuid.UUID]uuid.UUID),
		paymentByTx:      make(map[string]uuid.UUID),
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the clock used for timestamps
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// tripLock returns the mutex serializing seat changes on a trip
func (s *Store) tripLock(tripID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.tripLocks[tripID]
	if !ok {
		l = &sync.Mutex{}
		s.tripLocks[tripID] = l
	}
	return l
}

func cloneTrip(t *models.Trip) *models.Trip {
	c := *t
	return &c
}

func cloneBooking(b *models.Booking) *models.Booking {
	c := *b
	c.BookedSeats = append([]models.BookedSeat(nil), b.BookedSeats...)
	return &c
}

func clonePayment(p *models.Payment) *models.Payment {
	c := *p
	if p.TransactionID != nil {
		v := *p.TransactionID
		c.TransactionID = &v
	}
	if p.PaymentDate != nil {
		v := *p.PaymentDate
		c.PaymentDate = &v
	}
	if p.RefundAmount != nil {
		v := *p.RefundAmount
		c.RefundAmount = &v
	}
	if p.RefundDate != nil {
		v := *p.RefundDate
		c.RefundDate = &v
	}
	if p.RefundTransactionID != nil {
		v := *p.RefundTransactionID
		c.RefundTransactionID = &v
	}
	return &c
}

func sortTrips(trips []models.Trip) {
	sort.Slice(trips, func(i, j int) bool {
		if !trips[i].DepartureAt.Equal(trips[j].DepartureAt) {
			return trips[i].DepartureAt.Before(trips[j].DepartureAt)
		}
		return strings.Compare(trips[i].ID.String(), trips[j].ID.String()) < 0
	})
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
