package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/config"
	"github.com/smarttransit/ticketing-backend/internal/models"
)

const notifyTimeout = 30 * time.Second

// BookingService drives a booking from seat reservation to cancellation
type BookingService struct {
	trips    TripStore
	ledger   SeatLedger
	bookings BookingStore
	notifier BookingNotifier
	config   config.BookingConfig
	logger   *logrus.Logger
	now      func() time.Time
}

// NewBookingService creates a booking service
func NewBookingService(
	trips TripStore,
	ledger SeatLedger,
	bookings BookingStore,
	notifier BookingNotifier,
	cfg config.BookingConfig,
	logger *logrus.Logger,
) *BookingService {
	if cfg.CodePrefix == "" {
		cfg.CodePrefix = "BK"
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = 5
	}
	return &BookingService{
		trips:    trips,
		ledger:   ledger,
		bookings: bookings,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock
func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

// CreateBooking reserves the requested seats for userID. The price is locked
// at trip.price x seat count.
func (s *BookingService) CreateBooking(ctx context.Context, userID uuid.UUID, req *models.CreateBookingRequest) (*models.Booking, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	trip, err := s.trips.GetTrip(ctx, req.TripID)
	if err != nil {
		return nil, fmt.Errorf("trip %s: %w", req.TripID, err)
	}
	now := s.now()
	if !trip.IsBookable(now) {
		return nil, models.InvalidStateError("trip %s is not open for booking", trip.ID)
	}

	seatNumbers, err := s.resolveSeats(ctx, trip.ID, req.SeatIDs)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		UserID:         userID,
		TripID:         trip.ID,
		PassengerName:  req.PassengerName,
		PassengerPhone: req.PassengerPhone,
		PassengerEmail: req.PassengerEmail,
		TotalPrice:     trip.Price.Mul(decimal.NewFromInt(int64(len(req.SeatIDs)))),
	}

	for attempt := 1; ; attempt++ {
		booking.ID = uuid.New()
		booking.BookingCode, err = GenerateBookingCode(s.config.CodePrefix, now)
		if err != nil {
			return nil, err
		}

		err = s.ledger.Reserve(ctx, booking, req.SeatIDs)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrDuplicateBookingCode) || attempt >= s.config.CodeAttempts {
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{
			"booking_code": booking.BookingCode,
			"attempt":      attempt,
		}).Warn("Booking code collision, retrying")
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"booking_code": booking.BookingCode,
		"trip_id":      trip.ID,
		"user_id":      userID,
		"seats":        seatNumbers,
		"total_price":  booking.TotalPrice.String(),
	}).Info("Booking created")

	s.notifyConfirmation(booking, trip)
	return booking, nil
}

// resolveSeats checks every requested seat against the trip's seat map.
// The ledger re-checks availability under lock.
func (s *BookingService) resolveSeats(ctx context.Context, tripID uuid.UUID, seatIDs []uuid.UUID) ([]string, error) {
	seats, err := s.trips.ListSeats(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load seats: %w", err)
	}
	byID := make(map[uuid.UUID]models.Seat, len(seats))
	for _, seat := range seats {
		byID[seat.ID] = seat
	}

	numbers := make([]string, 0, len(seatIDs))
	for _, id := range seatIDs {
		seat, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("seat %s: %w", id, models.ErrNotFound)
		}
		if seat.Booked {
			return nil, &models.SeatConflictError{SeatID: id, Reason: "already booked"}
		}
		numbers = append(numbers, seat.SeatNumber)
	}
	return numbers, nil
}

// notifyConfirmation sends the confirmation in the background. Failures are logged only.
func (s *BookingService) notifyConfirmation(booking *models.Booking, trip *models.Trip) {
	if s.notifier == nil {
		return
	}
	snapshot := *booking
	snapshot.BookedSeats = append([]models.BookedSeat(nil), booking.BookedSeats...)
	tripCopy := *trip

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		err := s.notifier.SendBookingConfirmation(ctx, snapshot.PassengerEmail, &snapshot, &tripCopy, snapshot.SeatNumbers())
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", snapshot.ID).Warn("Failed to send booking confirmation")
		}
	}()
}

// GetBooking returns a booking owned by userID. Bookings of other users are reported as not found.
func (s *BookingService) GetBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, models.ErrNotFound
	}
	return booking, nil
}

// ListUserBookings returns the user's bookings, newest first
func (s *BookingService) ListUserBookings(ctx context.Context, userID uuid.UUID, params models.BookingListParams) ([]models.Booking, error) {
	return s.bookings.ListBookingsByUser(ctx, userID, params)
}

// CancelBooking cancels a pending or confirmed booking before departure and frees its seats
func (s *BookingService) CancelBooking(ctx context.Context, bookingID, userID uuid.UUID) (*models.Booking, error) {
	booking, err := s.GetBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if !booking.CanBeCancelled() {
		return nil, models.InvalidStateError("booking is %s", booking.Status)
	}

	trip, err := s.trips.GetTrip(ctx, booking.TripID)
	if err != nil {
		return nil, fmt.Errorf("trip %s: %w", booking.TripID, err)
	}
	if trip.HasDeparted(s.now()) {
		return nil, models.InvalidStateError("trip departed at %s", trip.DepartureAt.Format(time.RFC3339))
	}

	// Release sets the status to cancelled and frees the seats in one unit
	if err := s.ledger.Release(ctx, bookingID); err != nil {
		return nil, err
	}
	cancelled, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"user_id":    userID,
		"trip_id":    booking.TripID,
	}).Info("Booking cancelled")
	return cancelled, nil
}
