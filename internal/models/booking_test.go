package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to BookingStatus
		allowed  bool
	}{
		{BookingStatusPending, BookingStatusConfirmed, true},
		{BookingStatusPending, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusCancelled, true},
		{BookingStatusConfirmed, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusPending, false},
		{BookingStatusCancelled, BookingStatusConfirmed, false},
		{BookingStatusCancelled, BookingStatusCancelled, false},
	}

	for _, tc := range tests {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to))
		})
	}
}

func TestPaymentStatusTransitions(t *testing.T) {
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, PaymentStatusPending.CanTransitionTo(PaymentStatusFailed))
	assert.True(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusRefunding))
	assert.True(t, PaymentStatusRefunding.CanTransitionTo(PaymentStatusRefunded))
	assert.False(t, PaymentStatusCompleted.CanTransitionTo(PaymentStatusRefunded), "refunds are claimed first")
	assert.False(t, PaymentStatusRefunding.CanTransitionTo(PaymentStatusCompleted))
	assert.True(t, PaymentStatusRefunding.BlocksNewAttempt())
	assert.False(t, PaymentStatusFailed.CanTransitionTo(PaymentStatusCompleted))
	assert.False(t, PaymentStatusRefunded.CanTransitionTo(PaymentStatusCompleted))
	assert.False(t, PaymentStatusPending.CanTransitionTo(PaymentStatusRefunded))

	assert.True(t, PaymentStatusPending.BlocksNewAttempt())
	assert.True(t, PaymentStatusCompleted.BlocksNewAttempt())
	assert.False(t, PaymentStatusFailed.BlocksNewAttempt())
}

func validBookingRequest() CreateBookingRequest {
	return CreateBookingRequest{
		TripID:         uuid.New(),
		SeatIDs:        []uuid.UUID{uuid.New(), uuid.New()},
		PassengerName:  "  Nimal Perera ",
		PassengerPhone: "077 123 4567",
		PassengerEmail: "Nimal@Example.com",
	}
}

func TestCreateBookingRequest_Validate(t *testing.T) {
	t.Run("Valid Request Is Normalized", func(t *testing.T) {
		req := validBookingRequest()
		require.NoError(t, req.Validate())
		assert.Equal(t, "Nimal Perera", req.PassengerName)
		assert.Equal(t, "0771234567", req.PassengerPhone)
		assert.Equal(t, "nimal@example.com", req.PassengerEmail)
	})

	t.Run("No Seats", func(t *testing.T) {
		req := validBookingRequest()
		req.SeatIDs = nil
		err := req.Validate()
		assert.True(t, errors.Is(err, ErrValidation))
	})

	t.Run("Duplicate Seat", func(t *testing.T) {
		req := validBookingRequest()
		req.SeatIDs = append(req.SeatIDs, req.SeatIDs[0])
		err := req.Validate()
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "seat_ids", vErr.Field)
	})

	t.Run("Too Many Seats", func(t *testing.T) {
		req := validBookingRequest()
		req.SeatIDs = make([]uuid.UUID, MaxSeatsPerBooking+1)
		for i := range req.SeatIDs {
			req.SeatIDs[i] = uuid.New()
		}
		assert.Error(t, req.Validate())
	})

	t.Run("Bad Email", func(t *testing.T) {
		req := validBookingRequest()
		req.PassengerEmail = "nimal"
		err := req.Validate()
		var vErr *ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "passenger_email", vErr.Field)
	})

	t.Run("Bad Phone", func(t *testing.T) {
		req := validBookingRequest()
		req.PassengerPhone = "call me"
		assert.Error(t, req.Validate())
	})
}

func TestCreateTripRequest_Validate(t *testing.T) {
	base := func() CreateTripRequest {
		return CreateTripRequest{
			RouteID:      uuid.New(),
			Name:         "Colombo - Kandy Express",
			LicensePlate: " nb-1234 ",
			Capacity:     40,
			DepartureAt:  time.Now().Add(48 * time.Hour),
			Price:        decimal.NewFromInt(1500),
		}
	}

	req := base()
	require.NoError(t, req.Validate())
	assert.Equal(t, "NB-1234", req.LicensePlate)
	assert.Equal(t, TripStatusActive, req.Status)

	req = base()
	req.Capacity = 0
	assert.ErrorIs(t, req.Validate(), ErrValidation)

	req = base()
	req.Price = decimal.NewFromInt(-1)
	assert.ErrorIs(t, req.Validate(), ErrValidation)

	req = base()
	req.Status = "parked"
	assert.ErrorIs(t, req.Validate(), ErrValidation)
}

func TestUpdateTripRequest_Validate(t *testing.T) {
	empty := UpdateTripRequest{}
	assert.Error(t, empty.Validate())

	blank := "  "
	req := UpdateTripRequest{Name: &blank}
	assert.Error(t, req.Validate())

	status := TripStatusCancelled
	req = UpdateTripRequest{Status: &status}
	assert.NoError(t, req.Validate())
}

func TestTripDeparture(t *testing.T) {
	departure := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	trip := &Trip{DepartureAt: departure, Status: TripStatusActive}

	assert.False(t, trip.HasDeparted(departure.Add(-time.Second)))
	assert.True(t, trip.HasDeparted(departure))
	assert.True(t, trip.IsBookable(departure.Add(-time.Hour)))
	assert.False(t, trip.IsBookable(departure))

	trip.Status = TripStatusCancelled
	assert.False(t, trip.IsBookable(departure.Add(-time.Hour)))
}

func TestTypedErrorsUnwrap(t *testing.T) {
	seatID := uuid.New()
	var err error = &SeatConflictError{SeatID: seatID, Reason: "already booked"}
	assert.ErrorIs(t, err, ErrSeatConflict)
	assert.Contains(t, err.Error(), seatID.String())

	cause := errors.New("connection refused")
	err = &GatewayError{Op: "create_payment", Err: cause}
	assert.ErrorIs(t, err, ErrGateway)
	assert.ErrorIs(t, err, cause)

	err = InvalidStateError("booking is %s", BookingStatusCancelled)
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Contains(t, err.Error(), "cancelled")
}
