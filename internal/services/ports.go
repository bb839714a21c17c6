package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

// TripStore persists trips and their seat pools
type TripStore interface {
	CreateTrip(ctx context.Context, trip *models.Trip) error
	GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error)
	ListSeats(ctx context.Context, tripID uuid.UUID) ([]models.Seat, error)
	UpdateTripDetails(ctx context.Context, tripID uuid.UUID, name *string, status *models.TripStatus) (*models.Trip, error)
	ResizeCapacity(ctx context.Context, tripID uuid.UUID, newCapacity int) (*models.Trip, error)
}

// SeatLedger is the only path that flips seat booked flags. Reserve inserts
// the booking, its seat links and the flags as one unit. Release cancels the
// booking and frees its seats as one unit and is a no-op when repeated.
type SeatLedger interface {
	Reserve(ctx context.Context, booking *models.Booking, seatIDs []uuid.UUID) error
	Release(ctx context.Context, bookingID uuid.UUID) error
}

// BookingStore reads bookings
type BookingStore interface {
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListBookingsByUser(ctx context.Context, userID uuid.UUID, params models.BookingListParams) ([]models.Booking, error)
}

// PaymentStore persists payments. Each write checks the current status under
// lock and returns ErrInvalidState when the transition is not allowed.
type PaymentStore interface {
	GetPaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error)
	GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error)
	ListPendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error)
	SavePendingPayment(ctx context.Context, p *models.Payment) error
	CompletePayment(ctx context.Context, paymentID uuid.UUID, paidAt time.Time) (*models.Payment, error)
	FailPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	// ClaimRefund moves a completed payment to refunding so that exactly one
	// caller talks to the gateway; RecordRefund or ReleaseRefundClaim ends the claim.
	ClaimRefund(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error)
	ReleaseRefundClaim(ctx context.Context, paymentID uuid.UUID) error
	RecordRefund(ctx context.Context, paymentID uuid.UUID, rec models.RefundRecord) (*models.Payment, error)
}

// PaymentAuditLog is the append-only payment event trail
type PaymentAuditLog interface {
	Log(ctx context.Context, audit *models.PaymentAudit) error
	ListByBookingID(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error)
}

// BookingNotifier delivers booking confirmations. Calls are best effort.
type BookingNotifier interface {
	SendBookingConfirmation(ctx context.Context, email string, booking *models.Booking, trip *models.Trip, seatNumbers []string) error
}

// TripCache holds trip rows. Get returns nil, nil on a miss.
type TripCache interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Trip, error)
	Set(ctx context.Context, trip *models.Trip) error
	Invalidate(ctx context.Context, id uuid.UUID) error
}
