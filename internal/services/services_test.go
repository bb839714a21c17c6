package services

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/ticketing-backend/internal/config"
	"github.com/smarttransit/ticketing-backend/internal/memstore"
	"github.com/smarttransit/ticketing-backend/internal/models"
	"github.com/smarttransit/ticketing-backend/pkg/gateway"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type recordingNotifier struct {
	sent chan string
	err  error
}

func (n *recordingNotifier) SendBookingConfirmation(_ context.Context, email string, booking *models.Booking, _ *models.Trip, _ []string) error {
	n.sent <- booking.BookingCode + " " + email
	return n.err
}

type harness struct {
	store     *memstore.Store
	gateway   *gateway.SimulatedGateway
	clock     *testClock
	notifier  *recordingNotifier
	catalog   *TripCatalogService
	bookings  *BookingService
	payments  *PaymentService
	departure time.Time
	logger    *logrus.Logger
}

func setupHarness(t *testing.T) *harness {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	departure := time.Date(2026, 12, 1, 8, 0, 0, 0, time.UTC)
	h := &harness{
		store:     memstore.New(),
		gateway:   gateway.NewSimulatedGateway(""),
		clock:     &testClock{now: departure.Add(-72 * time.Hour)},
		notifier:  &recordingNotifier{sent: make(chan string, 128)},
		departure: departure,
		logger:    logger,
	}
	h.catalog = NewTripCatalogService(h.store, nil, logger)
	h.bookings = NewBookingService(h.store, h.store, h.store, h.notifier,
		config.BookingConfig{CodePrefix: "BK", CodeAttempts: 5}, logger).WithClock(h.clock.Now)
	h.payments = NewPaymentService(h.store, h.store, h.store, h.store, h.gateway,
		config.PaymentConfig{ReturnURL: "https://app/return"}, logger).WithClock(h.clock.Now)
	return h
}

func (h *harness) createTrip(t *testing.T, capacity int, price int64) (*models.Trip, []models.Seat) {
	t.Helper()
	trip, err := h.catalog.CreateTrip(context.Background(), &models.CreateTripRequest{
		RouteID:      uuid.New(),
		Name:         "Colombo - Kandy",
		LicensePlate: "NB-" + uuid.NewString()[:4],
		Capacity:     capacity,
		DepartureAt:  h.departure,
		Price:        decimal.NewFromInt(price),
	})
	require.NoError(t, err)
	seats, err := h.catalog.ListSeats(context.Background(), trip.ID)
	require.NoError(t, err)
	return trip, seats
}

func bookingRequest(tripID uuid.UUID, seatIDs ...uuid.UUID) *models.CreateBookingRequest {
	return &models.CreateBookingRequest{
		TripID:         tripID,
		SeatIDs:        seatIDs,
		PassengerName:  "Nimal Perera",
		PassengerPhone: "+94 77 123 4567",
		PassengerEmail: "Nimal@Example.com",
	}
}

// payBooking opens a payment for the booking and settles it with the simulator
func (h *harness) payBooking(t *testing.T, userID uuid.UUID, bookingID uuid.UUID) *models.Payment {
	t.Helper()
	ctx := context.Background()
	intent, err := h.payments.CreatePaymentIntent(ctx, userID,
		&models.CreatePaymentRequest{BookingID: bookingID, PaymentMethod: "card"}, models.ClientMeta{})
	require.NoError(t, err)
	require.NoError(t, h.gateway.Complete(intent.TransactionID, true))
	payment, err := h.payments.VerifyPayment(ctx, &userID, intent.TransactionID)
	require.NoError(t, err)
	return payment
}

type failingGateway struct{ err error }

func (g failingGateway) CreatePayment(context.Context, decimal.Decimal, string, string) (*gateway.CreateResult, error) {
	return nil, g.err
}

func (g failingGateway) VerifyPayment(context.Context, string) (*gateway.VerifyResult, error) {
	return nil, g.err
}

func (g failingGateway) ProcessRefund(context.Context, string, decimal.Decimal) (*gateway.RefundResult, error) {
	return nil, g.err
}

var errBoom = errors.New("boom")

// slowRefundGateway holds every refund call open so concurrent callers overlap
type slowRefundGateway struct {
	*gateway.SimulatedGateway
	delay time.Duration

	mu      sync.Mutex
	refunds int
}

func (g *slowRefundGateway) ProcessRefund(ctx context.Context, txID string, amount decimal.Decimal) (*gateway.RefundResult, error) {
	g.mu.Lock()
	g.refunds++
	g.mu.Unlock()
	time.Sleep(g.delay)
	return g.SimulatedGateway.ProcessRefund(ctx, txID, amount)
}

func (g *slowRefundGateway) RefundCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refunds
}
