package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smarttransit/ticketing-backend/internal/config"
	"github.com/smarttransit/ticketing-backend/internal/models"
)

func TestComputeRefund(t *testing.T) {
	departure := time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)
	hundred := decimal.NewFromInt(100)

	tests := []struct {
		name    string
		before  time.Duration
		want    string
		expired bool
	}{
		{name: "25 hours", before: 25 * time.Hour, want: "100"},
		{name: "24 hours and 1 second", before: 24*time.Hour + time.Second, want: "100"},
		{name: "exactly 24 hours", before: 24 * time.Hour, want: "50"},
		{name: "18 hours", before: 18 * time.Hour, want: "50"},
		{name: "12 hours and 1 second", before: 12*time.Hour + time.Second, want: "50"},
		{name: "12 hours and a fraction", before: 12*time.Hour + 999*time.Millisecond, expired: true},
		{name: "exactly 12 hours", before: 12 * time.Hour, expired: true},
		{name: "2 hours", before: 2 * time.Hour, expired: true},
		{name: "after departure", before: -time.Hour, expired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeRefund(hundred, departure, departure.Add(-tt.before))
			if tt.expired {
				assert.ErrorIs(t, err, models.ErrRefundWindowExpired)
				assert.True(t, got.IsZero())
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}

	t.Run("Half Keeps Precision", func(t *testing.T) {
		got, err := ComputeRefund(decimal.RequireFromString("33.33"), departure, departure.Add(-18*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, "16.665", got.String())
	})
}

// Trip with two seats at 100: book, conflict, pay, cancel, refund, refund again.
func TestBookingPaymentRefundScenario(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t)
	trip, seats := h.createTrip(t, 2, 100)
	seatA := seats[0].ID
	user := uuid.New()

	booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seatA))
	require.NoError(t, err)
	assert.Equal(t, "100", booking.TotalPrice.String())
	assert.Equal(t, models.BookingStatusPending, booking.Status)

	_, err = h.bookings.CreateBooking(ctx, uuid.New(), bookingRequest(trip.ID, seatA))
	assert.ErrorIs(t, err, models.ErrSeatConflict)

	payment := h.payBooking(t, user, booking.ID)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
	require.NotNil(t, payment.PaymentDate)

	confirmed, err := h.bookings.GetBooking(ctx, user, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)

	h.clock.Set(h.departure.Add(-30 * time.Hour))
	cancelled, err := h.bookings.CancelBooking(ctx, booking.ID, user)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

	after, _ := h.catalog.ListSeats(ctx, trip.ID)
	assert.False(t, after[0].Booked, "seat A is free again")

	refunded, err := h.payments.Refund(ctx, user, booking.ID, models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundAmount)
	assert.Equal(t, "100", refunded.RefundAmount.String())
	assert.NotNil(t, refunded.RefundTransactionID)
	assert.NotNil(t, refunded.RefundDate)

	_, err = h.payments.Refund(ctx, user, booking.ID, models.ClientMeta{})
	assert.ErrorIs(t, err, models.ErrAlreadyRefunded)

	audits, err := h.payments.ListAudits(ctx, booking.ID)
	require.NoError(t, err)
	var events []models.PaymentEventType
	for _, a := range audits {
		events = append(events, a.EventType)
	}
	assert.Contains(t, events, models.PaymentEventInitiated)
	assert.Contains(t, events, models.PaymentEventSuccess)
	assert.Contains(t, events, models.PaymentEventBookingConfirmed)
	assert.Contains(t, events, models.PaymentEventRefundCompleted)
}

func TestRefundRules(t *testing.T) {
	ctx := context.Background()

	t.Run("Half Refund Inside 24 Hours", func(t *testing.T) {
		h := setupHarness(t)
		trip, seats := h.createTrip(t, 1, 80)
		user := uuid.New()
		booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[0].ID))
		require.NoError(t, err)
		h.payBooking(t, user, booking.ID)

		h.clock.Set(h.departure.Add(-18 * time.Hour))
		_, err = h.bookings.CancelBooking(ctx, booking.ID, user)
		require.NoError(t, err)

		refunded, err := h.payments.Refund(ctx, user, booking.ID, models.ClientMeta{})
		require.NoError(t, err)
		assert.Equal(t, "40", refunded.RefundAmount.String())
	})

	t.Run("Window Expired", func(t *testing.T) {
		h := setupHarness(t)
		trip, seats := h.createTrip(t, 1, 80)
		user := uuid.New()
		booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[0].ID))
		require.NoError(t, err)
		h.payBooking(t, user, booking.ID)

		h.clock.Set(h.departure.Add(-2 * time.Hour))
		_, err = h.bookings.CancelBooking(ctx, booking.ID, user)
		require.NoError(t, err)

		_, err = h.payments.Refund(ctx, user, booking.ID, models.ClientMeta{})
		assert.ErrorIs(t, err, models.ErrRefundWindowExpired)

		payment, err := h.payments.GetPayment(ctx, user, booking.ID)
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusCompleted, payment.Status)
		assert.Nil(t, payment.RefundAmount, "no zero refund is recorded")
	})

	t.Run("Booking Not Cancelled", func(t *testing.T) {
		h := setupHarness(t)
		trip, seats := h.createTrip(t, 1, 80)
		user := uuid.New()
		booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[0].ID))
		require.NoError(t, err)
		h.payBooking(t, user, booking.ID)

		_, err = h.payments.Refund(ctx, user, booking.ID, models.ClientMeta{})
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("Unpaid Booking", func(t *testing.T) {
		h := setupHarness(t)
		trip, seats := h.createTrip(t, 1, 80)
		user := uuid.New()
		booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[0].ID))
		require.NoError(t, err)
		_, err = h.bookings.CancelBooking(ctx, booking.ID, user)
		require.NoError(t, err)

		_, err = h.payments.Refund(ctx, user, booking.ID, models.ClientMeta{})
		assert.ErrorIs(t, err, models.ErrInvalidState)
	})

	t.Run("Not Owner", func(t *testing.T) {
		h := setupHarness(t)
		trip, seats := h.createTrip(t, 1, 80)
		booking, err := h.bookings.CreateBooking(ctx, uuid.New(), bookingRequest(trip.ID, seats[0].ID))
		require.NoError(t, err)

		_, err = h.payments.Refund(ctx, uuid.New(), booking.ID, models.ClientMeta{})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestRefundAcrossReplicas(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t)
	trip, seats := h.createTrip(t, 1, 100)
	user := uuid.New()
	booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[0].ID))
	require.NoError(t, err)
	h.payBooking(t, user, booking.ID)
	_, err = h.bookings.CancelBooking(ctx, booking.ID, user)
	require.NoError(t, err)

	gw := &slowRefundGateway{SimulatedGateway: h.gateway, delay: 50 * time.Millisecond}
	replica := func() *PaymentService {
		return NewPaymentService(h.store, h.store, h.store, h.store, gw,
			config.PaymentConfig{}, h.logger).WithClock(h.clock.Now)
	}
	replicas := []*PaymentService{replica(), replica()}

	start := make(chan struct{})
	errs := make([]error, len(replicas))
	var wg sync.WaitGroup
	for i, svc := range replicas {
		wg.Add(1)
		go func(i int, svc *PaymentService) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Refund(ctx, user, booking.ID, models.ClientMeta{})
		}(i, svc)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, gw.RefundCalls(), "the gateway refunds once")

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, errors.Is(err, models.ErrRefundInProgress) || errors.Is(err, models.ErrAlreadyRefunded), err)
	}
	assert.Equal(t, 1, succeeded)

	payment, err := h.payments.GetPayment(ctx, user, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusRefunded, payment.Status)
	assert.Equal(t, "100", payment.RefundAmount.String())
}

func TestRefundGatewayFailureReleasesClaim(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t)
	trip, seats := h.createTrip(t, 1, 100)
	user := uuid.New()
	booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[0].ID))
	require.NoError(t, err)
	h.payBooking(t, user, booking.ID)
	_, err = h.bookings.CancelBooking(ctx, booking.ID, user)
	require.NoError(t, err)

	down := NewPaymentService(h.store, h.store, h.store, h.store, failingGateway{err: errBoom},
		config.PaymentConfig{}, h.logger).WithClock(h.clock.Now)
	_, err = down.Refund(ctx, user, booking.ID, models.ClientMeta{})
	require.ErrorIs(t, err, models.ErrGateway)

	payment, err := h.payments.GetPayment(ctx, user, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, payment.Status, "the claim is released")
	assert.Nil(t, payment.RefundAmount)

	refunded, err := h.payments.Refund(ctx, user, booking.ID, models.ClientMeta{})
	require.NoError(t, err, "a later refund can retry")
	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status)
}

func TestCreatePaymentIntentRules(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t)
	trip, seats := h.createTrip(t, 2, 100)
	user := uuid.New()
	booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[0].ID))
	require.NoError(t, err)
	req := &models.CreatePaymentRequest{BookingID: booking.ID, PaymentMethod: "card"}
	meta := models.ClientMeta{
		IPAddress: "203.0.113.5",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1",
		UserID:    &user,
	}

	_, err = h.payments.CreatePaymentIntent(ctx, uuid.New(), req, meta)
	assert.ErrorIs(t, err, models.ErrNotFound)

	first, err := h.payments.CreatePaymentIntent(ctx, user, req, meta)
	require.NoError(t, err)
	assert.Equal(t, "100", first.Amount.String())
	assert.NotEmpty(t, first.PaymentURL)

	_, err = h.payments.CreatePaymentIntent(ctx, user, req, meta)
	assert.ErrorIs(t, err, models.ErrInvalidState, "a pending payment blocks a new attempt")

	require.NoError(t, h.gateway.Complete(first.TransactionID, false))
	failed, err := h.payments.VerifyPayment(ctx, &user, first.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, failed.Status)

	stillPending, _ := h.bookings.GetBooking(ctx, user, booking.ID)
	assert.Equal(t, models.BookingStatusPending, stillPending.Status)

	retry, err := h.payments.CreatePaymentIntent(ctx, user, req, meta)
	require.NoError(t, err, "a failed payment allows a retry")
	assert.NotEqual(t, first.TransactionID, retry.TransactionID)
	assert.Equal(t, first.PaymentID, retry.PaymentID, "the failed row is reused")

	_, err = h.payments.SettlePayment(ctx, retry.TransactionID, models.OutcomeSuccess, models.PaymentSourceCallback)
	require.NoError(t, err)

	_, err = h.payments.CreatePaymentIntent(ctx, user, req, meta)
	assert.ErrorIs(t, err, models.ErrInvalidState, "confirmed bookings cannot be paid again")

	audits, _ := h.payments.ListAudits(ctx, booking.ID)
	require.NotEmpty(t, audits)
	initiated := audits[0]
	assert.Equal(t, models.PaymentEventInitiated, initiated.EventType)
	require.NotNil(t, initiated.DeviceType)
	assert.Equal(t, "mobile", *initiated.DeviceType)
	require.NotNil(t, initiated.IPAddress)
	assert.Equal(t, "203.0.113.5", *initiated.IPAddress)
}

func TestGatewayFailureLeavesNoPayment(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t)
	trip, seats := h.createTrip(t, 1, 100)
	user := uuid.New()
	booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[0].ID))
	require.NoError(t, err)

	svc := NewPaymentService(h.store, h.store, h.store, h.store, failingGateway{err: errBoom},
		config.PaymentConfig{}, h.logger)

	_, err = svc.CreatePaymentIntent(ctx, user, &models.CreatePaymentRequest{BookingID: booking.ID, PaymentMethod: "card"}, models.ClientMeta{})
	assert.ErrorIs(t, err, models.ErrGateway)
	var gwErr *models.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "create_payment", gwErr.Op)
	assert.ErrorIs(t, err, errBoom)

	_, err = h.store.GetPaymentByBookingID(ctx, booking.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSettlePayment(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t)
	trip, seats := h.createTrip(t, 1, 100)
	user := uuid.New()
	booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[0].ID))
	require.NoError(t, err)
	intent, err := h.payments.CreatePaymentIntent(ctx, user,
		&models.CreatePaymentRequest{BookingID: booking.ID, PaymentMethod: "card"}, models.ClientMeta{})
	require.NoError(t, err)

	_, err = h.payments.SettlePayment(ctx, "unknown", models.OutcomeSuccess, models.PaymentSourceCallback)
	assert.ErrorIs(t, err, models.ErrNotFound)

	pending, err := h.payments.SettlePayment(ctx, intent.TransactionID, models.OutcomePending, models.PaymentSourceCallback)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, pending.Status)

	_, err = h.bookings.CancelBooking(ctx, booking.ID, user)
	require.NoError(t, err)

	// A late success after cancellation completes the payment but the booking stays cancelled.
	require.NoError(t, h.gateway.Complete(intent.TransactionID, true))
	completed, err := h.payments.HandleCallback(ctx, &models.PaymentCallbackRequest{
		TransactionID: intent.TransactionID,
		Status:        models.OutcomeSuccess,
	}, models.ClientMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusCompleted, completed.Status)

	again, err := h.payments.SettlePayment(ctx, intent.TransactionID, models.OutcomeSuccess, models.PaymentSourceCallback)
	require.NoError(t, err, "duplicate success callbacks are idempotent")
	assert.Equal(t, models.PaymentStatusCompleted, again.Status)

	_, err = h.payments.SettlePayment(ctx, intent.TransactionID, models.OutcomeFailure, models.PaymentSourceCallback)
	assert.ErrorIs(t, err, models.ErrInvalidState)

	b, _ := h.bookings.GetBooking(ctx, user, booking.ID)
	assert.Equal(t, models.BookingStatusCancelled, b.Status)
}

func TestCallbackDefersToGateway(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t)
	trip, seats := h.createTrip(t, 1, 100)
	user := uuid.New()
	booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[0].ID))
	require.NoError(t, err)
	intent, err := h.payments.CreatePaymentIntent(ctx, user,
		&models.CreatePaymentRequest{BookingID: booking.ID, PaymentMethod: "card"}, models.ClientMeta{})
	require.NoError(t, err)

	t.Run("Success while gateway is pending", func(t *testing.T) {
		payment, err := h.payments.HandleCallback(ctx, &models.PaymentCallbackRequest{
			TransactionID: intent.TransactionID,
			Status:        models.OutcomeSuccess,
		}, models.ClientMeta{IPAddress: "198.51.100.7"})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusPending, payment.Status)

		b, _ := h.bookings.GetBooking(ctx, user, booking.ID)
		assert.Equal(t, models.BookingStatusPending, b.Status)
	})

	t.Run("Failure while gateway reports success", func(t *testing.T) {
		require.NoError(t, h.gateway.Complete(intent.TransactionID, true))

		payment, err := h.payments.HandleCallback(ctx, &models.PaymentCallbackRequest{
			TransactionID: intent.TransactionID,
			Status:        models.OutcomeFailure,
		}, models.ClientMeta{})
		require.NoError(t, err)
		assert.Equal(t, models.PaymentStatusCompleted, payment.Status)

		b, _ := h.bookings.GetBooking(ctx, user, booking.ID)
		assert.Equal(t, models.BookingStatusConfirmed, b.Status)
	})

	t.Run("Gateway unreachable", func(t *testing.T) {
		svc := NewPaymentService(h.store, h.store, h.store, h.store, failingGateway{err: errBoom},
			config.PaymentConfig{}, h.logger)
		_, err := svc.HandleCallback(ctx, &models.PaymentCallbackRequest{
			TransactionID: intent.TransactionID,
			Status:        models.OutcomeSuccess,
		}, models.ClientMeta{})
		assert.ErrorIs(t, err, models.ErrGateway)
	})

	audits, err := h.payments.ListAudits(ctx, booking.ID)
	require.NoError(t, err)
	var hinted []string
	for _, a := range audits {
		if a.EventType == models.PaymentEventCallbackReceived && a.PaymentStatus != nil {
			hinted = append(hinted, *a.PaymentStatus)
		}
	}
	assert.Equal(t, []string{"success", "failed", "success"}, hinted)
}

func TestPaymentReconciler(t *testing.T) {
	ctx := context.Background()
	h := setupHarness(t)
	trip, seats := h.createTrip(t, 2, 100)

	var txIDs []string
	var bookingIDs []uuid.UUID
	for i := 0; i < 2; i++ {
		user := uuid.New()
		booking, err := h.bookings.CreateBooking(ctx, user, bookingRequest(trip.ID, seats[i].ID))
		require.NoError(t, err)
		intent, err := h.payments.CreatePaymentIntent(ctx, user,
			&models.CreatePaymentRequest{BookingID: booking.ID, PaymentMethod: "card"}, models.ClientMeta{})
		require.NoError(t, err)
		txIDs = append(txIDs, intent.TransactionID)
		bookingIDs = append(bookingIDs, booking.ID)
	}
	require.NoError(t, h.gateway.Complete(txIDs[0], true))

	reconciler := NewPaymentReconciler(h.store, h.payments, "@every 1m", time.Minute, h.logger).
		WithClock(func() time.Time { return time.Now().Add(time.Hour) })

	settled, err := reconciler.ReconcileNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, settled)

	paid, _ := h.store.GetBooking(ctx, bookingIDs[0])
	assert.Equal(t, models.BookingStatusConfirmed, paid.Status)
	waiting, _ := h.store.GetPaymentByBookingID(ctx, bookingIDs[1])
	assert.Equal(t, models.PaymentStatusPending, waiting.Status, "no automatic timeout")

	require.NoError(t, reconciler.Start())
	reconciler.Stop()
}
