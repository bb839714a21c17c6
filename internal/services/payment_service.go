package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/config"
	"github.com/smarttransit/ticketing-backend/internal/models"
	"github.com/smarttransit/ticketing-backend/internal/utils"
	"github.com/smarttransit/ticketing-backend/pkg/gateway"
)

// PaymentService moves a booking's payment through pending, completed,
// failed and refunded, keeping the booking status in step
type PaymentService struct {
	bookings BookingStore
	trips    TripStore
	payments PaymentStore
	audits   PaymentAuditLog
	gateway  gateway.Gateway
	config   config.PaymentConfig
	logger   *logrus.Logger
	locks    *keyedMutex
	now      func() time.Time
}

// NewPaymentService creates a payment orchestrator
func NewPaymentService(
	bookings BookingStore,
	trips TripStore,
	payments PaymentStore,
	audits PaymentAuditLog,
	gw gateway.Gateway,
	cfg config.PaymentConfig,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		bookings: bookings,
		trips:    trips,
		payments: payments,
		audits:   audits,
		gateway:  gw,
		config:   cfg,
		logger:   logger,
		locks:    newKeyedMutex(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the service clock
func (s *PaymentService) WithClock(now func() time.Time) *PaymentService {
	s.now = now
	return s
}

// CreatePaymentIntent opens a gateway transaction for a pending booking and
// records the pending payment. No payment row is written when the gateway fails.
func (s *PaymentService) CreatePaymentIntent(ctx context.Context, userID uuid.UUID, req *models.CreatePaymentRequest, meta models.ClientMeta) (*models.PaymentIntent, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(req.BookingID)
	defer unlock()

	booking, err := s.ownedBooking(ctx, userID, req.BookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusPending {
		return nil, models.InvalidStateError("booking is %s", booking.Status)
	}

	existing, err := s.payments.GetPaymentByBookingID(ctx, booking.ID)
	switch {
	case err == nil && existing.Status.BlocksNewAttempt():
		return nil, models.InvalidStateError("booking already has a %s payment", existing.Status)
	case err != nil && !errors.Is(err, models.ErrNotFound):
		return nil, err
	}

	created, err := s.gateway.CreatePayment(ctx, booking.TotalPrice, "Booking "+booking.BookingCode, s.config.ReturnURL)
	if err != nil {
		gwErr := &models.GatewayError{Op: "create_payment", Err: err}
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventGatewayError, models.PaymentSourceGateway).
			SetBooking(booking.ID).SetAmount(booking.TotalPrice).SetError(err), &meta)
		s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Gateway rejected payment creation")
		return nil, gwErr
	}

	txID := created.TransactionID
	payment := &models.Payment{
		ID:            uuid.New(),
		BookingID:     booking.ID,
		Amount:        booking.TotalPrice,
		PaymentMethod: req.PaymentMethod,
		TransactionID: &txID,
	}
	if err := s.payments.SavePendingPayment(ctx, payment); err != nil {
		return nil, err
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventInitiated, models.PaymentSourceUser).
		ForPayment(payment).SetAmount(payment.Amount), &meta)

	s.logger.WithFields(logrus.Fields{
		"booking_id":     booking.ID,
		"payment_id":     payment.ID,
		"transaction_id": txID,
		"amount":         payment.Amount.String(),
	}).Info("Payment intent created")

	return &models.PaymentIntent{
		PaymentID:     payment.ID,
		TransactionID: txID,
		PaymentURL:    created.PaymentURL,
		Amount:        payment.Amount,
	}, nil
}

// HandleCallback treats a posted callback as a hint to re-check the transaction.
// The callback is unauthenticated, so only the gateway's own verdict settles the payment.
func (s *PaymentService) HandleCallback(ctx context.Context, req *models.PaymentCallbackRequest, meta models.ClientMeta) (*models.Payment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	known, err := s.payments.GetPaymentByTransactionID(ctx, req.TransactionID)
	entry := models.NewPaymentAudit(models.PaymentEventCallbackReceived, models.PaymentSourceCallback).
		SetTransaction(req.TransactionID)
	if err == nil {
		entry.ForPayment(known)
	}
	// payment_status holds the status the caller claimed
	claimed := string(req.Status)
	entry.PaymentStatus = &claimed
	s.audit(ctx, entry, &meta)
	if err != nil {
		return nil, err
	}

	payment, err := s.VerifyPayment(ctx, nil, req.TransactionID)
	if err != nil {
		return nil, err
	}
	if req.Status == models.OutcomeSuccess && payment.Status == models.PaymentStatusPending {
		s.logger.WithFields(logrus.Fields{
			"transaction_id": req.TransactionID,
			"ip":             meta.IPAddress,
		}).Warn("Callback reported success but the gateway has not settled the transaction")
	}
	return payment, nil
}

// SettlePayment applies a settlement outcome. Success completes the payment
// and confirms a pending booking in one unit; failure only fails the payment;
// pending changes nothing.
func (s *PaymentService) SettlePayment(ctx context.Context, transactionID string, outcome models.SettlementOutcome, source models.PaymentEventSource) (*models.Payment, error) {
	if !outcome.IsValid() {
		return nil, &models.ValidationError{Field: "status", Message: "must be one of success, failed, pending"}
	}

	payment, err := s.payments.GetPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(payment.BookingID)
	defer unlock()

	fields := logrus.Fields{
		"payment_id":     payment.ID,
		"booking_id":     payment.BookingID,
		"transaction_id": transactionID,
		"outcome":        outcome,
	}

	switch outcome {
	case models.OutcomeSuccess:
		payment, err = s.payments.CompletePayment(ctx, payment.ID, s.now())
		if err != nil {
			return nil, err
		}
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventSuccess, source).
			ForPayment(payment).SetAmount(payment.Amount), nil)

		if booking, err := s.bookings.GetBooking(ctx, payment.BookingID); err == nil && booking.Status == models.BookingStatusConfirmed {
			s.audit(ctx, models.NewPaymentAudit(models.PaymentEventBookingConfirmed, models.PaymentSourceSystem).
				ForPayment(payment), nil)
		}
		s.logger.WithFields(fields).Info("Payment completed")

	case models.OutcomeFailure:
		payment, err = s.payments.FailPayment(ctx, payment.ID)
		if err != nil {
			return nil, err
		}
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventFailed, source).ForPayment(payment), nil)
		s.logger.WithFields(fields).Info("Payment failed")

	case models.OutcomePending:
		s.logger.WithFields(fields).Debug("Payment still pending")
	}

	return payment, nil
}

// VerifyPayment polls the gateway for a transaction and settles the payment
// with the reported outcome. A nil userID skips the ownership check.
func (s *PaymentService) VerifyPayment(ctx context.Context, userID *uuid.UUID, transactionID string) (*models.Payment, error) {
	payment, err := s.payments.GetPaymentByTransactionID(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if userID != nil {
		if _, err := s.ownedBooking(ctx, *userID, payment.BookingID); err != nil {
			return nil, err
		}
	}

	verified, err := s.gateway.VerifyPayment(ctx, transactionID)
	if err != nil {
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventGatewayError, models.PaymentSourceGateway).
			ForPayment(payment).SetError(err), nil)
		return nil, &models.GatewayError{Op: "verify_payment", Err: err}
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventVerified, models.PaymentSourceGateway).
		ForPayment(payment).SetAmount(verified.Amount), nil)

	if payment.Status != models.PaymentStatusPending {
		return payment, nil
	}
	switch verified.Status {
	case gateway.StatusSuccess:
		return s.SettlePayment(ctx, transactionID, models.OutcomeSuccess, models.PaymentSourceGateway)
	case gateway.StatusFailed:
		return s.SettlePayment(ctx, transactionID, models.OutcomeFailure, models.PaymentSourceGateway)
	default:
		return payment, nil
	}
}

// Refund returns the policy amount of a completed payment after its booking
// was cancelled. The refund fields are written once.
func (s *PaymentService) Refund(ctx context.Context, userID, bookingID uuid.UUID, meta models.ClientMeta) (*models.Payment, error) {
	unlock := s.locks.Lock(bookingID)
	defer unlock()

	booking, err := s.ownedBooking(ctx, userID, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Status != models.BookingStatusCancelled {
		return nil, models.InvalidStateError("booking is %s, cancel it before requesting a refund", booking.Status)
	}

	payment, err := s.payments.GetPaymentByBookingID(ctx, bookingID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, models.InvalidStateError("booking has no payment to refund")
	}
	if err != nil {
		return nil, err
	}
	switch {
	case payment.IsRefunded():
		return nil, models.ErrAlreadyRefunded
	case payment.Status == models.PaymentStatusRefunding:
		return nil, models.ErrRefundInProgress
	case payment.Status != models.PaymentStatusCompleted:
		return nil, models.InvalidStateError("payment is %s", payment.Status)
	}

	trip, err := s.trips.GetTrip(ctx, booking.TripID)
	if err != nil {
		return nil, fmt.Errorf("trip %s: %w", booking.TripID, err)
	}

	now := s.now()
	amount, err := ComputeRefund(payment.Amount, trip.DepartureAt, now)
	if err != nil {
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventRefundRejected, models.PaymentSourceUser).
			ForPayment(payment).SetError(err), &meta)
		return nil, err
	}

	// The claim is taken in the shared store before the gateway is called, so
	// another replica racing on the same payment stops here.
	payment, err = s.payments.ClaimRefund(ctx, payment.ID)
	if err != nil {
		return nil, err
	}

	result, err := s.gateway.ProcessRefund(ctx, payment.TxID(), amount)
	if err == nil && result.Status != gateway.RefundSuccess {
		err = fmt.Errorf("refund declined: %s", result.Message)
	}
	if err != nil {
		s.audit(ctx, models.NewPaymentAudit(models.PaymentEventGatewayError, models.PaymentSourceGateway).
			ForPayment(payment).SetAmount(amount).SetError(err), &meta)
		s.logger.WithError(err).WithField("booking_id", bookingID).Error("Gateway refund failed")
		if releaseErr := s.payments.ReleaseRefundClaim(context.WithoutCancel(ctx), payment.ID); releaseErr != nil {
			s.logger.WithError(releaseErr).WithField("payment_id", payment.ID).Error("Failed to release refund claim")
		}
		return nil, &models.GatewayError{Op: "process_refund", Err: err}
	}

	refunded, err := s.payments.RecordRefund(ctx, payment.ID, models.RefundRecord{
		Amount:        amount,
		TransactionID: result.RefundID,
		RefundedAt:    now,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": bookingID,
			"refund_id":  result.RefundID,
		}).Error("Gateway refunded but the refund could not be recorded")
		return nil, err
	}

	s.audit(ctx, models.NewPaymentAudit(models.PaymentEventRefundCompleted, models.PaymentSourceUser).
		ForPayment(refunded).SetAmount(amount), &meta)

	s.logger.WithFields(logrus.Fields{
		"booking_id":    bookingID,
		"payment_id":    refunded.ID,
		"refund_amount": amount.String(),
		"refund_id":     result.RefundID,
	}).Info("Refund completed")
	return refunded, nil
}

// GetPayment returns the payment of a booking owned by userID
func (s *PaymentService) GetPayment(ctx context.Context, userID, bookingID uuid.UUID) (*models.Payment, error) {
	if _, err := s.ownedBooking(ctx, userID, bookingID); err != nil {
		return nil, err
	}
	return s.payments.GetPaymentByBookingID(ctx, bookingID)
}

// ListAudits returns the payment event trail of a booking
func (s *PaymentService) ListAudits(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	return s.audits.ListByBookingID(ctx, bookingID)
}

func (s *PaymentService) ownedBooking(ctx context.Context, userID, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.UserID != userID {
		return nil, models.ErrNotFound
	}
	return booking, nil
}

// audit writes a payment audit row. Failures are logged and never fail the payment.
func (s *PaymentService) audit(ctx context.Context, entry *models.PaymentAudit, meta *models.ClientMeta) {
	if s.audits == nil {
		return
	}
	if meta != nil {
		entry.SetClient(*meta)
		if meta.UserAgent != "" {
			device := utils.ParseUserAgent(meta.UserAgent)
			entry.SetDevice(device.DeviceType, device.Platform, device.Browser)
		}
	}
	if err := s.audits.Log(ctx, entry); err != nil {
		s.logger.WithError(err).WithField("event_type", entry.EventType).Warn("Failed to write payment audit")
	}
}
