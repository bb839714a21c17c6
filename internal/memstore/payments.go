package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

// GetPaymentByBookingID returns the payment of a booking
func (s *Store) GetPaymentByBookingID(_ context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.paymentByBooking[bookingID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePayment(s.payments[id]), nil
}

// GetPaymentByTransactionID returns the payment holding a gateway transaction id
func (s *Store) GetPaymentByTransactionID(_ context.Context, transactionID string) (*models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.paymentByTx[transactionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clonePayment(s.payments[id]), nil
}

// ListPendingPayments returns pending payments with a transaction id last touched before olderThan
func (s *Store) ListPendingPayments(_ context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	s.mu.RLock()
	pending := []models.Payment{}
	for _, p := range s.payments {
		if p.Status == models.PaymentStatusPending && p.TransactionID != nil && p.UpdatedAt.Before(olderThan) {
			pending = append(pending, *clonePayment(p))
		}
	}
	s.mu.RUnlock()

	sort.Slice(pending, func(i, j int) bool { return pending[i].UpdatedAt.Before(pending[j].UpdatedAt) })
	return paginate(pending, limit, 0), nil
}

// SavePendingPayment records a new pending attempt for a pending booking.
// A failed attempt is reused in place; any other existing payment blocks.
func (s *Store) SavePendingPayment(_ context.Context, p *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bookings[p.BookingID]
	if !ok {
		return models.ErrNotFound
	}
	if b.Status != models.BookingStatusPending {
		return models.InvalidStateError("booking is %s", b.Status)
	}

	now := s.now()
	if existingID, ok := s.paymentByBooking[p.BookingID]; ok {
		existing := s.payments[existingID]
		if existing.Status.BlocksNewAttempt() {
			return models.InvalidStateError("booking already has a %s payment", existing.Status)
		}
		if existing.TransactionID != nil {
			delete(s.paymentByTx, *existing.TransactionID)
		}
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.CreatedAt = now
	}

	p.Status = models.PaymentStatusPending
	p.PaymentDate = nil
	p.UpdatedAt = now

	s.payments[p.ID] = clonePayment(p)
	s.paymentByBooking[p.BookingID] = p.ID
	if p.TransactionID != nil {
		s.paymentByTx[*p.TransactionID] = p.ID
	}
	return nil
}

// CompletePayment marks a pending payment completed and confirms a still pending booking
func (s *Store) CompletePayment(_ context.Context, paymentID uuid.UUID, paidAt time.Time) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if p.Status == models.PaymentStatusCompleted {
		return clonePayment(p), nil
	}
	if !p.Status.CanTransitionTo(models.PaymentStatusCompleted) {
		return nil, models.InvalidStateError("payment is %s", p.Status)
	}

	now := s.now()
	p.Status = models.PaymentStatusCompleted
	p.PaymentDate = &paidAt
	p.UpdatedAt = now

	if b := s.bookings[p.BookingID]; b.Status.CanTransitionTo(models.BookingStatusConfirmed) {
		b.Status = models.BookingStatusConfirmed
		b.UpdatedAt = now
	}
	return clonePayment(p), nil
}

// FailPayment marks a pending payment failed
func (s *Store) FailPayment(_ context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if p.Status == models.PaymentStatusFailed {
		return clonePayment(p), nil
	}
	if !p.Status.CanTransitionTo(models.PaymentStatusFailed) {
		return nil, models.InvalidStateError("payment is %s", p.Status)
	}
	p.Status = models.PaymentStatusFailed
	p.UpdatedAt = s.now()
	return clonePayment(p), nil
}

// ClaimRefund moves a completed payment to refunding
func (s *Store) ClaimRefund(_ context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	switch {
	case p.IsRefunded():
		return nil, models.ErrAlreadyRefunded
	case p.Status == models.PaymentStatusRefunding:
		return nil, models.ErrRefundInProgress
	case !p.Status.CanTransitionTo(models.PaymentStatusRefunding):
		return nil, models.InvalidStateError("payment is %s", p.Status)
	}
	p.Status = models.PaymentStatusRefunding
	p.UpdatedAt = s.now()
	return clonePayment(p), nil
}

// ReleaseRefundClaim returns a refunding payment to completed. Other statuses are left alone.
func (s *Store) ReleaseRefundClaim(_ context.Context, paymentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return models.ErrNotFound
	}
	if p.Status == models.PaymentStatusRefunding {
		p.Status = models.PaymentStatusCompleted
		p.UpdatedAt = s.now()
	}
	return nil
}

// RecordRefund writes the refund fields once and moves a claimed payment to refunded
func (s *Store) RecordRefund(_ context.Context, paymentID uuid.UUID, rec models.RefundRecord) (*models.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if p.IsRefunded() {
		return nil, models.ErrAlreadyRefunded
	}
	if !p.Status.CanTransitionTo(models.PaymentStatusRefunded) {
		return nil, models.InvalidStateError("payment is %s", p.Status)
	}
	if rec.Amount.IsNegative() || rec.Amount.GreaterThan(p.Amount) {
		return nil, models.InvalidStateError("refund %s exceeds paid amount %s", rec.Amount, p.Amount)
	}

	amount, refundedAt, refundTx := rec.Amount, rec.RefundedAt, rec.TransactionID
	p.Status = models.PaymentStatusRefunded
	p.RefundAmount = &amount
	p.RefundDate = &refundedAt
	p.RefundTransactionID = &refundTx
	p.UpdatedAt = s.now()
	return clonePayment(p), nil
}

// Log appends a payment audit entry
func (s *Store) Log(_ context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, *audit)
	return nil
}

// ListByBookingID returns the audit trail of a booking, oldest first
func (s *Store) ListByBookingID(_ context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	audits := []models.PaymentAudit{}
	for _, a := range s.audits {
		if a.BookingID != nil && *a.BookingID == bookingID {
			audits = append(audits, a)
		}
	}
	return audits, nil
}
