package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

const paymentColumns = `id, booking_id, amount, payment_method, transaction_id, status,
	payment_date, refund_amount, refund_date, refund_transaction_id, created_at, updated_at`

// PaymentRepository persists payments and applies their status transitions.
// Mutations lock the booking row before the payment row.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ============================================================================
// READS
// ============================================================================

// GetPaymentByBookingID returns the payment of a booking
func (r *PaymentRepository) GetPaymentByBookingID(ctx context.Context, bookingID uuid.UUID) (*models.Payment, error) {
	var p models.Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1`, bookingID)
	if err != nil {
		return nil, notFound(err, models.ErrNotFound)
	}
	return &p, nil
}

// GetPaymentByTransactionID returns the payment holding a gateway transaction id
func (r *PaymentRepository) GetPaymentByTransactionID(ctx context.Context, transactionID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE transaction_id = $1`, transactionID)
	if err != nil {
		return nil, notFound(err, models.ErrNotFound)
	}
	return &p, nil
}

// ListPendingPayments returns pending payments with a transaction id last touched before olderThan
func (r *PaymentRepository) ListPendingPayments(ctx context.Context, olderThan time.Time, limit int) ([]models.Payment, error) {
	payments := []models.Payment{}
	err := r.db.SelectContext(ctx, &payments, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE status = $1 AND transaction_id IS NOT NULL AND updated_at < $2
		ORDER BY updated_at
		LIMIT $3`,
		models.PaymentStatusPending, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	return payments, nil
}

// ============================================================================
// TRANSITIONS
// ============================================================================

// SavePendingPayment records a new pending attempt for a pending booking.
// A failed attempt is reused in place; a pending, completed or refunded one blocks.
func (r *PaymentRepository) SavePendingPayment(ctx context.Context, p *models.Payment) error {
	p.Status = models.PaymentStatusPending
	p.PaymentDate = nil

	return withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		bookingStatus, err := lockBookingStatus(ctx, tx, p.BookingID)
		if err != nil {
			return err
		}
		if bookingStatus != models.BookingStatusPending {
			return models.InvalidStateError("booking is %s", bookingStatus)
		}

		var existing models.Payment
		err = tx.GetContext(ctx, &existing,
			`SELECT `+paymentColumns+` FROM payments WHERE booking_id = $1 FOR UPDATE`, p.BookingID)
		switch notFound(err, models.ErrNotFound) {
		case nil:
			if existing.Status.BlocksNewAttempt() {
				return models.InvalidStateError("booking already has a %s payment", existing.Status)
			}
			p.ID = existing.ID
			return tx.QueryRowxContext(ctx, `
				UPDATE payments
				SET amount = $2, payment_method = $3, transaction_id = $4,
				    status = $5, payment_date = NULL, updated_at = NOW()
				WHERE id = $1
				RETURNING created_at, updated_at`,
				p.ID, p.Amount, p.PaymentMethod, p.TransactionID, p.Status,
			).Scan(&p.CreatedAt, &p.UpdatedAt)

		case models.ErrNotFound:
			if p.ID == uuid.Nil {
				p.ID = uuid.New()
			}
			err := tx.QueryRowxContext(ctx, `
				INSERT INTO payments (id, booking_id, amount, payment_method, transaction_id, status)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING created_at, updated_at`,
				p.ID, p.BookingID, p.Amount, p.PaymentMethod, p.TransactionID, p.Status,
			).Scan(&p.CreatedAt, &p.UpdatedAt)
			if isUniqueViolation(err, constraintPaymentBook) {
				return models.InvalidStateError("booking already has a payment")
			}
			if err != nil {
				return fmt.Errorf("failed to create payment: %w", err)
			}
			return nil

		default:
			return fmt.Errorf("failed to load existing payment: %w", err)
		}
	})
}

// CompletePayment marks a pending payment completed and confirms its booking in one
// transaction. A booking cancelled in the meantime stays cancelled. Completing an
// already completed payment returns it unchanged.
func (r *PaymentRepository) CompletePayment(ctx context.Context, paymentID uuid.UUID, paidAt time.Time) (*models.Payment, error) {
	var p *models.Payment
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var bookingStatus models.BookingStatus
		var err error
		p, bookingStatus, err = lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.Status == models.PaymentStatusCompleted {
			return nil
		}
		if !p.Status.CanTransitionTo(models.PaymentStatusCompleted) {
			return models.InvalidStateError("payment is %s", p.Status)
		}

		err = tx.QueryRowxContext(ctx, `
			UPDATE payments SET status = $2, payment_date = $3, updated_at = NOW()
			WHERE id = $1
			RETURNING updated_at`,
			paymentID, models.PaymentStatusCompleted, paidAt,
		).Scan(&p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to complete payment: %w", err)
		}
		p.Status = models.PaymentStatusCompleted
		p.PaymentDate = &paidAt

		if bookingStatus.CanTransitionTo(models.BookingStatusConfirmed) {
			if _, err := tx.ExecContext(ctx,
				`UPDATE bookings SET status = $2, updated_at = NOW() WHERE id = $1`,
				p.BookingID, models.BookingStatusConfirmed); err != nil {
				return fmt.Errorf("failed to confirm booking: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FailPayment marks a pending payment failed. The booking stays pending.
func (r *PaymentRepository) FailPayment(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	var p *models.Payment
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		p, _, err = lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.Status == models.PaymentStatusFailed {
			return nil
		}
		if !p.Status.CanTransitionTo(models.PaymentStatusFailed) {
			return models.InvalidStateError("payment is %s", p.Status)
		}

		err = tx.QueryRowxContext(ctx,
			`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING updated_at`,
			paymentID, models.PaymentStatusFailed,
		).Scan(&p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to fail payment: %w", err)
		}
		p.Status = models.PaymentStatusFailed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ClaimRefund moves a completed payment to refunding under the row lock, so
// concurrent refund requests on any replica see the claim.
func (r *PaymentRepository) ClaimRefund(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	var p *models.Payment
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		p, _, err = lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		switch {
		case p.IsRefunded():
			return models.ErrAlreadyRefunded
		case p.Status == models.PaymentStatusRefunding:
			return models.ErrRefundInProgress
		case !p.Status.CanTransitionTo(models.PaymentStatusRefunding):
			return models.InvalidStateError("payment is %s", p.Status)
		}

		err = tx.QueryRowxContext(ctx, `
			UPDATE payments SET status = $2, updated_at = NOW()
			WHERE id = $1 AND status = $3 AND refund_amount IS NULL
			RETURNING updated_at`,
			paymentID, models.PaymentStatusRefunding, models.PaymentStatusCompleted,
		).Scan(&p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to claim refund: %w", err)
		}
		p.Status = models.PaymentStatusRefunding
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ReleaseRefundClaim returns a refunding payment to completed after the gateway
// did not refund it. Other statuses are left alone.
func (r *PaymentRepository) ReleaseRefundClaim(ctx context.Context, paymentID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE payments SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3`,
		paymentID, models.PaymentStatusCompleted, models.PaymentStatusRefunding)
	if err != nil {
		return fmt.Errorf("failed to release refund claim: %w", err)
	}
	return nil
}

// RecordRefund writes the refund fields once and moves a claimed payment to refunded
func (r *PaymentRepository) RecordRefund(ctx context.Context, paymentID uuid.UUID, rec models.RefundRecord) (*models.Payment, error) {
	var p *models.Payment
	err := withTx(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		p, _, err = lockPayment(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if p.IsRefunded() {
			return models.ErrAlreadyRefunded
		}
		if !p.Status.CanTransitionTo(models.PaymentStatusRefunded) {
			return models.InvalidStateError("payment is %s", p.Status)
		}
		if rec.Amount.IsNegative() || rec.Amount.GreaterThan(p.Amount) {
			return models.InvalidStateError("refund %s exceeds paid amount %s", rec.Amount, p.Amount)
		}

		err = tx.QueryRowxContext(ctx, `
			UPDATE payments
			SET status = $2, refund_amount = $3, refund_date = $4,
			    refund_transaction_id = $5, updated_at = NOW()
			WHERE id = $1 AND refund_amount IS NULL
			RETURNING updated_at`,
			paymentID, models.PaymentStatusRefunded, rec.Amount, rec.RefundedAt, rec.TransactionID,
		).Scan(&p.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to record refund: %w", err)
		}

		amount, refundedAt, refundTx := rec.Amount, rec.RefundedAt, rec.TransactionID
		p.Status = models.PaymentStatusRefunded
		p.RefundAmount = &amount
		p.RefundDate = &refundedAt
		p.RefundTransactionID = &refundTx
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// lockPayment locks the owning booking and then the payment row
func lockPayment(ctx context.Context, tx *sqlx.Tx, paymentID uuid.UUID) (*models.Payment, models.BookingStatus, error) {
	var bookingID uuid.UUID
	if err := tx.GetContext(ctx, &bookingID, `SELECT booking_id FROM payments WHERE id = $1`, paymentID); err != nil {
		return nil, "", notFound(err, models.ErrNotFound)
	}

	bookingStatus, err := lockBookingStatus(ctx, tx, bookingID)
	if err != nil {
		return nil, "", err
	}

	var p models.Payment
	if err := tx.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE id = $1 FOR UPDATE`, paymentID); err != nil {
		return nil, "", notFound(err, models.ErrNotFound)
	}
	return &p, bookingStatus, nil
}
