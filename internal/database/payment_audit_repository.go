package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

// PaymentAuditRepository handles payment audit operations
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{
		db:     db,
		logger: logger,
	}
}

// Log appends a payment audit entry
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now().UTC()
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO payment_audits (
			id, payment_id, booking_id, transaction_id,
			event_type, event_source, amount, payment_status, error_message,
			user_id, ip_address, user_agent, device_type, platform, browser,
			created_at
		) VALUES (
			:id, :payment_id, :booking_id, :transaction_id,
			:event_type, :event_source, :amount, :payment_status, :error_message,
			:user_id, :ip_address, :user_agent, :device_type, :platform, :browser,
			:created_at
		)`, audit)
	if err != nil {
		r.logger.WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"error":      err.Error(),
		}).Error("Failed to write payment audit entry")
		return fmt.Errorf("failed to write payment audit: %w", err)
	}
	return nil
}

// ListByBookingID returns the audit trail of a booking, oldest first
func (r *PaymentAuditRepository) ListByBookingID(ctx context.Context, bookingID uuid.UUID) ([]models.PaymentAudit, error) {
	audits := []models.PaymentAudit{}
	err := r.db.SelectContext(ctx, &audits, `
		SELECT id, payment_id, booking_id, transaction_id,
		       event_type, event_source, amount, payment_status, error_message,
		       user_id, ip_address, user_agent, device_type, platform, browser,
		       created_at
		FROM payment_audits
		WHERE booking_id = $1
		ORDER BY created_at`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payment audits: %w", err)
	}
	return audits, nil
}
