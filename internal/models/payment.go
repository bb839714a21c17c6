package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ============================================================================
// PAYMENT STATUS
// ============================================================================

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"

	// PaymentStatusRefunding marks a refund claimed by one request and not yet
	// answered by the gateway. Only ReleaseRefundClaim moves it back to completed.
	PaymentStatusRefunding PaymentStatus = "refunding"
)

var validPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunding},
	PaymentStatusRefunding: {PaymentStatusRefunded},
	PaymentStatusFailed:    {},
	PaymentStatusRefunded:  {},
}

// CanTransitionTo checks if a status change is allowed
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range validPaymentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BlocksNewAttempt reports whether a payment in this status prevents a new
// payment attempt for the same booking
func (s PaymentStatus) BlocksNewAttempt() bool {
	return s != PaymentStatusFailed
}

// SettlementOutcome is the processor's verdict on a transaction
type SettlementOutcome string

const (
	OutcomeSuccess SettlementOutcome = "success"
	OutcomeFailure SettlementOutcome = "failed"
	OutcomePending SettlementOutcome = "pending"
)

// IsValid checks if the outcome is one of the known values
func (o SettlementOutcome) IsValid() bool {
	switch o {
	case OutcomeSuccess, OutcomeFailure, OutcomePending:
		return true
	}
	return false
}

// ============================================================================
// PAYMENT (payments table)
// ============================================================================

// Payment is the monetary transaction tied 1:1 to a booking
type Payment struct {
	ID                  uuid.UUID        `json:"id" db:"id"`
	BookingID           uuid.UUID        `json:"booking_id" db:"booking_id"`
	Amount              decimal.Decimal  `json:"amount" db:"amount"`
	PaymentMethod       string           `json:"payment_method" db:"payment_method"`
	TransactionID       *string          `json:"transaction_id,omitempty" db:"transaction_id"`
	Status              PaymentStatus    `json:"status" db:"status"`
	PaymentDate         *time.Time       `json:"payment_date,omitempty" db:"payment_date"`
	RefundAmount        *decimal.Decimal `json:"refund_amount,omitempty" db:"refund_amount"`
	RefundDate          *time.Time       `json:"refund_date,omitempty" db:"refund_date"`
	RefundTransactionID *string          `json:"refund_transaction_id,omitempty" db:"refund_transaction_id"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// IsRefunded reports whether a refund has already been recorded
func (p *Payment) IsRefunded() bool {
	return p.RefundAmount != nil
}

// TxID returns the gateway transaction id or an empty string
func (p *Payment) TxID() string {
	if p.TransactionID == nil {
		return ""
	}
	return *p.TransactionID
}

// RefundRecord carries the fields written when a refund settles
type RefundRecord struct {
	Amount        decimal.Decimal
	TransactionID string
	RefundedAt    time.Time
}

// ============================================================================
// REQUEST / RESPONSE TYPES
// ============================================================================

// CreatePaymentRequest starts a payment for a pending booking
type CreatePaymentRequest struct {
	BookingID     uuid.UUID `json:"booking_id" binding:"required"`
	PaymentMethod string    `json:"payment_method" binding:"required"`
}

// Validate validates the payment request
func (r *CreatePaymentRequest) Validate() error {
	if r.BookingID == uuid.Nil {
		return invalid("booking_id", "is required")
	}
	if r.PaymentMethod == "" {
		return invalid("payment_method", "is required")
	}
	return nil
}

// PaymentIntent is returned to the client so it can be redirected to the processor
type PaymentIntent struct {
	PaymentID     uuid.UUID       `json:"payment_id"`
	TransactionID string          `json:"transaction_id"`
	PaymentURL    string          `json:"payment_url"`
	Amount        decimal.Decimal `json:"amount"`
}

// PaymentCallbackRequest is posted by the processor when a transaction settles
type PaymentCallbackRequest struct {
	TransactionID string            `json:"transaction_id" binding:"required"`
	Status        SettlementOutcome `json:"status" binding:"required"`
}

// Validate validates the callback payload
func (r *PaymentCallbackRequest) Validate() error {
	if r.TransactionID == "" {
		return invalid("transaction_id", "is required")
	}
	if !r.Status.IsValid() {
		return invalid("status", "must be one of success, failed, pending")
	}
	return nil
}

// ClientMeta identifies the client that triggered a payment event
type ClientMeta struct {
	IPAddress string
	UserAgent string
	UserID    *uuid.UUID
}
