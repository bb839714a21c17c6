package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds surfaced by the booking core. Handlers map each kind to a
// distinct HTTP status so clients can tell them apart.
var (
	ErrNotFound              = errors.New("not found")
	ErrSeatConflict          = errors.New("seat conflict")
	ErrCapacityConflict      = errors.New("capacity conflict")
	ErrInvalidState          = errors.New("invalid state")
	ErrAlreadyRefunded       = errors.New("already refunded")
	ErrRefundWindowExpired   = errors.New("refund window expired")
	ErrGateway               = errors.New("payment gateway error")
	ErrDuplicateBookingCode  = errors.New("duplicate booking code")
	ErrDuplicateLicensePlate = errors.New("duplicate license plate")
	ErrValidation            = errors.New("validation failed")
)

// ErrRefundInProgress is returned while another request holds the refund claim
var ErrRefundInProgress = fmt.Errorf("%w: refund already in progress", ErrInvalidState)

// SeatConflictError identifies the first seat that could not be reserved.
type SeatConflictError struct {
	SeatID uuid.UUID
	Reason string
}

func (e *SeatConflictError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("seat %s is not available", e.SeatID)
	}
	return fmt.Sprintf("seat %s is not available: %s", e.SeatID, e.Reason)
}

func (e *SeatConflictError) Unwrap() error { return ErrSeatConflict }

// GatewayError wraps a failed call to the external payment processor.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("payment gateway %s failed: %v", e.Op, e.Err)
}

// Is reports ErrGateway so callers can match on the kind.
func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

func (e *GatewayError) Unwrap() error { return e.Err }

// ValidationError carries a human readable reason for a rejected request.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InvalidStateError reports an operation that is illegal for the entity's status.
func InvalidStateError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
