// Package gateway defines the payment processor port used by the payment
// orchestrator and its two implementations: an in-memory simulator for
// development and tests, and a JSON-over-HTTP client for a hosted processor.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Status is the settlement state reported by the processor for a transaction
type Status string

const (
	StatusPending  Status = "pending"
	StatusSuccess  Status = "success"
	StatusFailed   Status = "failed"
	StatusRefunded Status = "refunded"
)

// RefundStatus is the outcome of a refund request
type RefundStatus string

const (
	RefundSuccess RefundStatus = "success"
	RefundError   RefundStatus = "error"
)

var (
	// ErrUnknownTransaction is returned when the processor has no record of a transaction id
	ErrUnknownTransaction = errors.New("unknown transaction")
	// ErrMalformedResponse is returned when a processor reply cannot be understood
	ErrMalformedResponse = errors.New("malformed gateway response")
)

// ResponseError carries a non-2xx reply from the processor
type ResponseError struct {
	StatusCode int
	Body       string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.StatusCode, e.Body)
}

// CreateResult is returned when a payment is opened with the processor
type CreateResult struct {
	TransactionID string `json:"transaction_id"`
	PaymentURL    string `json:"payment_url"`
	Status        Status `json:"status"`
}

// VerifyResult is the processor's view of a transaction
type VerifyResult struct {
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Status        Status          `json:"status"`
}

// RefundResult is the processor's answer to a refund request. Status is
// RefundError with a Message when the processor declined the refund.
type RefundResult struct {
	Status        RefundStatus    `json:"status"`
	RefundID      string          `json:"refund_id"`
	TransactionID string          `json:"transaction_id"`
	Amount        decimal.Decimal `json:"amount"`
	Message       string          `json:"message,omitempty"`
}

// Gateway is the external payment processor. Every call may fail and
// settlement is never assumed to be synchronous.
type Gateway interface {
	CreatePayment(ctx context.Context, amount decimal.Decimal, description, returnURL string) (*CreateResult, error)
	VerifyPayment(ctx context.Context, transactionID string) (*VerifyResult, error)
	ProcessRefund(ctx context.Context, transactionID string, amount decimal.Decimal) (*RefundResult, error)
}
