package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventInitiated        PaymentEventType = "payment_initiated"
	PaymentEventGatewayError     PaymentEventType = "gateway_error"
	PaymentEventCallbackReceived PaymentEventType = "callback_received"
	PaymentEventVerified         PaymentEventType = "payment_verified"
	PaymentEventSuccess          PaymentEventType = "payment_success"
	PaymentEventFailed           PaymentEventType = "payment_failed"
	PaymentEventBookingConfirmed PaymentEventType = "booking_confirmed"
	PaymentEventRefundRejected   PaymentEventType = "refund_rejected"
	PaymentEventRefundCompleted  PaymentEventType = "refund_completed"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceUser     PaymentEventSource = "user"
	PaymentSourceCallback PaymentEventSource = "gateway_callback"
	PaymentSourceGateway  PaymentEventSource = "gateway_api"
	PaymentSourceSystem   PaymentEventSource = "system"
)

// PaymentAudit is an append-only record of one payment event
type PaymentAudit struct {
	ID            uuid.UUID          `json:"id" db:"id"`
	PaymentID     *uuid.UUID         `json:"payment_id,omitempty" db:"payment_id"`
	BookingID     *uuid.UUID         `json:"booking_id,omitempty" db:"booking_id"`
	TransactionID *string            `json:"transaction_id,omitempty" db:"transaction_id"`
	EventType     PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource   PaymentEventSource `json:"event_source" db:"event_source"`
	Amount        *decimal.Decimal   `json:"amount,omitempty" db:"amount"`
	PaymentStatus *string            `json:"payment_status,omitempty" db:"payment_status"`
	ErrorMessage  *string            `json:"error_message,omitempty" db:"error_message"`

	// Client metadata
	UserID     *uuid.UUID `json:"user_id,omitempty" db:"user_id"`
	IPAddress  *string    `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent  *string    `json:"user_agent,omitempty" db:"user_agent"`
	DeviceType *string    `json:"device_type,omitempty" db:"device_type"`
	Platform   *string    `json:"platform,omitempty" db:"platform"`
	Browser    *string    `json:"browser,omitempty" db:"browser"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now().UTC(),
	}
}

// ForPayment attaches the payment, booking and transaction identifiers
func (pa *PaymentAudit) ForPayment(p *Payment) *PaymentAudit {
	if p == nil {
		return pa
	}
	id, bookingID := p.ID, p.BookingID
	pa.PaymentID = &id
	pa.BookingID = &bookingID
	if p.TransactionID != nil {
		tx := *p.TransactionID
		pa.TransactionID = &tx
	}
	status := string(p.Status)
	pa.PaymentStatus = &status
	return pa
}

// SetBooking sets the booking id when no payment row exists yet
func (pa *PaymentAudit) SetBooking(bookingID uuid.UUID) *PaymentAudit {
	pa.BookingID = &bookingID
	return pa
}

// SetTransaction sets the gateway transaction id
func (pa *PaymentAudit) SetTransaction(txID string) *PaymentAudit {
	if txID != "" {
		pa.TransactionID = &txID
	}
	return pa
}

// SetAmount records the amount involved in the event
func (pa *PaymentAudit) SetAmount(amount decimal.Decimal) *PaymentAudit {
	pa.Amount = &amount
	return pa
}

// SetError sets error information
func (pa *PaymentAudit) SetError(err error) *PaymentAudit {
	if err != nil {
		msg := err.Error()
		pa.ErrorMessage = &msg
	}
	return pa
}

// SetClient records who triggered the event
func (pa *PaymentAudit) SetClient(meta ClientMeta) *PaymentAudit {
	pa.UserID = meta.UserID
	if meta.IPAddress != "" {
		ip := meta.IPAddress
		pa.IPAddress = &ip
	}
	if meta.UserAgent != "" {
		ua := meta.UserAgent
		pa.UserAgent = &ua
	}
	return pa
}

// SetDevice records the parsed user agent
func (pa *PaymentAudit) SetDevice(deviceType, platform, browser string) *PaymentAudit {
	if deviceType != "" {
		pa.DeviceType = &deviceType
	}
	if platform != "" {
		pa.Platform = &platform
	}
	if browser != "" {
		pa.Browser = &browser
	}
	return pa
}
