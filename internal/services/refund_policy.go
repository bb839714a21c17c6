package services

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

const (
	fullRefundAfter = 24 * 60 * 60 // seconds before departure
	halfRefundAfter = 12 * 60 * 60
)

var half = decimal.New(5, -1)

// ComputeRefund returns the refundable part of amountPaid for a cancellation at now.
//
//	more than 24h before departure:  100%
//	more than 12h, at most 24h:       50%
//	12h or less:                      ErrRefundWindowExpired
func ComputeRefund(amountPaid decimal.Decimal, departure, now time.Time) (decimal.Decimal, error) {
	delta := int64(departure.Sub(now) / time.Second)

	switch {
	case delta > fullRefundAfter:
		return amountPaid, nil
	case delta > halfRefundAfter:
		return amountPaid.Mul(half), nil
	default:
		return decimal.Zero, models.ErrRefundWindowExpired
	}
}
