package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/middleware"
	"github.com/smarttransit/ticketing-backend/internal/models"
	"github.com/smarttransit/ticketing-backend/internal/services"
	"github.com/smarttransit/ticketing-backend/internal/utils"
)

// PaymentHandler handles payment endpoints and the gateway callback
type PaymentHandler struct {
	payments *services.PaymentService
	logger   *logrus.Logger
}

// NewPaymentHandler creates a new PaymentHandler
func NewPaymentHandler(payments *services.PaymentService, logger *logrus.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, logger: logger}
}

// clientMeta captures the caller address and user agent for payment audits
func clientMeta(c *gin.Context) models.ClientMeta {
	meta := models.ClientMeta{
		IPAddress: utils.GetRealIP(c),
		UserAgent: utils.GetUserAgent(c),
	}
	if userCtx, ok := middleware.GetUserContext(c); ok {
		meta.UserID = &userCtx.UserID
	}
	return meta
}

// ============================================================================
// CREATE PAYMENT - POST /api/v1/payments
// ============================================================================

// CreatePayment opens a gateway transaction for a pending booking
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}

	intent, err := h.payments.CreatePaymentIntent(c.Request.Context(), userCtx.UserID, &req, clientMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, intent)
}

// ============================================================================
// CALLBACK - POST /api/v1/payments/callback
// ============================================================================

// Callback re-checks a transaction the gateway reports on. The posted status is only a hint.
func (h *PaymentHandler) Callback(c *gin.Context) {
	var req models.PaymentCallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}

	h.logger.WithFields(logrus.Fields{
		"transaction_id": req.TransactionID,
		"status":         req.Status,
	}).Info("Payment callback received")

	payment, err := h.payments.HandleCallback(c.Request.Context(), &req, clientMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Callback processed",
		"payment": payment,
	})
}

// ============================================================================
// VERIFY - POST /api/v1/payments/:transaction_id/verify
// ============================================================================

// VerifyPayment asks the gateway for the transaction outcome and settles it
func (h *PaymentHandler) VerifyPayment(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	transactionID := c.Param("transaction_id")
	if transactionID == "" {
		respondBadRequest(c, "transaction_id is required")
		return
	}

	payment, err := h.payments.VerifyPayment(c.Request.Context(), &userCtx.UserID, transactionID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}

// ============================================================================
// ADMIN - GET /api/v1/admin/bookings/:id/payment-audits
// ============================================================================

// ListAudits returns the payment event trail of a booking
func (h *PaymentHandler) ListAudits(c *gin.Context) {
	bookingID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	audits, err := h.payments.ListAudits(c.Request.Context(), bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"booking_id": bookingID,
		"audits":     audits,
	})
}
