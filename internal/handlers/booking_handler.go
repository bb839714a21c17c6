package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/models"
	"github.com/smarttransit/ticketing-backend/internal/services"
)

// BookingHandler handles passenger booking endpoints
type BookingHandler struct {
	bookings *services.BookingService
	payments *services.PaymentService
	logger   *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings *services.BookingService, payments *services.PaymentService, logger *logrus.Logger) *BookingHandler {
	return &BookingHandler{
		bookings: bookings,
		payments: payments,
		logger:   logger,
	}
}

// CreateBooking reserves seats on a trip for the caller
// POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), userCtx.UserID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// ListBookings returns the caller's bookings, newest first
// GET /api/v1/bookings?limit=&offset=
func (h *BookingHandler) ListBookings(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	bookings, err := h.bookings.ListUserBookings(c.Request.Context(), userCtx.UserID,
		models.BookingListParams{Limit: limit, Offset: offset})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"bookings": bookings,
		"count":    len(bookings),
	})
}

// GetBooking returns one of the caller's bookings
// GET /api/v1/bookings/:id
func (h *BookingHandler) GetBooking(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	bookingID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, booking)
}

// CancelBooking cancels a booking and frees its seats
// POST /api/v1/bookings/:id/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	bookingID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	booking, err := h.bookings.CancelBooking(c.Request.Context(), bookingID, userCtx.UserID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Booking cancelled successfully",
		"booking": booking,
	})
}

// RefundBooking refunds the payment of a cancelled booking
// POST /api/v1/bookings/:id/refund
func (h *BookingHandler) RefundBooking(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	bookingID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	payment, err := h.payments.Refund(c.Request.Context(), userCtx.UserID, bookingID, clientMeta(c))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":       "Refund processed successfully",
		"refund_amount": payment.RefundAmount,
		"payment":       payment,
	})
}

// GetBookingPayment returns the payment attached to one of the caller's bookings
// GET /api/v1/bookings/:id/payment
func (h *BookingHandler) GetBookingPayment(c *gin.Context) {
	userCtx, ok := currentUser(c)
	if !ok {
		return
	}
	bookingID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	payment, err := h.payments.GetPayment(c.Request.Context(), userCtx.UserID, bookingID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, payment)
}
