package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/middleware"
	"github.com/smarttransit/ticketing-backend/internal/models"
)

type errorKind struct {
	target error
	status int
	kind   string
	code   string
}

// errorKinds is checked in order; the first match wins
var errorKinds = []errorKind{
	{models.ErrValidation, http.StatusBadRequest, "validation_error", "VALIDATION_ERROR"},
	{models.ErrNotFound, http.StatusNotFound, "not_found", "NOT_FOUND"},
	{models.ErrSeatConflict, http.StatusConflict, "seat_conflict", "SEAT_CONFLICT"},
	{models.ErrCapacityConflict, http.StatusConflict, "capacity_conflict", "CAPACITY_CONFLICT"},
	{models.ErrDuplicateLicensePlate, http.StatusConflict, "conflict", "DUPLICATE_LICENSE_PLATE"},
	{models.ErrAlreadyRefunded, http.StatusConflict, "already_refunded", "ALREADY_REFUNDED"},
	{models.ErrInvalidState, http.StatusConflict, "invalid_state", "INVALID_STATE"},
	{models.ErrRefundWindowExpired, http.StatusUnprocessableEntity, "refund_window_expired", "REFUND_WINDOW_EXPIRED"},
	{models.ErrGateway, http.StatusBadGateway, "gateway_error", "GATEWAY_ERROR"},
}

// respondError writes the JSON error body for err
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	for _, k := range errorKinds {
		if !errors.Is(err, k.target) {
			continue
		}
		body := gin.H{"error": k.kind, "message": err.Error(), "code": k.code}

		var seatErr *models.SeatConflictError
		if errors.As(err, &seatErr) {
			body["seat_id"] = seatErr.SeatID
		}
		var valErr *models.ValidationError
		if errors.As(err, &valErr) && valErr.Field != "" {
			body["field"] = valErr.Field
		}

		if k.status >= http.StatusInternalServerError {
			logger.WithError(err).WithField("path", c.FullPath()).Error("Upstream failure")
		}
		c.JSON(k.status, body)
		return
	}

	logger.WithError(err).WithField("path", c.FullPath()).Error("Unhandled error")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "An unexpected error occurred",
		"code":    "INTERNAL_ERROR",
	})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "invalid_request",
		"message": message,
		"code":    "INVALID_REQUEST",
	})
}

// paramUUID parses a uuid path parameter, writing a 400 on failure
func paramUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondBadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// currentUser returns the authenticated caller, writing a 401 when missing
func currentUser(c *gin.Context) (middleware.UserContext, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "user not authenticated",
			"code":    "MISSING_USER_CONTEXT",
		})
		return middleware.UserContext{}, false
	}
	return userCtx, true
}
