package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/models"
	"github.com/smarttransit/ticketing-backend/internal/services"
)

// TripHandler handles trip catalog endpoints
type TripHandler struct {
	catalog *services.TripCatalogService
	logger  *logrus.Logger
}

// NewTripHandler creates a new TripHandler
func NewTripHandler(catalog *services.TripCatalogService, logger *logrus.Logger) *TripHandler {
	return &TripHandler{catalog: catalog, logger: logger}
}

// ============================================================================
// PUBLIC
// ============================================================================

// ListTrips returns trips filtered by route and departure date
// GET /api/v1/trips?route_id=&date=YYYY-MM-DD&limit=&offset=
func (h *TripHandler) ListTrips(c *gin.Context) {
	var filter models.TripFilter

	if raw := c.Query("route_id"); raw != "" {
		routeID, err := uuid.Parse(raw)
		if err != nil {
			respondBadRequest(c, "invalid route_id")
			return
		}
		filter.RouteID = &routeID
	}
	if raw := c.Query("date"); raw != "" {
		date, err := time.Parse("2006-01-02", raw)
		if err != nil {
			respondBadRequest(c, "invalid date, expected YYYY-MM-DD")
			return
		}
		filter.Date = &date
	}
	filter.Limit, _ = strconv.Atoi(c.DefaultQuery("limit", "50"))
	filter.Offset, _ = strconv.Atoi(c.DefaultQuery("offset", "0"))

	trips, err := h.catalog.ListTrips(c.Request.Context(), filter)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trips": trips,
		"count": len(trips),
	})
}

// GetTrip returns one trip
// GET /api/v1/trips/:id
func (h *TripHandler) GetTrip(c *gin.Context) {
	tripID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	trip, err := h.catalog.GetTrip(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// ListSeats returns every seat of a trip with its booked flag
// GET /api/v1/trips/:id/seats
func (h *TripHandler) ListSeats(c *gin.Context) {
	tripID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	seats, err := h.catalog.ListSeats(c.Request.Context(), tripID)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	available := 0
	for _, s := range seats {
		if !s.Booked {
			available++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"trip_id":         tripID,
		"seats":           seats,
		"total_seats":     len(seats),
		"available_seats": available,
	})
}

// ============================================================================
// ADMIN
// ============================================================================

// CreateTrip schedules a trip and provisions its seats
// POST /api/v1/admin/trips
func (h *TripHandler) CreateTrip(c *gin.Context) {
	var req models.CreateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}

	trip, err := h.catalog.CreateTrip(c.Request.Context(), &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, trip)
}

// UpdateTrip changes a trip's name or status
// PUT /api/v1/admin/trips/:id
func (h *TripHandler) UpdateTrip(c *gin.Context) {
	tripID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req models.UpdateTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}

	trip, err := h.catalog.UpdateTrip(c.Request.Context(), tripID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}

// ResizeCapacity grows or shrinks the seat inventory of a trip
// PUT /api/v1/admin/trips/:id/capacity
func (h *TripHandler) ResizeCapacity(c *gin.Context) {
	tripID, ok := paramUUID(c, "id")
	if !ok {
		return
	}

	var req models.ResizeCapacityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "invalid request: "+err.Error())
		return
	}

	trip, err := h.catalog.ResizeCapacity(c.Request.Context(), tripID, &req)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, trip)
}
