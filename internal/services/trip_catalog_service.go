package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/smarttransit/ticketing-backend/internal/models"
)

// TripCatalogService is the read-mostly registry of trips and their seats
type TripCatalogService struct {
	store  TripStore
	cache  TripCache
	logger *logrus.Logger
}

// NewTripCatalogService creates a trip catalog. cache may be nil.
func NewTripCatalogService(store TripStore, cache TripCache, logger *logrus.Logger) *TripCatalogService {
	return &TripCatalogService{store: store, cache: cache, logger: logger}
}

// CreateTrip schedules a trip and provisions its seats
func (s *TripCatalogService) CreateTrip(ctx context.Context, req *models.CreateTripRequest) (*models.Trip, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	trip := &models.Trip{
		ID:           uuid.New(),
		RouteID:      req.RouteID,
		Name:         req.Name,
		LicensePlate: req.LicensePlate,
		BusType:      req.BusType,
		Capacity:     req.Capacity,
		DepartureAt:  req.DepartureAt.UTC(),
		Price:        req.Price,
		Status:       req.Status,
	}
	if err := s.store.CreateTrip(ctx, trip); err != nil {
		return nil, fmt.Errorf("failed to create trip: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":  trip.ID,
		"capacity": trip.Capacity,
		"plate":    trip.LicensePlate,
	}).Info("Trip created")
	return trip, nil
}

// GetTrip returns a trip, served from the cache when possible
func (s *TripCatalogService) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.WithError(err).WithField("trip_id", id).Warn("Trip cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	trip, err := s.store.GetTrip(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, trip); err != nil {
			s.logger.WithError(err).WithField("trip_id", id).Warn("Trip cache write failed")
		}
	}
	return trip, nil
}

// ListTrips returns trips matching the filter
func (s *TripCatalogService) ListTrips(ctx context.Context, filter models.TripFilter) ([]models.Trip, error) {
	return s.store.ListTrips(ctx, filter)
}

// ListSeats returns the seat map of a trip. Seat flags are never cached.
func (s *TripCatalogService) ListSeats(ctx context.Context, tripID uuid.UUID) ([]models.Seat, error) {
	return s.store.ListSeats(ctx, tripID)
}

// UpdateTrip changes the name and/or status of a trip
func (s *TripCatalogService) UpdateTrip(ctx context.Context, tripID uuid.UUID, req *models.UpdateTripRequest) (*models.Trip, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	trip, err := s.store.UpdateTripDetails(ctx, tripID, req.Name, req.Status)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, tripID)
	return trip, nil
}

// ResizeCapacity grows or shrinks the seat pool of a trip
func (s *TripCatalogService) ResizeCapacity(ctx context.Context, tripID uuid.UUID, req *models.ResizeCapacityRequest) (*models.Trip, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	trip, err := s.store.ResizeCapacity(ctx, tripID, req.Capacity)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, tripID)

	s.logger.WithFields(logrus.Fields{
		"trip_id":  tripID,
		"capacity": trip.Capacity,
	}).Info("Trip capacity changed")
	return trip, nil
}

func (s *TripCatalogService) invalidate(ctx context.Context, tripID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, tripID); err != nil {
		s.logger.WithError(err).WithField("trip_id", tripID).Warn("Trip cache invalidation failed")
	}
}
