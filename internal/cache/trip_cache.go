// Package cache holds the Redis read-through cache for trip rows. Seat
// availability is never cached.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/smarttransit/ticketing-backend/internal/config"
	"github.com/smarttransit/ticketing-backend/internal/models"
)

const tripKeyPrefix = "trip:"

// NewRedisClient connects to Redis and checks the connection
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// TripCache stores trips as JSON under trip:<id>
type TripCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

// NewTripCache creates a trip cache with the given entry TTL
func NewTripCache(client redis.Cmdable, ttl time.Duration) *TripCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &TripCache{client: client, ttl: ttl}
}

func tripKey(id uuid.UUID) string {
	return tripKeyPrefix + id.String()
}

// Get returns the cached trip, or nil, nil on a miss
func (c *TripCache) Get(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	data, err := c.client.Get(ctx, tripKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var trip models.Trip
	if err := json.Unmarshal(data, &trip); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", tripKey(id), err)
	}
	return &trip, nil
}

// Set stores the trip
func (c *TripCache) Set(ctx context.Context, trip *models.Trip) error {
	data, err := json.Marshal(trip)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, tripKey(trip.ID), data, c.ttl).Err()
}

// Invalidate drops the cached trip
func (c *TripCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, tripKey(id)).Err()
}
