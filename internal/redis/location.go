package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"autodrive/internal/domain"
)

const (
	vehicleLocationKey = "vehicles:locations"
	vehicleSeenKey     = "vehicles:locations:seen"
)

// LocationStore keeps live vehicle positions reported by telemetry.
type LocationStore struct {
	client *redis.Client
	maxAge time.Duration
}

// NewLocationStore creates a new LocationStore. Positions older than maxAge
// are ignored by Positions; zero keeps them forever.
func NewLocationStore(client *redis.Client, maxAge time.Duration) *LocationStore {
	return &LocationStore{client: client, maxAge: maxAge}
}

// UpdateLocation stores a vehicle's position using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, vehicleID string, p domain.Point, at time.Time) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.GeoAdd(ctx, vehicleLocationKey, &redis.GeoLocation{
			Name:      vehicleID,
			Longitude: p.Lng,
			Latitude:  p.Lat,
		})
		pipe.ZAdd(ctx, vehicleSeenKey, redis.Z{Score: float64(at.Unix()), Member: vehicleID})
		return nil
	})
	return err
}

// Positions returns the fresh live positions of the given vehicles.
// Vehicles without a fresh position are absent from the result.
func (s *LocationStore) Positions(ctx context.Context, vehicleIDs []string) (map[string]domain.Point, error) {
	out := make(map[string]domain.Point, len(vehicleIDs))
	if len(vehicleIDs) == 0 {
		return out, nil
	}

	positions, err := s.client.GeoPos(ctx, vehicleLocationKey, vehicleIDs...).Result()
	if err != nil {
		return nil, err
	}

	var seen []float64
	if s.maxAge > 0 {
		seen, err = s.client.ZMScore(ctx, vehicleSeenKey, vehicleIDs...).Result()
		if err != nil {
			return nil, err
		}
	}

	cutoff := float64(time.Now().Add(-s.maxAge).Unix())
	for i, pos := range positions {
		if pos == nil {
			continue
		}
		if s.maxAge > 0 && (i >= len(seen) || seen[i] < cutoff) {
			continue
		}
		out[vehicleIDs[i]] = domain.Point{Lat: pos.Latitude, Lng: pos.Longitude}
	}

	return out, nil
}

// RemoveLocation removes a vehicle's position from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, vehicleID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, vehicleLocationKey, vehicleID)
		pipe.ZRem(ctx, vehicleSeenKey, vehicleID)
		return nil
	})
	return err
}
