/*
Copyright 2025 The insightd Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package capability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ha-ai/insightd/pkg/models"
)

// Repository is the durable backend for capability records; the Postgres
// implementation lives in pkg/store.
type Repository interface {
	GetCapability(ctx context.Context, deviceModel string) (*models.CapabilityRecord, error)
	UpsertCapability(ctx context.Context, rec *models.CapabilityRecord) error
	ListCapabilities(ctx context.Context) ([]models.CapabilityRecord, error)
}

// ErrNotFound is returned when no capability record exists for a model.
var ErrNotFound = errors.New("capability record not found")

// Stats summarises the store for the health endpoint.
type Stats struct {
	Cached       int  `json:"cached"`
	Stale        int  `json:"stale"`
	RedisHealthy bool `json:"redis_healthy"`
}

const redisKeyPrefix = "insightd:capability:"

// CachedStore is a write-through capability store: Postgres is
// authoritative, Redis is an optional read-side front. A Redis outage
// degrades to the database; a database outage surfaces.
//
// Concurrent lookups for the same model collapse to one database query via
// singleflight.
type CachedStore struct {
	repo    Repository
	redis   *redis.Client // nil when no Redis is configured
	logger  *zap.Logger
	ttl     time.Duration
	flights singleflight.Group
}

// NewCachedStore builds the store. redisClient may be nil.
func NewCachedStore(repo Repository, redisClient *redis.Client, logger *zap.Logger) (*CachedStore, error) {
	if repo == nil {
		return nil, fmt.Errorf("repository cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	return &CachedStore{
		repo:   repo,
		redis:  redisClient,
		logger: logger,
		ttl:    24 * time.Hour,
	}, nil
}

// Get returns the capability record for a device model, consulting Redis
// first when available.
func (s *CachedStore) Get(ctx context.Context, deviceModel string) (*models.CapabilityRecord, error) {
	if rec := s.fromRedis(ctx, deviceModel); rec != nil {
		return rec, nil
	}

	v, err, _ := s.flights.Do(deviceModel, func() (interface{}, error) {
		rec, err := s.repo.GetCapability(ctx, deviceModel)
		if err != nil {
			return nil, err
		}
		s.toRedis(ctx, rec)
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.CapabilityRecord), nil
}

// Upsert writes through: database first, then the Redis front.
func (s *CachedStore) Upsert(ctx context.Context, rec *models.CapabilityRecord) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("invalid capability record: %w", err)
	}
	if rec.LastUpdated.IsZero() {
		rec.LastUpdated = time.Now().UTC()
	}
	if err := s.repo.UpsertCapability(ctx, rec); err != nil {
		return fmt.Errorf("upsert capability %s: %w", rec.DeviceModel, err)
	}
	s.toRedis(ctx, rec)
	return nil
}

// List returns all capability records from the authoritative store.
func (s *CachedStore) List(ctx context.Context) ([]models.CapabilityRecord, error) {
	return s.repo.ListCapabilities(ctx)
}

// Stats counts cached and stale records for the health endpoint.
func (s *CachedStore) Stats(ctx context.Context) (Stats, error) {
	records, err := s.repo.ListCapabilities(ctx)
	if err != nil {
		return Stats{}, err
	}
	now := time.Now().UTC()
	stats := Stats{Cached: len(records), RedisHealthy: s.redisHealthy(ctx)}
	for _, rec := range records {
		if rec.Stale(now) {
			stats.Stale++
		}
	}
	return stats, nil
}

func (s *CachedStore) redisHealthy(ctx context.Context) bool {
	if s.redis == nil {
		return false
	}
	return s.redis.Ping(ctx).Err() == nil
}

func (s *CachedStore) fromRedis(ctx context.Context, deviceModel string) *models.CapabilityRecord {
	if s.redis == nil {
		return nil
	}
	raw, err := s.redis.Get(ctx, redisKeyPrefix+deviceModel).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Debug("redis read failed, falling back to database",
				zap.String("device_model", deviceModel), zap.Error(err))
		}
		return nil
	}
	var rec models.CapabilityRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("corrupt capability cache entry, evicting",
			zap.String("device_model", deviceModel), zap.Error(err))
		s.redis.Del(ctx, redisKeyPrefix+deviceModel)
		return nil
	}
	return &rec
}

func (s *CachedStore) toRedis(ctx context.Context, rec *models.CapabilityRecord) {
	if s.redis == nil || rec == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.redis.Set(ctx, redisKeyPrefix+rec.DeviceModel, raw, s.ttl).Err(); err != nil {
		s.logger.Debug("redis write failed", zap.String("device_model", rec.DeviceModel), zap.Error(err))
	}
}
