// Package store reads the persisted motion calibration overrides. The
// overrides live in a single Redis hash written by the admin tooling; this
// service only reads it once at startup.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// CalibrationHashKey is the Redis hash holding calibration overrides.
const CalibrationHashKey = "birukbilug:motion:calibration"

// CalibrationStore reads calibration overrides from Redis.
type CalibrationStore struct {
	rdb    *redis.Client
	logger *slog.Logger
}

// NewCalibrationStore connects to Redis and verifies the connection.
func NewCalibrationStore(addr string, db int, logger *slog.Logger) (*CalibrationStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &CalibrationStore{rdb: rdb, logger: logger}, nil
}

// LoadOverrides returns the persisted override map. A read failure is
// logged and yields an empty map so startup can proceed on defaults.
func (s *CalibrationStore) LoadOverrides(ctx context.Context) map[string]string {
	values, err := s.rdb.HGetAll(ctx, CalibrationHashKey).Result()
	if err != nil {
		s.logger.Warn("calibration override read failed, using defaults", "error", err)
		return map[string]string{}
	}
	return values
}

// Close releases the Redis connection.
func (s *CalibrationStore) Close() error {
	return s.rdb.Close()
}
