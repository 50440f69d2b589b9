// Package checkpoint persists the dataset last-modified epoch between
// fetch sessions with a Redis backend. A later session loads the
// checkpoint to build an incremental last-modified filter instead of
// re-fetching the full catalog. Fetched pages themselves are never
// cached.
package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeyLastModified stores the epoch of the last completed fetch.
const RedisKeyLastModified = "nvd:checkpoint:last_modified"

// Prometheus metrics for checkpoint operations.
var (
	nvdCheckpointLastModified = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "nvd_checkpoint_last_modified_seconds",
		Help: "Epoch of the persisted last-modified checkpoint",
	})

	nvdCheckpointErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nvd_checkpoint_errors_total",
		Help: "Checkpoint operation errors by operation",
	}, []string{"operation"})
)

// Store reads and writes the last-modified checkpoint.
type Store struct {
	redis  *redis.Client
	logger zerolog.Logger
}

// NewStore creates a checkpoint store with a Redis backend.
func NewStore(redisClient *redis.Client, logger zerolog.Logger) *Store {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Store{
		redis:  redisClient,
		logger: logger,
	}
}

// Save persists the last-modified epoch.
func (s *Store) Save(ctx context.Context, epoch int64) error {
	if epoch <= 0 {
		return fmt.Errorf("checkpoint epoch must be positive (got %d)", epoch)
	}

	if err := s.redis.Set(ctx, RedisKeyLastModified, epoch, 0).Err(); err != nil {
		nvdCheckpointErrors.WithLabelValues("save").Inc()
		return fmt.Errorf("save checkpoint: %w", err)
	}

	nvdCheckpointLastModified.Set(float64(epoch))
	s.logger.Info().
		Int64("last_modified", epoch).
		Msg("Checkpoint saved")

	return nil
}

// Load returns the persisted epoch. The second return value is false
// when no checkpoint exists.
func (s *Store) Load(ctx context.Context) (int64, bool, error) {
	epoch, err := s.redis.Get(ctx, RedisKeyLastModified).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		nvdCheckpointErrors.WithLabelValues("load").Inc()
		return 0, false, fmt.Errorf("load checkpoint: %w", err)
	}
	return epoch, true, nil
}

// Clear removes the checkpoint so the next session fetches the full
// catalog.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.redis.Del(ctx, RedisKeyLastModified).Err(); err != nil {
		nvdCheckpointErrors.WithLabelValues("clear").Inc()
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}
