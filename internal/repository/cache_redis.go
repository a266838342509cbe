package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"verifytx_gateway/internal/model"
)

const redisCachePrefix = "verifytx:cache:"

type redisCacheRepository struct {
	client redis.Cmdable
	logger *zap.Logger
}

// NewRedisCacheRepository stores results as JSON with a native TTL.
func NewRedisCacheRepository(client redis.Cmdable, logger *zap.Logger) CacheRepository {
	return &redisCacheRepository{
		client: client,
		logger: logger,
	}
}

func (r *redisCacheRepository) Get(ctx context.Context, key string) (*model.VerificationResult, error) {
	data, err := r.client.Get(ctx, redisCachePrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		r.logger.Error("failed to read cache", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to read cache for key %s: %w", key, err)
	}
	return decodeCached(data)
}

func (r *redisCacheRepository) Put(ctx context.Context, key string, result *model.VerificationResult, ttl time.Duration) error {
	data, err := model.MarshalResult(result)
	if err != nil {
		return fmt.Errorf("failed to encode cache data: %w", err)
	}

	if err := r.client.Set(ctx, redisCachePrefix+key, data, ttl).Err(); err != nil {
		r.logger.Error("failed to write cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to write cache for key %s: %w", key, err)
	}
	return nil
}

// PurgeExpired is a no-op: redis expires keys itself.
func (r *redisCacheRepository) PurgeExpired(context.Context) (int64, error) {
	return 0, nil
}
