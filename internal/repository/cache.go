package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"verifytx_gateway/internal/model"
)

// CacheRepository maps request fingerprints to verification results.
// Get returns nil without an error when there is no fresh entry.
type CacheRepository interface {
	Get(ctx context.Context, key string) (*model.VerificationResult, error)
	Put(ctx context.Context, key string, result *model.VerificationResult, ttl time.Duration) error
	PurgeExpired(ctx context.Context) (int64, error)
}

type cacheRepository struct {
	db     DB
	logger *zap.Logger
	now    func() time.Time
}

func NewCacheRepository(db DB, logger *zap.Logger) CacheRepository {
	return &cacheRepository{
		db:     db,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the cached result for key if it has not expired.
// Expired rows are left for PurgeExpired.
func (r *cacheRepository) Get(ctx context.Context, key string) (*model.VerificationResult, error) {
	query := `SELECT cache_data FROM verifytx_cache WHERE cache_key = $1 AND expiration > $2`

	var data string
	err := r.db.QueryRow(ctx, query, key, r.now()).Scan(&data)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("failed to read cache", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("failed to read cache for key %s: %w", key, err)
	}

	result, err := decodeCached([]byte(data))
	if err != nil {
		r.logger.Error("failed to decode cached result", zap.String("key", key), zap.Error(err))
		return nil, err
	}

	r.logger.Debug("result retrieved from cache", zap.String("key", key))
	return result, nil
}

// Put upserts the result under key.
func (r *cacheRepository) Put(ctx context.Context, key string, result *model.VerificationResult, ttl time.Duration) error {
	data, err := model.MarshalResult(result)
	if err != nil {
		return fmt.Errorf("failed to encode cache data: %w", err)
	}

	query := `
		INSERT INTO verifytx_cache (cache_key, cache_data, expiration)
		VALUES ($1, $2, $3)
		ON CONFLICT (cache_key) DO UPDATE
		SET cache_data = EXCLUDED.cache_data, expiration = EXCLUDED.expiration
	`

	if _, err := r.db.Exec(ctx, query, key, string(data), r.now().Add(ttl)); err != nil {
		r.logger.Error("failed to write cache", zap.String("key", key), zap.Error(err))
		return fmt.Errorf("failed to write cache for key %s: %w", key, err)
	}

	r.logger.Debug("result cached", zap.String("key", key), zap.Duration("ttl", ttl))
	return nil
}

func (r *cacheRepository) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM verifytx_cache WHERE expiration < $1`, r.now())
	if err != nil {
		r.logger.Error("failed to purge expired cache", zap.Error(err))
		return 0, fmt.Errorf("failed to purge expired cache: %w", err)
	}
	return tag.RowsAffected(), nil
}

func decodeCached(data []byte) (*model.VerificationResult, error) {
	var result model.VerificationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode cache data: %w", err)
	}
	result.FromCache = true
	return &result, nil
}
