package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"verifytx_gateway/internal/model"
)

type memoryEntry struct {
	data       []byte
	expiration time.Time
}

// MemoryCacheRepository keeps results in process memory.
type MemoryCacheRepository struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCacheRepository() *MemoryCacheRepository {
	return &MemoryCacheRepository{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCacheRepository) Get(_ context.Context, key string) (*model.VerificationResult, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !entry.expiration.After(c.now()) {
		return nil, nil
	}
	return decodeCached(entry.data)
}

func (c *MemoryCacheRepository) Put(_ context.Context, key string, result *model.VerificationResult, ttl time.Duration) error {
	data, err := model.MarshalResult(result)
	if err != nil {
		return fmt.Errorf("failed to encode cache data: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryEntry{data: data, expiration: c.now().Add(ttl)}
	return nil
}

func (c *MemoryCacheRepository) PurgeExpired(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int64
	for key, entry := range c.entries {
		if entry.expiration.Before(now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed, nil
}
