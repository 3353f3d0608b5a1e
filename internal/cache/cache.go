package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/strategichq/compass/internal/domain"
)

// New builds the cache for the configured tier: an in-process LRU for
// community, Redis for pro, or a tiered LRU-over-Redis when two-phase
// caching is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache layers a short-lived local LRU in front of Redis. Snapshot
// reads between a score and the sensitivity calls that follow it hit the
// local tier; Redis remains the source of truth across replicas.
type TwoPhaseCache struct {
	local    *LRUCache
	remote   *RedisCache
	localTTL time.Duration
}

// NewTwoPhaseCache builds the tiered cache.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to create redis cache: %w", err)
	}

	localTTL := cfg.LocalTTL
	if localTTL == 0 {
		localTTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:    NewLRUCache(cfg.LocalMaxSize),
		remote:   remote,
		localTTL: localTTL,
	}, nil
}

// localBound caps the local TTL at the remote TTL so the local tier can
// never outlive the authoritative entry.
func (c *TwoPhaseCache) localBound(ttl time.Duration) time.Duration {
	if ttl < c.localTTL {
		return ttl
	}
	return c.localTTL
}

// Get reads local first, falling back to Redis and warming the local tier
// on a remote hit.
func (c *TwoPhaseCache) Get(ctx context.Context, key string) ([]byte, error) {
	if val, err := c.local.Get(ctx, key); err != nil || val != nil {
		return val, err
	}

	val, err := c.remote.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, key, val, c.localTTL)
	}
	return val, nil
}

// Set writes through to both tiers.
func (c *TwoPhaseCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, c.localBound(ttl)); err != nil {
		return err
	}
	return c.remote.Set(ctx, key, value, ttl)
}

// Delete removes the key from both tiers.
func (c *TwoPhaseCache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, key)
}

// GetSnapshot reads the session snapshot local-first with remote fallback.
func (c *TwoPhaseCache) GetSnapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	if snap, err := c.local.GetSnapshot(ctx, sessionID); err != nil || snap != nil {
		return snap, err
	}

	snap, err := c.remote.GetSnapshot(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		_ = c.local.SetSnapshot(ctx, sessionID, snap, c.localTTL)
	}
	return snap, nil
}

// SetSnapshot writes the snapshot through to both tiers.
func (c *TwoPhaseCache) SetSnapshot(ctx context.Context, sessionID string, snap *domain.Snapshot, ttl time.Duration) error {
	if err := c.local.SetSnapshot(ctx, sessionID, snap, c.localBound(ttl)); err != nil {
		return err
	}
	return c.remote.SetSnapshot(ctx, sessionID, snap, ttl)
}

// IncrementRunSequence always goes to Redis; run numbers must be unique
// across replicas, so the local tier cannot take part.
func (c *TwoPhaseCache) IncrementRunSequence(ctx context.Context, sessionID string, window time.Duration) (int64, error) {
	return c.remote.IncrementRunSequence(ctx, sessionID, window)
}

// Ping checks both tiers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("local cache ping failed: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close closes both tiers.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats returns local tier statistics.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
