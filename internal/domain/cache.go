package domain

import (
	"context"
	"time"
)

// Cache defines the interface for baseline snapshot caching.
// Supports two-phase caching: local LRU (community) + Redis (pro). Sensitivity
// requests read baselines through the cache so interactive what-if calls avoid
// a repository round trip.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// GetSnapshot retrieves a cached baseline snapshot for a session.
	GetSnapshot(ctx context.Context, sessionID string) (*Snapshot, error)

	// SetSnapshot caches a baseline snapshot after a re-score commits.
	SetSnapshot(ctx context.Context, sessionID string, snap *Snapshot, ttl time.Duration) error

	// IncrementRunSequence atomically advances the per-session run counter
	// and returns the new value. Used to label simulation runs.
	IncrementRunSequence(ctx context.Context, sessionID string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string `json:"type" koanf:"type"`

	// Local LRU cache settings (community tier)
	LocalMaxSize int           `json:"localMaxSize" koanf:"local_max_size"`
	LocalTTL     time.Duration `json:"localTtl" koanf:"local_ttl"`

	// Redis settings (pro tier)
	RedisAddr     string `json:"redisAddr" koanf:"redis_addr"`
	RedisPassword string `json:"redisPassword" koanf:"redis_password"`
	RedisDB       int    `json:"redisDb" koanf:"redis_db"`

	// Two-phase settings
	EnableTwoPhase bool `json:"enableTwoPhase" koanf:"enable_two_phase"` // If true, check local first, then Redis
}
