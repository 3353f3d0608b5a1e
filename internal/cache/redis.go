package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/strategichq/compass/internal/domain"
)

// incrWithWindow bumps the counter and arms the expiry only on the first
// increment, so the window is anchored to the first run.
var incrWithWindow = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return n
`)

// RedisCache is the pro-tier cache, shared across engine replicas.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client}, nil
}

// Get returns the value for key, or nil on a miss.
func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, c.nsKey(key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores value under key for ttl.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, c.nsKey(key), value, ttl).Err()
}

// Delete removes key.
func (c *RedisCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.nsKey(key)).Err()
}

// GetSnapshot returns the cached snapshot for a session, or nil on a miss.
func (c *RedisCache) GetSnapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	data, err := c.Get(ctx, SnapshotKey(sessionID))
	if err != nil || data == nil {
		return nil, err
	}

	var snap domain.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SetSnapshot caches a session's snapshot for ttl.
func (c *RedisCache) SetSnapshot(ctx context.Context, sessionID string, snap *domain.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.Set(ctx, SnapshotKey(sessionID), data, ttl)
}

// IncrementRunSequence advances the per-session run counter atomically across
// replicas.
func (c *RedisCache) IncrementRunSequence(ctx context.Context, sessionID string, window time.Duration) (int64, error) {
	key := c.nsKey("runseq:" + sessionID)
	return incrWithWindow.Run(ctx, c.client, []string{key}, window.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

// nsKey namespaces keys so one Redis can serve multiple deployments.
func (c *RedisCache) nsKey(key string) string {
	return "compass:" + key
}
