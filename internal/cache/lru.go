// Package cache provides baseline snapshot caching for Compass.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/strategichq/compass/internal/domain"
)

// SnapshotKey returns the cache key for a session's baseline snapshot.
func SnapshotKey(sessionID string) string {
	return "snapshot:" + sessionID
}

// LRUCache is an in-process cache with TTL and LRU eviction. It backs the
// community tier, where everything runs in one process and Redis would be
// overhead.
type LRUCache struct {
	mu       sync.RWMutex
	capacity int
	index    map[string]*list.Element
	recency  *list.List // front = most recently used
	counters map[string]*runCounter
}

type lruEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// runCounter is a TTL-windowed counter, kept separate from the LRU so run
// sequence numbers can't be evicted mid-window.
type runCounter struct {
	count     int64
	expiresAt time.Time
}

// NewLRUCache creates a cache holding at most capacity entries.
func NewLRUCache(capacity int) *LRUCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &LRUCache{
		capacity: capacity,
		index:    make(map[string]*list.Element),
		recency:  list.New(),
		counters: make(map[string]*runCounter),
	}
}

// Get returns the value for key, or nil on a miss. Expired entries are
// dropped on read.
func (c *LRUCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[key]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*lruEntry)
	if time.Now().After(entry.expiresAt) {
		c.dropLocked(elem)
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	return entry.value, nil
}

// Set stores value under key for ttl, evicting the least recently used
// entries if the cache is full.
func (c *LRUCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(ttl)
		c.recency.MoveToFront(elem)
		return nil
	}

	c.index[key] = c.recency.PushFront(&lruEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	})

	for c.recency.Len() > c.capacity {
		if oldest := c.recency.Back(); oldest != nil {
			c.dropLocked(oldest)
		}
	}
	return nil
}

// Delete removes key if present.
func (c *LRUCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[key]; ok {
		c.dropLocked(elem)
	}
	return nil
}

// GetSnapshot returns the cached snapshot for a session, or nil on a miss.
func (c *LRUCache) GetSnapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
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
func (c *LRUCache) SetSnapshot(ctx context.Context, sessionID string, snap *domain.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.Set(ctx, SnapshotKey(sessionID), data, ttl)
}

// IncrementRunSequence advances the per-session run counter, restarting from
// 1 when the window has lapsed.
func (c *LRUCache) IncrementRunSequence(ctx context.Context, sessionID string, window time.Duration) (int64, error) {
	key := "runseq:" + sessionID

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if ctr, ok := c.counters[key]; ok && now.Before(ctr.expiresAt) {
		ctr.count++
		return ctr.count, nil
	}

	c.counters[key] = &runCounter{count: 1, expiresAt: now.Add(window)}
	return 1, nil
}

// Ping reports cache health. An in-process map is always healthy.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.recency = list.New()
	c.counters = make(map[string]*runCounter)
	return nil
}

// Stats returns the current entry count and the configured capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recency.Len(), c.capacity
}

func (c *LRUCache) dropLocked(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.index, elem.Value.(*lruEntry).key)
}
