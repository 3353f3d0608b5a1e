// Package baseline provides cached access to committed session snapshots.
package baseline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/strategichq/compass/internal/cache"
	"github.com/strategichq/compass/internal/domain"
	"github.com/strategichq/compass/internal/metrics"
)

// ErrNotFound indicates no committed snapshot exists for the session.
var ErrNotFound = errors.New("baseline: snapshot not found")

// snapshotTTL bounds how long a cached baseline may serve reads. The worker
// refreshes the cache on every commit, so the TTL only matters when the cache
// outlives the process that wrote it.
const snapshotTTL = 15 * time.Minute

// Service serves committed baselines cache-first. Sensitivity analysis and
// result reads go through here so interactive calls avoid a repository round
// trip when the snapshot is warm.
type Service struct {
	store   domain.ResultsStore
	cache   domain.Cache
	metrics *metrics.Manager
}

// NewService creates a baseline service. The metrics manager may be nil.
func NewService(store domain.ResultsStore, cache domain.Cache, m *metrics.Manager) *Service {
	return &Service{store: store, cache: cache, metrics: m}
}

// Snapshot returns the committed state for a session, consulting the cache
// before the store. A store miss with no factors at all maps to ErrNotFound.
func (s *Service) Snapshot(ctx context.Context, sessionID string) (*domain.Snapshot, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("baseline: sessionID is required")
	}

	if s.cache != nil {
		snap, err := s.cache.GetSnapshot(ctx, sessionID)
		if err == nil && snap != nil {
			if s.metrics != nil {
				s.metrics.RecordSnapshotCache(true)
			}
			return snap, nil
		}
		// Cache errors degrade to a store read.
		if s.metrics != nil {
			s.metrics.RecordSnapshotCache(false)
		}
	}

	snap, err := s.store.GetSnapshot(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("baseline: load snapshot: %w", err)
	}
	if snap == nil || len(snap.Factors) == 0 {
		return nil, ErrNotFound
	}

	if s.cache != nil {
		_ = s.cache.SetSnapshot(ctx, sessionID, snap, snapshotTTL)
	}
	return snap, nil
}

// Refresh replaces the cached snapshot after a commit.
func (s *Service) Refresh(ctx context.Context, sessionID string, snap *domain.Snapshot) {
	if s.cache == nil || snap == nil {
		return
	}
	_ = s.cache.SetSnapshot(ctx, sessionID, snap, snapshotTTL)
}

// Invalidate drops the cached snapshot for a session.
func (s *Service) Invalidate(ctx context.Context, sessionID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, cache.SnapshotKey(sessionID))
}
