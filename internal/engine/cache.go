package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/taskforge-hq/taskforge/internal/authz"
	"github.com/taskforge-hq/taskforge/internal/hierarchy"
)

// SnapshotLoader fetches a consistent hierarchy snapshot from storage.
type SnapshotLoader interface {
	LoadSnapshot(ctx context.Context, orgID uuid.UUID) (*hierarchy.Snapshot, error)
}

// InvalidationPublisher fans an invalidation out to other instances.
type InvalidationPublisher interface {
	Publish(ctx context.Context, orgID uuid.UUID) error
}

// CacheMetrics receives snapshot cache health observations.
type CacheMetrics interface {
	ObserveCacheEvent(event string)
	SetSnapshotAge(age time.Duration)
}

type cachedSnapshot struct {
	snap      *hierarchy.Snapshot
	fetchedAt time.Time
}

// SnapshotCache is a read-through per-organization cache over the
// hierarchy store. Concurrent refreshes for the same organization are
// deduplicated; a failed refresh serves the previous snapshot until the
// staleness ceiling, after which lookups fail and decisions fail
// closed.
type SnapshotCache struct {
	loader           SnapshotLoader
	publisher        InvalidationPublisher
	ttl              time.Duration
	refreshTimeout   time.Duration
	stalenessCeiling time.Duration
	logger           *slog.Logger
	metrics          CacheMetrics
	now              func() time.Time

	group singleflight.Group

	mu      sync.RWMutex
	entries map[uuid.UUID]cachedSnapshot
}

// SnapshotCacheConfig carries the cache tuning knobs.
type SnapshotCacheConfig struct {
	TTL              time.Duration
	RefreshTimeout   time.Duration
	StalenessCeiling time.Duration
	Metrics          CacheMetrics
}

// NewSnapshotCache builds the cache. publisher may be nil when the
// service runs as a single instance.
func NewSnapshotCache(loader SnapshotLoader, publisher InvalidationPublisher, cfg SnapshotCacheConfig, logger *slog.Logger) *SnapshotCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = 500 * time.Millisecond
	}
	if cfg.StalenessCeiling <= 0 {
		cfg.StalenessCeiling = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotCache{
		loader:           loader,
		publisher:        publisher,
		ttl:              cfg.TTL,
		refreshTimeout:   cfg.RefreshTimeout,
		stalenessCeiling: cfg.StalenessCeiling,
		logger:           logger,
		metrics:          cfg.Metrics,
		now:              time.Now,
		entries:          make(map[uuid.UUID]cachedSnapshot),
	}
}

// Snapshot returns the organization's snapshot, refreshing it when the
// TTL has lapsed. Within the staleness ceiling a failed refresh falls
// back to the cached copy; a missing organization is never papered over
// with a stale snapshot.
func (c *SnapshotCache) Snapshot(ctx context.Context, orgID uuid.UUID) (*hierarchy.Snapshot, error) {
	now := c.now()
	c.mu.RLock()
	entry, ok := c.entries[orgID]
	c.mu.RUnlock()
	if ok && now.Sub(entry.fetchedAt) < c.ttl {
		c.observe("hit")
		return entry.snap, nil
	}

	v, err, _ := c.group.Do(orgID.String(), func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
		defer cancel()
		snap, err := c.loader.LoadSnapshot(refreshCtx, orgID)
		if err != nil {
			c.observe("refresh_error")
			return nil, err
		}
		c.mu.Lock()
		c.entries[orgID] = cachedSnapshot{snap: snap, fetchedAt: c.now()}
		c.mu.Unlock()
		c.observe("refresh")
		c.RecordAges()
		return snap, nil
	})
	if err == nil {
		return v.(*hierarchy.Snapshot), nil
	}
	if errors.Is(err, authz.ErrNotFound) {
		c.drop(orgID)
		return nil, err
	}
	if ok && now.Sub(entry.fetchedAt) < c.stalenessCeiling {
		c.observe("stale")
		c.logger.Warn("serving stale hierarchy snapshot",
			slog.String("organization_id", orgID.String()),
			slog.Duration("age", now.Sub(entry.fetchedAt)),
			slog.Any("error", err),
		)
		return entry.snap, nil
	}
	return nil, fmt.Errorf("engine: snapshot refresh for %s: %w: %v", orgID, authz.ErrUnavailable, err)
}

// Invalidate drops the local copy and broadcasts the invalidation so
// peer instances drop theirs. Matrix writes call this synchronously,
// giving the writing instance read-your-writes.
func (c *SnapshotCache) Invalidate(ctx context.Context, orgID uuid.UUID) error {
	c.drop(orgID)
	if c.publisher == nil {
		return nil
	}
	if err := c.publisher.Publish(ctx, orgID); err != nil {
		return fmt.Errorf("engine: broadcast invalidation for %s: %w", orgID, err)
	}
	return nil
}

// DropLocal removes the cached snapshot without broadcasting. The
// invalidation subscriber calls this on messages from peers.
func (c *SnapshotCache) DropLocal(orgID uuid.UUID) {
	c.drop(orgID)
}

// Age reports how old the cached snapshot is, false when absent. Used
// by the staleness gauge.
func (c *SnapshotCache) Age(orgID uuid.UUID) (time.Duration, bool) {
	c.mu.RLock()
	entry, ok := c.entries[orgID]
	c.mu.RUnlock()
	if !ok {
		return 0, false
	}
	return c.now().Sub(entry.fetchedAt), true
}

// RecordAges pushes the age of the oldest cached snapshot to the gauge.
// Refreshes call it inline; the service also runs it on a ticker so the
// gauge keeps climbing when refreshes stop entirely.
func (c *SnapshotCache) RecordAges() {
	if c.metrics == nil {
		return
	}
	now := c.now()
	var oldest time.Duration
	c.mu.RLock()
	for _, entry := range c.entries {
		if age := now.Sub(entry.fetchedAt); age > oldest {
			oldest = age
		}
	}
	c.mu.RUnlock()
	c.metrics.SetSnapshotAge(oldest)
}

func (c *SnapshotCache) observe(event string) {
	if c.metrics != nil {
		c.metrics.ObserveCacheEvent(event)
	}
}

func (c *SnapshotCache) drop(orgID uuid.UUID) {
	c.mu.Lock()
	delete(c.entries, orgID)
	c.mu.Unlock()
	c.observe("invalidate")
	c.RecordAges()
}
