package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/taskforge-hq/taskforge/internal/audit"
	"github.com/taskforge-hq/taskforge/internal/hierarchy"
	jobmetrics "github.com/taskforge-hq/taskforge/internal/jobs"
)

// Instrument wraps a handler with run, failure and duration metrics.
func Instrument(job string, metrics *jobmetrics.Metrics, h asynq.HandlerFunc) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		tracker := metrics.Track(job)
		return tracker.End(h(ctx, t))
	}
}

// SnapshotWarmer is the warmup surface of the snapshot cache.
type SnapshotWarmer interface {
	Snapshot(ctx context.Context, orgID uuid.UUID) (*hierarchy.Snapshot, error)
}

// OrganizationLister enumerates organizations for warmup.
type OrganizationLister interface {
	ListOrganizationIDs(ctx context.Context) ([]uuid.UUID, error)
}

// AuditPurger deletes audit rows older than a cutoff.
type AuditPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// NewAuditRecordHandler drains queued audit events into the sink.
// Malformed payloads are dropped; transient sink failures retry.
func NewAuditRecordHandler(sink audit.Sink, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var event audit.Event
		if err := json.Unmarshal(t.Payload(), &event); err != nil {
			logger.Error("dropping undecodable audit event", slog.Any("error", err))
			return asynq.SkipRetry
		}
		return sink.Record(ctx, event)
	}
}

// NewSnapshotWarmupHandler refreshes every organization's snapshot. A
// single failing organization does not abort the sweep.
func NewSnapshotWarmupHandler(orgs OrganizationLister, cache SnapshotWarmer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		ids, err := orgs.ListOrganizationIDs(ctx)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if _, err := cache.Snapshot(ctx, id); err != nil {
				logger.Warn("snapshot warmup failed",
					slog.String("organization_id", id.String()),
					slog.Any("error", err),
				)
			}
		}
		return nil
	}
}

// NewAuditPurgeHandler removes audit rows past the retention window.
func NewAuditPurgeHandler(purger AuditPurger, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditPurgePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.Retention <= 0 {
			payload.Retention = 90 * 24 * time.Hour
		}
		removed, err := purger.PurgeBefore(ctx, time.Now().Add(-payload.Retention))
		if err != nil {
			return err
		}
		logger.Info("audit purge complete", slog.Int64("removed", removed))
		return nil
	}
}
