// Package jobs hosts the background worker: draining read-path audit
// events into PostgreSQL, warming hierarchy snapshots and purging
// expired audit rows.
package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueAudit carries audit drain tasks; it gets its own queue so a
	// burst of decisions cannot starve maintenance jobs.
	QueueAudit = "audit"

	// TaskAuditRecord persists one buffered audit event.
	TaskAuditRecord = "audit:record"
	// TaskSnapshotWarmup refreshes hierarchy snapshots ahead of traffic.
	TaskSnapshotWarmup = "hierarchy:warmup"
	// TaskAuditPurge removes audit rows past the retention window.
	TaskAuditPurge = "audit:purge"
)

// NewAuditRecordTask wraps an already-serialized audit event.
func NewAuditRecordTask(payload []byte) *asynq.Task {
	return asynq.NewTask(TaskAuditRecord, payload, asynq.Queue(QueueAudit), asynq.MaxRetry(10))
}

// SnapshotWarmupPayload carries scheduling metadata.
type SnapshotWarmupPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewSnapshotWarmupTask constructs the warmup task.
func NewSnapshotWarmupTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SnapshotWarmupPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSnapshotWarmup, body, asynq.Queue(QueueDefault)), nil
}

// AuditPurgePayload bounds the purge.
type AuditPurgePayload struct {
	Retention time.Duration `json:"retention"`
}

// NewAuditPurgeTask constructs the purge task.
func NewAuditPurgeTask(retention time.Duration) (*asynq.Task, error) {
	body, err := json.Marshal(AuditPurgePayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPurge, body, asynq.Queue(QueueDefault)), nil
}
