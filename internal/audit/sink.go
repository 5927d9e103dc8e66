// Package audit records authorization decisions. Mutating actions are
// written synchronously before the caller proceeds with the side effect;
// read actions may be recorded asynchronously off the request path.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// Event is one recorded decision. Delivery is at least once; duplicate
// records are acceptable, lost records for mutating actions are not.
type Event struct {
	ID         uuid.UUID       `json:"id"`
	ActorID    uuid.UUID       `json:"actor_id"`
	Resource   authz.Resource  `json:"resource"`
	Action     authz.Action    `json:"action"`
	TargetID   *uuid.UUID      `json:"target_id,omitempty"`
	Allowed    bool            `json:"allowed"`
	Scope      string          `json:"scope,omitempty"`
	DenyCode   authz.DenyCode  `json:"deny_code,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// Sink receives decision records.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// PGSink persists events into audit_events.
type PGSink struct {
	pool *pgxpool.Pool
}

// NewPGSink returns a PostgreSQL backed sink.
func NewPGSink(pool *pgxpool.Pool) *PGSink {
	return &PGSink{pool: pool}
}

// Record persists the event.
func (s *PGSink) Record(ctx context.Context, e Event) error {
	if s == nil || s.pool == nil {
		return errors.New("audit: sink not initialised")
	}
	if e.Resource == "" || e.Action == "" {
		return fmt.Errorf("audit: %w: event requires resource and action", authz.ErrValidation)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_events (id, actor_id, resource, action, target_id, allowed, scope, deny_code, reason, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ActorID, e.Resource, e.Action, e.TargetID, e.Allowed, e.Scope, e.DenyCode, e.Reason, e.OccurredAt)
	if err != nil {
		return fmt.Errorf("audit: record: %w", err)
	}
	return nil
}

// Enqueuer submits an event for asynchronous recording.
type Enqueuer interface {
	EnqueueAuditEvent(ctx context.Context, payload []byte) error
}

// AsyncSink hands events to the job queue instead of writing inline,
// keeping audit latency off the read path.
type AsyncSink struct {
	enqueuer Enqueuer
}

// NewAsyncSink returns a queue backed sink.
func NewAsyncSink(enqueuer Enqueuer) *AsyncSink {
	return &AsyncSink{enqueuer: enqueuer}
}

// Record enqueues the event.
func (s *AsyncSink) Record(ctx context.Context, e Event) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("audit: encode event: %w", err)
	}
	return s.enqueuer.EnqueueAuditEvent(ctx, payload)
}
