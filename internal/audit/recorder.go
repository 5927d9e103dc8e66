package audit

import (
	"context"
	"log/slog"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// Recorder routes decision records by action kind: mutating actions go
// to the synchronous sink and must succeed before the caller proceeds;
// reads go to the asynchronous sink best-effort.
type Recorder struct {
	sync   Sink
	async  Sink
	logger *slog.Logger
}

// NewRecorder builds a Recorder. The async sink may be nil, in which
// case reads fall back to the synchronous sink.
func NewRecorder(sync Sink, async Sink, logger *slog.Logger) *Recorder {
	return &Recorder{sync: sync, async: async, logger: logger}
}

// Record persists the event according to the action's kind. For
// mutating actions the error propagates: a decision whose audit write
// failed must not be acted on. For reads a failure is logged and
// swallowed.
func (r *Recorder) Record(ctx context.Context, e Event) error {
	if r == nil || r.sync == nil {
		return nil
	}
	if e.Action.Mutating() {
		return r.sync.Record(ctx, e)
	}
	sink := r.async
	if sink == nil {
		sink = r.sync
	}
	if err := sink.Record(ctx, e); err != nil && r.logger != nil {
		r.logger.Warn("record read audit event",
			slog.String("resource", string(e.Resource)),
			slog.String("action", string(e.Action)),
			slog.Any("error", err))
	}
	return nil
}

// DecisionEvent builds an Event from a decision.
func DecisionEvent(user authz.UserContext, resource authz.Resource, action authz.Action, target *authz.TargetRef, d authz.Decision) Event {
	e := Event{
		ActorID:  user.UserID,
		Resource: resource,
		Action:   action,
		Allowed:  d.Allowed,
	}
	if target != nil {
		owner := target.OwnerID
		e.TargetID = &owner
	}
	if d.Allowed {
		e.Scope = d.Scope.String()
	} else {
		e.DenyCode = d.Code
		e.Reason = d.Reason
	}
	return e
}
