package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

type captureSink struct {
	events []Event
	err    error
}

func (c *captureSink) Record(ctx context.Context, e Event) error {
	if c.err != nil {
		return c.err
	}
	c.events = append(c.events, e)
	return nil
}

func TestRecorderRoutesMutatingActionsSynchronously(t *testing.T) {
	syncSink := &captureSink{}
	asyncSink := &captureSink{}
	rec := NewRecorder(syncSink, asyncSink, nil)

	err := rec.Record(context.Background(), Event{
		ActorID:  uuid.New(),
		Resource: authz.ResourceTask,
		Action:   authz.ActionDelete,
		Allowed:  false,
		DenyCode: authz.CodeOutOfScope,
	})
	require.NoError(t, err)
	require.Len(t, syncSink.events, 1)
	require.Empty(t, asyncSink.events)
}

func TestRecorderMutatingFailurePropagates(t *testing.T) {
	syncSink := &captureSink{err: errors.New("store down")}
	rec := NewRecorder(syncSink, &captureSink{}, nil)

	err := rec.Record(context.Background(), Event{
		ActorID:  uuid.New(),
		Resource: authz.ResourceTask,
		Action:   authz.ActionUpdate,
	})
	require.Error(t, err, "a mutating decision without an audit record must not proceed")
}

func TestRecorderRoutesReadsAsync(t *testing.T) {
	syncSink := &captureSink{}
	asyncSink := &captureSink{}
	rec := NewRecorder(syncSink, asyncSink, nil)

	err := rec.Record(context.Background(), Event{
		ActorID:  uuid.New(),
		Resource: authz.ResourceTask,
		Action:   authz.ActionView,
		Allowed:  true,
		Scope:    "own",
	})
	require.NoError(t, err)
	require.Empty(t, syncSink.events)
	require.Len(t, asyncSink.events, 1)
}

func TestRecorderReadFailureIsSwallowed(t *testing.T) {
	asyncSink := &captureSink{err: errors.New("queue full")}
	rec := NewRecorder(&captureSink{}, asyncSink, nil)

	err := rec.Record(context.Background(), Event{
		ActorID:  uuid.New(),
		Resource: authz.ResourceTask,
		Action:   authz.ActionList,
		Allowed:  true,
	})
	require.NoError(t, err, "read-path audit is best effort")
}

func TestDecisionEvent(t *testing.T) {
	user := authz.UserContext{UserID: uuid.New(), Role: authz.RoleMember, Tier: authz.TierPro}
	owner := uuid.New()
	target := &authz.TargetRef{OwnerID: owner, Visibility: authz.VisibilityPersonal}

	e := DecisionEvent(user, authz.ResourceTask, authz.ActionUpdate, target, authz.Deny(authz.CodeOutOfScope, "not visible"))
	require.Equal(t, user.UserID, e.ActorID)
	require.Equal(t, owner, *e.TargetID)
	require.False(t, e.Allowed)
	require.Equal(t, authz.CodeOutOfScope, e.DenyCode)

	e = DecisionEvent(user, authz.ResourceTask, authz.ActionView, nil, authz.Allow(authz.ScopeOwn, authz.Privilege{}))
	require.True(t, e.Allowed)
	require.Equal(t, "own", e.Scope)
	require.Nil(t, e.TargetID)
}
