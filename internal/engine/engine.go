// Package engine is the decision point of the authorization service. A
// single Decide call composes the role registry, the subscription
// entitlement tables, the organization hierarchy overrides and the
// scope evaluator into one immutable decision. Every error on the
// resolution path collapses into a denial; the engine never fails open.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taskforge-hq/taskforge/internal/authz"
	"github.com/taskforge-hq/taskforge/internal/entitlement"
	"github.com/taskforge-hq/taskforge/internal/hierarchy"
	"github.com/taskforge-hq/taskforge/internal/roles"
	"github.com/taskforge-hq/taskforge/internal/scope"
)

// SnapshotSource serves hierarchy snapshots per organization.
type SnapshotSource interface {
	Snapshot(ctx context.Context, orgID uuid.UUID) (*hierarchy.Snapshot, error)
}

// MembershipSource serves a subject's team and organization memberships.
type MembershipSource interface {
	ListForUser(ctx context.Context, userID uuid.UUID) ([]authz.Membership, error)
}

// Metrics receives decision outcomes for instrumentation. Nil-safe via
// the engine's guard, not the implementation's.
type Metrics interface {
	ObserveDecision(resource authz.Resource, action authz.Action, allowed bool, code authz.DenyCode)
}

// Engine evaluates authorization requests. It holds no per-request
// state; identical inputs against the same snapshot yield identical
// decisions.
type Engine struct {
	registry     *roles.Registry
	entitlements *entitlement.Resolver
	snapshots    SnapshotSource
	memberships  MembershipSource
	metrics      Metrics
	logger       *slog.Logger
}

// New constructs the engine. metrics may be nil.
func New(registry *roles.Registry, ent *entitlement.Resolver, snapshots SnapshotSource, memberships MembershipSource, metrics Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		registry:     registry,
		entitlements: ent,
		snapshots:    snapshots,
		memberships:  memberships,
		metrics:      metrics,
		logger:       logger,
	}
}

// Decide answers whether user may perform action on resource. A nil
// target means list mode: "what is the widest scope this user may list
// or search at". Decide never returns an error; failures on the
// resolution path become resolution_error denials so callers cannot
// accidentally fail open by ignoring a second return value.
func (e *Engine) Decide(ctx context.Context, user authz.UserContext, resource authz.Resource, action authz.Action, target *authz.TargetRef) authz.Decision {
	d := e.decide(ctx, user, resource, action, target)
	if e.metrics != nil {
		e.metrics.ObserveDecision(resource, action, d.Allowed, d.Code)
	}
	return d
}

func (e *Engine) decide(ctx context.Context, user authz.UserContext, resource authz.Resource, action authz.Action, target *authz.TargetRef) authz.Decision {
	if !resource.Valid() || !action.Valid() {
		return authz.Deny(authz.CodeResolutionError, fmt.Sprintf("unknown permission pair (%s, %s)", resource, action))
	}

	// System administrators bypass every gate, including subscription
	// checks, at global scope.
	if user.Role == authz.RoleSystemAdmin {
		return authz.Allow(authz.ScopeGlobal, authz.Privilege{Name: "unrestricted", Tier: user.Tier})
	}

	if target != nil {
		if err := target.Validate(); err != nil {
			return e.resolutionDenial(user, resource, action, err)
		}
		if target.TeamID != nil && target.OrganizationID == nil {
			// Teams always live inside an organization; a team reference
			// without one cannot be placed in any hierarchy.
			return authz.Deny(authz.CodeResolutionError, "team-scoped target missing organization id")
		}
	}

	base, hasBase := e.registry.Lookup(user.Role, resource, action)
	subPriv, hasSub := e.entitlements.Lookup(user.Tier, resource, action)

	memberships, err := e.memberships.ListForUser(ctx, user.UserID)
	if err != nil {
		return e.resolutionDenial(user, resource, action, fmt.Errorf("engine: membership lookup: %w", err))
	}

	roleCap := authz.ScopeNone
	tierExempt := false
	if hasBase {
		roleCap = base.MaxScope
		tierExempt = base.TierExempt
	}

	// Hierarchy overrides apply only when the target sits inside an
	// organization. Personal targets and list mode skip the walk.
	var eff hierarchy.Effective
	if target != nil && target.OrganizationID != nil {
		snap, err := e.snapshots.Snapshot(ctx, *target.OrganizationID)
		if err != nil {
			return e.resolutionDenial(user, resource, action, err)
		}
		eff, err = hierarchy.EffectivePermission(snap, *target.OrganizationID, nil, target.TeamID, user.Role, resource, action)
		if err != nil {
			return e.resolutionDenial(user, resource, action, err)
		}
	}

	switch {
	case eff.Override != nil && !eff.Override.Allowed:
		return authz.Deny(authz.CodeInsufficientRole, fmt.Sprintf("action revoked by permission matrix for role %q", user.Role))
	case eff.Override != nil:
		if eff.Override.MaxScope != nil {
			roleCap = *eff.Override.MaxScope
		} else if !hasBase {
			// A granting override without an explicit scope widens the
			// role up to the declaring organization's boundary.
			roleCap = authz.ScopeOrganization
		}
	case !hasBase:
		return authz.Deny(authz.CodeInsufficientRole, fmt.Sprintf("role %q has no grant for %s.%s", user.Role, resource, action))
	}

	if !hasSub && !tierExempt {
		return authz.Deny(authz.CodeSubscriptionTierTooLow, fmt.Sprintf("tier %q does not include %s.%s", user.Tier, resource, action))
	}

	var granted authz.Scope
	if target != nil {
		sc, visible := scope.Resolve(user, memberships, *target)
		if !visible {
			return authz.Deny(authz.CodeOutOfScope, "target not visible to subject")
		}
		if !roleCap.AtLeast(sc) {
			return authz.Deny(authz.CodeOutOfScope, fmt.Sprintf("target requires %s scope, role capped at %s", sc, roleCap))
		}
		granted = sc
	} else {
		granted = scope.ListScope(memberships, roleCap, entitlement.ScopeCap(user.Tier))
		if granted < authz.ScopeOwn {
			return authz.Deny(authz.CodeOutOfScope, "no listable scope for subject")
		}
	}

	priv := authz.Privilege{
		Name: fmt.Sprintf("%s.%s", resource, action),
		Tier: user.Tier,
	}
	if hasSub {
		priv.Quota = subPriv.Quota
	}
	priv.Quota = authz.MergeQuotas(priv.Quota, eff.Quota)
	return authz.Allow(granted, priv)
}

// EnforceQuota layers a usage check over an allowing decision. Callers
// that know the subject's current item count apply it before acting;
// denials pass through untouched.
func (e *Engine) EnforceQuota(d authz.Decision, currentItems int) authz.Decision {
	if !d.Allowed || d.Privilege.Quota == nil || d.Privilege.Quota.MaxItems == nil {
		return d
	}
	if currentItems >= *d.Privilege.Quota.MaxItems {
		return authz.Deny(authz.CodeQuotaExceeded, fmt.Sprintf("item quota %d reached", *d.Privilege.Quota.MaxItems))
	}
	return d
}

// resolutionDenial logs the underlying failure and returns the opaque
// fail-closed denial. Internals never leak into the decision reason.
func (e *Engine) resolutionDenial(user authz.UserContext, resource authz.Resource, action authz.Action, err error) authz.Decision {
	e.logger.Error("authorization resolution failed",
		slog.String("user_id", user.UserID.String()),
		slog.String("role", string(user.Role)),
		slog.String("resource", string(resource)),
		slog.String("action", string(action)),
		slog.Any("error", err),
	)
	return authz.Deny(authz.CodeResolutionError, "could not resolve authorization context")
}
