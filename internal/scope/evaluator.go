// Package scope computes the minimal data-visibility scope that makes a
// target resource visible to a subject. Scope gates the data; the role
// gates the action. The evaluator never grants visibility from a role
// alone.
package scope

import (
	"github.com/google/uuid"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// Resolve returns the minimal scope that makes target visible to the
// user, or false when nothing does. Rules run in order, first match
// wins:
//
//  1. owning the target grants Own;
//  2. team-visible targets need a team membership for the target's team;
//  3. organization-visible targets need an organization membership;
//  4. otherwise the target is invisible, regardless of role.
func Resolve(user authz.UserContext, memberships []authz.Membership, target authz.TargetRef) (authz.Scope, bool) {
	if target.OwnerID == user.UserID {
		return authz.ScopeOwn, true
	}
	if target.Visibility == authz.VisibilityTeam && target.TeamID != nil {
		if holdsMembership(memberships, authz.ScopeKindTeam, *target.TeamID) {
			return authz.ScopeTeam, true
		}
	}
	if target.Visibility == authz.VisibilityOrganization && target.OrganizationID != nil {
		if holdsMembership(memberships, authz.ScopeKindOrganization, *target.OrganizationID) {
			return authz.ScopeOrganization, true
		}
	}
	return authz.ScopeNone, false
}

// ListScope returns the widest scope a listing or search may span: the
// maximum the user's memberships support, capped by the narrower of the
// role's scope cap and the subscription tier's scope cap.
func ListScope(memberships []authz.Membership, roleCap, tierCap authz.Scope) authz.Scope {
	max := authz.ScopeOwn
	for _, m := range memberships {
		switch m.ScopeKind {
		case authz.ScopeKindTeam:
			if max < authz.ScopeTeam {
				max = authz.ScopeTeam
			}
		case authz.ScopeKindOrganization:
			if max < authz.ScopeOrganization {
				max = authz.ScopeOrganization
			}
		}
	}
	return authz.MinScope(max, authz.MinScope(roleCap, tierCap))
}

func holdsMembership(memberships []authz.Membership, kind authz.ScopeKind, id uuid.UUID) bool {
	for _, m := range memberships {
		if m.ScopeKind == kind && m.ScopeID == id {
			return true
		}
	}
	return false
}
