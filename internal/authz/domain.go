// Package authz holds the shared vocabulary of the authorization engine:
// resources, actions, scopes, subscription tiers, quotas and decisions.
// Every identifier here is a closed, build-time enumeration; nothing is
// registered at runtime.
package authz

import (
	"fmt"

	"github.com/google/uuid"
)

// Resource identifies a protected resource type.
type Resource string

// Closed resource enumeration.
const (
	ResourceTask         Resource = "task"
	ResourceProject      Resource = "project"
	ResourceComment      Resource = "comment"
	ResourceAttachment   Resource = "attachment"
	ResourceTeam         Resource = "team"
	ResourceOrganization Resource = "organization"
	ResourceReport       Resource = "report"
)

// Resources lists every known resource type.
func Resources() []Resource {
	return []Resource{
		ResourceTask,
		ResourceProject,
		ResourceComment,
		ResourceAttachment,
		ResourceTeam,
		ResourceOrganization,
		ResourceReport,
	}
}

// Valid reports whether the resource belongs to the closed enumeration.
func (r Resource) Valid() bool {
	switch r {
	case ResourceTask, ResourceProject, ResourceComment, ResourceAttachment,
		ResourceTeam, ResourceOrganization, ResourceReport:
		return true
	}
	return false
}

// Action identifies an operation on a resource.
type Action string

// Closed action enumeration.
const (
	ActionView   Action = "view"
	ActionList   Action = "list"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionAdmin  Action = "admin"
)

// Actions lists every known action.
func Actions() []Action {
	return []Action{ActionView, ActionList, ActionCreate, ActionUpdate, ActionDelete, ActionAdmin}
}

// Valid reports whether the action belongs to the closed enumeration.
func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionList, ActionCreate, ActionUpdate, ActionDelete, ActionAdmin:
		return true
	}
	return false
}

// Mutating reports whether the action changes state. Mutating decisions
// must be audited synchronously before the caller proceeds.
func (a Action) Mutating() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionAdmin:
		return true
	}
	return false
}

// Scope is the breadth of data a decision grants. Values are totally
// ordered: Own < Team < Organization < Global.
type Scope uint8

const (
	// ScopeNone is the zero value and never granted.
	ScopeNone Scope = iota
	ScopeOwn
	ScopeTeam
	ScopeOrganization
	ScopeGlobal
)

// AtLeast reports whether s covers at least other.
func (s Scope) AtLeast(other Scope) bool { return s >= other }

// MinScope returns the narrower of two scopes.
func MinScope(a, b Scope) Scope {
	if a < b {
		return a
	}
	return b
}

func (s Scope) String() string {
	switch s {
	case ScopeOwn:
		return "own"
	case ScopeTeam:
		return "team"
	case ScopeOrganization:
		return "organization"
	case ScopeGlobal:
		return "global"
	}
	return "none"
}

// ParseScope maps a wire value to a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "own":
		return ScopeOwn, nil
	case "team":
		return ScopeTeam, nil
	case "organization":
		return ScopeOrganization, nil
	case "global":
		return ScopeGlobal, nil
	}
	return ScopeNone, fmt.Errorf("authz: unknown scope %q", s)
}

// Tier is a subscription tier, totally ordered Free < Pro < Enterprise.
type Tier uint8

const (
	TierFree Tier = iota
	TierPro
	TierEnterprise
)

// IsAtLeast is the only ordering primitive exposed for tiers.
func (t Tier) IsAtLeast(other Tier) bool { return t >= other }

func (t Tier) String() string {
	switch t {
	case TierFree:
		return "free"
	case TierPro:
		return "pro"
	case TierEnterprise:
		return "enterprise"
	}
	return "unknown"
}

// ParseTier maps a wire value to a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "free":
		return TierFree, nil
	case "pro":
		return TierPro, nil
	case "enterprise":
		return TierEnterprise, nil
	}
	return TierFree, fmt.Errorf("authz: unknown subscription tier %q", s)
}

// RoleID names a role. Roles themselves are data records owned by the
// role registry; these constants cover the seeded defaults.
type RoleID string

const (
	RoleViewer      RoleID = "viewer"
	RoleMember      RoleID = "member"
	RoleManager     RoleID = "manager"
	RoleOrgAdmin    RoleID = "org_admin"
	RoleSystemAdmin RoleID = "system_admin"
)

// Visibility describes who a resource is shared with.
type Visibility string

const (
	VisibilityPersonal     Visibility = "personal"
	VisibilityTeam         Visibility = "team"
	VisibilityOrganization Visibility = "organization"
)

// UserContext carries the validated identity claims of the acting
// subject. It is supplied by the authentication layer; the engine never
// inspects tokens itself.
type UserContext struct {
	UserID uuid.UUID
	Role   RoleID
	Tier   Tier
}

// TargetRef describes the resource a decision is about, never the actor.
type TargetRef struct {
	OwnerID        uuid.UUID
	TeamID         *uuid.UUID
	OrganizationID *uuid.UUID
	Visibility     Visibility
}

// Validate rejects structurally inconsistent references. A malformed
// target is a validation error and must fail closed upstream.
func (t TargetRef) Validate() error {
	switch t.Visibility {
	case VisibilityPersonal:
	case VisibilityTeam:
		if t.TeamID == nil {
			return fmt.Errorf("%w: team visibility requires team id", ErrValidation)
		}
	case VisibilityOrganization:
		if t.OrganizationID == nil {
			return fmt.Errorf("%w: organization visibility requires organization id", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown visibility %q", ErrValidation, t.Visibility)
	}
	if t.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: target owner required", ErrValidation)
	}
	return nil
}

// PermKey addresses one (resource, action) cell in a permission table.
type PermKey struct {
	Resource Resource
	Action   Action
}

// ScopeKind distinguishes the two membership containers.
type ScopeKind string

const (
	ScopeKindTeam         ScopeKind = "team"
	ScopeKindOrganization ScopeKind = "organization"
)

// Membership ties a subject to a team or organization with a role held
// inside that container. A user holds zero or more memberships.
type Membership struct {
	SubjectID   uuid.UUID
	ScopeKind   ScopeKind
	ScopeID     uuid.UUID
	RoleInScope RoleID
}
