// Package hierarchy resolves effective permissions across the
// organization → department → team inheritance chain, applying versioned
// permission-matrix overrides with explicit overridability.
package hierarchy

import (
	"time"

	"github.com/google/uuid"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// MaxDepartmentDepth bounds the parent chain. Cycles are rejected when a
// department is created, never discovered during a decision.
const MaxDepartmentDepth = 32

// EntityType names a level of the hierarchy.
type EntityType string

const (
	EntityOrganization EntityType = "organization"
	EntityDepartment   EntityType = "department"
	EntityTeam         EntityType = "team"
)

// Organization is the tenancy root.
type Organization struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// Department is a tree node under an organization. Following the parent
// pointer from any node terminates within MaxDepartmentDepth.
type Department struct {
	ID                 uuid.UUID
	OrganizationID     uuid.UUID
	ParentDepartmentID *uuid.UUID
	Name               string
	ComplianceSettings map[string]string
	CreatedAt          time.Time
}

// Team belongs to an organization, optionally under a department.
type Team struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	DepartmentID   *uuid.UUID
	Name           string
	CreatedAt      time.Time
}

// Override replaces or narrows the base permission for one
// (resource, action) cell at a hierarchy level.
type Override struct {
	Allowed  bool
	MaxScope *authz.Scope
	Quota    *authz.Quota
}

// MatrixEntry is one row of the permission matrix: the overrides an
// entity declares for a role. Unique per (entity type, entity id, role);
// Version is a monotonically increasing optimistic-lock counter. When
// AllowChildOverride is false the entry's rules are final for every
// level below it.
type MatrixEntry struct {
	EntityType         EntityType
	EntityID           uuid.UUID
	Role               authz.RoleID
	Permissions        map[authz.PermKey]Override
	Version            int64
	AllowChildOverride bool
	UpdatedAt          time.Time
}
