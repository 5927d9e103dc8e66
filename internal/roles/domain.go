package roles

import (
	"time"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// PermKey aliases the shared permission-table key.
type PermKey = authz.PermKey

// ScopeSpec is the grant stored per (resource, action) cell: the widest
// scope the role may operate at, and whether the grant is exempt from
// subscription gating (read-own style actions stay free on every tier).
type ScopeSpec struct {
	MaxScope   authz.Scope
	TierExempt bool
}

// Role is a plain data record. Roles are administrator-managed and
// read-mostly; the registry holds them immutable until explicitly
// invalidated.
type Role struct {
	ID              authz.RoleID
	Name            string
	Description     string
	BasePermissions map[PermKey]ScopeSpec
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
