package hierarchy

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// Effective is the outcome of a hierarchy walk for one
// (role, resource, action) tuple.
type Effective struct {
	// Override is the most specific honored override, nil when no level
	// declares one for the tuple.
	Override *Override
	// Quota is the field-wise minimum across every honored layer that
	// constrains the tuple; nil when no layer does.
	Quota *authz.Quota
}

// EffectivePermission walks organization → departments (outermost to the
// target's department) → team and folds the matrix rows for the tuple.
//
// Specificity precedence is team > department > organization, but an
// entry at a level is honored only while no less-specific entry has
// locked the tuple with AllowChildOverride=false. Locks apply to the
// (resource, action) cell across role rows: an organization-wide
// compliance rule cannot be escaped by declaring the override under a
// different role.
//
// Dangling department or team references are resolution errors, not "no
// override": callers must fail closed.
func EffectivePermission(snap *Snapshot, orgID uuid.UUID, deptID, teamID *uuid.UUID, role authz.RoleID, resource authz.Resource, action authz.Action) (Effective, error) {
	if snap == nil {
		return Effective{}, fmt.Errorf("hierarchy: %w: no snapshot", authz.ErrUnavailable)
	}
	if snap.Organization.ID != orgID {
		return Effective{}, fmt.Errorf("hierarchy: %w: organization %s", authz.ErrNotFound, orgID)
	}

	chain, err := levelChain(snap, deptID, teamID)
	if err != nil {
		return Effective{}, err
	}

	key := authz.PermKey{Resource: resource, Action: action}
	var (
		eff    Effective
		locked bool
	)
	for _, level := range chain {
		if locked {
			break
		}
		// The role's own row at this level.
		if entry, ok := snap.Entry(level.Type, level.ID, role); ok {
			if ov, has := entry.Permissions[key]; has {
				ov := ov
				eff.Override = &ov
				eff.Quota = authz.MergeQuotas(eff.Quota, ov.Quota)
			}
		}
		// Any row at this level may lock the cell for everything below.
		for _, entry := range snap.EntriesAt(level.Type, level.ID) {
			if _, has := entry.Permissions[key]; has && !entry.AllowChildOverride {
				locked = true
			}
		}
	}
	return eff, nil
}

type levelRef struct {
	Type EntityType
	ID   uuid.UUID
}

// levelChain orders the applicable levels least specific first:
// organization, then the department chain outermost to innermost, then
// the team.
func levelChain(snap *Snapshot, deptID, teamID *uuid.UUID) ([]levelRef, error) {
	chain := []levelRef{{Type: EntityOrganization, ID: snap.Organization.ID}}

	var team *Team
	if teamID != nil {
		t, ok := snap.Teams[*teamID]
		if !ok {
			return nil, fmt.Errorf("hierarchy: %w: team %s", authz.ErrNotFound, *teamID)
		}
		team = &t
	}

	start := deptID
	if start == nil && team != nil {
		start = team.DepartmentID
	}
	if start != nil {
		depts, err := departmentChain(snap, *start)
		if err != nil {
			return nil, err
		}
		// departmentChain yields innermost first; append outermost first.
		for i := len(depts) - 1; i >= 0; i-- {
			chain = append(chain, levelRef{Type: EntityDepartment, ID: depts[i]})
		}
	}
	if team != nil {
		chain = append(chain, levelRef{Type: EntityTeam, ID: team.ID})
	}
	return chain, nil
}

// departmentChain walks parent pointers from the given department to the
// root, innermost first. The depth bound is a hard stop; cycles cannot
// be persisted, so hitting it means the snapshot is corrupt.
func departmentChain(snap *Snapshot, id uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	cur := &id
	for depth := 0; cur != nil; depth++ {
		if depth >= MaxDepartmentDepth {
			return nil, fmt.Errorf("hierarchy: %w: department chain from %s exceeds depth %d", authz.ErrValidation, id, MaxDepartmentDepth)
		}
		d, ok := snap.Departments[*cur]
		if !ok {
			return nil, fmt.Errorf("hierarchy: %w: department %s", authz.ErrNotFound, *cur)
		}
		out = append(out, d.ID)
		cur = d.ParentDepartmentID
	}
	return out, nil
}
