package roles

import "github.com/taskforge-hq/taskforge/internal/authz"

// DefaultRoles returns the seeded role set shipped with a fresh install.
// Administrators extend these through the role store; the engine treats
// the result identically either way.
func DefaultRoles() []Role {
	return []Role{
		{
			ID:              authz.RoleViewer,
			Name:            "Viewer",
			Description:     "Read-only access to shared work",
			BasePermissions: grantReads(authz.ScopeOrganization),
		},
		{
			ID:          authz.RoleMember,
			Name:        "Member",
			Description: "Creates and edits work items",
			BasePermissions: merge(
				grantReads(authz.ScopeOrganization),
				grantWrites(authz.ScopeOrganization,
					authz.ResourceTask, authz.ResourceProject, authz.ResourceComment, authz.ResourceAttachment),
			),
		},
		{
			ID:          authz.RoleManager,
			Name:        "Manager",
			Description: "Member plus delete on work items",
			BasePermissions: merge(
				grantReads(authz.ScopeOrganization),
				grantWrites(authz.ScopeOrganization,
					authz.ResourceTask, authz.ResourceProject, authz.ResourceComment, authz.ResourceAttachment),
				grantDeletes(authz.ScopeOrganization,
					authz.ResourceTask, authz.ResourceProject, authz.ResourceComment, authz.ResourceAttachment),
			),
		},
		{
			ID:              authz.RoleOrgAdmin,
			Name:            "Organization Admin",
			Description:     "Full control inside the organization",
			BasePermissions: grantAll(authz.ScopeOrganization),
		},
	}
}

func grantReads(max authz.Scope) map[PermKey]ScopeSpec {
	perms := make(map[PermKey]ScopeSpec)
	for _, res := range authz.Resources() {
		// Viewing what you own never depends on the subscription tier.
		perms[PermKey{Resource: res, Action: authz.ActionView}] = ScopeSpec{MaxScope: max, TierExempt: true}
		perms[PermKey{Resource: res, Action: authz.ActionList}] = ScopeSpec{MaxScope: max}
	}
	return perms
}

func grantWrites(max authz.Scope, resources ...authz.Resource) map[PermKey]ScopeSpec {
	perms := make(map[PermKey]ScopeSpec)
	for _, res := range resources {
		perms[PermKey{Resource: res, Action: authz.ActionCreate}] = ScopeSpec{MaxScope: max}
		perms[PermKey{Resource: res, Action: authz.ActionUpdate}] = ScopeSpec{MaxScope: max}
	}
	return perms
}

func grantDeletes(max authz.Scope, resources ...authz.Resource) map[PermKey]ScopeSpec {
	perms := make(map[PermKey]ScopeSpec)
	for _, res := range resources {
		perms[PermKey{Resource: res, Action: authz.ActionDelete}] = ScopeSpec{MaxScope: max}
	}
	return perms
}

func grantAll(max authz.Scope) map[PermKey]ScopeSpec {
	perms := make(map[PermKey]ScopeSpec)
	for _, res := range authz.Resources() {
		for _, act := range authz.Actions() {
			spec := ScopeSpec{MaxScope: max}
			if act == authz.ActionView {
				spec.TierExempt = true
			}
			perms[PermKey{Resource: res, Action: act}] = spec
		}
	}
	return perms
}

func merge(tables ...map[PermKey]ScopeSpec) map[PermKey]ScopeSpec {
	out := make(map[PermKey]ScopeSpec)
	for _, t := range tables {
		for k, v := range t {
			out[k] = v
		}
	}
	return out
}
