package scope

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

var (
	userID  = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	otherID = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
	teamID  = uuid.MustParse("bbbbbbbb-0000-0000-0000-000000000001")
	orgID   = uuid.MustParse("cccccccc-0000-0000-0000-000000000001")
)

func user() authz.UserContext {
	return authz.UserContext{UserID: userID, Role: authz.RoleMember, Tier: authz.TierPro}
}

func teamMembership() authz.Membership {
	return authz.Membership{SubjectID: userID, ScopeKind: authz.ScopeKindTeam, ScopeID: teamID, RoleInScope: authz.RoleMember}
}

func orgMembership() authz.Membership {
	return authz.Membership{SubjectID: userID, ScopeKind: authz.ScopeKindOrganization, ScopeID: orgID, RoleInScope: authz.RoleMember}
}

func TestResolveOwnerAlwaysGetsOwn(t *testing.T) {
	// Ownership wins even when broader scopes would also match.
	target := authz.TargetRef{OwnerID: userID, TeamID: &teamID, Visibility: authz.VisibilityTeam}
	got, ok := Resolve(user(), []authz.Membership{teamMembership()}, target)
	require.True(t, ok)
	require.Equal(t, authz.ScopeOwn, got, "the returned scope must be the minimal one that grants access")
}

func TestResolveTeamVisibility(t *testing.T) {
	target := authz.TargetRef{OwnerID: otherID, TeamID: &teamID, Visibility: authz.VisibilityTeam}

	got, ok := Resolve(user(), []authz.Membership{teamMembership()}, target)
	require.True(t, ok)
	require.Equal(t, authz.ScopeTeam, got)

	// Without the membership, the target is invisible.
	_, ok = Resolve(user(), nil, target)
	require.False(t, ok)

	// Membership in a different team does not help.
	other := authz.Membership{SubjectID: userID, ScopeKind: authz.ScopeKindTeam, ScopeID: uuid.New()}
	_, ok = Resolve(user(), []authz.Membership{other}, target)
	require.False(t, ok)
}

func TestResolveOrganizationVisibility(t *testing.T) {
	target := authz.TargetRef{OwnerID: otherID, OrganizationID: &orgID, Visibility: authz.VisibilityOrganization}

	got, ok := Resolve(user(), []authz.Membership{orgMembership()}, target)
	require.True(t, ok)
	require.Equal(t, authz.ScopeOrganization, got)

	_, ok = Resolve(user(), []authz.Membership{teamMembership()}, target)
	require.False(t, ok)
}

func TestResolvePersonalTargetOfSomeoneElseIsInvisible(t *testing.T) {
	// Roles never widen visibility: even a broad membership set cannot
	// see another user's personal work.
	target := authz.TargetRef{OwnerID: otherID, Visibility: authz.VisibilityPersonal}
	_, ok := Resolve(user(), []authz.Membership{teamMembership(), orgMembership()}, target)
	require.False(t, ok)
}

func TestListScopeCapping(t *testing.T) {
	memberships := []authz.Membership{teamMembership(), orgMembership()}

	// Memberships reach Organization, but the free tier caps at Own.
	got := ListScope(memberships, authz.ScopeOrganization, authz.ScopeOwn)
	require.Equal(t, authz.ScopeOwn, got)

	// Pro caps at Team.
	got = ListScope(memberships, authz.ScopeOrganization, authz.ScopeTeam)
	require.Equal(t, authz.ScopeTeam, got)

	// Enterprise lets memberships and role decide.
	got = ListScope(memberships, authz.ScopeOrganization, authz.ScopeGlobal)
	require.Equal(t, authz.ScopeOrganization, got)

	// A narrow role cap binds before anything else.
	got = ListScope(memberships, authz.ScopeOwn, authz.ScopeGlobal)
	require.Equal(t, authz.ScopeOwn, got)
}

func TestListScopeWithoutMemberships(t *testing.T) {
	got := ListScope(nil, authz.ScopeGlobal, authz.ScopeGlobal)
	require.Equal(t, authz.ScopeOwn, got, "no memberships means own work only")
}
