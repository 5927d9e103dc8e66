package entitlement

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

func TestDefaultResolverScenarioQuotas(t *testing.T) {
	resolver, err := DefaultResolver()
	require.NoError(t, err)

	priv, ok := resolver.Lookup(authz.TierFree, authz.ResourceTask, authz.ActionList)
	require.True(t, ok, "free tier must list tasks")
	require.NotNil(t, priv.Quota)
	require.NotNil(t, priv.Quota.MaxItems)
	require.Equal(t, 100, *priv.Quota.MaxItems)

	_, ok = resolver.Lookup(authz.TierFree, authz.ResourceAttachment, authz.ActionCreate)
	require.False(t, ok, "attachments are gated behind pro")

	priv, ok = resolver.Lookup(authz.TierEnterprise, authz.ResourceTask, authz.ActionList)
	require.True(t, ok)
	require.Nil(t, priv.Quota.MaxItems, "enterprise item count is unbounded")
	require.True(t, priv.Quota.Features.Has(authz.FeatureAPIAccess))
}

// Monotonicity: every privilege granted at a tier exists at all higher
// tiers with quota limits that are equal or less restrictive.
func TestMonotonicityAcrossTiers(t *testing.T) {
	resolver, err := DefaultResolver()
	require.NoError(t, err)

	tiers := []authz.Tier{authz.TierFree, authz.TierPro, authz.TierEnterprise}
	for i, lower := range tiers {
		for _, higher := range tiers[i+1:] {
			for _, res := range authz.Resources() {
				for _, act := range authz.Actions() {
					lowPriv, ok := resolver.Lookup(lower, res, act)
					if !ok {
						continue
					}
					highPriv, ok := resolver.Lookup(higher, res, act)
					require.True(t, ok, "%s grants (%s,%s) but %s does not", lower, res, act, higher)
					requireNotTighter(t, lowPriv.Quota, highPriv.Quota)
				}
			}
		}
	}
}

func requireNotTighter(t *testing.T, low, high *authz.Quota) {
	t.Helper()
	if low == nil {
		require.Nil(t, high, "higher tier must stay unlimited")
		return
	}
	if high == nil {
		return
	}
	if high.MaxItems != nil {
		require.NotNil(t, low.MaxItems)
		require.GreaterOrEqual(t, *high.MaxItems, *low.MaxItems)
	}
	if high.RateLimit != nil {
		require.NotNil(t, low.RateLimit)
		require.GreaterOrEqual(t, *high.RateLimit, *low.RateLimit)
	}
	for f := range low.Features {
		require.True(t, high.Features.Has(f), "feature %s lost at higher tier", f)
	}
}

func TestBuilderOverlayNeverTightens(t *testing.T) {
	wide := &authz.Quota{MaxItems: intPtr(500), RateLimit: intPtr(100)}
	narrow := &authz.Quota{MaxItems: intPtr(10), RateLimit: intPtr(5)}

	resolver, err := NewBuilder().
		Grant(authz.TierFree, authz.ResourceTask, authz.ActionList, authz.Privilege{Name: "task.list", Quota: wide}).
		Grant(authz.TierPro, authz.ResourceTask, authz.ActionList, authz.Privilege{Name: "task.list", Quota: narrow}).
		Build()
	require.NoError(t, err)

	priv, ok := resolver.Lookup(authz.TierPro, authz.ResourceTask, authz.ActionList)
	require.True(t, ok)
	require.Equal(t, 500, *priv.Quota.MaxItems, "overlay must not tighten an inherited quota")
	require.Equal(t, 100, *priv.Quota.RateLimit)
}

func TestBuilderRejectsUnknownPair(t *testing.T) {
	_, err := NewBuilder().
		Grant(authz.TierFree, authz.Resource("widget"), authz.ActionList, authz.Privilege{Name: "widget.list"}).
		Build()
	require.Error(t, err)
}

func TestScopeCap(t *testing.T) {
	require.Equal(t, authz.ScopeOwn, ScopeCap(authz.TierFree))
	require.Equal(t, authz.ScopeTeam, ScopeCap(authz.TierPro))
	require.Equal(t, authz.ScopeGlobal, ScopeCap(authz.TierEnterprise))
}
