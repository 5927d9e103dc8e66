package entitlement

import "github.com/taskforge-hq/taskforge/internal/authz"

func intPtr(v int) *int { return &v }

// DefaultResolver builds the shipped tier tables. Quotas only ever widen
// going up: Free caps work items at 100, Pro at 1000, Enterprise is
// unbounded.
func DefaultResolver() (*Resolver, error) {
	b := NewBuilder()

	freeQuota := func() *authz.Quota {
		return &authz.Quota{MaxItems: intPtr(100), RateLimit: intPtr(60), Features: authz.NewFeatureSet()}
	}
	proQuota := func() *authz.Quota {
		return &authz.Quota{
			MaxItems:  intPtr(1000),
			RateLimit: intPtr(600),
			Features:  authz.NewFeatureSet(authz.FeatureCustomFields, authz.FeatureBulkEdit, authz.FeatureAttachments),
		}
	}
	enterpriseQuota := func() *authz.Quota {
		return &authz.Quota{
			Features: authz.NewFeatureSet(
				authz.FeatureCustomFields, authz.FeatureBulkEdit, authz.FeatureAttachments,
				authz.FeatureGanttView, authz.FeatureAdvancedReports, authz.FeatureAPIAccess),
		}
	}

	// Core work-item flows are available from the free tier.
	for _, res := range []authz.Resource{authz.ResourceTask, authz.ResourceProject, authz.ResourceComment} {
		for _, act := range []authz.Action{authz.ActionView, authz.ActionList, authz.ActionCreate, authz.ActionUpdate} {
			b.Grant(authz.TierFree, res, act, authz.Privilege{Name: grantName(res, act), Quota: freeQuota()})
		}
	}

	// Container administration is role-gated, not tier-gated.
	for _, res := range []authz.Resource{authz.ResourceTeam, authz.ResourceOrganization} {
		for _, act := range authz.Actions() {
			b.Grant(authz.TierFree, res, act, authz.Privilege{Name: grantName(res, act), Quota: freeQuota()})
		}
	}

	// Pro unlocks attachments, deletes and reports, and widens quotas.
	for _, res := range []authz.Resource{authz.ResourceTask, authz.ResourceProject, authz.ResourceComment} {
		for _, act := range []authz.Action{authz.ActionView, authz.ActionList, authz.ActionCreate, authz.ActionUpdate, authz.ActionDelete} {
			b.Grant(authz.TierPro, res, act, authz.Privilege{Name: grantName(res, act), Quota: proQuota()})
		}
	}
	for _, act := range []authz.Action{authz.ActionView, authz.ActionList, authz.ActionCreate, authz.ActionUpdate, authz.ActionDelete} {
		b.Grant(authz.TierPro, authz.ResourceAttachment, act, authz.Privilege{Name: grantName(authz.ResourceAttachment, act), Quota: proQuota()})
	}
	for _, act := range []authz.Action{authz.ActionView, authz.ActionList} {
		b.Grant(authz.TierPro, authz.ResourceReport, act, authz.Privilege{Name: grantName(authz.ResourceReport, act), Quota: proQuota()})
	}

	// Enterprise removes item caps and enables the full feature set.
	for _, res := range authz.Resources() {
		for _, act := range authz.Actions() {
			b.Grant(authz.TierEnterprise, res, act, authz.Privilege{Name: grantName(res, act), Quota: enterpriseQuota()})
		}
	}

	return b.Build()
}

func grantName(res authz.Resource, act authz.Action) string {
	return string(res) + "." + string(act)
}
