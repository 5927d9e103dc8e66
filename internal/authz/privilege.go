package authz

// FeatureFlag names a product capability toggled by entitlements.
type FeatureFlag string

const (
	FeatureAttachments     FeatureFlag = "attachments"
	FeatureCustomFields    FeatureFlag = "custom_fields"
	FeatureGanttView       FeatureFlag = "gantt_view"
	FeatureBulkEdit        FeatureFlag = "bulk_edit"
	FeatureAdvancedReports FeatureFlag = "advanced_reports"
	FeatureAPIAccess       FeatureFlag = "api_access"
)

// FeatureSet is an immutable-by-convention set of feature flags.
type FeatureSet map[FeatureFlag]struct{}

// NewFeatureSet builds a set from the given flags.
func NewFeatureSet(flags ...FeatureFlag) FeatureSet {
	set := make(FeatureSet, len(flags))
	for _, f := range flags {
		set[f] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s FeatureSet) Has(f FeatureFlag) bool {
	_, ok := s[f]
	return ok
}

// Clone returns an independent copy.
func (s FeatureSet) Clone() FeatureSet {
	if s == nil {
		return nil
	}
	out := make(FeatureSet, len(s))
	for f := range s {
		out[f] = struct{}{}
	}
	return out
}

// IntersectFeatures returns flags present in both sets. A nil set means
// "no restriction declared" and leaves the other side untouched.
func IntersectFeatures(a, b FeatureSet) FeatureSet {
	if a == nil {
		return b.Clone()
	}
	if b == nil {
		return a.Clone()
	}
	out := make(FeatureSet)
	for f := range a {
		if _, ok := b[f]; ok {
			out[f] = struct{}{}
		}
	}
	return out
}

// Quota bounds usage for a privilege. Nil fields mean unlimited.
type Quota struct {
	MaxItems  *int
	RateLimit *int
	Features  FeatureSet
}

// MergeQuotas combines quotas from independently applicable layers.
// Numeric fields take the field-wise minimum and features intersect, so
// the most restrictive layer always wins. The operation is associative
// and commutative, making the merge order irrelevant.
func MergeQuotas(a, b *Quota) *Quota {
	if a == nil {
		return cloneQuota(b)
	}
	if b == nil {
		return cloneQuota(a)
	}
	return &Quota{
		MaxItems:  minIntPtr(a.MaxItems, b.MaxItems),
		RateLimit: minIntPtr(a.RateLimit, b.RateLimit),
		Features:  IntersectFeatures(a.Features, b.Features),
	}
}

func cloneQuota(q *Quota) *Quota {
	if q == nil {
		return nil
	}
	out := &Quota{Features: q.Features.Clone()}
	if q.MaxItems != nil {
		v := *q.MaxItems
		out.MaxItems = &v
	}
	if q.RateLimit != nil {
		v := *q.RateLimit
		out.RateLimit = &v
	}
	return out
}

func minIntPtr(a, b *int) *int {
	if a == nil && b == nil {
		return nil
	}
	if a == nil {
		v := *b
		return &v
	}
	if b == nil {
		v := *a
		return &v
	}
	v := *a
	if *b < v {
		v = *b
	}
	return &v
}

// Privilege is a named entitlement bundle gated by subscription tier.
type Privilege struct {
	Name  string
	Tier  Tier
	Quota *Quota
}

// Clone returns an independent copy so decisions stay immutable even if
// a caller mutates the returned quota.
func (p Privilege) Clone() Privilege {
	return Privilege{Name: p.Name, Tier: p.Tier, Quota: cloneQuota(p.Quota)}
}
