// Package entitlement resolves subscription tiers to usage privileges.
// Tier tables are built by additive overlay over the next-lower tier, so
// the monotonicity guarantee (a higher tier never grants less) holds by
// construction rather than by review.
package entitlement

import (
	"fmt"

	"github.com/taskforge-hq/taskforge/internal/authz"
)

// Resolver answers privilege lookups per (tier, resource, action).
type Resolver struct {
	tables map[authz.Tier]map[authz.PermKey]authz.Privilege
}

// Lookup returns the privilege the tier holds for the pair, or false when
// the tier has no grant. Absence means the action is gated behind a
// higher tier.
func (r *Resolver) Lookup(tier authz.Tier, resource authz.Resource, action authz.Action) (authz.Privilege, bool) {
	table, ok := r.tables[tier]
	if !ok {
		return authz.Privilege{}, false
	}
	priv, ok := table[authz.PermKey{Resource: resource, Action: action}]
	if !ok {
		return authz.Privilege{}, false
	}
	return priv.Clone(), true
}

// ScopeCap returns the widest visibility scope the tier may list at.
func ScopeCap(tier authz.Tier) authz.Scope {
	switch {
	case tier.IsAtLeast(authz.TierEnterprise):
		return authz.ScopeGlobal
	case tier.IsAtLeast(authz.TierPro):
		return authz.ScopeTeam
	default:
		return authz.ScopeOwn
	}
}

// Builder assembles tier tables bottom-up. Each tier starts as a copy of
// the tier below it; Grant may add new privileges or relax existing
// quotas but can never tighten one inherited from a lower tier.
type Builder struct {
	tables map[authz.Tier]map[authz.PermKey]authz.Privilege
	err    error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{tables: map[authz.Tier]map[authz.PermKey]authz.Privilege{
		authz.TierFree:       {},
		authz.TierPro:        {},
		authz.TierEnterprise: {},
	}}
}

// Grant installs a privilege at tier and every tier above it. When the
// pair already carries a privilege at a given tier the quotas are merged
// by field-wise maximum (union for features), keeping overlays additive.
func (b *Builder) Grant(tier authz.Tier, resource authz.Resource, action authz.Action, priv authz.Privilege) *Builder {
	if b.err != nil {
		return b
	}
	if !resource.Valid() || !action.Valid() {
		b.err = fmt.Errorf("entitlement: grant on unknown pair (%s, %s)", resource, action)
		return b
	}
	key := authz.PermKey{Resource: resource, Action: action}
	for _, t := range []authz.Tier{authz.TierFree, authz.TierPro, authz.TierEnterprise} {
		if !t.IsAtLeast(tier) {
			continue
		}
		priv := priv.Clone()
		priv.Tier = tier
		if existing, ok := b.tables[t][key]; ok {
			priv = relax(existing, priv)
		}
		b.tables[t][key] = priv
	}
	return b
}

// Build finalizes the tables.
func (b *Builder) Build() (*Resolver, error) {
	if b.err != nil {
		return nil, b.err
	}
	return &Resolver{tables: b.tables}, nil
}

// relax merges an overlay into an inherited privilege, taking the less
// restrictive value for every quota field.
func relax(base, overlay authz.Privilege) authz.Privilege {
	out := overlay
	if base.Quota == nil || overlay.Quota == nil {
		// nil quota means unlimited and cannot be tightened.
		out.Quota = nil
		return out
	}
	out.Quota = &authz.Quota{
		MaxItems:  maxIntPtr(base.Quota.MaxItems, overlay.Quota.MaxItems),
		RateLimit: maxIntPtr(base.Quota.RateLimit, overlay.Quota.RateLimit),
		Features:  unionFeatures(base.Quota.Features, overlay.Quota.Features),
	}
	return out
}

func maxIntPtr(a, b *int) *int {
	if a == nil || b == nil {
		return nil
	}
	v := *a
	if *b > v {
		v = *b
	}
	return &v
}

func unionFeatures(a, b authz.FeatureSet) authz.FeatureSet {
	out := make(authz.FeatureSet, len(a)+len(b))
	for f := range a {
		out[f] = struct{}{}
	}
	for f := range b {
		out[f] = struct{}{}
	}
	return out
}
