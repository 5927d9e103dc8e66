package authz

// DenyCode is the closed enumeration of machine-readable denial codes.
// Clients branch on the code (e.g. prompting an upgrade on
// subscription_tier_too_low); the reason is free text for logs.
type DenyCode string

const (
	CodeInsufficientRole       DenyCode = "insufficient_role"
	CodeSubscriptionTierTooLow DenyCode = "subscription_tier_too_low"
	CodeOutOfScope             DenyCode = "out_of_scope"
	CodeQuotaExceeded          DenyCode = "quota_exceeded"
	CodeResolutionError        DenyCode = "resolution_error"
)

// Decision is the immutable outcome of a single authorization check.
type Decision struct {
	Allowed   bool
	Scope     Scope
	Privilege Privilege
	Code      DenyCode
	Reason    string
}

// Allow builds a granting decision.
func Allow(scope Scope, priv Privilege) Decision {
	return Decision{Allowed: true, Scope: scope, Privilege: priv.Clone()}
}

// Deny builds a fail-closed decision carrying a stable code.
func Deny(code DenyCode, reason string) Decision {
	return Decision{Allowed: false, Code: code, Reason: reason}
}
