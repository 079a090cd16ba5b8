package auth

import "strings"

const (
	ScopeBillingRead         = "billing:read"
	ScopeBillingWrite        = "billing:write"
	ScopeSubscriptionsManage = "subscriptions:manage"
	ScopeAnalyticsRead       = "analytics:read"
	ScopeWebhooksReceive     = "webhooks:receive"
	ScopeFraudDetect         = "fraud:detect"
)

var knownScopes = map[string]bool{
	ScopeBillingRead:         true,
	ScopeBillingWrite:        true,
	ScopeSubscriptionsManage: true,
	ScopeAnalyticsRead:       true,
	ScopeWebhooksReceive:     true,
	ScopeFraudDetect:         true,
}

// KnownScope reports whether s is a scope this service grants.
func KnownScope(s string) bool {
	return knownScopes[s]
}

// ParseScope splits a space-delimited scope string, dropping duplicates
// and keeping first-seen order.
func ParseScope(scope string) []string {
	fields := strings.Fields(scope)
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func JoinScope(scopes []string) string {
	return strings.Join(scopes, " ")
}

// HasScope reports whether the granted scope string contains want.
func HasScope(granted, want string) bool {
	for _, s := range strings.Fields(granted) {
		if s == want {
			return true
		}
	}
	return false
}

// HasAnyScope reports whether granted contains at least one of wants.
func HasAnyScope(granted string, wants ...string) bool {
	for _, w := range wants {
		if HasScope(granted, w) {
			return true
		}
	}
	return false
}
