package entitlements

import "strings"

// Tier is the subscription level controlling content access. Tiers are
// totally ordered: free < basic < pro < premium.
type Tier string

const (
	TierFree    Tier = "free"
	TierBasic   Tier = "basic"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// AllTiers lists the known tiers in ascending order.
var AllTiers = []Tier{TierFree, TierBasic, TierPro, TierPremium}

// ParseTier normalizes an arbitrary string into a known tier. Unknown or
// empty input is a valid outcome and maps to TierFree.
func ParseTier(s string) Tier {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case string(TierBasic):
		return TierBasic
	case string(TierPro):
		return TierPro
	case string(TierPremium):
		return TierPremium
	default:
		return TierFree
	}
}

// Rank returns the ordinal position of a tier within the ordering.
func Rank(t Tier) int {
	switch ParseTier(string(t)) {
	case TierPremium:
		return 3
	case TierPro:
		return 2
	case TierBasic:
		return 1
	default:
		return 0
	}
}

// HasAccess reports whether a reader with userTier may view content gated at
// contentTier.
func HasAccess(userTier, contentTier Tier) bool {
	return Rank(userTier) >= Rank(contentTier)
}

// IsPaid reports whether the tier represents a paid subscription.
func IsPaid(t Tier) bool {
	return Rank(t) > 0
}
