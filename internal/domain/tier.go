package domain

type Tier string

const (
	TierStarter  Tier = "starter"
	TierStandard Tier = "standard"
	TierPremium  Tier = "premium"
)

var Tiers = []Tier{TierStarter, TierStandard, TierPremium}

func (t Tier) IsValid() bool {
	switch t {
	case TierStarter, TierStandard, TierPremium:
		return true
	}
	return false
}

// Rank orders tiers for the monotonicity invariant: capabilities never
// shrink as rank increases.
func (t Tier) Rank() int {
	switch t {
	case TierStarter:
		return 0
	case TierStandard:
		return 1
	case TierPremium:
		return 2
	}
	return -1
}

// Provider identifiers used in the capability matrix and cache keys.
const (
	ProviderIndicators = "indicators"
	ProviderQuotes     = "quotes"
	ProviderSearch     = "search"
)

// Capabilities is one row of the static tier capability matrix.
type Capabilities struct {
	MarketContext     bool
	ProfileEnrichment bool
	Providers         []string
}

func (c Capabilities) AllowsProvider(name string) bool {
	if !c.MarketContext {
		return false
	}
	for _, p := range c.Providers {
		if p == name {
			return true
		}
	}
	return false
}

var tierMatrix = map[Tier]Capabilities{
	TierStarter: {},
	TierStandard: {
		MarketContext:     true,
		ProfileEnrichment: true,
		Providers:         []string{ProviderQuotes, ProviderSearch},
	},
	TierPremium: {
		MarketContext:     true,
		ProfileEnrichment: true,
		Providers:         []string{ProviderIndicators, ProviderQuotes, ProviderSearch},
	},
}

// CapabilitiesFor is the tier gate: a pure lookup consulted before any
// provider call or profile enrichment. Unknown tiers get starter
// capabilities.
func CapabilitiesFor(tier Tier) Capabilities {
	caps, ok := tierMatrix[tier]
	if !ok {
		return Capabilities{}
	}
	out := caps
	out.Providers = append([]string(nil), caps.Providers...)
	return out
}
