package domain

import "testing"

func TestCapabilitiesForStarterDeniesEverything(t *testing.T) {
	caps := CapabilitiesFor(TierStarter)
	if caps.MarketContext || caps.ProfileEnrichment {
		t.Fatalf("starter should have no capabilities: %+v", caps)
	}
	if len(caps.Providers) != 0 {
		t.Fatalf("starter should have no providers: %v", caps.Providers)
	}
	if caps.AllowsProvider(ProviderQuotes) {
		t.Fatal("starter should not allow any provider")
	}
}

func TestCapabilitiesForUnknownTierFallsBackToNone(t *testing.T) {
	caps := CapabilitiesFor(Tier("enterprise"))
	if caps.MarketContext || caps.ProfileEnrichment || len(caps.Providers) != 0 {
		t.Fatalf("unknown tier should get empty capabilities: %+v", caps)
	}
}

func TestCapabilitiesAreMonotonic(t *testing.T) {
	for i := 1; i < len(Tiers); i++ {
		lower := CapabilitiesFor(Tiers[i-1])
		higher := CapabilitiesFor(Tiers[i])

		if lower.MarketContext && !higher.MarketContext {
			t.Fatalf("%s loses market context over %s", Tiers[i], Tiers[i-1])
		}
		if lower.ProfileEnrichment && !higher.ProfileEnrichment {
			t.Fatalf("%s loses profile enrichment over %s", Tiers[i], Tiers[i-1])
		}
		for _, p := range lower.Providers {
			if !higher.AllowsProvider(p) {
				t.Fatalf("%s loses provider %s over %s", Tiers[i], p, Tiers[i-1])
			}
		}
	}
}

func TestCapabilitiesForReturnsCopy(t *testing.T) {
	caps := CapabilitiesFor(TierPremium)
	if len(caps.Providers) == 0 {
		t.Fatal("premium should allow providers")
	}
	caps.Providers[0] = "mutated"
	if CapabilitiesFor(TierPremium).Providers[0] == "mutated" {
		t.Fatal("matrix row must not be mutable through the returned value")
	}
}

func TestTierRankOrdering(t *testing.T) {
	if TierStarter.Rank() >= TierStandard.Rank() || TierStandard.Rank() >= TierPremium.Rank() {
		t.Fatal("tier ranks must be strictly increasing")
	}
	if Tier("bogus").Rank() != -1 {
		t.Fatal("unknown tier should rank -1")
	}
}

func TestQuestionRequestValidate(t *testing.T) {
	valid := QuestionRequest{Question: "how am I doing?", Tier: TierStandard, UserID: "u1"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := []QuestionRequest{
		{Tier: TierStandard, UserID: "u1"},
		{Question: "q", Tier: Tier("gold"), UserID: "u1"},
		{Question: "q", Tier: TierStarter},
		{Question: "q", Tier: TierStarter, IsDemo: true},
	}
	for i, req := range cases {
		if err := req.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error for %+v", i, req)
		}
	}
}

func TestSessionKeySeparatesDemoFromUsers(t *testing.T) {
	demo := QuestionRequest{IsDemo: true, DemoSessionID: "abc"}
	user := QuestionRequest{UserID: "abc"}
	if demo.SessionKey() == user.SessionKey() {
		t.Fatal("demo and user sessions must not collide")
	}
}
