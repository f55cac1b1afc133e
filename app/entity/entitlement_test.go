package entity

import (
	"testing"
	"time"
)

func TestEntitlementActive(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	tests := []struct {
		name string
		ent  *Entitlement
		want bool
	}{
		{name: "nil", ent: nil, want: false},
		{name: "free", ent: &Entitlement{Plan: PlanFree, SubscriptionExpiry: &future}, want: false},
		{name: "premium without expiry", ent: &Entitlement{Plan: PlanPremium}, want: false},
		{name: "premium lapsed", ent: &Entitlement{Plan: PlanPremium, SubscriptionExpiry: &past}, want: false},
		{name: "premium active", ent: &Entitlement{Plan: PlanPremium, SubscriptionExpiry: &future}, want: true},
	}

	for _, tt := range tests {
		if got := tt.ent.Active(now); got != tt.want {
			t.Fatalf("%s: Active() = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestNormalizePlan(t *testing.T) {
	if NormalizePlan(" Premium ") != PlanPremium {
		t.Fatal("expected premium")
	}
	if NormalizePlan("gold") != PlanFree {
		t.Fatal("expected unknown plans to normalize to free")
	}
}

func TestCampaignPeriodUsesUTC(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	ts := time.Date(2026, 11, 1, 2, 0, 0, 0, loc)
	if got := CampaignPeriod(ts); got != "2026-10" {
		t.Fatalf("expected UTC period 2026-10, got %s", got)
	}
}
