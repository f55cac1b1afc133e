package entity

import (
	"strings"
	"time"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

const campaignPeriodLayout = "2006-01"

type Entitlement struct {
	UserID string

	Plan               Plan
	SubscriptionExpiry *time.Time

	CampaignCount       int32
	CampaignCountPeriod string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether premium access is in effect at now.
func (e *Entitlement) Active(now time.Time) bool {
	if e == nil || e.Plan != PlanPremium || e.SubscriptionExpiry == nil {
		return false
	}
	return e.SubscriptionExpiry.After(now)
}

// EffectivePlan downgrades a lapsed premium record without waiting for the
// expire job.
func (e *Entitlement) EffectivePlan(now time.Time) Plan {
	if e.Active(now) {
		return PlanPremium
	}
	return PlanFree
}

func NormalizePlan(plan string) Plan {
	if strings.ToLower(strings.TrimSpace(plan)) == string(PlanPremium) {
		return PlanPremium
	}
	return PlanFree
}

// CampaignPeriod is the counter bucket (YYYY-MM, UTC) for t.
func CampaignPeriod(t time.Time) string {
	return t.UTC().Format(campaignPeriodLayout)
}

// FreeEntitlement is the view of a user with no entitlement row yet.
func FreeEntitlement(userID string, now time.Time) *Entitlement {
	return &Entitlement{
		UserID:              userID,
		Plan:                PlanFree,
		CampaignCountPeriod: CampaignPeriod(now),
	}
}
