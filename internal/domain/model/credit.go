package model

import "time"

type PlanType string

const (
	PlanFree    PlanType = "free"
	PlanPro     PlanType = "pro"
	PlanPremium PlanType = "premium"
)

// CreditLedgerEntry is one row of user_credits: the per-feature balances a
// user has left in the current reset window. Balances are only ever moved
// through the two-phase reserve protocol (CanLaunch pre-check, then an
// atomic Engage tagged with the job id), so a balance never goes negative
// and a job id decrements a feature at most once.
type CreditLedgerEntry struct {
	UserID        string
	PlanType      PlanType
	Remaining     map[Feature]int
	LastResetDate time.Time
}

// RemainingFor returns the balance for a feature, zero when the feature has
// never been granted.
func (c *CreditLedgerEntry) RemainingFor(f Feature) int {
	if c == nil || c.Remaining == nil {
		return 0
	}
	return c.Remaining[f]
}

// PlanGrants is the per-feature allowance refilled on each ledger reset.
func PlanGrants(p PlanType) map[Feature]int {
	switch p {
	case PlanPremium:
		return map[Feature]int{
			FeatureChartAnalysis:   200,
			FeaturePortfolioReview: 100,
			FeatureMarketReport:    60,
			FeatureBacktest:        40,
		}
	case PlanPro:
		return map[Feature]int{
			FeatureChartAnalysis:   60,
			FeaturePortfolioReview: 30,
			FeatureMarketReport:    15,
			FeatureBacktest:        10,
		}
	default:
		return map[Feature]int{
			FeatureChartAnalysis:   10,
			FeaturePortfolioReview: 5,
			FeatureMarketReport:    2,
			FeatureBacktest:        1,
		}
	}
}
