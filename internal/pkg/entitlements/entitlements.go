package entitlements

import "strings"

type Plan string

const (
	PlanFree       Plan = "free"
	PlanPremium    Plan = "premium"
	PlanPremiumMax Plan = "premium_max"
)

// ParsePlan normalizes arbitrary plan strings to a known plan.
func ParsePlan(raw string) Plan {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PlanPremium):
		return PlanPremium
	case string(PlanPremiumMax):
		return PlanPremiumMax
	default:
		return PlanFree
	}
}

// ConcurrentJobLimit returns how many non-terminal generation jobs a user
// on the given plan may have at the same time.
func ConcurrentJobLimit(plan Plan) int {
	switch plan {
	case PlanPremiumMax:
		return 6
	case PlanPremium:
		return 3
	default:
		return 2
	}
}

// MonthlyCredits returns the credit grant applied per billing month.
func MonthlyCredits(plan Plan) int64 {
	switch plan {
	case PlanPremiumMax:
		return 2000
	case PlanPremium:
		return 600
	default:
		return 50
	}
}

// CreditValidityDays returns how long a monthly credit package stays
// spendable after it is granted.
func CreditValidityDays(plan Plan) int {
	switch plan {
	case PlanPremiumMax, PlanPremium:
		return 60
	default:
		return 30
	}
}

// CreditCost returns the ledger cost of one generation job.
func CreditCost(jobType string) int64 {
	switch strings.ToLower(strings.TrimSpace(jobType)) {
	case "video":
		return 10
	default: // image
		return 5
	}
}
