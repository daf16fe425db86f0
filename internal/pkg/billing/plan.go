package billing

import (
	"strings"

	"github.com/ManuelReschke/ClipFox/app/models"
	"github.com/ManuelReschke/ClipFox/internal/pkg/entitlements"
)

func normalizePlan(plan string) string {
	switch strings.ToLower(strings.TrimSpace(plan)) {
	case string(entitlements.PlanPremium):
		return string(entitlements.PlanPremium)
	case string(entitlements.PlanPremiumMax):
		return string(entitlements.PlanPremiumMax)
	default:
		return string(entitlements.PlanFree)
	}
}

func planRank(plan string) int {
	switch normalizePlan(plan) {
	case string(entitlements.PlanPremiumMax):
		return 2
	case string(entitlements.PlanPremium):
		return 1
	default:
		return 0
	}
}

func normalizeCycle(cycle string) string {
	c := strings.ToLower(strings.TrimSpace(cycle))
	switch c {
	case models.BillingCycleMonth, models.BillingCycleYear:
		return c
	default:
		return "unknown"
	}
}
