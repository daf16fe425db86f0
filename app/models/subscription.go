package models

import "time"

const (
	BillingCycleMonth = "month"
	BillingCycleYear  = "year"
)

const (
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription mirrors the billing collaborator's view of a user's plan.
// The ledger and poller only read it for tier and cycle information.
type Subscription struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	UserID            uint       `gorm:"not null;index" json:"user_id"`
	PlanTier          string     `gorm:"type:varchar(50);not null;default:'free'" json:"plan_tier"`
	BillingCycle      string     `gorm:"type:varchar(16);not null;default:'month'" json:"billing_cycle"`
	Status            string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	ExpiresAt         *time.Time `gorm:"type:timestamp;default:null" json:"expires_at,omitempty"`
	UnactivatedMonths int        `gorm:"not null;default:0" json:"unactivated_months"`
	ActivationDate    *time.Time `gorm:"type:timestamp;default:null" json:"activation_date,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsActive reports whether the subscription currently entitles the user.
func (s *Subscription) IsActive(now time.Time) bool {
	if s.Status != SubscriptionStatusActive {
		return false
	}
	if s.ExpiresAt != nil && !s.ExpiresAt.After(now) {
		return false
	}
	return true
}
