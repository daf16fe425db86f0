package models

import "time"

const (
	TransactionTypeRefill = "refill"
	TransactionTypeDebit  = "debit"
	TransactionTypeRefund = "refund"
	TransactionTypeFreeze = "freeze"
	TransactionTypeBonus  = "bonus"
)

// CreditTransaction is one row in the append-only credit ledger. Positive
// amounts grant credits, negative amounts consume them. RemainingAmount
// tracks the unconsumed portion of a positive row and is the only field
// that is ever decremented in place.
type CreditTransaction struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"not null;index:idx_credit_transactions_user_expiry,priority:1" json:"user_id"`
	Amount          int64      `gorm:"not null" json:"amount"`
	RemainingAmount int64      `gorm:"not null;default:0" json:"remaining_amount"`
	TransactionType string     `gorm:"type:varchar(16);not null;index:ux_credit_transactions_entity_type,unique,priority:2" json:"transaction_type"`
	ExpiresAt       *time.Time `gorm:"type:timestamp;default:null;index:idx_credit_transactions_user_expiry,priority:2" json:"expires_at,omitempty"`
	IsFrozen        bool       `gorm:"not null;default:false" json:"is_frozen"`
	FrozenUntil     *time.Time `gorm:"type:timestamp;default:null" json:"frozen_until,omitempty"`
	RelatedEntityID string     `gorm:"type:varchar(64);not null;index:ux_credit_transactions_entity_type,unique,priority:1" json:"related_entity_id"`
	Reason          string     `gorm:"type:varchar(255)" json:"reason"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// IsSpendable reports whether the row can contribute to the balance at now.
func (t *CreditTransaction) IsSpendable(now time.Time) bool {
	if t.RemainingAmount <= 0 || t.IsFrozen {
		return false
	}
	if t.ExpiresAt != nil && !t.ExpiresAt.After(now) {
		return false
	}
	return true
}
