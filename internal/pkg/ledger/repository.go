package ledger

import (
	"sort"
	"time"

	"github.com/ManuelReschke/ClipFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the ledger service. All
// balance-affecting writes for a user are serialized through row locks so
// concurrent debits cannot drive the balance negative.
type Repository interface {
	SumSpendable(userID uint, now time.Time) (int64, error)
	ListSpendable(userID uint, now time.Time) ([]models.CreditTransaction, error)
	Debit(userID uint, amount int64, reason, relatedEntityID string, now time.Time) (*models.CreditTransaction, error)
	Insert(row *models.CreditTransaction) error
	InsertIfNotExists(row *models.CreditTransaction) (bool, *models.CreditTransaction, error)
	GetByID(id uint) (*models.CreditTransaction, error)
	MarkFrozen(id uint, frozenUntil time.Time, resumeExpiresAt *time.Time) error
	UnfreezeDue(userID uint, now time.Time) (int64, error)
	UnfreezeAll(userID uint) (int64, error)
	ListByUser(userID uint, offset, limit int) ([]models.CreditTransaction, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

// consumption is one slice of a debit taken from a positive ledger row.
type consumption struct {
	TransactionID uint
	Amount        int64
}

// planConsumption distributes a debit over spendable rows, oldest expiry
// first. Rows without an expiry are consumed last; ties fall back to stable
// insertion order. Returns ErrInsufficientCredits when the rows cannot cover
// the amount.
func planConsumption(rows []models.CreditTransaction, amount int64) ([]consumption, error) {
	sorted := make([]models.CreditTransaction, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].ExpiresAt, sorted[j].ExpiresAt
		switch {
		case a == nil && b == nil:
			return sorted[i].ID < sorted[j].ID
		case a == nil:
			return false
		case b == nil:
			return true
		case a.Equal(*b):
			return sorted[i].ID < sorted[j].ID
		default:
			return a.Before(*b)
		}
	})

	var plan []consumption
	left := amount
	for _, row := range sorted {
		if left == 0 {
			break
		}
		take := row.RemainingAmount
		if take > left {
			take = left
		}
		if take <= 0 {
			continue
		}
		plan = append(plan, consumption{TransactionID: row.ID, Amount: take})
		left -= take
	}
	if left > 0 {
		return nil, ErrInsufficientCredits
	}
	return plan, nil
}

func spendableScope(db *gorm.DB, userID uint, now time.Time) *gorm.DB {
	return db.Model(&models.CreditTransaction{}).
		Where("user_id = ? AND remaining_amount > 0 AND is_frozen = ? AND (expires_at IS NULL OR expires_at > ?)",
			userID, false, now)
}

func (r *gormRepository) SumSpendable(userID uint, now time.Time) (int64, error) {
	var total int64
	err := spendableScope(r.db, userID, now).
		Select("COALESCE(SUM(remaining_amount), 0)").
		Scan(&total).Error
	return total, err
}

func (r *gormRepository) ListSpendable(userID uint, now time.Time) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := spendableScope(r.db, userID, now).
		Order("expires_at IS NULL, expires_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *gormRepository) Debit(userID uint, amount int64, reason, relatedEntityID string, now time.Time) (*models.CreditTransaction, error) {
	var debitRow *models.CreditTransaction
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var rows []models.CreditTransaction
		if err := spendableScope(tx.Clauses(clause.Locking{Strength: "UPDATE"}), userID, now).
			Order("expires_at IS NULL, expires_at ASC, id ASC").
			Find(&rows).Error; err != nil {
			return err
		}

		plan, err := planConsumption(rows, amount)
		if err != nil {
			return err
		}

		for _, c := range plan {
			if err := tx.Model(&models.CreditTransaction{}).
				Where("id = ?", c.TransactionID).
				UpdateColumn("remaining_amount", gorm.Expr("remaining_amount - ?", c.Amount)).Error; err != nil {
				return err
			}
		}

		debitRow = &models.CreditTransaction{
			UserID:          userID,
			Amount:          -amount,
			RemainingAmount: 0,
			TransactionType: models.TransactionTypeDebit,
			RelatedEntityID: relatedEntityID,
			Reason:          reason,
		}
		return tx.Create(debitRow).Error
	})
	if err != nil {
		return nil, err
	}
	return debitRow, nil
}

func (r *gormRepository) Insert(row *models.CreditTransaction) error {
	return r.db.Create(row).Error
}

func (r *gormRepository) InsertIfNotExists(row *models.CreditTransaction) (bool, *models.CreditTransaction, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "related_entity_id"},
			{Name: "transaction_type"},
		},
		DoNothing: true,
	}).Create(row)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.CreditTransaction
	if err := r.db.Where("related_entity_id = ? AND transaction_type = ?",
		row.RelatedEntityID, row.TransactionType).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetByID(id uint) (*models.CreditTransaction, error) {
	var row models.CreditTransaction
	if err := r.db.First(&row, id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *gormRepository) MarkFrozen(id uint, frozenUntil time.Time, resumeExpiresAt *time.Time) error {
	updates := map[string]interface{}{
		"is_frozen":    true,
		"frozen_until": frozenUntil,
	}
	if resumeExpiresAt != nil {
		updates["expires_at"] = *resumeExpiresAt
	}
	return r.db.Model(&models.CreditTransaction{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) UnfreezeDue(userID uint, now time.Time) (int64, error) {
	tx := r.db.Model(&models.CreditTransaction{}).
		Where("user_id = ? AND is_frozen = ? AND frozen_until <= ?", userID, true, now).
		Updates(map[string]interface{}{
			"is_frozen":    false,
			"frozen_until": nil,
		})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) UnfreezeAll(userID uint) (int64, error) {
	tx := r.db.Model(&models.CreditTransaction{}).
		Where("user_id = ? AND is_frozen = ?", userID, true).
		Updates(map[string]interface{}{
			"is_frozen":    false,
			"frozen_until": nil,
		})
	return tx.RowsAffected, tx.Error
}

func (r *gormRepository) ListByUser(userID uint, offset, limit int) ([]models.CreditTransaction, error) {
	var rows []models.CreditTransaction
	err := r.db.Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Offset(offset).Limit(limit).
		Find(&rows).Error
	return rows, err
}
