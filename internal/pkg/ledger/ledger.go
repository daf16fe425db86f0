package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/ManuelReschke/ClipFox/app/models"
	"gorm.io/gorm"
)

var (
	// ErrInvalidAmount is returned for non-positive debit/refill/refund amounts.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")
	// ErrInsufficientCredits is returned when a debit exceeds the spendable balance.
	ErrInsufficientCredits = errors.New("ledger: insufficient credits")
	// ErrNotFreezable is returned when a freeze targets a row that cannot be frozen.
	ErrNotFreezable = errors.New("ledger: transaction cannot be frozen")
)

// Service implements the append-only credit ledger. Every mutating call
// writes exactly one new transaction row; only remaining_amount of earlier
// positive rows is decremented in place while a debit consumes them.
type Service struct {
	repo Repository
	now  func() time.Time
}

// NewService creates a ledger service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// NewServiceFromDB creates a ledger service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// GetBalance returns the user's spendable balance: the sum of remaining
// amounts over unexpired, unfrozen positive rows.
func (s *Service) GetBalance(ctx context.Context, userID uint) (int64, error) {
	_ = ctx
	return s.repo.SumSpendable(userID, s.now())
}

// Debit atomically verifies the balance and consumes the amount from the
// earliest-expiring spendable rows first, splitting a row when the debit
// only partially consumes it. Exactly one debit row referencing
// relatedEntityID is written on success; nothing is written on failure.
func (s *Service) Debit(ctx context.Context, userID uint, amount int64, reason, relatedEntityID string) (*models.CreditTransaction, error) {
	_ = ctx
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.repo.Debit(userID, amount, reason, relatedEntityID, s.now())
}

// Refill inserts a new positive transaction, optionally expiring.
func (s *Service) Refill(ctx context.Context, userID uint, amount int64, expiresAt *time.Time, relatedEntityID string) (*models.CreditTransaction, error) {
	_ = ctx
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	row := &models.CreditTransaction{
		UserID:          userID,
		Amount:          amount,
		RemainingAmount: amount,
		TransactionType: models.TransactionTypeRefill,
		ExpiresAt:       expiresAt,
		RelatedEntityID: relatedEntityID,
		Reason:          "credit refill",
	}
	if err := s.repo.Insert(row); err != nil {
		return nil, err
	}
	return row, nil
}

// RefillOnce is Refill with at-most-once semantics per related entity. The
// billing refill cycle invokes it with "sub:<id>:cycle:<n>" identifiers so a
// replayed billing event can never grant the same month twice.
func (s *Service) RefillOnce(ctx context.Context, userID uint, amount int64, expiresAt *time.Time, relatedEntityID string) (*models.CreditTransaction, bool, error) {
	_ = ctx
	if amount <= 0 {
		return nil, false, ErrInvalidAmount
	}
	row := &models.CreditTransaction{
		UserID:          userID,
		Amount:          amount,
		RemainingAmount: amount,
		TransactionType: models.TransactionTypeRefill,
		ExpiresAt:       expiresAt,
		RelatedEntityID: relatedEntityID,
		Reason:          "credit refill",
	}
	created, stored, err := s.repo.InsertIfNotExists(row)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// Bonus inserts a promotional credit grant.
func (s *Service) Bonus(ctx context.Context, userID uint, amount int64, expiresAt *time.Time, relatedEntityID, reason string) (*models.CreditTransaction, error) {
	_ = ctx
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	row := &models.CreditTransaction{
		UserID:          userID,
		Amount:          amount,
		RemainingAmount: amount,
		TransactionType: models.TransactionTypeBonus,
		ExpiresAt:       expiresAt,
		RelatedEntityID: relatedEntityID,
		Reason:          reason,
	}
	if err := s.repo.Insert(row); err != nil {
		return nil, err
	}
	return row, nil
}

// Refund compensates a failed debit. At most one refund row can exist per
// related entity; re-invocations return the stored row with created=false.
func (s *Service) Refund(ctx context.Context, userID uint, amount int64, relatedEntityID, reason string) (*models.CreditTransaction, bool, error) {
	_ = ctx
	if amount <= 0 {
		return nil, false, ErrInvalidAmount
	}
	row := &models.CreditTransaction{
		UserID:          userID,
		Amount:          amount,
		RemainingAmount: amount,
		TransactionType: models.TransactionTypeRefund,
		RelatedEntityID: relatedEntityID,
		Reason:          reason,
	}
	created, stored, err := s.repo.InsertIfNotExists(row)
	if err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

// FreezePackage suspends the expiry countdown of a positive transaction row.
// The returned FreezeResult carries the remaining validity in whole seconds
// and the expiry the package will have once it resumes at frozenUntil.
func (s *Service) FreezePackage(ctx context.Context, transactionID uint, frozenUntil time.Time) (*FreezeResult, error) {
	_ = ctx
	row, err := s.repo.GetByID(transactionID)
	if err != nil {
		return nil, err
	}
	if row.Amount <= 0 || row.IsFrozen {
		return nil, ErrNotFreezable
	}

	if row.ExpiresAt == nil {
		// Non-expiring packages keep no countdown; the freeze only blocks spending.
		if err := s.repo.MarkFrozen(row.ID, frozenUntil, nil); err != nil {
			return nil, err
		}
		return &FreezeResult{RemainingSeconds: 0, ResumeExpiresAt: frozenUntil}, nil
	}

	res := ComputeFreeze(*row.ExpiresAt, frozenUntil, s.now())
	resume := res.ResumeExpiresAt
	if err := s.repo.MarkFrozen(row.ID, frozenUntil, &resume); err != nil {
		return nil, err
	}
	return &res, nil
}

// FreezeSpendable suspends every currently spendable package of a user until
// frozenUntil. Used on a plan downgrade so paid credits survive the gap
// instead of expiring mid-freeze. Returns how many rows were frozen.
func (s *Service) FreezeSpendable(ctx context.Context, userID uint, frozenUntil time.Time) (int64, error) {
	_ = ctx
	now := s.now()
	rows, err := s.repo.ListSpendable(userID, now)
	if err != nil {
		return 0, err
	}

	var frozen int64
	for _, row := range rows {
		if row.ExpiresAt == nil {
			if err := s.repo.MarkFrozen(row.ID, frozenUntil, nil); err != nil {
				return frozen, err
			}
			frozen++
			continue
		}
		res := ComputeFreeze(*row.ExpiresAt, frozenUntil, now)
		resume := res.ResumeExpiresAt
		if err := s.repo.MarkFrozen(row.ID, frozenUntil, &resume); err != nil {
			return frozen, err
		}
		frozen++
	}
	return frozen, nil
}

// ResumeFrozen reactivates all of a user's packages whose frozen_until has
// passed. Returns how many rows were unfrozen.
func (s *Service) ResumeFrozen(ctx context.Context, userID uint) (int64, error) {
	_ = ctx
	return s.repo.UnfreezeDue(userID, s.now())
}

// ResumeAllFrozen reactivates all frozen packages of a user regardless of
// frozen_until. A re-subscription before the frozen window ends keeps the
// expiry precomputed at freeze time, which errs in the user's favor.
func (s *Service) ResumeAllFrozen(ctx context.Context, userID uint) (int64, error) {
	_ = ctx
	return s.repo.UnfreezeAll(userID)
}

// History lists a user's ledger rows, newest first. Read-side only.
func (s *Service) History(ctx context.Context, userID uint, offset, limit int) ([]models.CreditTransaction, error) {
	_ = ctx
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListByUser(userID, offset, limit)
}
