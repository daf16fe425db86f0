package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ClipFox/app/models"
	"github.com/ManuelReschke/ClipFox/internal/pkg/ledger"
)

// fakeSubs is an in-memory SubscriptionRepository.
type fakeSubs struct {
	nextID uint
	subs   map[uint]*models.Subscription
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{subs: make(map[uint]*models.Subscription)}
}

func (f *fakeSubs) Create(sub *models.Subscription) error {
	f.nextID++
	sub.ID = f.nextID
	cp := *sub
	f.subs[sub.ID] = &cp
	return nil
}

func (f *fakeSubs) GetByID(id uint) (*models.Subscription, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *sub
	return &cp, nil
}

func (f *fakeSubs) GetActiveByUserID(userID uint) (*models.Subscription, error) {
	var latest *models.Subscription
	for _, sub := range f.subs {
		if sub.UserID != userID || sub.Status != models.SubscriptionStatusActive {
			continue
		}
		if latest == nil || sub.ID > latest.ID {
			latest = sub
		}
	}
	if latest == nil {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeSubs) ListByUserID(userID uint) ([]models.Subscription, error) {
	var out []models.Subscription
	for _, sub := range f.subs {
		if sub.UserID == userID {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeSubs) ListActiveYearly() ([]models.Subscription, error) {
	var out []models.Subscription
	for id := uint(1); id <= f.nextID; id++ {
		sub, ok := f.subs[id]
		if !ok {
			continue
		}
		if sub.Status == models.SubscriptionStatusActive &&
			sub.BillingCycle == models.BillingCycleYear &&
			sub.UnactivatedMonths > 0 {
			out = append(out, *sub)
		}
	}
	return out, nil
}

func (f *fakeSubs) Update(sub *models.Subscription) error {
	cp := *sub
	f.subs[sub.ID] = &cp
	return nil
}

// fakeCreditRepo is a minimal in-memory ledger.Repository for exercising the
// billing-to-ledger handoff.
type fakeCreditRepo struct {
	nextID uint
	rows   []*models.CreditTransaction
}

func (f *fakeCreditRepo) SumSpendable(userID uint, now time.Time) (int64, error) {
	var sum int64
	for _, row := range f.rows {
		if row.UserID == userID && row.IsSpendable(now) {
			sum += row.RemainingAmount
		}
	}
	return sum, nil
}

func (f *fakeCreditRepo) ListSpendable(userID uint, now time.Time) ([]models.CreditTransaction, error) {
	var out []models.CreditTransaction
	for _, row := range f.rows {
		if row.UserID == userID && row.IsSpendable(now) {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (f *fakeCreditRepo) Debit(userID uint, amount int64, reason, relatedEntityID string, now time.Time) (*models.CreditTransaction, error) {
	return nil, ledger.ErrInsufficientCredits
}

func (f *fakeCreditRepo) Insert(row *models.CreditTransaction) error {
	f.nextID++
	row.ID = f.nextID
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeCreditRepo) InsertIfNotExists(row *models.CreditTransaction) (bool, *models.CreditTransaction, error) {
	for _, existing := range f.rows {
		if existing.TransactionType == row.TransactionType && existing.RelatedEntityID == row.RelatedEntityID {
			return false, existing, nil
		}
	}
	f.nextID++
	row.ID = f.nextID
	f.rows = append(f.rows, row)
	return true, row, nil
}

func (f *fakeCreditRepo) GetByID(id uint) (*models.CreditTransaction, error) {
	for _, row := range f.rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeCreditRepo) MarkFrozen(id uint, frozenUntil time.Time, resumeExpiresAt *time.Time) error {
	for _, row := range f.rows {
		if row.ID == id {
			row.IsFrozen = true
			fu := frozenUntil
			row.FrozenUntil = &fu
			row.ExpiresAt = resumeExpiresAt
		}
	}
	return nil
}

func (f *fakeCreditRepo) UnfreezeDue(userID uint, now time.Time) (int64, error) {
	var n int64
	for _, row := range f.rows {
		if row.UserID == userID && row.IsFrozen && row.FrozenUntil != nil && !row.FrozenUntil.After(now) {
			row.IsFrozen = false
			row.FrozenUntil = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeCreditRepo) UnfreezeAll(userID uint) (int64, error) {
	var n int64
	for _, row := range f.rows {
		if row.UserID == userID && row.IsFrozen {
			row.IsFrozen = false
			row.FrozenUntil = nil
			n++
		}
	}
	return n, nil
}

func (f *fakeCreditRepo) ListByUser(userID uint, offset, limit int) ([]models.CreditTransaction, error) {
	var out []models.CreditTransaction
	for _, row := range f.rows {
		if row.UserID == userID {
			out = append(out, *row)
		}
	}
	return out, nil
}

func newTestService(at time.Time) (*Service, *fakeSubs, *fakeCreditRepo) {
	subs := newFakeSubs()
	credits := &fakeCreditRepo{}
	svc := NewService(subs, ledger.NewService(credits))
	svc.now = func() time.Time { return at }
	return svc, subs, credits
}

func balanceOf(t *testing.T, credits *fakeCreditRepo, userID uint, at time.Time) int64 {
	t.Helper()
	sum, err := credits.SumSpendable(userID, at)
	require.NoError(t, err)
	return sum
}

func TestActivateMonthlySubscription(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc, _, credits := newTestService(at)

	sub, err := svc.ActivateSubscription(context.Background(), 1, "premium", "month")
	require.NoError(t, err)

	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "premium", sub.PlanTier)
	assert.Zero(t, sub.UnactivatedMonths)
	require.NotNil(t, sub.ExpiresAt)
	assert.Equal(t, at.AddDate(0, 1, 0), *sub.ExpiresAt)

	assert.Equal(t, int64(600), balanceOf(t, credits, 1, at))

	// The granted package expires after the plan's validity window.
	rows, _ := credits.ListByUser(1, 0, 10)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].ExpiresAt)
	assert.Equal(t, at.AddDate(0, 0, 60), *rows[0].ExpiresAt)
	assert.Equal(t, "sub:1:cycle:1", rows[0].RelatedEntityID)
}

func TestActivateYearlySubscription(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc, _, credits := newTestService(at)

	sub, err := svc.ActivateSubscription(context.Background(), 1, "premium", "year")
	require.NoError(t, err)

	// Only the first of twelve pre-paid months is spendable right away.
	assert.Equal(t, 11, sub.UnactivatedMonths)
	assert.Equal(t, int64(600), balanceOf(t, credits, 1, at))
}

func TestActivateRejectsUnknownCycle(t *testing.T) {
	svc, _, _ := newTestService(time.Now())
	_, err := svc.ActivateSubscription(context.Background(), 1, "premium", "week")
	assert.ErrorIs(t, err, ErrInvalidCycle)
}

func TestApplyDueRefills(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc, subs, credits := newTestService(start)

	sub, err := svc.ActivateSubscription(context.Background(), 1, "premium", "year")
	require.NoError(t, err)

	// Two and a half months in, cycles 2 and 3 are due.
	now := start.AddDate(0, 2, 15)
	svc.now = func() time.Time { return now }

	applied, err := svc.ApplyDueRefills(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, applied)
	assert.Equal(t, int64(1800), balanceOf(t, credits, 1, now))

	stored, err := subs.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, stored.UnactivatedMonths)

	// Re-running the same tick grants nothing new.
	applied, err = svc.ApplyDueRefills(context.Background())
	require.NoError(t, err)
	assert.Zero(t, applied)
	assert.Equal(t, int64(1800), balanceOf(t, credits, 1, now))
}

func TestSwitchPlanDowngradeFreezes(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc, _, credits := newTestService(at)

	_, err := svc.ActivateSubscription(context.Background(), 1, "premium", "month")
	require.NoError(t, err)
	require.Equal(t, int64(600), balanceOf(t, credits, 1, at))

	sub, err := svc.SwitchPlan(context.Background(), 1, "free", "month")
	require.NoError(t, err)
	assert.Equal(t, "free", sub.PlanTier)

	// The premium package is frozen; only the fresh free grant is spendable.
	assert.Equal(t, int64(50), balanceOf(t, credits, 1, at))

	// Upgrading back thaws the frozen package on top of the new grant.
	_, err = svc.SwitchPlan(context.Background(), 1, "premium", "month")
	require.NoError(t, err)
	assert.Equal(t, int64(1250), balanceOf(t, credits, 1, at))
}

func TestSwitchPlanWithoutSubscription(t *testing.T) {
	svc, _, _ := newTestService(time.Now())
	_, err := svc.SwitchPlan(context.Background(), 1, "premium", "month")
	assert.ErrorIs(t, err, ErrNoActiveSubscription)
}

func TestCancelSubscription(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc, subs, credits := newTestService(at)

	sub, err := svc.ActivateSubscription(context.Background(), 1, "premium", "month")
	require.NoError(t, err)
	require.NoError(t, svc.CancelSubscription(context.Background(), 1))

	stored, err := subs.GetByID(sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, stored.Status)

	// Already granted credits survive the cancellation.
	assert.Equal(t, int64(600), balanceOf(t, credits, 1, at))

	assert.ErrorIs(t, svc.CancelSubscription(context.Background(), 1), ErrNoActiveSubscription)
}

func TestMonthsElapsed(t *testing.T) {
	start := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, monthsElapsed(start, start))
	assert.Equal(t, 0, monthsElapsed(start, start.AddDate(0, 0, 27)))
	assert.Equal(t, 1, monthsElapsed(start, time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, 12, monthsElapsed(start, start.AddDate(1, 0, 0)))
}
