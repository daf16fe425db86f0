package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ClipFox/app/models"
	"github.com/ManuelReschke/ClipFox/app/repository"
	"github.com/ManuelReschke/ClipFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ClipFox/internal/pkg/ledger"
)

const monthsPerYear = 12

var (
	// ErrInvalidCycle rejects billing cycles other than month or year.
	ErrInvalidCycle = errors.New("billing cycle must be month or year")

	// ErrNoActiveSubscription is returned by plan switches for users
	// without a current subscription.
	ErrNoActiveSubscription = errors.New("no active subscription")
)

// Service keeps subscriptions and the credit ledger in sync: activation and
// renewal grant monthly credit packages, a downgrade freezes the unspent
// ones, a re-subscription thaws them.
type Service struct {
	subs   repository.SubscriptionRepository
	ledger *ledger.Service
	now    func() time.Time
}

// NewService creates a billing service from injected collaborators.
func NewService(subs repository.SubscriptionRepository, ledgerSvc *ledger.Service) *Service {
	return &Service{subs: subs, ledger: ledgerSvc, now: time.Now}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(repository.NewSubscriptionRepository(db), ledger.NewServiceFromDB(db))
}

// ActivateSubscription creates an active subscription for the user and
// grants the first monthly credit package. A yearly subscription pre-pays
// twelve months; the remaining eleven become spendable one cycle at a time
// through ApplyDueRefills.
func (s *Service) ActivateSubscription(ctx context.Context, userID uint, planTier, billingCycle string) (*models.Subscription, error) {
	return s.activate(ctx, userID, planTier, billingCycle, true)
}

// activate does the actual subscription bookkeeping. thawFrozen is false
// when the caller has just frozen packages on purpose.
func (s *Service) activate(ctx context.Context, userID uint, planTier, billingCycle string, thawFrozen bool) (*models.Subscription, error) {
	plan := normalizePlan(planTier)
	cycle := normalizeCycle(billingCycle)
	if cycle == "unknown" {
		return nil, ErrInvalidCycle
	}

	now := s.now()
	sub := &models.Subscription{
		UserID:         userID,
		PlanTier:       plan,
		BillingCycle:   cycle,
		Status:         models.SubscriptionStatusActive,
		ActivationDate: &now,
	}
	switch cycle {
	case models.BillingCycleMonth:
		exp := now.AddDate(0, 1, 0)
		sub.ExpiresAt = &exp
	case models.BillingCycleYear:
		exp := now.AddDate(1, 0, 0)
		sub.ExpiresAt = &exp
		sub.UnactivatedMonths = monthsPerYear
	}
	if err := s.subs.Create(sub); err != nil {
		return nil, err
	}

	created, err := s.grantCycle(ctx, sub, 1)
	if err != nil {
		return nil, err
	}
	if created && sub.UnactivatedMonths > 0 {
		sub.UnactivatedMonths--
		if err := s.subs.Update(sub); err != nil {
			return nil, err
		}
	}

	// A returning subscriber gets frozen packages back immediately.
	if thawFrozen {
		if thawed, err := s.ledger.ResumeAllFrozen(ctx, userID); err != nil {
			log.Errorf("[Billing] Resuming frozen packages for user %d failed: %v", userID, err)
		} else if thawed > 0 {
			log.Infof("[Billing] Resumed %d frozen package(s) for user %d", thawed, userID)
		}
	}

	log.Infof("[Billing] Activated %s/%s subscription %d for user %d", plan, cycle, sub.ID, userID)
	return sub, nil
}

// SwitchPlan moves the user's active subscription to a new tier. On a
// downgrade the unspent credit packages are frozen until the paid period
// runs out, so the credits survive instead of expiring unobserved.
func (s *Service) SwitchPlan(ctx context.Context, userID uint, newPlanTier, billingCycle string) (*models.Subscription, error) {
	current, err := s.subs.GetActiveByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveSubscription
		}
		return nil, err
	}

	downgrade := planRank(newPlanTier) < planRank(current.PlanTier)
	if downgrade {
		frozenUntil := s.now().AddDate(0, 1, 0)
		if current.ExpiresAt != nil {
			frozenUntil = *current.ExpiresAt
		}
		frozen, err := s.ledger.FreezeSpendable(ctx, userID, frozenUntil)
		if err != nil {
			return nil, err
		}
		log.Infof("[Billing] Froze %d package(s) for user %d until %s", frozen, userID, frozenUntil.Format(time.RFC3339))
	}

	current.Status = models.SubscriptionStatusCancelled
	if err := s.subs.Update(current); err != nil {
		return nil, err
	}

	return s.activate(ctx, userID, newPlanTier, billingCycle, !downgrade)
}

// CancelSubscription marks the active subscription cancelled. Already
// granted packages stay spendable until they expire on their own.
func (s *Service) CancelSubscription(ctx context.Context, userID uint) error {
	_ = ctx
	current, err := s.subs.GetActiveByUserID(userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoActiveSubscription
		}
		return err
	}
	current.Status = models.SubscriptionStatusCancelled
	return s.subs.Update(current)
}

// ApplyDueRefills walks all active yearly subscriptions and releases every
// pre-paid month whose cycle has begun. Designed for a scheduler tick; safe
// to re-run because each cycle grant is keyed by its cycle number.
func (s *Service) ApplyDueRefills(ctx context.Context) (int, error) {
	subs, err := s.subs.ListActiveYearly()
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range subs {
		sub := &subs[i]
		if sub.ActivationDate == nil {
			continue
		}
		elapsed := monthsElapsed(*sub.ActivationDate, s.now())
		granted := monthsPerYear - sub.UnactivatedMonths

		changed := false
		for granted <= elapsed && sub.UnactivatedMonths > 0 {
			cycle := granted + 1
			created, err := s.grantCycle(ctx, sub, cycle)
			if err != nil {
				log.Errorf("[Billing] Refill cycle %d for subscription %d failed: %v", cycle, sub.ID, err)
				break
			}
			sub.UnactivatedMonths--
			granted++
			changed = true
			if created {
				applied++
			}
		}
		if changed {
			if err := s.subs.Update(sub); err != nil {
				log.Errorf("[Billing] Persisting subscription %d after refill failed: %v", sub.ID, err)
			}
		}

		// Thaw packages whose freeze window ended since the last tick.
		if _, err := s.ledger.ResumeFrozen(ctx, sub.UserID); err != nil {
			log.Errorf("[Billing] Resuming due packages for user %d failed: %v", sub.UserID, err)
		}
	}
	return applied, nil
}

// grantCycle writes one monthly credit package for the given cycle number.
// The related entity id makes the grant idempotent per subscription cycle.
func (s *Service) grantCycle(ctx context.Context, sub *models.Subscription, cycle int) (bool, error) {
	plan := entitlements.ParsePlan(sub.PlanTier)
	amount := entitlements.MonthlyCredits(plan)
	if amount <= 0 {
		return false, nil
	}
	expiresAt := s.now().AddDate(0, 0, entitlements.CreditValidityDays(plan))
	relatedID := fmt.Sprintf("sub:%d:cycle:%d", sub.ID, cycle)

	_, created, err := s.ledger.RefillOnce(ctx, sub.UserID, amount, &expiresAt, relatedID)
	if err != nil {
		return false, err
	}
	if created {
		log.Infof("[Billing] Granted %d credits to user %d (subscription %d, cycle %d)", amount, sub.UserID, sub.ID, cycle)
	}
	return created, nil
}

// monthsElapsed counts how many whole calendar months lie between start and
// now. The first month is cycle 1 and counts as zero elapsed.
func monthsElapsed(start, now time.Time) int {
	months := 0
	for !start.AddDate(0, months+1, 0).After(now) {
		months++
	}
	return months
}
