package generation

import (
	"github.com/ManuelReschke/ClipFox/app/repository"
	"github.com/ManuelReschke/ClipFox/internal/pkg/entitlements"
)

// Governor enforces the per-tier cap on simultaneously running jobs.
// The count and the subsequent job insert are not one atomic step, so two
// racing requests can overshoot the cap by one; that soft bound is accepted.
type Governor struct {
	jobs repository.GenerationJobRepository
}

// NewGovernor creates an admission governor over the job repository.
func NewGovernor(jobs repository.GenerationJobRepository) *Governor {
	return &Governor{jobs: jobs}
}

// CheckAdmission allows a new job when the user's non-terminal job count is
// below the plan's cap, otherwise returns a ConcurrentLimitError with the
// observed numbers.
func (g *Governor) CheckAdmission(userID uint, plan entitlements.Plan) error {
	limit := entitlements.ConcurrentJobLimit(plan)
	current, err := g.jobs.CountActiveByUser(userID)
	if err != nil {
		return err
	}
	if int(current) >= limit {
		return &ConcurrentLimitError{Limit: limit, Current: int(current)}
	}
	return nil
}
