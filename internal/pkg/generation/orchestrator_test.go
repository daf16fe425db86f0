package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ClipFox/app/models"
	"github.com/ManuelReschke/ClipFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ClipFox/internal/pkg/ledger"
)

func newTestOrchestrator(jobs *fakeJobs, credits *fakeLedgerRepo, client Client) *Orchestrator {
	if client == nil {
		client = &fakeClient{}
	}
	return NewOrchestrator(jobs, ledger.NewService(credits), client)
}

func TestCreateJobSuccess(t *testing.T) {
	jobs := newFakeJobs()
	credits := newFakeLedgerRepo()
	credits.grant(1, 50)
	client := &fakeClient{}
	o := newTestOrchestrator(jobs, credits, client)

	job, err := o.CreateJob(context.Background(), 1, entitlements.PlanFree, CreateRequest{
		JobType: "video",
		Prompt:  "a fox running through snow",
	})
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, models.JobStatusProcessing, job.Status)
	assert.Equal(t, "ext-ref-1", job.ExternalRef)
	assert.NotEmpty(t, job.UUID)
	assert.Equal(t, int64(10), job.CreditCost)
	assert.Equal(t, 1, client.submitCalls)

	balance, err := ledger.NewService(credits).GetBalance(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(40), balance)

	stored, err := jobs.GetByUUID(job.UUID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "ext-ref-1", stored.ExternalRef)
}

func TestCreateJobValidation(t *testing.T) {
	jobs := newFakeJobs()
	credits := newFakeLedgerRepo()
	credits.grant(1, 50)
	o := newTestOrchestrator(jobs, credits, nil)

	cases := []CreateRequest{
		{JobType: "video", Prompt: ""},
		{JobType: "audio", Prompt: "a valid prompt"},
		{JobType: "", Prompt: "a valid prompt"},
		{JobType: "image", Prompt: "ab"},
	}
	for _, req := range cases {
		_, err := o.CreateJob(context.Background(), 1, entitlements.PlanFree, req)
		assert.ErrorIs(t, err, ErrValidation)
	}

	// Rejected requests never touch the ledger or the job table.
	balance, _ := ledger.NewService(credits).GetBalance(context.Background(), 1)
	assert.Equal(t, int64(50), balance)
	count, _ := jobs.Count()
	assert.Zero(t, count)
}

func TestCreateJobInsufficientCredits(t *testing.T) {
	jobs := newFakeJobs()
	credits := newFakeLedgerRepo()
	credits.grant(1, 5)
	o := newTestOrchestrator(jobs, credits, nil)

	_, err := o.CreateJob(context.Background(), 1, entitlements.PlanFree, CreateRequest{
		JobType: "video",
		Prompt:  "too expensive for this balance",
	})
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredits)

	// The failed attempt leaves no trace: no job row, balance untouched.
	count, _ := jobs.Count()
	assert.Zero(t, count)
	balance, _ := ledger.NewService(credits).GetBalance(context.Background(), 1)
	assert.Equal(t, int64(5), balance)
}

func TestCreateJobConcurrentLimit(t *testing.T) {
	jobs := newFakeJobs()
	credits := newFakeLedgerRepo()
	credits.grant(7, 600)
	o := newTestOrchestrator(jobs, credits, nil)

	// Premium allows three simultaneous jobs.
	for i := 0; i < 3; i++ {
		_, err := o.CreateJob(context.Background(), 7, entitlements.PlanPremium, CreateRequest{
			JobType: "image",
			Prompt:  "one of the allowed jobs",
		})
		require.NoError(t, err)
	}

	_, err := o.CreateJob(context.Background(), 7, entitlements.PlanPremium, CreateRequest{
		JobType: "image",
		Prompt:  "one past the cap",
	})
	var limitErr *ConcurrentLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 3, limitErr.Limit)
	assert.Equal(t, 3, limitErr.Current)

	// The rejected request spent nothing: three image jobs at 5 each.
	balance, _ := ledger.NewService(credits).GetBalance(context.Background(), 7)
	assert.Equal(t, int64(585), balance)
}

func TestCreateJobDispatchFailureRefunds(t *testing.T) {
	jobs := newFakeJobs()
	credits := newFakeLedgerRepo()
	credits.grant(1, 50)
	client := &fakeClient{
		submitFn: func(req SubmitRequest) (string, error) {
			return "", errors.New("connect: connection refused")
		},
	}
	o := newTestOrchestrator(jobs, credits, client)

	job, err := o.CreateJob(context.Background(), 1, entitlements.PlanFree, CreateRequest{
		JobType: "video",
		Prompt:  "a prompt the service never receives",
	})
	require.Error(t, err)
	assert.Nil(t, job)

	// The debit was compensated, so the user is whole again.
	balance, _ := ledger.NewService(credits).GetBalance(context.Background(), 1)
	assert.Equal(t, int64(50), balance)

	// The job row survives in failed state for the audit trail.
	active, _ := jobs.ListActive(0)
	assert.Empty(t, active)
	failed, _ := jobs.CountByStatus(models.JobStatusFailed)
	assert.Equal(t, int64(1), failed)
	stored, _ := jobs.GetByID(1)
	require.NotNil(t, stored)
	assert.Equal(t, models.JobErrorDispatch, stored.ErrorCode)
	assert.Equal(t, 1, credits.refundCount(stored.UUID))
}

func TestCreateJobDispatchFailureRefundError(t *testing.T) {
	jobs := newFakeJobs()
	credits := newFakeLedgerRepo()
	credits.grant(1, 50)
	client := &fakeClient{
		submitFn: func(req SubmitRequest) (string, error) {
			return "", errors.New("connect: connection refused")
		},
	}
	o := newTestOrchestrator(jobs, credits, client)

	// The refund write fails too. The job must not go terminal without a
	// refund on record; it stays active so the no-dispatch sweep settles it.
	credits.failInserts = 1
	job, err := o.CreateJob(context.Background(), 1, entitlements.PlanFree, CreateRequest{
		JobType: "video",
		Prompt:  "a prompt the service never receives",
	})
	require.Error(t, err)
	assert.Nil(t, job)

	stored, _ := jobs.GetByID(1)
	require.NotNil(t, stored)
	assert.Equal(t, models.JobStatusProcessing, stored.Status)
	assert.Empty(t, stored.ExternalRef)
	assert.Zero(t, credits.refundCount(stored.UUID))

	// A later poll pass past the dispatch grace refunds and fails the job.
	p := newTestPoller(jobs, credits, &fakeClient{}, nil)
	p.now = func() time.Time { return stored.CreatedAt.Add(3 * time.Minute) }
	summary, err := p.PollOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)

	stored, _ = jobs.GetByID(1)
	assert.Equal(t, models.JobStatusFailed, stored.Status)
	assert.Equal(t, models.JobErrorNoDispatch, stored.ErrorCode)
	assert.Equal(t, 1, credits.refundCount(stored.UUID))
	balance, _ := ledger.NewService(credits).GetBalance(context.Background(), 1)
	assert.Equal(t, int64(50), balance)
}

func TestGovernorAdmission(t *testing.T) {
	jobs := newFakeJobs()
	g := NewGovernor(jobs)

	require.NoError(t, g.CheckAdmission(1, entitlements.PlanFree))

	for i := 0; i < 2; i++ {
		require.NoError(t, jobs.Create(&models.GenerationJob{
			UserID: 1,
			Status: models.JobStatusProcessing,
		}))
	}

	err := g.CheckAdmission(1, entitlements.PlanFree)
	var limitErr *ConcurrentLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 2, limitErr.Limit)
	assert.Equal(t, 2, limitErr.Current)

	// Terminal jobs stop counting against the cap.
	ok, err := jobs.TransitionStatus(1, models.ActiveJobStatuses(), map[string]interface{}{
		"status": models.JobStatusCompleted,
	})
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, g.CheckAdmission(1, entitlements.PlanFree))

	// A higher tier admits more from the same queue depth.
	assert.NoError(t, g.CheckAdmission(1, entitlements.PlanPremiumMax))
}
