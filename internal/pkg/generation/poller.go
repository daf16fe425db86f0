package generation

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ClipFox/app/models"
	"github.com/ManuelReschke/ClipFox/app/repository"
	"github.com/ManuelReschke/ClipFox/internal/pkg/backoff"
	"github.com/ManuelReschke/ClipFox/internal/pkg/cache"
	"github.com/ManuelReschke/ClipFox/internal/pkg/ledger"
	"github.com/ManuelReschke/ClipFox/internal/pkg/metrics/counter"
)

const (
	pollLockKey = "generation:poll:lock"
	pollLockTTL = 25 * time.Second

	// A job that never left processing after this long is declared dead.
	defaultJobTimeout = 10 * time.Minute

	// Grace period before a job with no external ref counts as a lost
	// dispatch. Covers a crash between the debit and the submit call.
	defaultDispatchGrace = 2 * time.Minute

	defaultPollWorkers = 8
)

// ResultStore persists a finished generation result and returns its
// permanent URL.
type ResultStore interface {
	StoreResult(ctx context.Context, jobUUID string, data []byte, contentType string) (string, error)
}

// Locker guards PollOnce against overlapping invocations.
type Locker interface {
	Acquire(key, holder string, ttl time.Duration) (bool, error)
	Release(key string) error
}

type cacheLocker struct{}

func (cacheLocker) Acquire(key, holder string, ttl time.Duration) (bool, error) {
	return cache.AcquireLease(key, holder, ttl)
}

func (cacheLocker) Release(key string) error {
	return cache.Delete(key)
}

// PollSummary reports what a single poll pass did.
type PollSummary struct {
	Completed       int      `json:"completed"`
	Failed          int      `json:"failed"`
	StillProcessing int      `json:"still_processing"`
	Errors          []string `json:"errors,omitempty"`
}

// Poller drives all non-terminal jobs toward a terminal state: it polls the
// external service, downloads finished results into object storage, enforces
// the job timeout and refunds credits for every failure path.
type Poller struct {
	jobs    repository.GenerationJobRepository
	ledger  *ledger.Service
	client  Client
	store   ResultStore
	locker  Locker
	workers int

	jobTimeout    time.Duration
	dispatchGrace time.Duration

	// In-invocation retry for a single poll or download call. A job that
	// exhausts this budget on a transient error just waits for the next pass.
	retryPolicy backoff.Policy

	now func() time.Time
}

// NewPoller wires the status poller. A nil locker falls back to the Redis
// lease so at most one pass runs at a time across instances.
func NewPoller(jobs repository.GenerationJobRepository, ledgerSvc *ledger.Service, client Client, store ResultStore, locker Locker) *Poller {
	if locker == nil {
		locker = cacheLocker{}
	}
	return &Poller{
		jobs:          jobs,
		ledger:        ledgerSvc,
		client:        client,
		store:         store,
		locker:        locker,
		workers:       defaultPollWorkers,
		jobTimeout:    defaultJobTimeout,
		dispatchGrace: defaultDispatchGrace,
		retryPolicy:   backoff.FailFast(),
		now:           time.Now,
	}
}

type outcome int

const (
	outcomeProcessing outcome = iota
	outcomeCompleted
	outcomeFailed
	outcomeSkipped
)

// PollOnce runs a single poll pass over all active jobs. Returns
// ErrPollRunning when another pass holds the lease. Repeated invocations are
// harmless: terminal jobs are never revisited and every refund is idempotent.
func (p *Poller) PollOnce(ctx context.Context) (*PollSummary, error) {
	holder := uuid.New().String()
	acquired, err := p.locker.Acquire(pollLockKey, holder, pollLockTTL)
	if err != nil {
		// A broken lock backend must not stall job progress; a duplicate
		// pass only produces guarded no-op transitions.
		log.Warnf("[Poller] Lock backend unavailable, proceeding without lease: %v", err)
	} else if !acquired {
		return nil, ErrPollRunning
	}
	if acquired {
		defer func() {
			if relErr := p.locker.Release(pollLockKey); relErr != nil {
				log.Warnf("[Poller] Failed to release poll lease: %v", relErr)
			}
		}()
	}

	jobs, err := p.jobs.ListActive(0)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return &PollSummary{}, nil
	}

	log.Infof("[Poller] Poll pass over %d active job(s)", len(jobs))

	summary := &PollSummary{}
	var mu sync.Mutex
	jobCh := make(chan models.GenerationJob)

	var wg sync.WaitGroup
	workers := p.workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobCh {
				result, errMsg := p.processJob(ctx, job)
				mu.Lock()
				switch result {
				case outcomeCompleted:
					summary.Completed++
				case outcomeFailed:
					summary.Failed++
				case outcomeProcessing:
					summary.StillProcessing++
				}
				if errMsg != "" {
					summary.Errors = append(summary.Errors, errMsg)
				}
				mu.Unlock()
			}
		}()
	}

	for _, job := range jobs {
		jobCh <- job
	}
	close(jobCh)
	wg.Wait()

	log.Infof("[Poller] Pass done: %d completed, %d failed, %d still processing",
		summary.Completed, summary.Failed, summary.StillProcessing)
	return summary, nil
}

// processJob advances one job by at most one state. All terminal transitions
// go through the guarded update so a concurrent pass cannot double-finish.
func (p *Poller) processJob(ctx context.Context, job models.GenerationJob) (outcome, string) {
	if job.IsTerminal() {
		return outcomeSkipped, ""
	}
	now := p.now()

	if job.ExternalRef == "" {
		if now.Sub(job.CreatedAt) > p.dispatchGrace {
			return p.failAndRefund(ctx, &job, models.JobErrorNoDispatch, "job was never dispatched", counter.OutcomeFailed)
		}
		return outcomeProcessing, ""
	}

	// The timeout covers the whole lifecycle, downloads included. A job
	// stuck in downloading must not hold its concurrency slot forever.
	if now.Sub(job.CreatedAt) > p.jobTimeout {
		return p.failAndRefund(ctx, &job, models.JobErrorTimeout,
			"job exceeded the maximum processing time", counter.OutcomeTimeout)
	}

	// A downloading job is a completed remote result whose download was
	// interrupted; retry the download rather than polling again.
	if job.Status == models.JobStatusDownloading && job.TempResultURL != "" {
		return p.downloadResult(ctx, &job, job.TempResultURL)
	}

	var resp *PollResponse
	err := p.retryPolicy.Do(ctx, func() error {
		r, pollErr := p.client.Poll(ctx, job.ExternalRef)
		if pollErr != nil {
			return pollErr
		}
		resp = r
		return nil
	})
	if err != nil {
		if backoff.Classify(err) == backoff.ClassPermanent {
			return p.failAndRefund(ctx, &job, models.JobErrorExternal, truncateError(err), counter.OutcomeFailed)
		}
		// Transient: leave the job alone, the next pass retries.
		log.Warnf("[Poller] Poll for job %s failed transiently: %v", job.UUID, err)
		return outcomeProcessing, "poll " + job.UUID + ": " + truncateError(err)
	}

	switch resp.Status {
	case ExternalStatusCompleted:
		if resp.ResultURL == "" {
			log.Warnf("[Poller] Job %s reported completed without a result URL", job.UUID)
			return outcomeProcessing, "poll " + job.UUID + ": completed without result URL"
		}
		ok, err := p.jobs.TransitionStatus(job.ID, []string{models.JobStatusProcessing}, map[string]interface{}{
			"status":          models.JobStatusDownloading,
			"temp_result_url": resp.ResultURL,
		})
		if err != nil {
			return outcomeProcessing, "transition " + job.UUID + ": " + truncateError(err)
		}
		if !ok {
			// Another pass already owns the download.
			return outcomeSkipped, ""
		}
		job.Status = models.JobStatusDownloading
		if cacheErr := SetJobStatus(job.UUID, models.JobStatusDownloading); cacheErr != nil {
			log.Warnf("[Poller] Failed to mirror status for job %s: %v", job.UUID, cacheErr)
		}
		return p.downloadResult(ctx, &job, resp.ResultURL)

	case ExternalStatusFailed:
		msg := resp.ErrorMessage
		if msg == "" {
			msg = "generation failed"
		}
		if resp.ErrorCode != "" {
			msg = resp.ErrorCode + ": " + msg
		}
		return p.failAndRefund(ctx, &job, models.JobErrorExternal, msg, counter.OutcomeFailed)

	default:
		return outcomeProcessing, ""
	}
}

// failAndRefund issues the compensating refund and moves the job to failed.
// The refund's unique key makes concurrent or repeated calls settle on
// exactly one refund row per job.
func (p *Poller) failAndRefund(ctx context.Context, job *models.GenerationJob, code, message, outcomeLabel string) (outcome, string) {
	// Refund before the terminal transition. The refund is idempotent per
	// job, so retrying it costs nothing, while a refund lost after the job
	// is already failed could never be retried: terminal jobs leave the
	// active list for good.
	if _, _, refundErr := p.ledger.Refund(ctx, job.UserID, job.CreditCost, job.UUID, "generation failed: "+code); refundErr != nil {
		log.Warnf("[Poller] Refund for job %s did not go through, retrying next pass: %v", job.UUID, refundErr)
		return outcomeProcessing, "refund " + job.UUID + ": " + truncateError(refundErr)
	}

	ok, err := p.jobs.TransitionStatus(job.ID, models.ActiveJobStatuses(), map[string]interface{}{
		"status":        models.JobStatusFailed,
		"error_code":    code,
		"error_message": message,
	})
	if err != nil {
		return outcomeProcessing, "fail " + job.UUID + ": " + truncateError(err)
	}
	if !ok {
		return outcomeSkipped, ""
	}

	if cacheErr := SetJobStatus(job.UUID, models.JobStatusFailed); cacheErr != nil {
		log.Warnf("[Poller] Failed to mirror status for job %s: %v", job.UUID, cacheErr)
	}
	if cntErr := counter.AddJobOutcome(outcomeLabel, p.now()); cntErr != nil {
		log.Warnf("[Poller] Failed to count job outcome: %v", cntErr)
	}

	log.Infof("[Poller] Job %s failed (%s): %s", job.UUID, code, message)
	return outcomeFailed, ""
}
