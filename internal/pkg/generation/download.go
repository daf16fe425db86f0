package generation

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ClipFox/app/models"
	"github.com/ManuelReschke/ClipFox/internal/pkg/backoff"
	"github.com/ManuelReschke/ClipFox/internal/pkg/metrics/counter"
)

// downloadResult moves a downloading job to completed: fetch the temporary
// result, persist it to object storage, record the permanent URL. A download
// that fails permanently fails the job and refunds the debit; the temporary
// URL expires on the provider side, so there is nothing left to salvage.
func (p *Poller) downloadResult(ctx context.Context, job *models.GenerationJob, resultURL string) (outcome, string) {
	var (
		data        []byte
		contentType string
	)
	err := p.retryPolicy.Do(ctx, func() error {
		d, ct, fetchErr := p.client.FetchResult(ctx, resultURL)
		if fetchErr != nil {
			return fetchErr
		}
		data, contentType = d, ct
		return nil
	})
	if err != nil {
		if backoff.Classify(err) == backoff.ClassPermanent {
			return p.failAndRefund(ctx, job, models.JobErrorDownload, truncateError(err), counter.OutcomeFailed)
		}
		// Transient fetch problem: the job stays downloading with its temp
		// URL so the next pass retries without hitting the poll endpoint.
		log.Warnf("[Poller] Result download for job %s failed transiently: %v", job.UUID, err)
		return outcomeProcessing, "download " + job.UUID + ": " + truncateError(err)
	}
	if len(data) == 0 {
		return p.failAndRefund(ctx, job, models.JobErrorDownload, "result download returned no data", counter.OutcomeFailed)
	}

	permanentURL, err := p.store.StoreResult(ctx, job.UUID, data, contentType)
	if err != nil {
		log.Warnf("[Poller] Storing result for job %s failed: %v", job.UUID, err)
		return outcomeProcessing, "store " + job.UUID + ": " + truncateError(err)
	}

	completedAt := p.now()
	ok, err := p.jobs.TransitionStatus(job.ID, []string{models.JobStatusDownloading}, map[string]interface{}{
		"status":               models.JobStatusCompleted,
		"permanent_result_url": permanentURL,
		"completed_at":         completedAt,
	})
	if err != nil {
		return outcomeProcessing, "complete " + job.UUID + ": " + truncateError(err)
	}
	if !ok {
		return outcomeSkipped, ""
	}

	if cacheErr := SetJobStatus(job.UUID, models.JobStatusCompleted); cacheErr != nil {
		log.Warnf("[Poller] Failed to mirror status for job %s: %v", job.UUID, cacheErr)
	}
	if cacheErr := SetJobStatusTimestamp(job.UUID, completedAt); cacheErr != nil {
		log.Warnf("[Poller] Failed to mirror completion time for job %s: %v", job.UUID, cacheErr)
	}
	if cntErr := counter.AddJobOutcome(counter.OutcomeCompleted, completedAt); cntErr != nil {
		log.Warnf("[Poller] Failed to count job outcome: %v", cntErr)
	}

	log.Infof("[Poller] Job %s completed in %s, stored at %s",
		job.UUID, completedAt.Sub(job.CreatedAt).Round(time.Second), permanentURL)
	return outcomeCompleted, ""
}
