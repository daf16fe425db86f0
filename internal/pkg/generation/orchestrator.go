package generation

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/ClipFox/app/models"
	"github.com/ManuelReschke/ClipFox/app/repository"
	"github.com/ManuelReschke/ClipFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/ClipFox/internal/pkg/ledger"
)

// CreateRequest carries the user-supplied generation parameters.
type CreateRequest struct {
	JobType         string `json:"job_type" validate:"required,oneof=image video"`
	Prompt          string `json:"prompt" validate:"required,min=3,max=2000"`
	AspectRatio     string `json:"aspect_ratio" validate:"omitempty,oneof=1:1 16:9 9:16"`
	DurationSeconds int    `json:"duration_seconds" validate:"omitempty,min=1,max=30"`
}

// Orchestrator creates generation jobs: admission check, credit debit,
// dispatch to the external service, persisted job row. Any failure after the
// debit is paired with exactly one compensating refund before it surfaces.
type Orchestrator struct {
	jobs     repository.GenerationJobRepository
	ledger   *ledger.Service
	client   Client
	governor *Governor
	validate *validator.Validate
}

// NewOrchestrator wires the job creation pipeline.
func NewOrchestrator(jobs repository.GenerationJobRepository, ledgerSvc *ledger.Service, client Client) *Orchestrator {
	return &Orchestrator{
		jobs:     jobs,
		ledger:   ledgerSvc,
		client:   client,
		governor: NewGovernor(jobs),
		validate: validator.New(),
	}
}

// CreateJob runs the synchronous creation pipeline and returns the persisted
// job in status processing. Callers observe progress via later status reads.
func (o *Orchestrator) CreateJob(ctx context.Context, userID uint, plan entitlements.Plan, req CreateRequest) (*models.GenerationJob, error) {
	// 1. Validation: pure, no side effects.
	if err := o.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	// 2. Admission control.
	if err := o.governor.CheckAdmission(userID, plan); err != nil {
		return nil, err
	}

	jobUUID := uuid.New().String()
	cost := entitlements.CreditCost(req.JobType)

	// 3. Debit before dispatch. The debit row references the job UUID so a
	// crash before dispatch leaves a recoverable trail.
	if _, err := o.ledger.Debit(ctx, userID, cost, "generation "+req.JobType, jobUUID); err != nil {
		return nil, err
	}

	// 4. Persist the job row ahead of dispatch; the poller's stale-dispatch
	// sweep covers a crash between this write and the submit call.
	job := &models.GenerationJob{
		UUID:       jobUUID,
		UserID:     userID,
		Status:     models.JobStatusProcessing,
		JobType:    req.JobType,
		Prompt:     req.Prompt,
		CreditCost: cost,
	}
	if err := o.jobs.Create(job); err != nil {
		o.refundAfterFailure(ctx, userID, cost, jobUUID, "persist failed")
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	// 5. Dispatch to the external generation service.
	externalRef, err := o.client.Submit(ctx, SubmitRequest{
		JobType:         req.JobType,
		Prompt:          req.Prompt,
		AspectRatio:     req.AspectRatio,
		DurationSeconds: req.DurationSeconds,
	})
	if err != nil {
		// Only a recorded refund may take the job terminal. If the refund
		// write errors the job stays active without an external ref and the
		// poller's no-dispatch sweep settles it.
		if o.refundAfterFailure(ctx, userID, cost, jobUUID, "dispatch failed") == nil {
			o.failJobAfterDispatchError(job, err)
		}
		return nil, fmt.Errorf("dispatch failed: %w", err)
	}

	job.ExternalRef = externalRef
	if err := o.jobs.Update(job); err != nil {
		// The dispatch went out; keep the job and let the poller pick the
		// result up via the stale-dispatch sweep if this write was lost.
		log.Errorf("[Generation] Failed to store external ref for job %s: %v", job.UUID, err)
	}

	if err := SetJobStatus(job.UUID, job.Status); err != nil {
		log.Warnf("[Generation] Failed to mirror status for job %s: %v", job.UUID, err)
	}

	log.Infof("[Generation] Created job %s (type=%s, user=%d, cost=%d)", job.UUID, job.JobType, userID, cost)
	return job, nil
}

// refundAfterFailure issues the compensating refund for a debit whose job
// never started. Idempotent per job UUID via the ledger's uniqueness rule.
func (o *Orchestrator) refundAfterFailure(ctx context.Context, userID uint, amount int64, jobUUID, reason string) error {
	_, _, err := o.ledger.Refund(ctx, userID, amount, jobUUID, reason)
	if err != nil {
		log.Errorf("[Generation] Refund for job %s failed: %v", jobUUID, err)
	}
	return err
}

func (o *Orchestrator) failJobAfterDispatchError(job *models.GenerationJob, dispatchErr error) {
	updates := map[string]interface{}{
		"status":        models.JobStatusFailed,
		"error_code":    models.JobErrorDispatch,
		"error_message": truncateError(dispatchErr),
	}
	if _, err := o.jobs.TransitionStatus(job.ID, models.ActiveJobStatuses(), updates); err != nil {
		log.Errorf("[Generation] Failed to mark job %s failed: %v", job.UUID, err)
		return
	}
	if err := SetJobStatus(job.UUID, models.JobStatusFailed); err != nil {
		log.Warnf("[Generation] Failed to mirror status for job %s: %v", job.UUID, err)
	}
}

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > 1024 {
		msg = msg[:1024]
	}
	return msg
}
