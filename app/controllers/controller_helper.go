package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/ClipFox/app/models"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// parsePagination reads offset/limit query params with sane bounds.
func parsePagination(c *fiber.Ctx) (int, int) {
	offset := c.QueryInt("offset", 0)
	if offset < 0 {
		offset = 0
	}
	limit := c.QueryInt("limit", defaultPageSize)
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	return offset, limit
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

// jobResponse is the wire shape of a generation job.
func jobResponse(job *models.GenerationJob) fiber.Map {
	resp := fiber.Map{
		"task_id":     job.UUID,
		"uuid":        job.UUID,
		"status":      job.Status,
		"job_type":    job.JobType,
		"prompt":      job.Prompt,
		"credit_cost": job.CreditCost,
		"created_at":  job.CreatedAt.Format(time.RFC3339),
	}
	if job.PermanentResultURL != "" {
		resp["result_url"] = job.PermanentResultURL
	}
	if job.ErrorCode != "" {
		resp["error_code"] = job.ErrorCode
		resp["error_message"] = job.ErrorMessage
	}
	if job.CompletedAt != nil {
		resp["completed_at"] = formatTimePtr(job.CompletedAt)
	}
	return resp
}
