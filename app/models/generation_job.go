package models

import "time"

// GenerationJob status values. The lifecycle is monotone:
// processing -> downloading -> completed, or {processing, downloading} -> failed.
// completed and failed are terminal.
const (
	JobStatusProcessing  = "processing"
	JobStatusDownloading = "downloading"
	JobStatusCompleted   = "completed"
	JobStatusFailed      = "failed"
)

// Job error codes stored on failed jobs.
const (
	JobErrorTimeout    = "TIMEOUT"
	JobErrorExternal   = "EXTERNAL_API_ERROR"
	JobErrorDownload   = "DOWNLOAD_FAILED"
	JobErrorDispatch   = "DISPATCH_FAILED"
	JobErrorNoDispatch = "DISPATCH_LOST"
)

// GenerationJob tracks one asynchronous generation request dispatched to the
// external generation service.
type GenerationJob struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	UUID               string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	UserID             uint       `gorm:"not null;index:idx_generation_jobs_user_status,priority:1" json:"user_id"`
	Status             string     `gorm:"type:varchar(16);not null;default:'processing';index:idx_generation_jobs_user_status,priority:2;index" json:"status"`
	JobType            string     `gorm:"type:varchar(16);not null" json:"job_type"`
	Prompt             string     `gorm:"type:text" json:"prompt"`
	ExternalRef        string     `gorm:"type:varchar(191);index" json:"external_ref"`
	TempResultURL      string     `gorm:"type:varchar(2048)" json:"-"`
	PermanentResultURL string     `gorm:"type:varchar(2048)" json:"permanent_result_url,omitempty"`
	CreditCost         int64      `gorm:"not null" json:"credit_cost"`
	ErrorCode          string     `gorm:"type:varchar(64)" json:"error_code,omitempty"`
	ErrorMessage       string     `gorm:"type:varchar(1024)" json:"error_message,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt        *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the job reached a final state.
func (j *GenerationJob) IsTerminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed
}

// ActiveJobStatuses lists the non-terminal states counted by admission
// control and scanned by the status poller.
func ActiveJobStatuses() []string {
	return []string{JobStatusProcessing, JobStatusDownloading}
}
