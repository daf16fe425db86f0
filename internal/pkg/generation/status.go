package generation

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/ClipFox/internal/pkg/cache"
)

// Cache key formats for the job status mirror
const (
	JobStatusKeyFormat          = "job:status:%s"           // Format: job:status:<uuid>
	JobStatusTimestampKeyFormat = "job:status:timestamp:%s" // Format: job:status:timestamp:<uuid>
)

const jobStatusTTL = 24 * time.Hour

// SetJobStatus mirrors a job's status into the cache so the status endpoint
// can answer without a DB read while the job is in flight.
func SetJobStatus(jobUUID string, status string) error {
	key := fmt.Sprintf(JobStatusKeyFormat, jobUUID)
	SetJobStatusTimestamp(jobUUID, time.Now())
	return cache.Set(key, status, jobStatusTTL)
}

// SetJobStatusTimestamp records when the status was last mirrored.
func SetJobStatusTimestamp(jobUUID string, timestamp time.Time) error {
	cacheKey := fmt.Sprintf(JobStatusTimestampKeyFormat, jobUUID)
	return cache.Set(cacheKey, timestamp.Format(time.RFC3339), jobStatusTTL)
}

// GetJobStatus retrieves the mirrored status of a job from the cache.
// Returns an empty string when the mirror has no entry.
func GetJobStatus(jobUUID string) (string, error) {
	key := fmt.Sprintf(JobStatusKeyFormat, jobUUID)
	return cache.Get(key)
}

// GetJobStatusTimestamp gets the timestamp when the status was mirrored.
func GetJobStatusTimestamp(jobUUID string) (time.Time, error) {
	cacheKey := fmt.Sprintf(JobStatusTimestampKeyFormat, jobUUID)
	timestampStr, err := cache.Get(cacheKey)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, timestampStr)
}
