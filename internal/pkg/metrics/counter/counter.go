package counter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuelReschke/ClipFox/internal/pkg/cache"
)

const jobOutcomesKey = "generation:counters:outcomes"

// Job outcome labels used as part of the Redis hash field.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
)

// AddJobOutcome increments the daily counter for a job outcome in Redis.
// Counter writes are best effort; a cache hiccup must never block the poller.
func AddJobOutcome(outcome string, day time.Time) error {
	ctx := context.Background()
	field := fmt.Sprintf("%s:%s", day.UTC().Format("2006-01-02"), outcome)
	return cache.GetClient().HIncrBy(ctx, jobOutcomesKey, field, 1).Err()
}

// DailyOutcomes returns the recorded outcome counts for a given day.
func DailyOutcomes(day time.Time) (map[string]int64, error) {
	ctx := context.Background()
	prefix := day.UTC().Format("2006-01-02") + ":"

	data, err := cache.GetClient().HGetAll(ctx, jobOutcomesKey).Result()
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64)
	for field, raw := range data {
		if len(field) <= len(prefix) || field[:len(prefix)] != prefix {
			continue
		}
		n, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			continue
		}
		out[field[len(prefix):]] += n
	}
	return out, nil
}
