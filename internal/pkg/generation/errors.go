package generation

import (
	"errors"
	"fmt"
)

// ErrValidation wraps request validation failures; no side effects occurred.
var ErrValidation = errors.New("generation: invalid request")

// ErrPollRunning is returned when another poll invocation holds the lease.
var ErrPollRunning = errors.New("generation: poll already running")

// ConcurrentLimitError is returned when a user's non-terminal job count
// reached the tier cap. Carries the numbers for the API response.
type ConcurrentLimitError struct {
	Limit   int
	Current int
}

func (e *ConcurrentLimitError) Error() string {
	return fmt.Sprintf("generation: concurrent job limit reached (%d/%d)", e.Current, e.Limit)
}
