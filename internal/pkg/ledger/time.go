package ledger

import "time"

const secondsPerDay = 86400

// FreezeResult describes the temporal outcome of freezing a credit package.
type FreezeResult struct {
	RemainingSeconds int64
	ResumeExpiresAt  time.Time
}

// ComputeFreeze calculates how much validity a package still has at now and
// where its expiry lands when the countdown resumes at frozenUntil. A package
// that already expired keeps zero remaining time.
func ComputeFreeze(originalExpiresAt, frozenUntil, now time.Time) FreezeResult {
	remaining := int64(originalExpiresAt.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return FreezeResult{
		RemainingSeconds: remaining,
		ResumeExpiresAt:  frozenUntil.Add(time.Duration(remaining) * time.Second),
	}
}

// RemainingDays returns ceil((expiresAt - now) / 1 day), clamped to 0 when
// the expiry already passed or is exactly now.
func RemainingDays(expiresAt, now time.Time) int {
	diff := expiresAt.Sub(now)
	if diff <= 0 {
		return 0
	}
	days := diff / (24 * time.Hour)
	if diff%(24*time.Hour) > 0 {
		days++
	}
	return int(days)
}

// ExtendedExpiry returns base shifted forward by the given number of days.
func ExtendedExpiry(base time.Time, days int) time.Time {
	return base.Add(time.Duration(days) * secondsPerDay * time.Second)
}
