// Package lockout implements the brute-force defense math: exponential
// backoff on failed password logins. Pure functions, no side effects.
package lockout

import "time"

const (
	// Threshold is the failed-attempt count at which an account locks.
	Threshold = 5

	baseDuration = 15 * time.Minute
	maxDuration  = 4 * time.Hour
)

// Duration returns the lock length for a given failed-attempt count.
// Below the threshold it is zero. At the threshold it is the 15 minute
// base, doubling per attempt beyond it, capped at 4 hours.
func Duration(failedAttempts int) time.Duration {
	if failedAttempts < Threshold {
		return 0
	}
	d := baseDuration
	for i := Threshold; i < failedAttempts; i++ {
		d *= 2
		if d >= maxDuration {
			return maxDuration
		}
	}
	return d
}

// LockUntil computes the lock expiry for a failed-attempt count evaluated
// at the given instant. A zero time means no lock applies.
func LockUntil(failedAttempts int, now time.Time) time.Time {
	d := Duration(failedAttempts)
	if d == 0 {
		return time.Time{}
	}
	return now.Add(d)
}

// Locked reports whether a lock expiry is still in effect at the given
// instant. A nil expiry means the account was never locked.
func Locked(until *time.Time, now time.Time) bool {
	return until != nil && now.Before(*until)
}
