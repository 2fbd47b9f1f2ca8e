// Package lockout decides when repeated failed logins lock an account.
// It holds no state and performs no I/O.
package lockout

import (
	"time"

	"github.com/utafrali/logistics-auth/internal/domain"
)

// Policy configures the lockout state machine.
type Policy struct {
	FailureThreshold int
	LockoutDuration  time.Duration
}

// DefaultPolicy locks for 30 minutes after 5 consecutive failures.
func DefaultPolicy() Policy {
	return Policy{FailureThreshold: 5, LockoutDuration: 30 * time.Minute}
}

// Decision is the outcome of one failed attempt.
type Decision struct {
	FailedAttempts int
	LockedUntil    *time.Time
	// Locked is true when this failure reached the threshold.
	Locked bool
	// AttemptsRemaining is how many more failures are allowed before the
	// lock; zero when Locked.
	AttemptsRemaining int
}

// IsLocked reports whether acct has an unexpired lock at now.
func (p Policy) IsLocked(acct *domain.Account, now time.Time) bool {
	return acct.LockedUntil != nil && now.Before(*acct.LockedUntil)
}

// OnFailure computes the state after one more failed attempt.
//
// The counter is not reset when a lock expires, so the first failure after
// expiry locks again immediately.
func (p Policy) OnFailure(acct *domain.Account, now time.Time) Decision {
	d := Decision{FailedAttempts: acct.FailedAttempts + 1}
	if d.FailedAttempts >= p.FailureThreshold {
		until := now.Add(p.LockoutDuration)
		d.LockedUntil = &until
		d.Locked = true
		return d
	}
	d.AttemptsRemaining = p.FailureThreshold - d.FailedAttempts
	return d
}

// ApplyFailure records d on acct.
func (d Decision) ApplyFailure(acct *domain.Account) {
	acct.FailedAttempts = d.FailedAttempts
	acct.LockedUntil = d.LockedUntil
}

// OnSuccess clears the counter and any lock.
func (p Policy) OnSuccess(acct *domain.Account) {
	acct.FailedAttempts = 0
	acct.LockedUntil = nil
}
