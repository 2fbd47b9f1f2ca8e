package lockout

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/logistics-auth/internal/domain"
)

var now = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

func TestIsLocked(t *testing.T) {
	p := DefaultPolicy()
	future, past := now.Add(time.Minute), now.Add(-time.Minute)

	assert.False(t, p.IsLocked(&domain.Account{}, now))
	assert.True(t, p.IsLocked(&domain.Account{LockedUntil: &future}, now))
	assert.False(t, p.IsLocked(&domain.Account{LockedUntil: &past}, now))
	assert.False(t, p.IsLocked(&domain.Account{LockedUntil: &now}, now), "lock ends at expiry")
}

func TestOnFailure_BelowThreshold(t *testing.T) {
	p := DefaultPolicy()
	for prior := 0; prior < p.FailureThreshold-1; prior++ {
		acct := &domain.Account{FailedAttempts: prior}
		d := p.OnFailure(acct, now)

		assert.Equal(t, prior+1, d.FailedAttempts)
		assert.False(t, d.Locked)
		assert.Nil(t, d.LockedUntil)
		assert.Equal(t, p.FailureThreshold-prior-1, d.AttemptsRemaining)
		assert.GreaterOrEqual(t, d.AttemptsRemaining, 1)
	}
}

func TestOnFailure_ReachingThresholdLocks(t *testing.T) {
	p := DefaultPolicy()
	acct := &domain.Account{FailedAttempts: 4}

	d := p.OnFailure(acct, now)

	assert.Equal(t, 5, d.FailedAttempts)
	assert.True(t, d.Locked)
	require.NotNil(t, d.LockedUntil)
	assert.Equal(t, now.Add(30*time.Minute), *d.LockedUntil)
	assert.Zero(t, d.AttemptsRemaining)

	d.ApplyFailure(acct)
	assert.True(t, p.IsLocked(acct, now.Add(29*time.Minute)))
	assert.False(t, p.IsLocked(acct, now.Add(30*time.Minute)))
}

func TestOnFailure_AfterExpiryRelocks(t *testing.T) {
	p := DefaultPolicy()
	expired := now.Add(-time.Second)
	acct := &domain.Account{FailedAttempts: 5, LockedUntil: &expired}

	d := p.OnFailure(acct, now)

	assert.Equal(t, 6, d.FailedAttempts)
	assert.True(t, d.Locked)
}

func TestOnFailure_CustomPolicy(t *testing.T) {
	p := Policy{FailureThreshold: 1, LockoutDuration: time.Minute}
	d := p.OnFailure(&domain.Account{}, now)

	assert.True(t, d.Locked)
	assert.Equal(t, now.Add(time.Minute), *d.LockedUntil)
}

func TestOnSuccess_Resets(t *testing.T) {
	p := DefaultPolicy()
	until := now.Add(time.Hour)
	acct := &domain.Account{FailedAttempts: 9, LockedUntil: &until}

	p.OnSuccess(acct)

	assert.Zero(t, acct.FailedAttempts)
	assert.Nil(t, acct.LockedUntil)
}
