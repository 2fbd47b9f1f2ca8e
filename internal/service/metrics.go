package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Login outcomes recorded in auth_login_attempts_total.
const (
	OutcomeSuccess            = "success"
	OutcomeInvalidCredentials = "invalid_credentials"
	OutcomeUnknownIdentifier  = "unknown_identifier"
	OutcomeInactive           = "inactive"
	OutcomeLocked             = "locked"
	OutcomeError              = "error"
)

var (
	// LoginAttempts counts Authenticate calls by outcome.
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Total number of login attempts by outcome",
		},
		[]string{"outcome"},
	)

	// AccountLockouts counts failures that crossed the lockout threshold.
	AccountLockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_account_lockouts_total",
			Help: "Total number of accounts locked after repeated failed logins",
		},
	)

	// PasswordVerifyDuration observes hash verification latency, including
	// time spent waiting for a hashing slot.
	PasswordVerifyDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "auth_password_verify_duration_seconds",
			Help:    "Duration of password hash verification in seconds",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		},
	)
)
