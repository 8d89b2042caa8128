package model

import "time"

// ProcessResult is the final state of a child process run to completion or
// killed on timeout.
type ProcessResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Succeeded reports a clean exit within the deadline.
func (r ProcessResult) Succeeded() bool {
	return !r.TimedOut && r.ExitCode == 0
}

// ProbeOutcome is the classification of one credential probe.
type ProbeOutcome struct {
	Status CredentialStatus
	Reason string
}

// HealthSummary reports the result of a full-pool health check.
type HealthSummary struct {
	Tested  int
	Active  int
	Blocked int
	Expired int
	Errors  int
}
