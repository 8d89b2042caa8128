package model

import "time"

// Credential is one browser-exported cookie file registered in the pool.
// Location references the persisted bytes (a file name inside the cookies
// directory); the pool never interprets the bytes themselves.
type Credential struct {
	ID            string
	Location      string
	DisplayName   string
	UploadedAt    time.Time
	LastCheckedAt *time.Time
	Status        CredentialStatus
	FailureCount  int
	SuccessCount  int
	LastError     string
	Priority      int
}

// RecordSuccess resets the failure streak and marks the record active.
func (c *Credential) RecordSuccess(now time.Time) {
	c.SuccessCount++
	c.FailureCount = 0
	c.Status = CredentialStatusActive
	c.LastError = ""
	c.LastCheckedAt = &now
}

// RecordFailure increments the failure streak and blocks the record once the
// streak reaches threshold. A threshold below 1 is treated as 1.
func (c *Credential) RecordFailure(now time.Time, reason string, threshold int) {
	if threshold < 1 {
		threshold = 1
	}
	c.FailureCount++
	c.LastError = reason
	c.LastCheckedAt = &now
	if c.FailureCount >= threshold {
		c.Status = CredentialStatusBlocked
	}
}

// ApplyProbe records a health probe classification. Probes are authoritative:
// the classified status replaces the current one regardless of the streak.
func (c *Credential) ApplyProbe(now time.Time, outcome ProbeOutcome) {
	if outcome.Status == CredentialStatusActive {
		c.RecordSuccess(now)
		return
	}
	c.FailureCount++
	c.Status = outcome.Status
	c.LastError = outcome.Reason
	c.LastCheckedAt = &now
}

// Reset returns the record to the untested state so rotation picks it up
// again. The reset is stamped as the record's last check.
func (c *Credential) Reset(now time.Time) {
	c.Status = CredentialStatusUntested
	c.FailureCount = 0
	c.LastError = ""
	c.LastCheckedAt = &now
}
