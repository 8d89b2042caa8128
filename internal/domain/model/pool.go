package model

import "time"

// PoolState is the aggregate root persisted as a single document. Credentials
// keep insertion order; CurrentIndex points into the usable (active/untested)
// view, never into Credentials directly.
type PoolState struct {
	Credentials        []Credential
	CurrentIndex       int
	LastRotationAt     *time.Time
	LastHealthCheckAt  *time.Time
	FallbackEnabled    bool
	FallbackUsageCount int
}

// NewPoolState returns the state used when nothing has been persisted yet.
func NewPoolState() PoolState {
	return PoolState{
		Credentials:     []Credential{},
		FallbackEnabled: true,
	}
}

// IndexOf returns the position of the credential with the given id, or -1.
func (p *PoolState) IndexOf(id string) int {
	for i := range p.Credentials {
		if p.Credentials[i].ID == id {
			return i
		}
	}
	return -1
}

// Stats counts credentials per status and copies the pool-wide metadata.
func (p *PoolState) Stats() PoolStats {
	stats := PoolStats{
		Total:              len(p.Credentials),
		LastRotationAt:     p.LastRotationAt,
		LastHealthCheckAt:  p.LastHealthCheckAt,
		FallbackEnabled:    p.FallbackEnabled,
		FallbackUsageCount: p.FallbackUsageCount,
	}
	for _, c := range p.Credentials {
		switch c.Status {
		case CredentialStatusActive:
			stats.Active++
		case CredentialStatusUntested:
			stats.Untested++
		case CredentialStatusBlocked:
			stats.Blocked++
		case CredentialStatusExpired:
			stats.Expired++
		case CredentialStatusError:
			stats.Error++
		}
	}
	return stats
}

// PoolStats is the operator-facing summary of the pool.
type PoolStats struct {
	Total              int
	Active             int
	Untested           int
	Blocked            int
	Expired            int
	Error              int
	LastRotationAt     *time.Time
	LastHealthCheckAt  *time.Time
	FallbackEnabled    bool
	FallbackUsageCount int
}

// Usable returns the number of credentials eligible for rotation.
func (s PoolStats) Usable() int {
	return s.Active + s.Untested
}
