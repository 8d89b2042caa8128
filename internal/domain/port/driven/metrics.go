package driven

import "github.com/ericfisherdev/cookiepool/internal/domain/model"

// PoolMetrics receives engine observations for export.
type PoolMetrics interface {
	// ObserveFallback records one fallback run. method is empty on failure and
	// outcome is "success" or the exhaustion kind.
	ObserveFallback(method model.FallbackMethod, outcome string, attempts int)

	// ObserveProbe records one probe classification.
	ObserveProbe(status model.CredentialStatus)

	// SetPoolStats publishes the current per-status counts.
	SetPoolStats(stats model.PoolStats)
}
