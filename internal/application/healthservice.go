package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

// HealthService probes credentials and persists the classifications.
type HealthService struct {
	pool    *CredentialPool
	probe   *HealthProbe
	metrics driven.PoolMetrics
	clock   clock.Clock
	delay   time.Duration

	// checkMu keeps full-pool checks from overlapping.
	checkMu sync.Mutex
}

// NewHealthService creates a HealthService. delay separates consecutive
// probes during a full check.
func NewHealthService(
	pool *CredentialPool,
	probe *HealthProbe,
	metrics driven.PoolMetrics,
	clk clock.Clock,
	delay time.Duration,
) *HealthService {
	return &HealthService{
		pool:    pool,
		probe:   probe,
		metrics: metrics,
		clock:   clk,
		delay:   delay,
	}
}

// ProbeOne probes a single credential and returns the updated record.
func (s *HealthService) ProbeOne(ctx context.Context, id string) (model.Credential, error) {
	c, err := s.pool.Get(ctx, id)
	if err != nil {
		return model.Credential{}, err
	}

	outcome := s.probe.Probe(ctx, s.pool.Path(c))
	s.metrics.ObserveProbe(outcome.Status)
	slog.Info("credential probed", "id", id, "status", outcome.Status, "reason", outcome.Reason)

	if err := s.pool.ApplyProbeOutcome(ctx, id, outcome); err != nil {
		return model.Credential{}, fmt.Errorf("record probe of %q: %w", id, err)
	}
	s.PublishStats(ctx)

	return s.pool.Get(ctx, id)
}

// CheckAll probes every credential sequentially with a delay between probes.
// The pool lock is only held while each result is written, so operators can
// keep editing the pool during a long check.
func (s *HealthService) CheckAll(ctx context.Context) (model.HealthSummary, error) {
	s.checkMu.Lock()
	defer s.checkMu.Unlock()

	creds, err := s.pool.List(ctx)
	if err != nil {
		return model.HealthSummary{}, err
	}

	start := s.clock.Now()
	slog.Info("health check started", "credentials", len(creds))

	var summary model.HealthSummary
	for i, c := range creds {
		if i > 0 {
			if err := sleep(ctx, s.clock, s.delay); err != nil {
				return summary, err
			}
		}

		outcome := s.probe.Probe(ctx, s.pool.Path(c))
		s.metrics.ObserveProbe(outcome.Status)
		if err := s.pool.ApplyProbeOutcome(ctx, c.ID, outcome); err != nil {
			return summary, fmt.Errorf("record probe of %q: %w", c.ID, err)
		}

		summary.Tested++
		switch outcome.Status {
		case model.CredentialStatusActive:
			summary.Active++
		case model.CredentialStatusBlocked:
			summary.Blocked++
		case model.CredentialStatusExpired:
			summary.Expired++
		default:
			summary.Errors++
		}
	}

	if err := s.pool.MarkHealthChecked(ctx); err != nil {
		return summary, err
	}
	s.PublishStats(ctx)

	slog.Info("health check complete",
		"tested", summary.Tested,
		"active", summary.Active,
		"blocked", summary.Blocked,
		"expired", summary.Expired,
		"errors", summary.Errors,
		"duration", s.clock.Since(start),
	)
	return summary, nil
}

// PublishStats refreshes the pool gauges from the stored state.
func (s *HealthService) PublishStats(ctx context.Context) {
	stats, err := s.pool.Stats(ctx)
	if err != nil {
		slog.Warn("failed to refresh pool stats", "error", err)
		return
	}
	s.metrics.SetPoolStats(stats)
}

// sleep waits for d on clk or until ctx is done.
func sleep(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clk.After(d):
		return nil
	}
}
