package application

import (
	"context"
	"log/slog"
	"time"

	"k8s.io/utils/clock"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
)

// checkRequest is a manual full-check trigger.
type checkRequest struct {
	done chan checkResult
}

type checkResult struct {
	summary model.HealthSummary
	err     error
}

// HealthScheduler drives periodic full-pool health checks.
type HealthScheduler struct {
	health       *HealthService
	clock        clock.WithTicker
	initialDelay time.Duration
	interval     time.Duration
	checkCh      chan checkRequest
}

// NewHealthScheduler creates a new HealthScheduler.
func NewHealthScheduler(health *HealthService, clk clock.WithTicker, initialDelay, interval time.Duration) *HealthScheduler {
	return &HealthScheduler{
		health:       health,
		clock:        clk,
		initialDelay: initialDelay,
		interval:     interval,
		checkCh:      make(chan checkRequest),
	}
}

// Start runs the first check after the initial delay and then one per
// interval. It also serves manual check requests. A failed check is logged and
// the schedule continues. Start blocks until the context is canceled.
func (s *HealthScheduler) Start(ctx context.Context) {
	slog.Info("health scheduler started", "initial_delay", s.initialDelay, "interval", s.interval)

	warmup := s.clock.After(s.initialDelay)
	var ticker clock.Ticker
	var tick <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("health scheduler stopped")
			return
		case <-warmup:
			warmup = nil
			s.runScheduled(ctx)
			ticker = s.clock.NewTicker(s.interval)
			tick = ticker.C()
		case <-tick:
			s.runScheduled(ctx)
		case req := <-s.checkCh:
			summary, err := s.health.CheckAll(ctx)
			req.done <- checkResult{summary: summary, err: err}
		}
	}
}

func (s *HealthScheduler) runScheduled(ctx context.Context) {
	if _, err := s.health.CheckAll(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("scheduled health check failed", "error", err)
	}
}

// RequestCheck runs a full check on the scheduler goroutine, outside the
// regular interval. It blocks until the check completes or ctx is done.
func (s *HealthScheduler) RequestCheck(ctx context.Context) (model.HealthSummary, error) {
	req := checkRequest{done: make(chan checkResult, 1)}

	select {
	case s.checkCh <- req:
	case <-ctx.Done():
		return model.HealthSummary{}, ctx.Err()
	}

	select {
	case res := <-req.done:
		return res.summary, res.err
	case <-ctx.Done():
		return model.HealthSummary{}, ctx.Err()
	}
}
