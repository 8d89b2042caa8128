package application

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"k8s.io/utils/clock"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

// Operation is the caller's work that needs one credential file. A nil error
// means the credential worked.
type Operation func(ctx context.Context, credentialPath string) error

// FallbackConfig tunes the fallback chain.
type FallbackConfig struct {
	MaxRotations  int
	RotationDelay time.Duration
	// Enabled gates the session-warmer tier together with the toggle stored
	// in the pool; both must allow it.
	Enabled      bool
	EphemeralTTL time.Duration
}

// FallbackOrchestrator runs an Operation against the current credential, then
// rotates through the pool, and only when every credential is unusable asks
// the session warmer for an ephemeral one.
type FallbackOrchestrator struct {
	pool    *CredentialPool
	warmer  driven.SessionWarmer
	metrics driven.PoolMetrics
	clock   clock.WithDelayedExecution
	cfg     FallbackConfig
}

// NewFallbackOrchestrator creates a new FallbackOrchestrator.
func NewFallbackOrchestrator(
	pool *CredentialPool,
	warmer driven.SessionWarmer,
	metrics driven.PoolMetrics,
	clk clock.WithDelayedExecution,
	cfg FallbackConfig,
) *FallbackOrchestrator {
	return &FallbackOrchestrator{
		pool:    pool,
		warmer:  warmer,
		metrics: metrics,
		clock:   clk,
		cfg:     cfg,
	}
}

// Execute runs op through the fallback tiers and reports which one worked.
// Per-credential failures are recorded in the pool. Errors are either
// persistence or context errors, or a *model.FallbackError when every
// permitted tier failed.
func (o *FallbackOrchestrator) Execute(ctx context.Context, targetURL string, op Operation) (model.FallbackResult, error) {
	attempts := 0
	tried := make(map[string]bool)
	var lastErr error

	current, err := o.pool.Current(ctx)
	if err != nil {
		return model.FallbackResult{}, err
	}
	if current != nil {
		attempts++
		tried[current.ID] = true

		lastErr = op(ctx, o.pool.Path(*current))
		if err := o.record(ctx, *current, lastErr); err != nil {
			return model.FallbackResult{}, err
		}
		if lastErr == nil {
			return o.succeed(model.FallbackMethodCookie, current.ID, attempts), nil
		}
	}

	for i := 0; i < o.cfg.MaxRotations; i++ {
		next, err := o.pool.Next(ctx)
		if err != nil {
			return model.FallbackResult{}, err
		}
		if next == nil || tried[next.ID] {
			break
		}

		if err := sleep(ctx, o.clock, o.cfg.RotationDelay); err != nil {
			return model.FallbackResult{}, err
		}

		attempts++
		tried[next.ID] = true

		lastErr = op(ctx, o.pool.Path(*next))
		if err := o.record(ctx, *next, lastErr); err != nil {
			return model.FallbackResult{}, err
		}
		if lastErr == nil {
			return o.succeed(model.FallbackMethodRotation, next.ID, attempts), nil
		}
	}

	enabled := o.cfg.Enabled
	if enabled {
		if enabled, err = o.pool.FallbackEnabled(ctx); err != nil {
			return model.FallbackResult{}, err
		}
	}
	if !enabled {
		return model.FallbackResult{}, o.fail(&model.FallbackError{
			Kind: model.ErrExhaustedDisabled, Attempts: attempts, Cause: lastErr, EmptyPool: current == nil,
		})
	}

	exhausted, err := o.pool.AllExhausted(ctx)
	if err != nil {
		return model.FallbackResult{}, err
	}
	if !exhausted {
		return model.FallbackResult{}, o.fail(&model.FallbackError{
			Kind: model.ErrExhaustedNotAllBlocked, Attempts: attempts, Cause: lastErr,
		})
	}

	return o.warm(ctx, targetURL, op, attempts, current == nil)
}

// warm mints an ephemeral credential and makes one final attempt with it. The
// warm-up and the attempt with its result count as one attempt. When the pool
// holds no credentials at all, a failure here needs an operator to upload some.
func (o *FallbackOrchestrator) warm(ctx context.Context, targetURL string, op Operation, attempts int, emptyPool bool) (model.FallbackResult, error) {
	if err := o.pool.IncrementFallbackUsage(ctx); err != nil {
		return model.FallbackResult{}, err
	}

	attempts++
	slog.Warn("all credentials exhausted, warming browser session",
		"target", targetURL, "attempt", attempts, "empty_pool", emptyPool)

	path, err := o.warmer.WarmSession(ctx, targetURL)
	if err != nil {
		return model.FallbackResult{}, o.fail(&model.FallbackError{
			Kind: model.ErrExhaustedWarmerFailed, Attempts: attempts, Cause: err, EmptyPool: emptyPool,
		})
	}
	o.scheduleRemoval(path)

	if err := op(ctx, path); err != nil {
		return model.FallbackResult{}, o.fail(&model.FallbackError{
			Kind: model.ErrExhaustedAllMethods, Attempts: attempts, Cause: err, EmptyPool: emptyPool,
		})
	}

	return o.succeed(model.FallbackMethodChromium, "", attempts), nil
}

// record stores the result of one attempt with c. The returned error is a
// persistence or context error that must abort the chain.
func (o *FallbackOrchestrator) record(ctx context.Context, c model.Credential, opErr error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var err error
	if opErr == nil {
		err = o.pool.RecordOutcome(ctx, c.ID, true, "")
	} else {
		slog.Warn("credential attempt failed", "id", c.ID, "error", opErr)
		err = o.pool.RecordOutcome(ctx, c.ID, false, truncate(opErr.Error(), maxReasonLen))
	}

	// Deleted while in use; nothing left to record against.
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record outcome for %q: %w", c.ID, err)
	}
	return nil
}

func (o *FallbackOrchestrator) succeed(method model.FallbackMethod, id string, attempts int) model.FallbackResult {
	slog.Info("fallback succeeded", "method", method, "credential_id", id, "attempts", attempts)
	o.metrics.ObserveFallback(method, "success", attempts)
	return model.FallbackResult{Method: method, CredentialID: id, Attempts: attempts}
}

func (o *FallbackOrchestrator) fail(fe *model.FallbackError) error {
	slog.Error("fallback exhausted",
		"kind", fe.Code(), "attempts", fe.Attempts, "empty_pool", fe.EmptyPool, "cause", fe.Cause)
	o.metrics.ObserveFallback("", fe.Code(), fe.Attempts)
	return fe
}

// scheduleRemoval deletes an ephemeral credential once EphemeralTTL elapses.
func (o *FallbackOrchestrator) scheduleRemoval(path string) {
	o.clock.AfterFunc(o.cfg.EphemeralTTL, func() {
		err := os.Remove(path)
		switch {
		case err == nil:
			slog.Debug("removed ephemeral credential", "path", path)
		case errors.Is(err, fs.ErrNotExist):
		default:
			slog.Warn("failed to remove ephemeral credential", "path", path, "error", err)
		}
	})
}
