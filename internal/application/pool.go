// Package application contains use-case orchestration services.
package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

const netscapeHeader = "# Netscape HTTP Cookie File"

// errUnchanged lets an update callback skip the save when it made no change.
var errUnchanged = errors.New("pool unchanged")

// CredentialPool is the single writer over the persisted pool document. Every
// mutation runs load, mutate and save under one mutex so concurrent callers
// never overwrite each other's changes.
type CredentialPool struct {
	store        driven.PoolStateStore
	files        driven.CredentialFileStore
	clock        clock.PassiveClock
	threshold    int
	formatMarker string

	mu sync.Mutex
}

// NewCredentialPool creates a CredentialPool. threshold is the number of
// consecutive failures that blocks a credential; formatMarker is the domain
// substring accepted in place of the Netscape header when sniffing uploads.
func NewCredentialPool(
	store driven.PoolStateStore,
	files driven.CredentialFileStore,
	clk clock.PassiveClock,
	threshold int,
	formatMarker string,
) *CredentialPool {
	return &CredentialPool{
		store:        store,
		files:        files,
		clock:        clk,
		threshold:    threshold,
		formatMarker: formatMarker,
	}
}

// update loads the pool, applies fn and saves the result while holding the lock.
func (p *CredentialPool) update(ctx context.Context, fn func(state *model.PoolState) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load pool: %w", err)
	}

	if err := fn(&state); err != nil {
		if errors.Is(err, errUnchanged) {
			return nil
		}
		return err
	}

	if err := p.store.Save(ctx, state); err != nil {
		return fmt.Errorf("save pool: %w", err)
	}
	return nil
}

// snapshot returns a consistent copy of the pool without mutating it.
func (p *CredentialPool) snapshot(ctx context.Context) (model.PoolState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, err := p.store.Load(ctx)
	if err != nil {
		return model.PoolState{}, fmt.Errorf("load pool: %w", err)
	}
	return state, nil
}

// validateContent rejects empty uploads and content that looks nothing like a
// cookie export. The bytes are otherwise opaque.
func (p *CredentialPool) validateContent(content []byte) error {
	if len(bytes.TrimSpace(content)) == 0 {
		return model.ErrEmptyCredential
	}
	if bytes.Contains(content, []byte(netscapeHeader)) {
		return nil
	}
	if p.formatMarker != "" && bytes.Contains(content, []byte(p.formatMarker)) {
		return nil
	}
	return model.ErrInvalidCredentialFormat
}

// Add validates and stores a new credential, appending an untested record.
func (p *CredentialPool) Add(ctx context.Context, content []byte, displayName string) (model.Credential, error) {
	if err := p.validateContent(content); err != nil {
		return model.Credential{}, err
	}

	id := "cookie_" + uuid.Must(uuid.NewV7()).String()

	location, err := p.files.Put(id, content)
	if err != nil {
		return model.Credential{}, fmt.Errorf("store credential bytes: %w", err)
	}

	var added model.Credential
	err = p.update(ctx, func(state *model.PoolState) error {
		added = model.Credential{
			ID:          id,
			Location:    location,
			DisplayName: displayName,
			UploadedAt:  p.clock.Now().UTC(),
			Status:      model.CredentialStatusUntested,
			Priority:    len(state.Credentials),
		}
		state.Credentials = append(state.Credentials, added)
		return nil
	})
	if err != nil {
		if rmErr := p.files.Remove(location); rmErr != nil {
			slog.Error("failed to remove credential bytes after save error", "id", id, "error", rmErr)
		}
		return model.Credential{}, err
	}

	slog.Info("credential added", "id", id, "name", displayName)
	return added, nil
}

// Delete removes a credential's bytes and its record. Unknown ids return
// model.ErrNotFound without touching the pool.
func (p *CredentialPool) Delete(ctx context.Context, id string) error {
	err := p.update(ctx, func(state *model.PoolState) error {
		idx := state.IndexOf(id)
		if idx < 0 {
			return model.ErrNotFound
		}

		if err := p.files.Remove(state.Credentials[idx].Location); err != nil {
			return fmt.Errorf("delete credential %q: %w", id, err)
		}

		state.Credentials = slices.Delete(state.Credentials, idx, idx+1)
		if state.CurrentIndex >= len(state.Credentials) {
			state.CurrentIndex = max(0, len(state.Credentials)-1)
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("credential deleted", "id", id)
	return nil
}

// RecordOutcome applies a live-use result to a credential. A failure blocks the
// credential once its streak reaches the configured threshold.
func (p *CredentialPool) RecordOutcome(ctx context.Context, id string, success bool, errText string) error {
	return p.update(ctx, func(state *model.PoolState) error {
		idx := state.IndexOf(id)
		if idx < 0 {
			return model.ErrNotFound
		}

		c := &state.Credentials[idx]
		before := c.Status
		if success {
			c.RecordSuccess(p.clock.Now().UTC())
		} else {
			c.RecordFailure(p.clock.Now().UTC(), errText, p.threshold)
		}

		if c.Status != before {
			slog.Info("credential status changed",
				"id", id, "from", before, "to", c.Status, "failures", c.FailureCount)
		}
		return nil
	})
}

// ApplyProbeOutcome stores a probe classification. A credential deleted while
// the probe was running is skipped.
func (p *CredentialPool) ApplyProbeOutcome(ctx context.Context, id string, outcome model.ProbeOutcome) error {
	return p.update(ctx, func(state *model.PoolState) error {
		idx := state.IndexOf(id)
		if idx < 0 {
			slog.Debug("probed credential no longer in pool", "id", id)
			return errUnchanged
		}

		c := &state.Credentials[idx]
		before := c.Status
		c.ApplyProbe(p.clock.Now().UTC(), outcome)
		if c.Status != before {
			slog.Info("credential status changed",
				"id", id, "from", before, "to", c.Status, "reason", outcome.Reason)
		}
		return nil
	})
}

// Reset puts a credential back into rotation as untested.
func (p *CredentialPool) Reset(ctx context.Context, id string) (model.Credential, error) {
	var reset model.Credential
	err := p.update(ctx, func(state *model.PoolState) error {
		idx := state.IndexOf(id)
		if idx < 0 {
			return model.ErrNotFound
		}
		state.Credentials[idx].Reset(p.clock.Now().UTC())
		reset = state.Credentials[idx]
		return nil
	})
	if err != nil {
		return model.Credential{}, err
	}

	slog.Info("credential reset", "id", id)
	return reset, nil
}

// Get returns a single credential.
func (p *CredentialPool) Get(ctx context.Context, id string) (model.Credential, error) {
	state, err := p.snapshot(ctx)
	if err != nil {
		return model.Credential{}, err
	}
	idx := state.IndexOf(id)
	if idx < 0 {
		return model.Credential{}, model.ErrNotFound
	}
	return state.Credentials[idx], nil
}

// List returns every credential in pool order.
func (p *CredentialPool) List(ctx context.Context) ([]model.Credential, error) {
	state, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return state.Credentials, nil
}

// Stats returns per-status counts and pool metadata.
func (p *CredentialPool) Stats(ctx context.Context) (model.PoolStats, error) {
	state, err := p.snapshot(ctx)
	if err != nil {
		return model.PoolStats{}, err
	}
	return state.Stats(), nil
}

// Path resolves a credential's location to a file path for the extraction tool.
func (p *CredentialPool) Path(c model.Credential) string {
	return p.files.Path(c.Location)
}

// Current returns the credential rotation currently points at. With nothing
// eligible it returns the first credential in the pool regardless of status,
// and nil only when the pool is empty.
func (p *CredentialPool) Current(ctx context.Context) (*model.Credential, error) {
	state, err := p.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return selectCurrent(&state), nil
}

// Next advances rotation to the following eligible credential and persists the
// new position. It returns nil without saving when nothing is eligible.
func (p *CredentialPool) Next(ctx context.Context) (*model.Credential, error) {
	var next *model.Credential
	err := p.update(ctx, func(state *model.PoolState) error {
		next = advance(state)
		if next == nil {
			return errUnchanged
		}
		now := p.clock.Now().UTC()
		state.LastRotationAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if next != nil {
		slog.Debug("rotated credential", "id", next.ID)
	}
	return next, nil
}

// AllExhausted reports whether every credential is blocked, expired or errored.
// An empty pool counts as exhausted.
func (p *CredentialPool) AllExhausted(ctx context.Context) (bool, error) {
	state, err := p.snapshot(ctx)
	if err != nil {
		return false, err
	}
	return allExhausted(&state), nil
}

// FallbackEnabled reports the operator toggle stored with the pool.
func (p *CredentialPool) FallbackEnabled(ctx context.Context) (bool, error) {
	state, err := p.snapshot(ctx)
	if err != nil {
		return false, err
	}
	return state.FallbackEnabled, nil
}

// SetFallbackEnabled persists the operator toggle for the session-warmer tier.
func (p *CredentialPool) SetFallbackEnabled(ctx context.Context, enabled bool) error {
	err := p.update(ctx, func(state *model.PoolState) error {
		state.FallbackEnabled = enabled
		return nil
	})
	if err != nil {
		return err
	}

	slog.Info("session fallback toggled", "enabled", enabled)
	return nil
}

// IncrementFallbackUsage counts one invocation of the session-warmer tier.
func (p *CredentialPool) IncrementFallbackUsage(ctx context.Context) error {
	return p.update(ctx, func(state *model.PoolState) error {
		state.FallbackUsageCount++
		return nil
	})
}

// MarkHealthChecked stamps the end of a full health check.
func (p *CredentialPool) MarkHealthChecked(ctx context.Context) error {
	return p.update(ctx, func(state *model.PoolState) error {
		now := p.clock.Now().UTC()
		state.LastHealthCheckAt = &now
		return nil
	})
}

// Reconcile restores the bytes-iff-record invariant after a crash: files with
// no record are deleted and records whose file is gone are dropped.
func (p *CredentialPool) Reconcile(ctx context.Context) (orphans, dangling int, err error) {
	err = p.update(ctx, func(state *model.PoolState) error {
		locations, err := p.files.List()
		if err != nil {
			return err
		}

		onDisk := make(map[string]bool, len(locations))
		for _, loc := range locations {
			onDisk[loc] = true
		}

		known := make(map[string]bool, len(state.Credentials))
		kept := make([]model.Credential, 0, len(state.Credentials))
		for _, c := range state.Credentials {
			if !onDisk[c.Location] {
				slog.Warn("dropping credential with missing file", "id", c.ID, "location", c.Location)
				dangling++
				continue
			}
			known[c.Location] = true
			kept = append(kept, c)
		}
		state.Credentials = kept

		for _, loc := range locations {
			if known[loc] {
				continue
			}
			if err := p.files.Remove(loc); err != nil {
				return err
			}
			slog.Warn("removed orphaned credential file", "location", loc)
			orphans++
		}

		if dangling == 0 && orphans == 0 {
			return errUnchanged
		}
		if state.CurrentIndex >= len(state.Credentials) {
			state.CurrentIndex = max(0, len(state.Credentials)-1)
		}
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("reconcile pool: %w", err)
	}
	return orphans, dangling, nil
}
