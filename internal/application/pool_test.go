package application_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/ericfisherdev/cookiepool/internal/application"
	"github.com/ericfisherdev/cookiepool/internal/domain/model"
)

const validCookies = "# Netscape HTTP Cookie File\n.youtube.com\tTRUE\t/\tTRUE\t0\tSID\tabc\n"

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

type poolFixture struct {
	pool  *application.CredentialPool
	store *memStore
	files *memFiles
	clock *clocktesting.FakeClock
}

func newPoolFixture(t *testing.T) *poolFixture {
	t.Helper()
	store := &memStore{}
	files := newMemFiles()
	clk := clocktesting.NewFakeClock(epoch)
	return &poolFixture{
		pool:  application.NewCredentialPool(store, files, clk, 3, "youtube.com"),
		store: store,
		files: files,
		clock: clk,
	}
}

// seed adds n credentials and returns their ids in pool order.
func (f *poolFixture) seed(t *testing.T, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		c, err := f.pool.Add(context.Background(), []byte(validCookies), "cookies.txt")
		require.NoError(t, err)
		ids = append(ids, c.ID)
	}
	return ids
}

// setStatus forces a credential's status directly in the store.
func (f *poolFixture) setStatus(t *testing.T, id string, status model.CredentialStatus) {
	t.Helper()
	state, err := f.store.Load(context.Background())
	require.NoError(t, err)
	idx := state.IndexOf(id)
	require.GreaterOrEqual(t, idx, 0)
	state.Credentials[idx].Status = status
	require.NoError(t, f.store.Save(context.Background(), state))
}

func TestCredentialPool_AddThenLoad(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	added, err := f.pool.Add(ctx, []byte(validCookies), "main.txt")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(added.ID, "cookie_"))
	assert.True(t, f.files.has(added.Location))

	state, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.Credentials, 1)

	c := state.Credentials[0]
	assert.Equal(t, added.ID, c.ID)
	assert.Equal(t, "main.txt", c.DisplayName)
	assert.Equal(t, model.CredentialStatusUntested, c.Status)
	assert.Zero(t, c.FailureCount)
	assert.Zero(t, c.SuccessCount)
	assert.Nil(t, c.LastCheckedAt)
	assert.Equal(t, epoch, c.UploadedAt)
	assert.Equal(t, 0, c.Priority)
}

func TestCredentialPool_AddAssignsPriorityAndUniqueIDs(t *testing.T) {
	f := newPoolFixture(t)
	ids := f.seed(t, 3)

	list, err := f.pool.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 3)

	seen := map[string]bool{}
	for i, c := range list {
		assert.Equal(t, i, c.Priority)
		assert.Equal(t, ids[i], c.ID)
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
}

func TestCredentialPool_AddValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr error
	}{
		{name: "empty", content: "", wantErr: model.ErrEmptyCredential},
		{name: "whitespace only", content: "  \n\t\n", wantErr: model.ErrEmptyCredential},
		{name: "unrelated text", content: "hello world", wantErr: model.ErrInvalidCredentialFormat},
		{name: "netscape header", content: "# Netscape HTTP Cookie File\n", wantErr: nil},
		{name: "domain marker only", content: ".youtube.com\tTRUE\t/\tTRUE\t0\tSID\tx", wantErr: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPoolFixture(t)

			_, err := f.pool.Add(context.Background(), []byte(tt.content), "x.txt")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, f.store.saveCount(), "rejected content must never be stored")
				files, _ := f.files.List()
				assert.Empty(t, files)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestCredentialPool_AddRemovesBytesWhenSaveFails(t *testing.T) {
	f := newPoolFixture(t)
	f.store.saveErr = errors.New("disk full")

	_, err := f.pool.Add(context.Background(), []byte(validCookies), "x.txt")
	require.Error(t, err)

	files, _ := f.files.List()
	assert.Empty(t, files)
}

func TestCredentialPool_FailuresBlockAtThresholdAndSuccessResets(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()
	id := f.seed(t, 1)[0]

	for i := 1; i <= 3; i++ {
		require.NoError(t, f.pool.RecordOutcome(ctx, id, false, "HTTP Error 403"))
		c, err := f.pool.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, i, c.FailureCount)
		if i < 3 {
			assert.Equal(t, model.CredentialStatusUntested, c.Status)
		} else {
			assert.Equal(t, model.CredentialStatusBlocked, c.Status)
		}
		assert.Equal(t, "HTTP Error 403", c.LastError)
		require.NotNil(t, c.LastCheckedAt)
	}

	require.NoError(t, f.pool.RecordOutcome(ctx, id, true, ""))
	c, err := f.pool.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialStatusActive, c.Status)
	assert.Zero(t, c.FailureCount)
	assert.Equal(t, 1, c.SuccessCount)
	assert.Empty(t, c.LastError)
}

func TestCredentialPool_RecordOutcomeUnknownID(t *testing.T) {
	f := newPoolFixture(t)
	err := f.pool.RecordOutcome(context.Background(), "nope", true, "")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCredentialPool_NextRoundRobinClosure(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()
	ids := f.seed(t, 4)
	f.setStatus(t, ids[2], model.CredentialStatusBlocked)
	eligible := []string{ids[0], ids[1], ids[3]}

	first, err := f.pool.Current(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	seen := map[string]bool{first.ID: true}
	var last *model.Credential
	for i := 0; i < len(eligible); i++ {
		last, err = f.pool.Next(ctx)
		require.NoError(t, err)
		require.NotNil(t, last)
		assert.Contains(t, eligible, last.ID, "blocked credential must never be selected")
		if i < len(eligible)-1 {
			assert.False(t, seen[last.ID], "record %s returned twice within one cycle", last.ID)
			seen[last.ID] = true
		}
	}
	assert.Equal(t, first.ID, last.ID, "a full cycle must return to the first record")

	state, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.LastRotationAt)
}

func TestCredentialPool_NextEmptyViewReturnsNil(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()
	ids := f.seed(t, 2)
	for _, id := range ids {
		f.setStatus(t, id, model.CredentialStatusExpired)
	}
	saves := f.store.saveCount()

	next, err := f.pool.Next(ctx)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, saves, f.store.saveCount(), "Next with nothing eligible must not persist")
}

func TestCredentialPool_Current(t *testing.T) {
	t.Run("empty pool returns nil", func(t *testing.T) {
		f := newPoolFixture(t)
		c, err := f.pool.Current(context.Background())
		require.NoError(t, err)
		assert.Nil(t, c)
	})

	t.Run("no eligible credential falls back to first record", func(t *testing.T) {
		f := newPoolFixture(t)
		ids := f.seed(t, 2)
		f.setStatus(t, ids[0], model.CredentialStatusBlocked)
		f.setStatus(t, ids[1], model.CredentialStatusError)

		c, err := f.pool.Current(context.Background())
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, ids[0], c.ID)
	})

	t.Run("index is taken modulo the eligible view", func(t *testing.T) {
		f := newPoolFixture(t)
		ids := f.seed(t, 3)

		state, err := f.store.Load(context.Background())
		require.NoError(t, err)
		state.CurrentIndex = 2
		state.Credentials[0].Status = model.CredentialStatusBlocked
		require.NoError(t, f.store.Save(context.Background(), state))

		// Eligible view is [ids[1], ids[2]]; 2 mod 2 = 0.
		c, err := f.pool.Current(context.Background())
		require.NoError(t, err)
		require.NotNil(t, c)
		assert.Equal(t, ids[1], c.ID)
	})
}

func TestCredentialPool_Delete(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()
	ids := f.seed(t, 2)

	before, err := f.pool.Get(ctx, ids[1])
	require.NoError(t, err)

	require.NoError(t, f.pool.Delete(ctx, ids[1]))

	assert.False(t, f.files.has(before.Location))
	_, err = f.pool.Get(ctx, ids[1])
	assert.ErrorIs(t, err, model.ErrNotFound)

	list, err := f.pool.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids[0], list[0].ID)
}

func TestCredentialPool_DeleteUnknownIDDoesNotMutate(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()
	f.seed(t, 2)

	before, err := f.store.Load(ctx)
	require.NoError(t, err)
	saves := f.store.saveCount()

	err = f.pool.Delete(ctx, "cookie_missing")
	require.ErrorIs(t, err, model.ErrNotFound)

	after, err := f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Equal(t, saves, f.store.saveCount())
	assert.Empty(t, f.files.removed)
}

func TestCredentialPool_DeleteClampsCurrentIndex(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()
	ids := f.seed(t, 3)

	state, err := f.store.Load(ctx)
	require.NoError(t, err)
	state.CurrentIndex = 2
	require.NoError(t, f.store.Save(ctx, state))

	require.NoError(t, f.pool.Delete(ctx, ids[2]))

	state, err = f.store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, state.CurrentIndex)
}

func TestCredentialPool_ResetReturnsCredentialToRotation(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()
	id := f.seed(t, 1)[0]
	for i := 0; i < 3; i++ {
		require.NoError(t, f.pool.RecordOutcome(ctx, id, false, "boom"))
	}

	f.clock.Step(time.Minute)
	c, err := f.pool.Reset(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialStatusUntested, c.Status)
	assert.Zero(t, c.FailureCount)
	assert.Empty(t, c.LastError)
	require.NotNil(t, c.LastCheckedAt)
	assert.Equal(t, epoch.Add(time.Minute), *c.LastCheckedAt)

	exhausted, err := f.pool.AllExhausted(ctx)
	require.NoError(t, err)
	assert.False(t, exhausted)

	_, err = f.pool.Reset(ctx, "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCredentialPool_ApplyProbeOutcomeIsAuthoritative(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()
	id := f.seed(t, 1)[0]

	require.NoError(t, f.pool.ApplyProbeOutcome(ctx, id, model.ProbeOutcome{
		Status: model.CredentialStatusExpired,
		Reason: "cookies expired or invalid",
	}))
	c, err := f.pool.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialStatusExpired, c.Status)
	assert.Equal(t, 1, c.FailureCount)

	require.NoError(t, f.pool.ApplyProbeOutcome(ctx, id, model.ProbeOutcome{Status: model.CredentialStatusActive}))
	c, err = f.pool.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialStatusActive, c.Status)
	assert.Zero(t, c.FailureCount)

	// A credential deleted mid-probe is skipped silently.
	assert.NoError(t, f.pool.ApplyProbeOutcome(ctx, "gone", model.ProbeOutcome{Status: model.CredentialStatusBlocked}))
}

func TestCredentialPool_StatsAndFallbackToggle(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()
	ids := f.seed(t, 3)
	f.setStatus(t, ids[0], model.CredentialStatusActive)
	f.setStatus(t, ids[1], model.CredentialStatusBlocked)

	require.NoError(t, f.pool.SetFallbackEnabled(ctx, false))
	require.NoError(t, f.pool.IncrementFallbackUsage(ctx))
	require.NoError(t, f.pool.MarkHealthChecked(ctx))

	stats, err := f.pool.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Blocked)
	assert.Equal(t, 1, stats.Untested)
	assert.Equal(t, 2, stats.Usable())
	assert.False(t, stats.FallbackEnabled)
	assert.Equal(t, 1, stats.FallbackUsageCount)
	require.NotNil(t, stats.LastHealthCheckAt)
	assert.Equal(t, epoch, *stats.LastHealthCheckAt)
}

func TestCredentialPool_Reconcile(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()
	ids := f.seed(t, 2)

	// Orphan: bytes without a record.
	_, err := f.files.Put("cookie_orphan", []byte(validCookies))
	require.NoError(t, err)
	// Dangling: record without bytes.
	dangling, err := f.pool.Get(ctx, ids[0])
	require.NoError(t, err)
	require.NoError(t, f.files.Remove(dangling.Location))

	orphans, dropped, err := f.pool.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, orphans)
	assert.Equal(t, 1, dropped)

	assert.False(t, f.files.has("cookie_orphan.txt"))
	list, err := f.pool.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, ids[1], list[0].ID)

	// A consistent pool is left alone.
	saves := f.store.saveCount()
	orphans, dropped, err = f.pool.Reconcile(ctx)
	require.NoError(t, err)
	assert.Zero(t, orphans)
	assert.Zero(t, dropped)
	assert.Equal(t, saves, f.store.saveCount())
}

func TestCredentialPool_ConcurrentMutationsKeepEveryUpdate(t *testing.T) {
	f := newPoolFixture(t)
	ctx := context.Background()

	const workers = 20
	seeded := f.seed(t, workers+1)
	target, doomed := seeded[0], seeded[1:]

	var wg sync.WaitGroup
	errs := make(chan error, workers*5)
	for i := 0; i < workers; i++ {
		wg.Add(5)
		go func() {
			defer wg.Done()
			_, err := f.pool.Add(ctx, []byte(validCookies), "concurrent.txt")
			errs <- err
		}()
		go func(id string) {
			defer wg.Done()
			errs <- f.pool.Delete(ctx, id)
		}(doomed[i])
		go func() {
			defer wg.Done()
			errs <- f.pool.RecordOutcome(ctx, target, true, "")
		}()
		go func() {
			defer wg.Done()
			_, err := f.pool.Next(ctx)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			errs <- f.pool.IncrementFallbackUsage(ctx)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	state, err := f.store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, state.Credentials, 1+workers)
	assert.Equal(t, workers, state.FallbackUsageCount)

	seen := make(map[string]bool, len(state.Credentials))
	for _, c := range state.Credentials {
		assert.False(t, seen[c.ID], "duplicate id %s", c.ID)
		seen[c.ID] = true
	}
	for _, id := range doomed {
		assert.False(t, seen[id], "deleted credential %s came back", id)
	}

	idx := state.IndexOf(target)
	require.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, workers, state.Credentials[idx].SuccessCount)
	assert.Less(t, state.CurrentIndex, len(state.Credentials))
}
