package application_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/ericfisherdev/cookiepool/internal/domain/model"
	"github.com/ericfisherdev/cookiepool/internal/domain/port/driven"
)

// --- Fake implementations of driven ports ---

// memStore keeps the pool document in memory. It deep-copies on Load and
// Save so callers cannot mutate the stored document by accident.
type memStore struct {
	mu      sync.Mutex
	state   *model.PoolState
	saves   int
	saveErr error
}

func (m *memStore) Load(_ context.Context) (model.PoolState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return model.NewPoolState(), nil
	}
	return clonePool(*m.state), nil
}

func (m *memStore) Save(_ context.Context, state model.PoolState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := clonePool(state)
	m.state = &cp
	m.saves++
	return nil
}

func (m *memStore) setSaveErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
}

func (m *memStore) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

func clonePool(s model.PoolState) model.PoolState {
	s.Credentials = slices.Clone(s.Credentials)
	if s.Credentials == nil {
		s.Credentials = []model.Credential{}
	}
	return s
}

// memFiles stores credential bytes by location.
type memFiles struct {
	mu      sync.Mutex
	files   map[string][]byte
	removed []string
	putErr  error
}

func newMemFiles() *memFiles {
	return &memFiles{files: make(map[string][]byte)}
}

func (m *memFiles) Put(id string, content []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return "", m.putErr
	}
	loc := id + ".txt"
	m.files[loc] = slices.Clone(content)
	return loc, nil
}

func (m *memFiles) Remove(location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, location)
	m.removed = append(m.removed, location)
	return nil
}

func (m *memFiles) Path(location string) string {
	return "/cookies/" + location
}

func (m *memFiles) List() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	locs := make([]string, 0, len(m.files))
	for loc := range m.files {
		locs = append(locs, loc)
	}
	slices.Sort(locs)
	return locs, nil
}

func (m *memFiles) has(location string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[location]
	return ok
}

// scriptedRunner replays results keyed by the credential path passed after --cookies.
type scriptedRunner struct {
	mu      sync.Mutex
	results map[string]model.ProcessResult
	calls   []driven.Command
	err     error
}

func (r *scriptedRunner) Run(_ context.Context, cmd driven.Command) (model.ProcessResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, cmd)
	if r.err != nil {
		return model.ProcessResult{}, r.err
	}
	idx := slices.Index(cmd.Args, "--cookies")
	if idx < 0 || idx+1 >= len(cmd.Args) {
		return model.ProcessResult{}, errors.New("no --cookies argument")
	}
	res, ok := r.results[cmd.Args[idx+1]]
	if !ok {
		return model.ProcessResult{ExitCode: 1, Stderr: "unscripted path " + cmd.Args[idx+1]}, nil
	}
	return res, nil
}

func (r *scriptedRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// fakeWarmer returns a fixed path or error and counts calls.
type fakeWarmer struct {
	mu    sync.Mutex
	path  string
	err   error
	calls int
}

func (w *fakeWarmer) WarmSession(_ context.Context, _ string) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	return w.path, w.err
}

func (w *fakeWarmer) callCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls
}

// recordingMetrics captures observations.
type recordingMetrics struct {
	mu        sync.Mutex
	fallbacks []string
	probes    []model.CredentialStatus
	stats     []model.PoolStats
}

func (m *recordingMetrics) ObserveFallback(method model.FallbackMethod, outcome string, attempts int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks = append(m.fallbacks, fmt.Sprintf("%s/%s/%d", method, outcome, attempts))
}

func (m *recordingMetrics) ObserveProbe(status model.CredentialStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probes = append(m.probes, status)
}

func (m *recordingMetrics) SetPoolStats(stats model.PoolStats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, stats)
}

var (
	_ driven.PoolStateStore      = (*memStore)(nil)
	_ driven.CredentialFileStore = (*memFiles)(nil)
	_ driven.ProcessRunner       = (*scriptedRunner)(nil)
	_ driven.SessionWarmer       = (*fakeWarmer)(nil)
	_ driven.PoolMetrics         = (*recordingMetrics)(nil)
)
