package tracker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screentime/internal/platform"
	"screentime/internal/usage"
)

// fakeProvider implements platform.Provider with overridable behavior.
type fakeProvider struct {
	permitted  bool
	records    []usage.Record
	fetchErr   error
	fetchCalls int
	lastStart  time.Time
	lastEnd    time.Time
}

func (f *fakeProvider) FetchUsageRecords(ctx context.Context, start, end time.Time) ([]usage.Record, error) {
	f.fetchCalls++
	f.lastStart, f.lastEnd = start, end
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.records, nil
}

func (f *fakeProvider) CurrentForegroundApp(ctx context.Context) (usage.ForegroundApp, error) {
	return usage.ForegroundApp{}, platform.ErrNotFound
}

func (f *fakeProvider) ResolveDisplayName(pkg string) (string, error) {
	return "App " + pkg, nil
}

func (f *fakeProvider) InstalledApps(ctx context.Context) ([]usage.AppInfo, error) {
	return nil, nil
}

func (f *fakeProvider) AppIcon(pkg string) (string, error) {
	return "", platform.ErrNotFound
}

func (f *fakeProvider) HasUsagePermission() bool { return f.permitted }

func (f *fakeProvider) RequestUsagePermission() (string, error) { return "", nil }

// fakeStore is an in-memory storage.Storage.
type fakeStore struct {
	watermark    time.Time
	hasWatermark bool
	saved        [][]usage.Summary
	saveErr      error
	watermarkErr error
}

func (s *fakeStore) Init(ctx context.Context) error { return nil }

func (s *fakeStore) SavePendingSummaries(ctx context.Context, summaries []usage.Summary) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = append(s.saved, summaries)
	return nil
}

func (s *fakeStore) PendingSummaries(ctx context.Context, since time.Time) ([]usage.Summary, error) {
	return nil, nil
}

func (s *fakeStore) LoadWatermark(ctx context.Context) (time.Time, bool, error) {
	return s.watermark, s.hasWatermark, nil
}

func (s *fakeStore) StoreWatermark(ctx context.Context, t time.Time) error {
	if s.watermarkErr != nil {
		return s.watermarkErr
	}
	s.watermark = t
	s.hasWatermark = true
	return nil
}

func (s *fakeStore) Close() error { return nil }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCycleSuccessAdvancesWatermark(t *testing.T) {
	now := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
	prov := &fakeProvider{
		permitted: true,
		records: []usage.Record{
			{Package: "com.slack", TotalMs: 60000, LastUsedMs: now.UnixMilli()},
			{Package: "idle.app", TotalMs: 0},
		},
	}
	store := &fakeStore{}
	tr := New(prov, store, fixedClock(now))

	out := tr.RunCycle(context.Background())
	require.Equal(t, StateSucceeded, out.State)
	require.NoError(t, out.Err)

	require.Len(t, out.Summaries, 1)
	assert.Equal(t, "com.slack", out.Summaries[0].Package)
	assert.Equal(t, now.UnixMilli(), out.Summaries[0].SyncTimeMs)

	require.True(t, store.hasWatermark)
	assert.Equal(t, now, store.watermark)
	require.Len(t, store.saved, 1)

	// First run defaults to start of day.
	assert.Equal(t, usage.StartOfDay(now), prov.lastStart)
	assert.Equal(t, now, prov.lastEnd)
}

func TestWatermarkMonotonicAcrossCycles(t *testing.T) {
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	prov := &fakeProvider{permitted: true}
	store := &fakeStore{}

	current := base
	tr := New(prov, store, func() time.Time { return current })

	for i := 1; i <= 4; i++ {
		current = base.Add(time.Duration(i) * 15 * time.Minute)
		out := tr.RunCycle(context.Background())
		require.Equal(t, StateSucceeded, out.State)
		assert.Equal(t, current, store.watermark)
	}

	// A failed cycle leaves the watermark exactly where it was.
	before := store.watermark
	prov.fetchErr = errors.New("stats service unavailable")
	current = current.Add(15 * time.Minute)
	out := tr.RunCycle(context.Background())
	assert.Equal(t, StateFailedRetryable, out.State)
	assert.Equal(t, before, store.watermark)

	// Next cycle resumes from the unchanged watermark.
	prov.fetchErr = nil
	current = current.Add(15 * time.Minute)
	out = tr.RunCycle(context.Background())
	require.Equal(t, StateSucceeded, out.State)
	assert.Equal(t, before, prov.lastStart)
}

func TestRetryExhaustion(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	prov := &fakeProvider{permitted: true, fetchErr: errors.New("boom")}
	store := &fakeStore{watermark: now.Add(-time.Hour), hasWatermark: true}
	tr := New(prov, store, fixedClock(now))

	want := []State{StateFailedRetryable, StateFailedRetryable, StateFailedTerminal}
	for i, wantState := range want {
		out := tr.RunCycle(context.Background())
		assert.Equal(t, wantState, out.State, "cycle %d", i+1)
		assert.Error(t, out.Err)
		assert.Equal(t, now.Add(-time.Hour), store.watermark, "watermark must never advance")
	}

	// Terminal resets the counter: the next failing run is retryable again.
	out := tr.RunCycle(context.Background())
	assert.Equal(t, StateFailedRetryable, out.State)
}

func TestPersistFailureDoesNotAdvanceWatermark(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	prov := &fakeProvider{
		permitted: true,
		records:   []usage.Record{{Package: "a", TotalMs: 100}},
	}
	store := &fakeStore{
		watermark:    now.Add(-time.Hour),
		hasWatermark: true,
		saveErr:      errors.New("disk full"),
	}
	tr := New(prov, store, fixedClock(now))

	out := tr.RunCycle(context.Background())
	assert.Equal(t, StateFailedRetryable, out.State)
	assert.Equal(t, now.Add(-time.Hour), store.watermark)
}

func TestPermissionShortCircuit(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	prov := &fakeProvider{permitted: false}
	store := &fakeStore{watermark: now.Add(-time.Hour), hasWatermark: true}
	tr := New(prov, store, fixedClock(now))

	out := tr.RunCycle(context.Background())
	assert.Equal(t, StateFailedTerminal, out.State)
	assert.ErrorIs(t, out.Err, platform.ErrPermissionDenied)

	// No fetch, no attempt consumed, watermark untouched.
	assert.Equal(t, 0, prov.fetchCalls)
	assert.Equal(t, 0, tr.Status().Attempts)
	assert.Equal(t, now.Add(-time.Hour), store.watermark)

	// Once granted, the very first failure is still attempt 1 of 3.
	prov.permitted = true
	prov.fetchErr = errors.New("boom")
	out = tr.RunCycle(context.Background())
	assert.Equal(t, StateFailedRetryable, out.State)
	assert.Equal(t, 1, tr.Status().Attempts)
}

func TestStatusSeededFromStoredWatermark(t *testing.T) {
	last := time.Date(2024, 3, 15, 11, 45, 0, 0, time.UTC)
	store := &fakeStore{watermark: last, hasWatermark: true}
	tr := New(&fakeProvider{}, store, fixedClock(last.Add(time.Hour)))

	// A fresh tracker over an existing store reports the persisted sync time.
	st := tr.Status()
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, last.UnixMilli(), st.LastSyncMs)
}

func TestStatusReflectsLastSync(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	prov := &fakeProvider{permitted: true}
	store := &fakeStore{}
	tr := New(prov, store, fixedClock(now))

	assert.Equal(t, StateIdle, tr.Status().State)
	assert.Zero(t, tr.Status().LastSyncMs)

	tr.RunCycle(context.Background())
	st := tr.Status()
	assert.Equal(t, StateSucceeded, st.State)
	assert.Equal(t, now.UnixMilli(), st.LastSyncMs)
}
