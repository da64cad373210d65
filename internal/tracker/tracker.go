// Package tracker implements the incremental sync cycle: collect usage since
// the last watermark, persist the summaries, then advance the watermark. The
// watermark only moves after both steps succeed, so a failed cycle leaves the
// unstored window to be re-covered by the next run.
package tracker

import (
	"context"
	"log"
	"sync"
	"time"

	"screentime/internal/platform"
	"screentime/internal/storage"
	"screentime/internal/usage"
)

// State of the sync cycle.
type State string

const (
	StateIdle            State = "idle"
	StateRunning         State = "running"
	StateSucceeded       State = "succeeded"
	StateFailedRetryable State = "failed_retryable"
	StateFailedTerminal  State = "failed_terminal"
)

// maxAttempts bounds consecutive failures for one window before the cycle goes
// terminal.
const maxAttempts = 3

// Outcome describes one finished cycle. Summaries is populated only on
// success, for pushing to a live subscriber.
type Outcome struct {
	State     State
	Summaries []usage.Summary
	Err       error
}

// Status is a point-in-time snapshot for status queries.
type Status struct {
	State      State `json:"state"`
	Attempts   int   `json:"attempts"`
	LastSyncMs int64 `json:"last_sync_ms,omitempty"`
}

// Tracker runs sync cycles. Cycles are serialized by an internal lock: the
// watermark read-compute-write is a critical section, and cycles are short and
// infrequent enough that one mutex around the whole cycle is fine.
type Tracker struct {
	stats platform.StatsSource
	pkgs  platform.PackageSource
	perms platform.PermissionChecker
	store storage.Storage
	now   func() time.Time

	mu       sync.Mutex
	state    State
	attempts int
	lastSync time.Time
}

func New(p platform.Provider, store storage.Storage, now func() time.Time) *Tracker {
	t := &Tracker{
		stats: p,
		pkgs:  p,
		perms: p,
		store: store,
		now:   now,
		state: StateIdle,
	}
	// The stored watermark is the end of the last successful cycle; seed
	// lastSync from it so status survives a daemon restart.
	if last, ok, err := store.LoadWatermark(context.Background()); err == nil && ok {
		t.lastSync = last
	}
	return t
}

// RunCycle performs one collection cycle and returns its outcome. Errors are
// not surfaced beyond the Outcome: no caller is waiting on the periodic path.
func (t *Tracker) RunCycle(ctx context.Context) Outcome {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.state = StateRunning

	// Missing permission is terminal and consumes no retry attempt.
	if !t.perms.HasUsagePermission() {
		t.state = StateFailedTerminal
		log.Println("Sync cycle aborted: usage permission not granted.")
		return Outcome{State: StateFailedTerminal, Err: platform.ErrPermissionDenied}
	}

	now := t.now()
	last, ok, err := t.store.LoadWatermark(ctx)
	if err != nil {
		return t.fail(err)
	}
	if !ok {
		// First run: collect from the start of the current day.
		last = usage.StartOfDay(now)
	}

	records, err := t.stats.FetchUsageRecords(ctx, last, now)
	if err != nil {
		return t.fail(err)
	}

	summaries := usage.Aggregate(records, t.pkgs.ResolveDisplayName)
	syncMs := now.UnixMilli()
	for i := range summaries {
		summaries[i].SyncTimeMs = syncMs
	}

	if err := t.store.SavePendingSummaries(ctx, summaries); err != nil {
		return t.fail(err)
	}
	// Advance the watermark only once the data is safely stored.
	if err := t.store.StoreWatermark(ctx, now); err != nil {
		return t.fail(err)
	}

	t.attempts = 0
	t.state = StateSucceeded
	t.lastSync = now
	log.Printf("Sync cycle succeeded: %d summaries for window [%s, %s)",
		len(summaries), last.Format(time.RFC3339), now.Format(time.RFC3339))
	return Outcome{State: StateSucceeded, Summaries: summaries}
}

// fail records a failed attempt. Below maxAttempts the same window should be
// retried later; at maxAttempts the window is abandoned (watermark untouched)
// and the counter resets so a later trigger starts fresh.
func (t *Tracker) fail(err error) Outcome {
	t.attempts++
	if t.attempts >= maxAttempts {
		t.attempts = 0
		t.state = StateFailedTerminal
		log.Printf("Sync cycle failed terminally after %d attempts: %v", maxAttempts, err)
		return Outcome{State: StateFailedTerminal, Err: err}
	}
	t.state = StateFailedRetryable
	log.Printf("Sync cycle failed (attempt %d/%d), will retry: %v", t.attempts, maxAttempts, err)
	return Outcome{State: StateFailedRetryable, Err: err}
}

// Status returns the current cycle state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := Status{State: t.state, Attempts: t.attempts}
	if !t.lastSync.IsZero() {
		st.LastSyncMs = t.lastSync.UnixMilli()
	}
	return st
}
