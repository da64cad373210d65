package storage

import (
	"context"
	"time"

	"screentime/internal/usage"
)

// Storage persists the background worker's output and the sync watermark. The
// watermark is a single value: LoadWatermark reports ok=false when no sync has
// ever completed.
type Storage interface {
	Init(ctx context.Context) error

	// SavePendingSummaries stores one sync cycle's summaries for the
	// presentation layer to pick up.
	SavePendingSummaries(ctx context.Context, summaries []usage.Summary) error

	// PendingSummaries returns stored summaries with a sync time at or after
	// since, newest sync first, ordered by total time within a sync.
	PendingSummaries(ctx context.Context, since time.Time) ([]usage.Summary, error)

	LoadWatermark(ctx context.Context) (t time.Time, ok bool, err error)
	StoreWatermark(ctx context.Context, t time.Time) error

	Close() error
}
