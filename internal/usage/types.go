package usage

import "screentime/internal/category"

// Record is a raw per-package usage record as supplied by a platform stats
// source for one query window. Timestamps are epoch milliseconds; a LastUsedMs
// of 0 means the app was never observed in the foreground.
type Record struct {
	Package     string        `json:"package"`
	TotalMs     int64         `json:"total_ms"`
	LastUsedMs  int64         `json:"last_used_ms"`
	FirstSeenMs int64         `json:"first_seen_ms"`
	Hint        category.Hint `json:"-"`
}

// Summary is the externally visible usage summary for one app. SyncTimeMs is
// set only on summaries produced by the background sync cycle.
type Summary struct {
	Package     string            `json:"package"`
	AppName     string            `json:"app_name"`
	TotalMs     int64             `json:"total_ms"`
	LastUsedMs  int64             `json:"last_used_ms"`
	FirstSeenMs int64             `json:"first_seen_ms"`
	Category    category.Category `json:"category"`
	Productive  bool              `json:"productive"`
	SyncTimeMs  int64             `json:"sync_time_ms,omitempty"`
}

// AppInfo describes one installed (launchable) application.
type AppInfo struct {
	Package    string            `json:"package"`
	AppName    string            `json:"app_name"`
	Category   category.Category `json:"category"`
	Productive bool              `json:"productive"`
	System     bool              `json:"system"`
}

// ForegroundApp identifies the currently active application.
type ForegroundApp struct {
	Package    string `json:"package"`
	AppName    string `json:"app_name"`
	LastUsedMs int64  `json:"last_used_ms"`
}
