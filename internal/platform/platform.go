// Package platform defines the narrow interfaces the core calls into the host
// system through, plus the error taxonomy shared across them. Concrete
// providers live in subpackages (currently X11).
package platform

import (
	"context"
	"errors"
	"time"

	"screentime/internal/usage"
)

// ErrNotFound marks an individual package that is no longer resolvable
// (uninstalled, or never seen). Callers exclude the item and continue.
var ErrNotFound = errors.New("package not found")

// ErrPermissionDenied marks missing permission to query usage statistics.
var ErrPermissionDenied = errors.New("usage access not permitted")

// StatsSource supplies raw per-package usage records for a time window.
type StatsSource interface {
	// FetchUsageRecords returns records for [start, end). The records are
	// unfiltered and unordered; aggregation is the caller's job.
	FetchUsageRecords(ctx context.Context, start, end time.Time) ([]usage.Record, error)

	// CurrentForegroundApp returns the app most recently in the foreground,
	// or ErrNotFound when nothing is focused.
	CurrentForegroundApp(ctx context.Context) (usage.ForegroundApp, error)
}

// PackageSource supplies package metadata.
type PackageSource interface {
	// ResolveDisplayName returns the human-readable name for a package, or
	// ErrNotFound.
	ResolveDisplayName(pkg string) (string, error)

	// InstalledApps enumerates launchable applications.
	InstalledApps(ctx context.Context) ([]usage.AppInfo, error)

	// AppIcon returns a rendered icon for a package as a base64-encoded PNG,
	// or ErrNotFound when the package has no icon available.
	AppIcon(pkg string) (string, error)
}

// PermissionChecker reports whether usage statistics may be queried.
type PermissionChecker interface {
	HasUsagePermission() bool

	// RequestUsagePermission starts whatever flow the host offers for
	// granting access. On platforms without such a flow it returns guidance
	// for the user instead of acting.
	RequestUsagePermission() (string, error)
}

// Provider bundles the collaborator interfaces a full platform backend offers.
type Provider interface {
	StatsSource
	PackageSource
	PermissionChecker
}
