package usage

import (
	"sort"

	"screentime/internal/category"
)

// Resolver resolves a package identifier to its display name. It returns an
// error (conventionally platform.ErrNotFound) when the package is no longer
// resolvable, e.g. the app was uninstalled after its usage was recorded.
type Resolver func(pkg string) (string, error)

// Aggregate turns raw usage records into display-ready summaries: records with
// zero foreground time are dropped, records whose display name cannot be
// resolved are dropped (per-record, never aborting the batch), survivors are
// classified and sorted by total foreground time descending. Ties are broken by
// package identifier ascending so the ordering is deterministic.
func Aggregate(records []Record, resolve Resolver) []Summary {
	summaries := make([]Summary, 0, len(records))
	for _, r := range records {
		if r.TotalMs <= 0 {
			continue
		}
		name, err := resolve(r.Package)
		if err != nil {
			// App likely uninstalled since the data was recorded, skip.
			continue
		}
		cat := category.Classify(r.Package, r.Hint)
		summaries = append(summaries, Summary{
			Package:     r.Package,
			AppName:     name,
			TotalMs:     r.TotalMs,
			LastUsedMs:  r.LastUsedMs,
			FirstSeenMs: r.FirstSeenMs,
			Category:    cat,
			Productive:  category.IsProductive(r.Package, cat),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].TotalMs != summaries[j].TotalMs {
			return summaries[i].TotalMs > summaries[j].TotalMs
		}
		return summaries[i].Package < summaries[j].Package
	})
	return summaries
}
