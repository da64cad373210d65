package category

// productiveApps is the fixed allow-list of known productivity tools.
var productiveApps = map[string]struct{}{
	"com.google.android.apps.docs":                {},
	"com.google.android.apps.docs.editors.docs":   {},
	"com.google.android.apps.docs.editors.sheets": {},
	"com.microsoft.office.word":                   {},
	"com.microsoft.office.excel":                  {},
	"com.microsoft.teams":                         {},
	"com.slack":                                   {},
	"com.notion.id":                               {},
	"com.todoist":                                 {},
	"com.duolingo":                                {},
	"com.linkedin.android":                        {},
}

// IsProductive reports whether an app counts as productive: either it is on the
// allow-list, or its category is Productivity.
func IsProductive(pkg string, cat Category) bool {
	if _, ok := productiveApps[pkg]; ok {
		return true
	}
	return cat == Productivity
}
