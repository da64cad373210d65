package main

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"screentime/internal/category"
	"screentime/internal/usage"

	sqlitestore "screentime/internal/storage/sqlite"
)

var dbPath string

type reportRow struct {
	AppName    string
	Package    string
	Category   category.Category
	Productive bool
	TotalMs    int64
	Total      string
	Percent    float64
}

type reportData struct {
	GeneratedAt     string
	StartDate       string
	EndDate         string
	Rows            []reportRow
	TotalTime       string
	ProductiveShare float64
}

func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate reports from collected usage data",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			log.Fatalf("Error: Database file not found at %s. Ensure the screentime daemon has run or specify the path with --db.", dbPath)
		} else if err != nil {
			log.Fatalf("Error accessing database file %s: %v", dbPath, err)
		}
	},
}

var reportGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an HTML usage report from synced data",
	Run: func(cmd *cobra.Command, args []string) {
		days, _ := cmd.Flags().GetInt("days")
		outputFile, _ := cmd.Flags().GetString("output")
		openReport, _ := cmd.Flags().GetBool("open")

		endTime := time.Now()
		startTime := endTime.AddDate(0, 0, -days)

		log.Printf("Generating report for %d days (%s to %s)", days,
			startTime.Format("2006-01-02"), endTime.Format("2006-01-02"))
		log.Printf("Using database: %s", dbPath)

		store := sqlitestore.NewSQLiteStore(dbPath)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := store.Init(ctx); err != nil {
			log.Fatalf("Failed to initialize storage connection: %v", err)
		}
		defer store.Close()

		summaries, err := store.PendingSummaries(ctx, startTime)
		if err != nil {
			log.Fatalf("Failed to fetch summaries: %v", err)
		}
		if len(summaries) == 0 {
			fmt.Println("No synced usage data found for the specified period.")
			return
		}
		log.Printf("Fetched %d summary rows for report.", len(summaries))

		data := buildReport(summaries, startTime, endTime)

		f, err := os.Create(outputFile)
		if err != nil {
			log.Fatalf("Failed to create output file: %v", err)
		}
		defer f.Close()

		tmpl := template.Must(template.New("report").Parse(reportTemplate))
		if err := tmpl.Execute(f, data); err != nil {
			log.Fatalf("Failed to render report: %v", err)
		}

		fmt.Printf("Report written to %s\n", outputFile)
		if openReport {
			if err := openBrowser(outputFile); err != nil {
				log.Printf("Could not open browser: %v", err)
			}
		}
	},
}

// buildReport collapses synced summary rows into one row per app with its
// share of the total, sorted by time descending.
func buildReport(summaries []usage.Summary, start, end time.Time) reportData {
	type agg struct {
		name       string
		cat        category.Category
		productive bool
		totalMs    int64
	}
	byPkg := make(map[string]*agg)
	var grandTotal, productiveTotal int64

	for _, s := range summaries {
		a, ok := byPkg[s.Package]
		if !ok {
			a = &agg{name: s.AppName, cat: s.Category, productive: s.Productive}
			byPkg[s.Package] = a
		}
		a.totalMs += s.TotalMs
		grandTotal += s.TotalMs
		if s.Productive {
			productiveTotal += s.TotalMs
		}
	}

	rows := make([]reportRow, 0, len(byPkg))
	for pkg, a := range byPkg {
		row := reportRow{
			AppName:    a.name,
			Package:    pkg,
			Category:   a.cat,
			Productive: a.productive,
			TotalMs:    a.totalMs,
			Total:      formatDuration(a.totalMs),
		}
		if grandTotal > 0 {
			row.Percent = float64(a.totalMs) / float64(grandTotal) * 100
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalMs != rows[j].TotalMs {
			return rows[i].TotalMs > rows[j].TotalMs
		}
		return rows[i].Package < rows[j].Package
	})

	data := reportData{
		GeneratedAt: time.Now().Format(time.RFC1123),
		StartDate:   start.Format("2006-01-02"),
		EndDate:     end.Format("2006-01-02"),
		Rows:        rows,
		TotalTime:   formatDuration(grandTotal),
	}
	if grandTotal > 0 {
		data.ProductiveShare = float64(productiveTotal) / float64(grandTotal) * 100
	}
	return data
}

const reportTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Screen Time Report {{.StartDate}} to {{.EndDate}}</title>
<style>
  body { font-family: sans-serif; margin: 2em auto; max-width: 900px; color: #222; }
  h1 { font-size: 1.4em; }
  .meta { color: #777; font-size: 0.9em; margin-bottom: 1.5em; }
  table { border-collapse: collapse; width: 100%; }
  th, td { text-align: left; padding: 6px 10px; border-bottom: 1px solid #eee; }
  .bar { background: #4a90d9; height: 12px; border-radius: 3px; }
  .bar.productive { background: #5cb85c; }
  .pct { color: #999; font-size: 0.85em; }
</style>
</head>
<body>
<h1>Screen Time Report</h1>
<div class="meta">
  {{.StartDate}} to {{.EndDate}} &middot; generated {{.GeneratedAt}}<br>
  Total tracked: {{.TotalTime}} &middot; productive share: {{printf "%.1f" .ProductiveShare}}%
</div>
<table>
  <tr><th>App</th><th>Category</th><th>Time</th><th style="width:40%"></th></tr>
  {{range .Rows}}
  <tr>
    <td title="{{.Package}}">{{.AppName}}</td>
    <td>{{.Category}}</td>
    <td>{{.Total}} <span class="pct">({{printf "%.1f" .Percent}}%)</span></td>
    <td><div class="bar{{if .Productive}} productive{{end}}" style="width: {{printf "%.1f" .Percent}}%"></div></td>
  </tr>
  {{end}}
</table>
</body>
</html>
`
