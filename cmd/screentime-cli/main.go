package main

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"screentime/internal/ipc"
	"screentime/internal/usage"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "screentime-cli",
	Short: "CLI tool to interact with the screentime daemon",
	Long:  `A command-line interface to query usage statistics, app metadata and sync state from the running screentime daemon via its Unix socket.`,
}

// sendCommand sends one command and returns the decoded response. Transport
// errors are fatal; server-side failures are returned for the caller to print.
func sendCommand(cmd ipc.Command) ipc.Response {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		log.Fatalf("Error connecting to daemon socket (%s): %v\nIs the screentime daemon running?", socketPath, err)
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	encoder := json.NewEncoder(conn)
	decoder := json.NewDecoder(conn)

	if err := encoder.Encode(cmd); err != nil {
		log.Fatalf("Error sending command: %v", err)
	}

	var resp ipc.Response
	if err := decoder.Decode(&resp); err != nil {
		log.Fatalf("Error receiving response: %v", err)
	}
	return resp
}

func printResponse(resp ipc.Response) {
	if resp.Success {
		if resp.Message != "" {
			fmt.Println("Success:", resp.Message)
		}
		if resp.Data != nil {
			prettyData, err := json.MarshalIndent(resp.Data, "", "  ")
			if err == nil {
				fmt.Println(string(prettyData))
			} else {
				fmt.Println("Data (raw):", resp.Data)
			}
		}
	} else {
		fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", resp.Code, resp.Message)
		os.Exit(1)
	}
}

// decodeData re-marshals the generic response data into a typed value.
func decodeData(resp ipc.Response, out interface{}) {
	if !resp.Success {
		fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", resp.Code, resp.Message)
		os.Exit(1)
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		log.Fatalf("Error re-encoding response data: %v", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Fatalf("Error decoding response data: %v", err)
	}
}

func formatDuration(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func printSummaries(summaries []usage.Summary) {
	if len(summaries) == 0 {
		fmt.Println("No usage data for the requested window.")
		return
	}
	fmt.Printf("%-28s %-12s %-14s %-6s\n", "APP", "TIME", "CATEGORY", "PROD")
	for _, s := range summaries {
		prod := ""
		if s.Productive {
			prod = "yes"
		}
		fmt.Printf("%-28s %-12s %-14s %-6s\n", s.AppName, formatDuration(s.TotalMs), s.Category, prod)
	}
}

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check if the screentime daemon is running",
	Run: func(cmd *cobra.Command, args []string) {
		printResponse(sendCommand(ipc.Command{Name: ipc.CmdPing}))
	},
}

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Check whether usage statistics access is available",
	Run: func(cmd *cobra.Command, args []string) {
		printResponse(sendCommand(ipc.Command{Name: ipc.CmdHasPermission}))
	},
}

var permissionRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Request usage statistics access",
	Run: func(cmd *cobra.Command, args []string) {
		printResponse(sendCommand(ipc.Command{Name: ipc.CmdRequestPermission}))
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-app usage statistics (today by default)",
	Run: func(cmd *cobra.Command, args []string) {
		week, _ := cmd.Flags().GetBool("week")
		startMs, _ := cmd.Flags().GetInt64("start")
		endMs, _ := cmd.Flags().GetInt64("end")

		var resp ipc.Response
		switch {
		case startMs > 0 || endMs > 0:
			resp = sendCommand(ipc.Command{
				Name: ipc.CmdGetUsageStats,
				Args: ipc.UsageStatsArgs{StartMs: startMs, EndMs: endMs},
			})
		case week:
			resp = sendCommand(ipc.Command{Name: ipc.CmdGetWeeklyStats})
		default:
			resp = sendCommand(ipc.Command{Name: ipc.CmdGetTodayStats})
		}

		var summaries []usage.Summary
		decodeData(resp, &summaries)
		printSummaries(summaries)
	},
}

var appsCmd = &cobra.Command{
	Use:   "apps",
	Short: "List installed (launchable) applications",
	Run: func(cmd *cobra.Command, args []string) {
		resp := sendCommand(ipc.Command{Name: ipc.CmdGetInstalledApps})
		var apps []usage.AppInfo
		decodeData(resp, &apps)
		if len(apps) == 0 {
			fmt.Println("No applications found.")
			return
		}
		fmt.Printf("%-24s %-28s %-14s\n", "APP", "PACKAGE", "CATEGORY")
		for _, a := range apps {
			fmt.Printf("%-24s %-28s %-14s\n", a.AppName, a.Package, a.Category)
		}
	},
}

var iconCmd = &cobra.Command{
	Use:   "icon <package>",
	Short: "Fetch an application icon as PNG",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		out, _ := cmd.Flags().GetString("out")

		resp := sendCommand(ipc.Command{
			Name: ipc.CmdGetAppIcon,
			Args: ipc.AppIconArgs{Package: args[0]},
		})
		var icon *string
		decodeData(resp, &icon)
		if icon == nil {
			fmt.Printf("No icon available for %s.\n", args[0])
			return
		}
		raw, err := base64.StdEncoding.DecodeString(*icon)
		if err != nil {
			log.Fatalf("Error decoding icon data: %v", err)
		}
		if out == "" {
			out = args[0] + ".png"
		}
		if err := os.WriteFile(out, raw, 0644); err != nil {
			log.Fatalf("Error writing icon file: %v", err)
		}
		fmt.Printf("Wrote %d bytes to %s\n", len(raw), out)
	},
}

var iconsCmd = &cobra.Command{
	Use:   "icons <package>...",
	Short: "Fetch icons for several applications at once",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		resp := sendCommand(ipc.Command{
			Name: ipc.CmdGetBatchIcons,
			Args: ipc.BatchIconsArgs{Packages: args},
		})
		var result map[string]*string
		decodeData(resp, &result)
		for pkg, icon := range result {
			if icon == nil {
				fmt.Printf("%s: no icon\n", pkg)
			} else {
				fmt.Printf("%s: %d bytes (base64)\n", pkg, len(*icon))
			}
		}
	},
}

var foregroundCmd = &cobra.Command{
	Use:   "foreground",
	Short: "Show the currently focused application",
	Run: func(cmd *cobra.Command, args []string) {
		resp := sendCommand(ipc.Command{Name: ipc.CmdGetForegroundApp})
		var fg *usage.ForegroundApp
		decodeData(resp, &fg)
		if fg == nil {
			fmt.Println("No foreground application detected.")
			return
		}
		fmt.Printf("%s (%s), last active %s\n", fg.AppName, fg.Package,
			time.UnixMilli(fg.LastUsedMs).Format(time.RFC3339))
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Trigger one background collection cycle now",
	Run: func(cmd *cobra.Command, args []string) {
		printResponse(sendCommand(ipc.Command{Name: ipc.CmdSyncNow}))
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync cycle status",
	Run: func(cmd *cobra.Command, args []string) {
		printResponse(sendCommand(ipc.Command{Name: ipc.CmdGetStatus}))
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream usage summaries pushed after each sync cycle",
	Long:  `Subscribes to the daemon's usage update channel. The daemon keeps a single subscriber; starting a second watch replaces the first.`,
	Run: func(cmd *cobra.Command, args []string) {
		conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
		if err != nil {
			log.Fatalf("Error connecting to daemon socket (%s): %v", socketPath, err)
		}
		defer conn.Close()

		encoder := json.NewEncoder(conn)
		decoder := json.NewDecoder(conn)
		if err := encoder.Encode(ipc.Command{Name: ipc.CmdWatch}); err != nil {
			log.Fatalf("Error sending watch command: %v", err)
		}

		for {
			var resp ipc.Response
			if err := decoder.Decode(&resp); err != nil {
				if err == io.EOF {
					fmt.Println("Subscription closed by daemon.")
					return
				}
				log.Fatalf("Error reading update: %v", err)
			}
			if !resp.Success {
				fmt.Fprintf(os.Stderr, "Error [%s]: %s\n", resp.Code, resp.Message)
				os.Exit(1)
			}
			if resp.Data == nil {
				if resp.Message != "" {
					fmt.Println(resp.Message)
				}
				continue
			}
			var summaries []usage.Summary
			raw, _ := json.Marshal(resp.Data)
			if err := json.Unmarshal(raw, &summaries); err != nil {
				log.Printf("Skipping malformed update: %v", err)
				continue
			}
			fmt.Printf("--- update %s ---\n", time.Now().Format(time.RFC3339))
			printSummaries(summaries)
		}
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", ipc.DefaultSocketPath, "Path to the daemon's unix socket")

	statsCmd.Flags().Bool("week", false, "Show the trailing 7-day window instead of today")
	statsCmd.Flags().Int64("start", 0, "Window start (epoch milliseconds)")
	statsCmd.Flags().Int64("end", 0, "Window end (epoch milliseconds, defaults to now)")

	iconCmd.Flags().String("out", "", "Output PNG path (defaults to <package>.png)")

	permissionCmd.AddCommand(permissionRequestCmd)

	reportCmd.AddCommand(reportGenerateCmd)
	reportGenerateCmd.Flags().Int("days", 7, "Number of days to include")
	reportGenerateCmd.Flags().String("output", "screentime_report.html", "Output HTML file")
	reportGenerateCmd.Flags().Bool("open", false, "Open the report in a browser")
	reportCmd.PersistentFlags().StringVar(&dbPath, "db", "screentime.db", "Path to the screentime database")

	rootCmd.AddCommand(pingCmd, permissionCmd, statsCmd, appsCmd, iconCmd, iconsCmd,
		foregroundCmd, syncCmd, statusCmd, watchCmd, reportCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
