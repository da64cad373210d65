package ipc

// DefaultSocketPath is where the daemon listens unless configured otherwise.
const DefaultSocketPath = "/tmp/screentimed.sock"

// Command represents a command sent over the socket.
type Command struct {
	Name string      `json:"name"`
	Args interface{} `json:"args,omitempty"`
}

// Response represents a response sent back over the socket. Code is set only
// on failures and names one of the error code constants below.
type Response struct {
	Success bool        `json:"success"`
	Code    string      `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// --- Command argument structs ---

type UsageStatsArgs struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

type AppIconArgs struct {
	Package string `json:"package"`
}

type BatchIconsArgs struct {
	Packages []string `json:"packages"`
}

// --- Command names ---

const (
	CmdPing              = "ping"
	CmdHasPermission     = "has_permission"
	CmdRequestPermission = "request_permission"
	CmdGetUsageStats     = "get_usage_stats"
	CmdGetTodayStats     = "get_today_stats"
	CmdGetWeeklyStats    = "get_weekly_stats"
	CmdGetInstalledApps  = "get_installed_apps"
	CmdGetAppIcon        = "get_app_icon"
	CmdGetBatchIcons     = "get_batch_icons"
	CmdGetForegroundApp  = "get_foreground_app"
	CmdSyncNow           = "sync_now"
	CmdGetStatus         = "get_status"
	CmdWatch             = "watch"
)

// --- Error codes ---
// Kept close to the method-channel error identifiers the mobile shell expects.

const (
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeUsageStats      = "USAGE_STATS_ERROR"
	CodeInstalledApps   = "INSTALLED_APPS_ERROR"
	CodeBatchIcons      = "BATCH_ICONS_ERROR"
	CodeForeground      = "FOREGROUND_ERROR"
	CodeSync            = "SYNC_ERROR"
	CodeUnknownCommand  = "UNKNOWN_COMMAND"
)
