package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"screentime/internal/config"
	"screentime/internal/icons"
	"screentime/internal/ipc"
	"screentime/internal/platform"
	"screentime/internal/platform/x11"
	"screentime/internal/storage"
	"screentime/internal/tracker"
	"screentime/internal/usage"

	sqlitestore "screentime/internal/storage/sqlite"
)

// backoffBase is the initial delay before retrying a retryable sync failure;
// it doubles per consecutive retry, capped at the regular sync interval.
const backoffBase = 10 * time.Minute

type App struct {
	cfg      *config.Config
	store    storage.Storage
	provider platform.Provider
	sampler  *x11.Provider // nil when no X connection is available
	track    *tracker.Tracker
	icons    *icons.Cache
	now      func() time.Time

	socketPath string
	listener   *net.UnixListener

	subMu      sync.Mutex
	subscriber *subscriber

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		cfg:        cfg,
		socketPath: cfg.SocketPath,
		now:        time.Now,
		ctx:        ctx,
		cancel:     cancel,
	}

	a.store = sqlitestore.NewSQLiteStore(cfg.DatabasePath)
	if err := a.store.Init(ctx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	prov, err := x11.NewProvider(cfg.IconSize)
	if err != nil {
		log.Printf("Warning: Failed to initialize X11 provider: %v. Usage collection disabled.", err)
		a.provider = disconnectedProvider{}
	} else {
		a.sampler = prov
		a.provider = prov
	}

	a.track = tracker.New(a.provider, a.store, a.now)
	a.icons = icons.NewCache(a.provider.AppIcon)

	return a, nil
}

// setupSocket checks for an existing socket and creates the listener.
func (a *App) setupSocket() error {
	if _, err := os.Stat(a.socketPath); err == nil {
		conn, err := net.DialTimeout("unix", a.socketPath, 1*time.Second)
		if err == nil {
			conn.Close()
			return fmt.Errorf("socket %s already active, another instance might be running", a.socketPath)
		}
		log.Printf("Stale socket file found at %s, removing.", a.socketPath)
		if err := os.Remove(a.socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket file %s: %w", a.socketPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("error checking socket file %s: %w", a.socketPath, err)
	}

	addr, err := net.ResolveUnixAddr("unix", a.socketPath)
	if err != nil {
		return fmt.Errorf("failed to resolve unix addr %s: %w", a.socketPath, err)
	}

	listener, err := net.ListenUnix("unix", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on socket %s: %w", a.socketPath, err)
	}

	a.listener = listener
	log.Printf("Listening for commands on %s", a.socketPath)
	return nil
}

func (a *App) listenForCommands() {
	defer a.wg.Done()
	defer log.Println("Socket command listener stopped.")

	for {
		conn, err := a.listener.AcceptUnix()
		if err != nil {
			select {
			case <-a.ctx.Done():
				return
			default:
				log.Printf("Failed to accept connection: %v", err)
				if ne, ok := err.(net.Error); ok && !ne.Temporary() {
					log.Printf("Non-temporary accept error, stopping listener.")
					return
				}
				time.Sleep(100 * time.Millisecond)
			}
			continue
		}
		a.wg.Add(1)
		go a.handleConnection(conn)
	}
}

func (a *App) handleConnection(conn *net.UnixConn) {
	defer conn.Close()
	defer a.wg.Done()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	var cmd ipc.Command
	if err := decoder.Decode(&cmd); err != nil {
		if err != io.EOF {
			log.Printf("Failed to decode command: %v", err)
		}
		_ = encoder.Encode(ipc.Response{Success: false, Code: ipc.CodeInvalidArgument, Message: "Failed to decode command: " + err.Error()})
		return
	}

	conn.SetReadDeadline(time.Time{})
	conn.SetWriteDeadline(time.Now().Add(5 * time.Second))

	log.Printf("Received command: %s", cmd.Name)

	// Watch holds the connection open for pushed updates.
	if cmd.Name == ipc.CmdWatch {
		a.handleWatch(conn, encoder)
		return
	}

	response := a.processCommand(a.ctx, cmd)
	if err := encoder.Encode(response); err != nil {
		log.Printf("Failed to send response: %v", err)
	}
}

// processCommand routes a command to the correct handler.
func (a *App) processCommand(ctx context.Context, cmd ipc.Command) ipc.Response {
	switch cmd.Name {
	case ipc.CmdPing:
		return ipc.Response{Success: true, Message: "pong"}

	case ipc.CmdHasPermission:
		return ipc.Response{Success: true, Data: a.provider.HasUsagePermission()}

	case ipc.CmdRequestPermission:
		msg, err := a.provider.RequestUsagePermission()
		if err != nil {
			return ipc.Response{Success: false, Code: ipc.CodeUsageStats, Message: err.Error()}
		}
		return ipc.Response{Success: true, Message: msg}

	case ipc.CmdGetUsageStats:
		var args ipc.UsageStatsArgs
		if err := mapToStruct(cmd.Args, &args); err != nil {
			return ipc.Response{Success: false, Code: ipc.CodeInvalidArgument, Message: fmt.Sprintf("Invalid args for %s: %v", cmd.Name, err)}
		}
		end := a.now()
		if args.EndMs > 0 {
			end = time.UnixMilli(args.EndMs).In(a.now().Location())
		}
		start := time.UnixMilli(args.StartMs).In(end.Location())
		if args.StartMs < 0 || start.After(end) {
			return ipc.Response{Success: false, Code: ipc.CodeInvalidArgument, Message: "Invalid time window"}
		}
		return a.queryStats(ctx, start, end)

	case ipc.CmdGetTodayStats:
		start, end := usage.TodayWindow(a.now())
		return a.queryStats(ctx, start, end)

	case ipc.CmdGetWeeklyStats:
		start, end := usage.WeeklyWindow(a.now())
		return a.queryStats(ctx, start, end)

	case ipc.CmdGetInstalledApps:
		apps, err := a.provider.InstalledApps(ctx)
		if err != nil {
			return ipc.Response{Success: false, Code: ipc.CodeInstalledApps, Message: err.Error()}
		}
		if apps == nil {
			apps = []usage.AppInfo{}
		}
		return ipc.Response{Success: true, Data: apps}

	case ipc.CmdGetAppIcon:
		var args ipc.AppIconArgs
		if err := mapToStruct(cmd.Args, &args); err != nil || args.Package == "" {
			return ipc.Response{Success: false, Code: ipc.CodeInvalidArgument, Message: "Package name required"}
		}
		icon, err := a.icons.Get(args.Package)
		if err != nil {
			// A missing icon is expected, not an error.
			return ipc.Response{Success: true, Data: nil}
		}
		return ipc.Response{Success: true, Data: icon}

	case ipc.CmdGetBatchIcons:
		var args ipc.BatchIconsArgs
		if err := mapToStruct(cmd.Args, &args); err != nil || args.Packages == nil {
			return ipc.Response{Success: false, Code: ipc.CodeInvalidArgument, Message: "Package names required"}
		}
		result := make(map[string]interface{}, len(args.Packages))
		for _, pkg := range args.Packages {
			if icon, err := a.icons.Get(pkg); err == nil {
				result[pkg] = icon
			} else {
				result[pkg] = nil
			}
		}
		return ipc.Response{Success: true, Data: result}

	case ipc.CmdGetForegroundApp:
		if !a.provider.HasUsagePermission() {
			return ipc.Response{Success: true, Data: nil}
		}
		fg, err := a.provider.CurrentForegroundApp(ctx)
		if err != nil {
			return ipc.Response{Success: true, Data: nil}
		}
		return ipc.Response{Success: true, Data: fg}

	case ipc.CmdSyncNow:
		out := a.runSync()
		if out.State != tracker.StateSucceeded {
			return ipc.Response{Success: false, Code: ipc.CodeSync, Message: fmt.Sprintf("sync %s: %v", out.State, out.Err)}
		}
		return ipc.Response{Success: true, Message: fmt.Sprintf("synced %d summaries", len(out.Summaries))}

	case ipc.CmdGetStatus:
		return ipc.Response{Success: true, Data: a.track.Status()}

	default:
		return ipc.Response{Success: false, Code: ipc.CodeUnknownCommand, Message: fmt.Sprintf("Unknown command: %s", cmd.Name)}
	}
}

// queryStats serves the interactive window queries. Missing permission yields
// an empty list rather than an error; collaborator failures are surfaced.
func (a *App) queryStats(ctx context.Context, start, end time.Time) ipc.Response {
	if !a.provider.HasUsagePermission() {
		return ipc.Response{Success: true, Data: []usage.Summary{}}
	}
	records, err := a.provider.FetchUsageRecords(ctx, start, end)
	if err != nil {
		return ipc.Response{Success: false, Code: ipc.CodeUsageStats, Message: err.Error()}
	}
	summaries := usage.Aggregate(records, a.provider.ResolveDisplayName)
	if summaries == nil {
		summaries = []usage.Summary{}
	}
	return ipc.Response{Success: true, Data: summaries}
}

// mapToStruct converts decoded JSON args into a typed struct.
func mapToStruct(input interface{}, output interface{}) error {
	if input == nil {
		return nil
	}
	jsonBytes, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("failed to marshal args map: %w", err)
	}
	if err := json.Unmarshal(jsonBytes, output); err != nil {
		return fmt.Errorf("failed to unmarshal args into struct: %w", err)
	}
	return nil
}

func (a *App) Run() error {
	defer a.cleanup()

	log.Println("Starting screentime daemon...")
	log.Printf("Config: %+v", a.cfg)
	if a.sampler == nil {
		log.Println("X11 usage sampling: DISABLED")
	} else {
		log.Println("X11 usage sampling: ENABLED")
	}

	if err := a.setupSocket(); err != nil {
		return fmt.Errorf("failed to set up socket: %w", err)
	}

	a.handleSignals()

	if a.sampler != nil {
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			err := a.sampler.Start(a.ctx, a.cfg.SampleInterval())
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("X11 sampler error: %v", err)
			}
		}()
	}

	a.wg.Add(1)
	go a.syncLoop()

	a.wg.Add(1)
	go a.listenForCommands()

	log.Println("screentime daemon running. Send commands via screentime-cli or socket.")
	<-a.ctx.Done()

	log.Println("Shutdown signal received, waiting for components...")

	// Close the listener before waiting so Accept returns.
	if a.listener != nil {
		if err := a.listener.Close(); err != nil {
			log.Printf("Error closing socket listener: %v", err)
		}
	}
	a.dropAllSubscribers()

	waitChan := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(waitChan)
	}()

	select {
	case <-waitChan:
		log.Println("All application goroutines finished.")
	case <-time.After(5 * time.Second):
		log.Println("Warning: Timeout waiting for application goroutines to stop.")
	}

	log.Println("screentime daemon finished.")
	return nil
}

// syncLoop triggers periodic sync cycles. Retryable failures are retried on a
// doubling backoff, capped at the regular interval; anything else waits for
// the next scheduled slot.
func (a *App) syncLoop() {
	defer a.wg.Done()
	defer log.Println("Sync scheduler stopped.")

	interval := a.cfg.SyncInterval()
	backoff := backoffBase
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-timer.C:
			out := a.runSync()
			if out.State == tracker.StateFailedRetryable {
				delay := backoff
				if delay > interval {
					delay = interval
				}
				backoff *= 2
				log.Printf("Retrying sync in %s", delay)
				timer.Reset(delay)
			} else {
				backoff = backoffBase
				timer.Reset(interval)
			}
		}
	}
}

// runSync executes one cycle and pushes the result to any live subscriber.
func (a *App) runSync() tracker.Outcome {
	out := a.track.RunCycle(a.ctx)
	if out.State == tracker.StateSucceeded {
		a.publish(out.Summaries)
	}
	return out
}

func (a *App) handleSignals() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v. Initiating shutdown...", sig)
		a.cancel()
	}()
}

func (a *App) cleanup() {
	log.Println("Running cleanup...")

	if a.sampler != nil {
		a.sampler.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Printf("Error closing storage: %v", err)
		}
	}

	// Only the instance that owns the listener may unlink the socket file.
	// A start refused by setupSocket must leave the running daemon's socket
	// untouched.
	if a.listener != nil {
		if _, err := os.Stat(a.socketPath); err == nil {
			log.Printf("Removing socket file: %s", a.socketPath)
			if err := os.Remove(a.socketPath); err != nil {
				log.Printf("Warning: Failed to remove socket file %s: %v", a.socketPath, err)
			}
		}
	}

	log.Println("Cleanup finished.")
}

// disconnectedProvider stands in when no X server is reachable. Reads behave
// as if usage permission were denied: empty results, no errors.
type disconnectedProvider struct{}

func (disconnectedProvider) FetchUsageRecords(ctx context.Context, start, end time.Time) ([]usage.Record, error) {
	return nil, platform.ErrPermissionDenied
}

func (disconnectedProvider) CurrentForegroundApp(ctx context.Context) (usage.ForegroundApp, error) {
	return usage.ForegroundApp{}, platform.ErrNotFound
}

func (disconnectedProvider) ResolveDisplayName(pkg string) (string, error) {
	return "", platform.ErrNotFound
}

func (disconnectedProvider) InstalledApps(ctx context.Context) ([]usage.AppInfo, error) {
	return nil, nil
}

func (disconnectedProvider) AppIcon(pkg string) (string, error) {
	return "", platform.ErrNotFound
}

func (disconnectedProvider) HasUsagePermission() bool { return false }

func (disconnectedProvider) RequestUsagePermission() (string, error) {
	return "no X server connection; check DISPLAY and X authority", nil
}
