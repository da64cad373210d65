package app

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"screentime/internal/config"
	"screentime/internal/icons"
	"screentime/internal/ipc"
	"screentime/internal/platform"
	"screentime/internal/tracker"
	"screentime/internal/usage"
)

type stubProvider struct {
	permitted bool
	records   []usage.Record
	fetchErr  error
	iconFor   map[string]string
	fg        *usage.ForegroundApp
}

func (s *stubProvider) FetchUsageRecords(ctx context.Context, start, end time.Time) ([]usage.Record, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	return s.records, nil
}

func (s *stubProvider) CurrentForegroundApp(ctx context.Context) (usage.ForegroundApp, error) {
	if s.fg == nil {
		return usage.ForegroundApp{}, platform.ErrNotFound
	}
	return *s.fg, nil
}

func (s *stubProvider) ResolveDisplayName(pkg string) (string, error) {
	return "App " + pkg, nil
}

func (s *stubProvider) InstalledApps(ctx context.Context) ([]usage.AppInfo, error) {
	return []usage.AppInfo{{Package: "firefox", AppName: "Firefox"}}, nil
}

func (s *stubProvider) AppIcon(pkg string) (string, error) {
	if icon, ok := s.iconFor[pkg]; ok {
		return icon, nil
	}
	return "", platform.ErrNotFound
}

func (s *stubProvider) HasUsagePermission() bool { return s.permitted }

func (s *stubProvider) RequestUsagePermission() (string, error) {
	return "usage access already granted", nil
}

type memStore struct {
	watermark    time.Time
	hasWatermark bool
	saveErr      error
}

func (s *memStore) Init(ctx context.Context) error { return nil }

func (s *memStore) SavePendingSummaries(ctx context.Context, summaries []usage.Summary) error {
	return s.saveErr
}

func (s *memStore) PendingSummaries(ctx context.Context, since time.Time) ([]usage.Summary, error) {
	return nil, nil
}

func (s *memStore) LoadWatermark(ctx context.Context) (time.Time, bool, error) {
	return s.watermark, s.hasWatermark, nil
}

func (s *memStore) StoreWatermark(ctx context.Context, t time.Time) error {
	s.watermark = t
	s.hasWatermark = true
	return nil
}

func (s *memStore) Close() error { return nil }

func newTestApp(prov *stubProvider, store *memStore) *App {
	ctx, cancel := context.WithCancel(context.Background())
	now := func() time.Time { return time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC) }
	return &App{
		cfg:      &config.Config{SyncIntervalMinutes: 15},
		store:    store,
		provider: prov,
		track:    tracker.New(prov, store, now),
		icons:    icons.NewCache(prov.AppIcon),
		now:      now,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func TestProcessCommandPing(t *testing.T) {
	a := newTestApp(&stubProvider{}, &memStore{})
	resp := a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdPing})
	assert.True(t, resp.Success)
	assert.Equal(t, "pong", resp.Message)
}

func TestProcessCommandHasPermission(t *testing.T) {
	a := newTestApp(&stubProvider{permitted: true}, &memStore{})
	resp := a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdHasPermission})
	require.True(t, resp.Success)
	assert.Equal(t, true, resp.Data)

	a = newTestApp(&stubProvider{}, &memStore{})
	resp = a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdHasPermission})
	require.True(t, resp.Success)
	assert.Equal(t, false, resp.Data)
}

func TestProcessCommandTodayStats(t *testing.T) {
	prov := &stubProvider{
		permitted: true,
		records: []usage.Record{
			{Package: "firefox", TotalMs: 900},
			{Package: "slack", TotalMs: 100},
			{Package: "idle", TotalMs: 0},
		},
	}
	a := newTestApp(prov, &memStore{})

	resp := a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdGetTodayStats})
	require.True(t, resp.Success)
	summaries, ok := resp.Data.([]usage.Summary)
	require.True(t, ok)
	require.Len(t, summaries, 2)
	assert.Equal(t, "firefox", summaries[0].Package)
	assert.Equal(t, "App firefox", summaries[0].AppName)
	assert.Equal(t, "slack", summaries[1].Package)
}

func TestProcessCommandStatsWithoutPermission(t *testing.T) {
	a := newTestApp(&stubProvider{permitted: false}, &memStore{})

	for _, name := range []string{ipc.CmdGetTodayStats, ipc.CmdGetWeeklyStats} {
		resp := a.processCommand(a.ctx, ipc.Command{Name: name})
		require.True(t, resp.Success, name)
		summaries, ok := resp.Data.([]usage.Summary)
		require.True(t, ok, name)
		assert.Empty(t, summaries, name)
	}
}

func TestProcessCommandStatsCollaboratorFailure(t *testing.T) {
	prov := &stubProvider{permitted: true, fetchErr: errors.New("stats source down")}
	a := newTestApp(prov, &memStore{})

	resp := a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdGetTodayStats})
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.CodeUsageStats, resp.Code)
}

func TestProcessCommandUsageStatsInvalidWindow(t *testing.T) {
	a := newTestApp(&stubProvider{permitted: true}, &memStore{})

	resp := a.processCommand(a.ctx, ipc.Command{
		Name: ipc.CmdGetUsageStats,
		Args: map[string]interface{}{"start_ms": 2000, "end_ms": 1000},
	})
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.CodeInvalidArgument, resp.Code)
}

func TestProcessCommandAppIcon(t *testing.T) {
	prov := &stubProvider{iconFor: map[string]string{"firefox": "PNGDATA"}}
	a := newTestApp(prov, &memStore{})

	// Missing package name.
	resp := a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdGetAppIcon})
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.CodeInvalidArgument, resp.Code)

	// Known icon.
	resp = a.processCommand(a.ctx, ipc.Command{
		Name: ipc.CmdGetAppIcon,
		Args: map[string]interface{}{"package": "firefox"},
	})
	require.True(t, resp.Success)
	assert.Equal(t, "PNGDATA", resp.Data)

	// Unknown icon resolves to null, not an error.
	resp = a.processCommand(a.ctx, ipc.Command{
		Name: ipc.CmdGetAppIcon,
		Args: map[string]interface{}{"package": "ghost"},
	})
	require.True(t, resp.Success)
	assert.Nil(t, resp.Data)
}

func TestProcessCommandBatchIcons(t *testing.T) {
	prov := &stubProvider{iconFor: map[string]string{"firefox": "PNGDATA"}}
	a := newTestApp(prov, &memStore{})

	resp := a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdGetBatchIcons})
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.CodeInvalidArgument, resp.Code)

	resp = a.processCommand(a.ctx, ipc.Command{
		Name: ipc.CmdGetBatchIcons,
		Args: map[string]interface{}{"packages": []string{"firefox", "ghost"}},
	})
	require.True(t, resp.Success)
	result, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "PNGDATA", result["firefox"])
	assert.Nil(t, result["ghost"])
}

func TestProcessCommandForegroundApp(t *testing.T) {
	// Without permission: null, success.
	a := newTestApp(&stubProvider{}, &memStore{})
	resp := a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdGetForegroundApp})
	require.True(t, resp.Success)
	assert.Nil(t, resp.Data)

	// With a focused app.
	fg := usage.ForegroundApp{Package: "firefox", AppName: "Firefox", LastUsedMs: 123}
	a = newTestApp(&stubProvider{permitted: true, fg: &fg}, &memStore{})
	resp = a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdGetForegroundApp})
	require.True(t, resp.Success)
	assert.Equal(t, fg, resp.Data)
}

func TestProcessCommandSyncNow(t *testing.T) {
	prov := &stubProvider{
		permitted: true,
		records:   []usage.Record{{Package: "firefox", TotalMs: 500}},
	}
	store := &memStore{}
	a := newTestApp(prov, store)

	resp := a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdSyncNow})
	require.True(t, resp.Success)
	assert.True(t, store.hasWatermark)

	// A failing cycle surfaces a typed error to the interactive caller.
	store.saveErr = errors.New("disk full")
	resp = a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdSyncNow})
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.CodeSync, resp.Code)
}

func TestProcessCommandStatus(t *testing.T) {
	a := newTestApp(&stubProvider{permitted: true}, &memStore{})
	resp := a.processCommand(a.ctx, ipc.Command{Name: ipc.CmdGetStatus})
	require.True(t, resp.Success)
	st, ok := resp.Data.(tracker.Status)
	require.True(t, ok)
	assert.Equal(t, tracker.StateIdle, st.State)
}

func TestRunRefusedWhenSocketActiveKeepsSocketFile(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "screentimed.sock")
	addr, err := net.ResolveUnixAddr("unix", sockPath)
	require.NoError(t, err)
	l, err := net.ListenUnix("unix", addr)
	require.NoError(t, err)
	defer l.Close()

	a := newTestApp(&stubProvider{}, &memStore{})
	a.socketPath = sockPath

	err = a.Run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already active")

	// The refused instance must not unlink the running daemon's socket.
	_, statErr := os.Stat(sockPath)
	assert.NoError(t, statErr)

	conn, dialErr := net.DialTimeout("unix", sockPath, time.Second)
	require.NoError(t, dialErr)
	conn.Close()
}

func TestProcessCommandUnknown(t *testing.T) {
	a := newTestApp(&stubProvider{}, &memStore{})
	resp := a.processCommand(a.ctx, ipc.Command{Name: "bogus"})
	assert.False(t, resp.Success)
	assert.Equal(t, ipc.CodeUnknownCommand, resp.Code)
}
