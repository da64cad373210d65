// Package x11 is the X11 platform provider. It samples the active window on an
// interval and attributes the sample interval as foreground time to the focused
// application, keyed by its WM_CLASS instance name. Windowed usage queries are
// answered from the retained samples.
package x11

import (
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"

	"screentime/internal/category"
	"screentime/internal/platform"
	"screentime/internal/usage"
)

// retention bounds how long samples are kept. The widest query window is seven
// calendar days; one extra day covers timezone skew.
const retention = 8 * 24 * time.Hour

type sample struct {
	at  time.Time
	pkg string
	dur time.Duration
}

type appMeta struct {
	name      string
	firstSeen time.Time
	lastUsed  time.Time
}

type Provider struct {
	X        *xgbutil.XUtil
	iconSize int

	mu      sync.RWMutex
	samples []sample
	apps    map[string]*appMeta
}

func NewProvider(iconSize int) (*Provider, error) {
	X, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	// EWMH is needed for _NET_ACTIVE_WINDOW and _NET_WM_ICON.
	if _, err := ewmh.CurrentDesktopGet(X); err != nil {
		log.Printf("Warning: EWMH potentially not supported by Window Manager: %v", err)
	}

	return &Provider{
		X:        X,
		iconSize: iconSize,
		apps:     make(map[string]*appMeta),
	}, nil
}

// activeApp returns the focused application's package id and display name.
func (p *Provider) activeApp() (pkg, name string, err error) {
	win, err := ewmh.ActiveWindowGet(p.X)
	if err != nil {
		return "", "", fmt.Errorf("could not get active window: %w", err)
	}
	if win == 0 {
		return "", "", platform.ErrNotFound
	}
	return p.classOf(win)
}

// classOf maps a window to (package, display name) via WM_CLASS. The instance
// name, lowercased, serves as the package identifier; the class is the
// human-readable name.
func (p *Provider) classOf(win xproto.Window) (pkg, name string, err error) {
	hints, err := icccm.WmClassGet(p.X, win)
	if err != nil || hints == nil {
		return "", "", platform.ErrNotFound
	}
	pkg = strings.ToLower(hints.Instance)
	if pkg == "" {
		pkg = strings.ToLower(hints.Class)
	}
	if pkg == "" {
		return "", "", platform.ErrNotFound
	}
	name = hints.Class
	if name == "" {
		name = hints.Instance
	}
	return pkg, name, nil
}

// Start runs the sampling loop until ctx is cancelled.
func (p *Provider) Start(ctx context.Context, interval time.Duration) error {
	log.Printf("Starting X11 usage sampler (interval: %s)", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("X11 usage sampler stopped.")
			return ctx.Err()
		case now := <-ticker.C:
			pkg, name, err := p.activeApp()
			if err != nil {
				// Desktop focused or WM transition, nothing to attribute.
				continue
			}
			p.record(now, pkg, name, interval)
		}
	}
}

func (p *Provider) record(now time.Time, pkg, name string, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.samples = append(p.samples, sample{at: now, pkg: pkg, dur: dur})

	meta, ok := p.apps[pkg]
	if !ok {
		meta = &appMeta{name: name, firstSeen: now}
		p.apps[pkg] = meta
	}
	meta.lastUsed = now
	if name != "" {
		meta.name = name
	}

	// Prune expired samples from the front; they are appended in time order.
	cutoff := now.Add(-retention)
	drop := 0
	for drop < len(p.samples) && p.samples[drop].at.Before(cutoff) {
		drop++
	}
	if drop > 0 {
		p.samples = append(p.samples[:0:0], p.samples[drop:]...)
	}
}

func (p *Provider) FetchUsageRecords(ctx context.Context, start, end time.Time) ([]usage.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	type acc struct {
		total time.Duration
		first time.Time
		last  time.Time
	}
	byPkg := make(map[string]*acc)
	for _, s := range p.samples {
		if s.at.Before(start) || !s.at.Before(end) {
			continue
		}
		a, ok := byPkg[s.pkg]
		if !ok {
			a = &acc{first: s.at}
			byPkg[s.pkg] = a
		}
		a.total += s.dur
		a.last = s.at
	}

	records := make([]usage.Record, 0, len(byPkg))
	for pkg, a := range byPkg {
		records = append(records, usage.Record{
			Package:     pkg,
			TotalMs:     a.total.Milliseconds(),
			LastUsedMs:  a.last.UnixMilli(),
			FirstSeenMs: a.first.UnixMilli(),
		})
	}
	return records, nil
}

func (p *Provider) CurrentForegroundApp(ctx context.Context) (usage.ForegroundApp, error) {
	pkg, name, err := p.activeApp()
	if err != nil {
		return usage.ForegroundApp{}, platform.ErrNotFound
	}
	return usage.ForegroundApp{
		Package:    pkg,
		AppName:    name,
		LastUsedMs: time.Now().UnixMilli(),
	}, nil
}

func (p *Provider) ResolveDisplayName(pkg string) (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if meta, ok := p.apps[pkg]; ok {
		return meta.name, nil
	}
	return "", platform.ErrNotFound
}

// InstalledApps enumerates applications with at least one managed window. X11
// has no install registry, so the window manager's client list is the closest
// equivalent to a launcher query.
func (p *Provider) InstalledApps(ctx context.Context) ([]usage.AppInfo, error) {
	wins, err := ewmh.ClientListGet(p.X)
	if err != nil {
		return nil, fmt.Errorf("could not get client list: %w", err)
	}

	seen := make(map[string]bool)
	var apps []usage.AppInfo
	for _, win := range wins {
		pkg, name, err := p.classOf(win)
		if err != nil || seen[pkg] {
			continue
		}
		seen[pkg] = true
		cat := category.Classify(pkg, category.HintNone)
		apps = append(apps, usage.AppInfo{
			Package:    pkg,
			AppName:    name,
			Category:   cat,
			Productive: category.IsProductive(pkg, cat),
		})
	}

	sort.Slice(apps, func(i, j int) bool { return apps[i].AppName < apps[j].AppName })
	return apps, nil
}

// AppIcon renders the EWMH icon of one of the app's windows as a base64 PNG.
func (p *Provider) AppIcon(pkg string) (string, error) {
	wins, err := ewmh.ClientListGet(p.X)
	if err != nil {
		return "", fmt.Errorf("could not get client list: %w", err)
	}

	for _, win := range wins {
		wpkg, _, err := p.classOf(win)
		if err != nil || wpkg != pkg {
			continue
		}
		icons, err := ewmh.WmIconGet(p.X, win)
		if err != nil || len(icons) == 0 {
			continue
		}
		return encodeIcon(bestIcon(icons, p.iconSize))
	}
	return "", platform.ErrNotFound
}

// bestIcon picks the icon whose size is closest to the requested size,
// preferring larger over smaller at equal distance.
func bestIcon(icons []ewmh.WmIcon, size int) ewmh.WmIcon {
	best := icons[0]
	bestDist := iconDist(best, size)
	for _, ic := range icons[1:] {
		d := iconDist(ic, size)
		if d < bestDist || (d == bestDist && ic.Width > best.Width) {
			best = ic
			bestDist = d
		}
	}
	return best
}

func iconDist(ic ewmh.WmIcon, size int) int {
	d := int(ic.Width) - size
	if d < 0 {
		return -d
	}
	return d
}

// encodeIcon converts the ARGB pixel data of an EWMH icon to a base64 PNG.
func encodeIcon(ic ewmh.WmIcon) (string, error) {
	w, h := int(ic.Width), int(ic.Height)
	if w <= 0 || h <= 0 || len(ic.Data) < w*h {
		return "", fmt.Errorf("malformed icon data (%dx%d, %d pixels)", w, h, len(ic.Data))
	}

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := ic.Data[y*w+x]
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(v >> 16)
			img.Pix[i+1] = uint8(v >> 8)
			img.Pix[i+2] = uint8(v)
			img.Pix[i+3] = uint8(v >> 24)
		}
	}

	var buf strings.Builder
	enc := base64.NewEncoder(base64.StdEncoding, &buf)
	if err := png.Encode(enc, img); err != nil {
		return "", fmt.Errorf("failed to encode icon png: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to finish base64 encoding: %w", err)
	}
	return buf.String(), nil
}

func (p *Provider) HasUsagePermission() bool {
	return p.X != nil
}

// RequestUsagePermission has no settings screen to open on X11; access is the
// X connection itself.
func (p *Provider) RequestUsagePermission() (string, error) {
	if p.HasUsagePermission() {
		return "usage access already granted", nil
	}
	return "no X server connection; check DISPLAY and X authority", nil
}

func (p *Provider) Close() {
	if p.X != nil {
		p.X.Conn().Close()
	}
}
