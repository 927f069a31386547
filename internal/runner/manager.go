package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
	"github.com/garak-ctl/garak-ctl/internal/argv"
	"github.com/garak-ctl/garak-ctl/internal/blobstore"
	"github.com/garak-ctl/garak-ctl/internal/parser"
	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

// pluginListFlag maps a plugin kind to ENGINE's listing flag.
var pluginListFlag = map[string]string{
	"probes":     "--list_probes",
	"detectors":  "--list_detectors",
	"generators": "--list_generators",
	"buffs":      "--list_buffs",
}

// scanHandle is the Runner's live state for one in-flight or
// just-finished scan. It is discarded once its terminal artifacts are
// uploaded and its progress stream has been drained by the Controller
// — the Runner keeps no durable history.
type scanHandle struct {
	scanID string

	mu       sync.Mutex
	snapshot scanmodel.ScanRecord

	child *childProcess
	queue *EventQueue
	exited chan struct{}

	consumerTaken atomic.Bool
}

// Manager supervises every active ENGINE child process, adapting the
// cancel-registry pattern of a per-session worker pool to a per-scan
// process/cancellation registry: start/cancel/status all key off
// scan_id the same way a session worker pool keys off session_id.
type Manager struct {
	cfg   Config
	blobs blobstore.Store

	mu    sync.RWMutex
	scans map[string]*scanHandle
}

// NewManager constructs a Manager. blobs is the backend artifacts are
// uploaded to once a scan terminates.
func NewManager(cfg Config, blobs blobstore.Store) *Manager {
	return &Manager{
		cfg:   cfg,
		blobs: blobs,
		scans: make(map[string]*scanHandle),
	}
}

// Start spawns an ENGINE child for scanID per spec.md §4.1. It never
// blocks awaiting child termination — it returns as soon as the
// process is spawned and its reader goroutine is running.
func (m *Manager) Start(ctx context.Context, scanID string, cfg scanmodel.ScanConfig) (scanmodel.ScanRecord, error) {
	if _, err := exec.LookPath(m.cfg.EnginePath); err != nil {
		return scanmodel.ScanRecord{}, fmt.Errorf("%w: %s not found: %v", apperr.ErrEngineUnavailable, m.cfg.EnginePath, err)
	}

	m.mu.Lock()
	if _, exists := m.scans[scanID]; exists {
		m.mu.Unlock()
		return scanmodel.ScanRecord{}, fmt.Errorf("%w: scan_id %s already active", apperr.ErrConfigInvalid, scanID)
	}
	m.mu.Unlock()

	args, err := argv.Build(cfg, os.Getenv)
	if err != nil {
		return scanmodel.ScanRecord{}, fmt.Errorf("%w: %v", apperr.ErrConfigInvalid, err)
	}

	child, err := startChild(m.cfg.EnginePath, args, os.Environ())
	if err != nil {
		return scanmodel.ScanRecord{}, fmt.Errorf("%w: spawn failed: %v", apperr.ErrEngineUnavailable, err)
	}

	now := time.Now().Unix()
	h := &scanHandle{
		scanID: scanID,
		snapshot: scanmodel.ScanRecord{
			ScanID:        scanID,
			Status:        scanmodel.StatusRunning,
			CreatedAtUnix: now,
			StartedAtUnix: &now,
			Config:        cfg,
		},
		child:  child,
		queue:  NewEventQueue(),
		exited: make(chan struct{}),
	}

	m.mu.Lock()
	m.scans[scanID] = h
	m.mu.Unlock()

	go m.runScan(h)

	h.mu.Lock()
	snapshot := h.snapshot
	h.mu.Unlock()
	return snapshot, nil
}

// runScan owns the reader goroutine's full lifecycle: drain stdout,
// await exit, decide terminal status, upload artifacts, enqueue the
// terminal event, then close the queue. It is the only goroutine that
// waits on h.child and closes h.exited; Cancel only checks h.exited and
// signals h.child's process group.
func (m *Manager) runScan(h *scanHandle) {
	p := parser.New()

	onLine := func(line string) {
		h.mu.Lock()
		h.snapshot.PushOutputLine(line)
		h.mu.Unlock()
	}
	onEvent := func(ev parser.Event) {
		h.mu.Lock()
		h.snapshot.ApplyEvent(ev)
		h.mu.Unlock()
		h.queue.enqueue(ev)
	}

	runReader(h.child.stdout, p, onEvent, onLine)
	exitCode := h.child.wait()
	close(h.exited)

	h.mu.Lock()
	precedingStatus := h.snapshot.Status
	jsonlPath, htmlPath := h.snapshot.JSONLPath, h.snapshot.HTMLPath
	recentLines := append([]string(nil), h.snapshot.RecentOutput...)
	h.mu.Unlock()

	if !precedingStatus.Terminal() {
		passed, failed := p.Totals()
		if exitCode == 0 {
			keys := uploadArtifacts(context.Background(), m.blobs, m.cfg.SpoolDir, h.scanID, jsonlPath, htmlPath)
			ev := parser.Event{
				Kind:        parser.KindComplete,
				RawLine:     "scan complete",
				TotalPassed: passed,
				TotalFailed: failed,
				ReportKeys:  keys,
			}
			h.mu.Lock()
			h.snapshot.ApplyEvent(ev)
			h.mu.Unlock()
			h.queue.enqueue(ev)
		} else {
			msg := synthesizeFailure(exitCode, recentLines)
			ev := parser.Event{Kind: parser.KindError, RawLine: msg, Message: msg}
			h.mu.Lock()
			h.snapshot.ApplyEvent(ev)
			h.mu.Unlock()
			h.queue.enqueue(ev)
			keys := uploadArtifacts(context.Background(), m.blobs, m.cfg.SpoolDir, h.scanID, jsonlPath, htmlPath)
			applyUploadKeys(h, keys)
		}
	} else {
		// Status already reached a terminal value mid-stream: an
		// in-band `error` line flipped it, or Cancel() was called.
		// Partial artifacts are still worth uploading.
		keys := uploadArtifacts(context.Background(), m.blobs, m.cfg.SpoolDir, h.scanID, jsonlPath, htmlPath)
		applyUploadKeys(h, keys)
	}

	h.mu.Lock()
	if h.snapshot.CompletedAtUnix == nil {
		now := time.Now().Unix()
		h.snapshot.CompletedAtUnix = &now
	}
	h.mu.Unlock()

	h.queue.closeQueue()
}

func applyUploadKeys(h *scanHandle, keys map[string]string) {
	if len(keys) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if k, ok := keys["jsonl"]; ok {
		h.snapshot.JSONLKey = k
	}
	if k, ok := keys["html"]; ok {
		h.snapshot.HTMLKey = k
	}
	if k, ok := keys["hitlog"]; ok {
		h.snapshot.HitlogKey = k
	}
}

// Status returns a snapshot of scanID's current state, or false if
// unknown to this Runner.
func (m *Manager) Status(scanID string) (scanmodel.ScanRecord, bool) {
	m.mu.RLock()
	h, ok := m.scans[scanID]
	m.mu.RUnlock()
	if !ok {
		return scanmodel.ScanRecord{}, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.snapshot, true
}

// List returns a snapshot of every scan this Runner currently knows
// about (running or finished but not yet drained).
func (m *Manager) List() []scanmodel.ScanRecord {
	m.mu.RLock()
	handles := make([]*scanHandle, 0, len(m.scans))
	for _, h := range m.scans {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	out := make([]scanmodel.ScanRecord, 0, len(handles))
	for _, h := range handles {
		h.mu.Lock()
		out = append(out, h.snapshot)
		h.mu.Unlock()
	}
	return out
}

// Cancel implements spec.md §4.1's cancel() contract: idempotent,
// returns true iff a live process was signaled by this call, and a
// cancellation always wins any race against a concurrently-deciding
// complete/error outcome because it sets Status directly rather than
// going through ApplyEvent's terminal-state guard.
func (m *Manager) Cancel(scanID string) bool {
	m.mu.RLock()
	h, ok := m.scans[scanID]
	m.mu.RUnlock()
	if !ok {
		return false
	}

	h.mu.Lock()
	if h.snapshot.Status.Terminal() {
		h.mu.Unlock()
		return false
	}

	live := true
	select {
	case <-h.exited:
		live = false
	default:
	}

	h.snapshot.Status = scanmodel.StatusCancelled
	now := time.Now().Unix()
	h.snapshot.CompletedAtUnix = &now
	h.mu.Unlock()

	if !live {
		return false
	}

	h.child.terminate(m.cfg.GracefulTimeout, h.exited)
	return true
}

// OpenProgressStream returns scanID's event queue for streaming, plus a
// release function the caller must call when done. Only one consumer
// may hold the stream at a time, per spec.md §4.1: a second concurrent
// subscriber is denied rather than teed.
func (m *Manager) OpenProgressStream(scanID string) (*EventQueue, func(), error) {
	m.mu.RLock()
	h, ok := m.scans[scanID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil, apperr.ErrNotFound
	}
	if !h.consumerTaken.CompareAndSwap(false, true) {
		return nil, nil, fmt.Errorf("%w: progress stream already has a consumer", apperr.ErrConfigInvalid)
	}
	release := func() { h.consumerTaken.Store(false) }
	return h.queue, release, nil
}

// Forget discards scanID's in-memory handle once the Controller has
// fully drained it. Safe to call on an unknown scan_id.
func (m *Manager) Forget(scanID string) {
	m.mu.Lock()
	delete(m.scans, scanID)
	m.mu.Unlock()
}

// IsEngineAvailable reports whether the configured ENGINE executable
// can be resolved, for the health endpoint's pre-flight indicator.
func (m *Manager) IsEngineAvailable() bool {
	_, err := exec.LookPath(m.cfg.EnginePath)
	return err == nil
}

// ListPlugins invokes ENGINE's plugin-listing flag for kind, bounded
// by PluginListTimeout.
func (m *Manager) ListPlugins(ctx context.Context, kind string) ([]string, error) {
	flag, ok := pluginListFlag[kind]
	if !ok {
		return nil, fmt.Errorf("%w: unknown plugin kind %q", apperr.ErrConfigInvalid, kind)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.PluginListTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, m.cfg.EnginePath, flag).Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrEngineUnavailable, err)
	}

	var plugins []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			plugins = append(plugins, line)
		}
	}
	return plugins, nil
}

// Version invokes ENGINE's version flag, bounded by VersionTimeout.
func (m *Manager) Version(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.VersionTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, m.cfg.EnginePath, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrEngineUnavailable, err)
	}
	return strings.TrimSpace(string(out)), nil
}
