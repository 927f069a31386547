// Package controller implements the Controller side of spec.md §4.4:
// the canonical scan registry, the Runner SSE consumer that keeps it
// current, the concurrency cap, and the orchestration that ties submit
// and cancel together. Grounded on pkg/queue/pool.go's registry pattern
// (a mutex-guarded map mutated only by its owning goroutines, read via
// snapshot elsewhere) generalized from session_id to scan_id and from a
// cancel-func registry to a durable-record registry.
package controller

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
	"github.com/garak-ctl/garak-ctl/internal/fanout"
	"github.com/garak-ctl/garak-ctl/internal/parser"
	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
	"github.com/garak-ctl/garak-ctl/internal/storage/postgres"
)

// Registry is the Controller's canonical scan registry: an in-memory
// active_scans map for pending/running scans, backed by a durable
// postgres.ScanStore for history and terminal records. It is the only
// mutator of active_scans, per spec.md §5's shared-resource rule — the
// SSE consumer and lifecycle handlers (Cancel, Delete) write to it; HTTP
// read handlers take a snapshot instead of touching the map directly.
// Every mutation also publishes to hub, feeding the WebSocket fan-out.
type Registry struct {
	store *postgres.ScanStore
	hub   *fanout.Hub

	mu     sync.RWMutex
	active map[string]*scanmodel.ScanRecord
}

// NewRegistry returns a Registry backed by store, publishing every
// mutation to hub.
func NewRegistry(store *postgres.ScanStore, hub *fanout.Hub) *Registry {
	return &Registry{store: store, hub: hub, active: make(map[string]*scanmodel.ScanRecord)}
}

// Create registers a new pending scan in memory and persists its
// initial row, covering steps (iv)-(v) of spec.md §4.4's submit path.
func (r *Registry) Create(ctx context.Context, rec scanmodel.ScanRecord) error {
	r.mu.Lock()
	r.active[rec.ScanID] = &rec
	r.mu.Unlock()

	if err := r.store.Insert(ctx, rec); err != nil {
		r.mu.Lock()
		delete(r.active, rec.ScanID)
		r.mu.Unlock()
		return err
	}
	r.hub.Publish(rec)
	return nil
}

// CountActive returns the number of pending+running scans. Terminal
// scans are retired from active_scans as soon as they're observed, so
// this is exactly the count the concurrency cap needs.
func (r *Registry) CountActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// Snapshot returns scanID's current view: the in-memory record if still
// active, otherwise a read-through to the durable store.
func (r *Registry) Snapshot(ctx context.Context, scanID string) (scanmodel.ScanRecord, error) {
	r.mu.RLock()
	rec, ok := r.active[scanID]
	if ok {
		snap := *rec
		r.mu.RUnlock()
		return snap, nil
	}
	r.mu.RUnlock()
	return r.store.Get(ctx, scanID)
}

// ApplyAndPersist folds ev into scanID's active record. Every
// terminal-affecting kind (report, complete, error) is persisted
// immediately; once ApplyEvent moves the record to a terminal status,
// the record is retired from active_scans in the same critical section.
func (r *Registry) ApplyAndPersist(ctx context.Context, scanID string, ev parser.Event) error {
	r.mu.Lock()
	rec, ok := r.active[scanID]
	if !ok {
		r.mu.Unlock()
		return apperr.ErrNotFound
	}
	rec.ApplyEvent(ev)
	snap := *rec
	terminal := rec.Status.Terminal()
	if terminal {
		delete(r.active, scanID)
	}
	r.mu.Unlock()
	r.hub.Publish(snap)

	switch ev.Kind {
	case parser.KindReport, parser.KindComplete, parser.KindError:
		return r.store.UpdateStatus(ctx, snap)
	}
	if terminal {
		return r.store.UpdateStatus(ctx, snap)
	}
	return nil
}

// MarkFailed forces scanID to failed with message. Used when the SSE
// consumer cannot reach the Runner at all after its retry budget, per
// spec.md §7's UPSTREAM propagation rule.
func (r *Registry) MarkFailed(ctx context.Context, scanID, message string) error {
	r.mu.Lock()
	rec, ok := r.active[scanID]
	if !ok || rec.Status.Terminal() {
		r.mu.Unlock()
		if !ok {
			return apperr.ErrNotFound
		}
		return nil
	}
	rec.Status = scanmodel.StatusFailed
	rec.ErrorMessage = message
	now := time.Now().Unix()
	rec.CompletedAtUnix = &now
	snap := *rec
	delete(r.active, scanID)
	r.mu.Unlock()
	r.hub.Publish(snap)

	return r.store.UpdateStatus(ctx, snap)
}

// PromoteIfStillActive implements the defensive rule from spec.md §4.4:
// if the SSE stream ends while status is still pending/running, the
// Runner crashed without emitting a terminal event — promote to
// completed with progress=100 rather than leaving the scan stuck.
func (r *Registry) PromoteIfStillActive(ctx context.Context, scanID string) error {
	r.mu.Lock()
	rec, ok := r.active[scanID]
	if !ok || rec.Status.Terminal() {
		r.mu.Unlock()
		return nil
	}
	rec.Status = scanmodel.StatusCompleted
	rec.Progress = 100
	now := time.Now().Unix()
	rec.CompletedAtUnix = &now
	snap := *rec
	delete(r.active, scanID)
	r.mu.Unlock()
	r.hub.Publish(snap)

	return r.store.UpdateStatus(ctx, snap)
}

// Cancel marks scanID cancelled and persists it. It retires the record
// from active_scans in the same critical section, so a complete/error
// event that arrives afterwards finds no active record and cannot
// overwrite the cancellation. Returns the store's ErrNotFound if scanID
// is unknown entirely, and ErrCancelDisallowed if scanID is no longer in
// active_scans (already terminal, or persisted without an active record).
func (r *Registry) Cancel(ctx context.Context, scanID string) error {
	r.mu.Lock()
	rec, ok := r.active[scanID]
	if ok {
		if rec.Status.Terminal() {
			r.mu.Unlock()
			return apperr.ErrCancelDisallowed
		}
		rec.Status = scanmodel.StatusCancelled
		now := time.Now().Unix()
		rec.CompletedAtUnix = &now
		snap := *rec
		delete(r.active, scanID)
		r.mu.Unlock()
		r.hub.Publish(snap)
		return r.store.UpdateStatus(ctx, snap)
	}
	r.mu.Unlock()

	existing, err := r.store.Get(ctx, scanID)
	if err != nil {
		return err
	}
	if existing.Status.Terminal() {
		return apperr.ErrCancelDisallowed
	}
	return apperr.ErrCancelDisallowed
}

// Delete removes scanID from active_scans and the durable store. Blob
// cleanup is the caller's responsibility (Service.Delete sweeps the
// blob-store prefix), per spec.md §8's delete invariant.
func (r *Registry) Delete(ctx context.Context, scanID string) error {
	r.mu.Lock()
	delete(r.active, scanID)
	r.mu.Unlock()
	return r.store.Delete(ctx, scanID)
}

// History lists scans from the durable store, newest first per opts.
func (r *Registry) History(ctx context.Context, opts postgres.ListOpts) ([]scanmodel.ScanRecord, error) {
	return r.store.List(ctx, opts)
}

// Since lists every scan created at or after cutoff, oldest first, for
// statistics(days) aggregation.
func (r *Registry) Since(ctx context.Context, cutoff time.Time) ([]scanmodel.ScanRecord, error) {
	return r.store.ListSince(ctx, cutoff)
}

// StaleActive returns every active (non-terminal) scan created before
// cutoff, for the reaper's orphaned-scan sweep: a scan whose Runner
// crashed hard enough to drop its SSE connection without the Controller
// ever observing EOF would otherwise sit in active_scans forever.
func (r *Registry) StaleActive(cutoff time.Time) []scanmodel.ScanRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var stale []scanmodel.ScanRecord
	for _, rec := range r.active {
		if time.Unix(rec.CreatedAtUnix, 0).Before(cutoff) {
			stale = append(stale, *rec)
		}
	}
	return stale
}

// --- reportcache.RecordLookup ---

// LocalReportPath satisfies reportcache.RecordLookup.
func (r *Registry) LocalReportPath(ctx context.Context, scanID string) (string, bool) {
	rec, err := r.Snapshot(ctx, scanID)
	if err != nil || rec.JSONLPath == "" {
		return "", false
	}
	return rec.JSONLPath, true
}

// OriginalFilename satisfies reportcache.RecordLookup: ENGINE names its
// report files by its own UUID, so the only way to recover the upstream
// filename for a Runner-side fetch is the path the parser observed.
func (r *Registry) OriginalFilename(ctx context.Context, scanID string) (string, bool) {
	rec, err := r.Snapshot(ctx, scanID)
	if err != nil || rec.JSONLPath == "" {
		return "", false
	}
	if idx := strings.LastIndex(rec.JSONLPath, "/"); idx >= 0 {
		return rec.JSONLPath[idx+1:], true
	}
	return rec.JSONLPath, true
}

// PersistJSONLKey satisfies reportcache.RecordLookup.
func (r *Registry) PersistJSONLKey(ctx context.Context, scanID, key string) error {
	rec, err := r.store.Get(ctx, scanID)
	if err != nil {
		return err
	}
	rec.JSONLKey = key
	return r.store.UpdateStatus(ctx, rec)
}

// --- reportcache.ScanRecordStats ---

// ProbeStats satisfies reportcache.ScanRecordStats.
func (r *Registry) ProbeStats(ctx context.Context, scanID string) (scanmodel.ProbeStats, bool, error) {
	rec, err := r.store.Get(ctx, scanID)
	if err != nil {
		if apperr.Is(err, apperr.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if len(rec.ProbeStats) == 0 {
		return nil, false, nil
	}
	return rec.ProbeStats, true, nil
}

// SaveProbeStats satisfies reportcache.ScanRecordStats.
func (r *Registry) SaveProbeStats(ctx context.Context, scanID string, stats scanmodel.ProbeStats) error {
	rec, err := r.store.Get(ctx, scanID)
	if err != nil {
		return err
	}
	rec.ProbeStats = stats
	return r.store.UpdateStatus(ctx, rec)
}
