// Package reaper runs the Controller's background maintenance jobs on a
// cron schedule: sweeping scans whose Runner connection died without a
// terminal event, garbage-collecting the report cache, and refreshing
// the cached default-window statistics. Grounded on rat's
// internal/scheduler (same robfig/cron dependency, same
// slog-per-tick logging style), adapted from a pipeline-run scheduler to
// a fixed set of maintenance jobs.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/garak-ctl/garak-ctl/internal/controller"
	"github.com/garak-ctl/garak-ctl/internal/reportcache"
	"github.com/garak-ctl/garak-ctl/internal/storage/postgres"
)

// metaKey{OrphanSweep,CacheGC,StatsRefresh} are the db_meta rows the
// reaper updates after each successful run, surfaced for operator
// visibility (e.g. "is the reaper still alive") without adding a
// dedicated status endpoint.
const (
	metaKeyOrphanSweep  = "reaper:last_orphan_sweep_at"
	metaKeyCacheGC      = "reaper:last_cache_gc_at"
	metaKeyStatsRefresh = "reaper:last_stats_refresh_at"
)

// Reaper owns a cron schedule running jobs against the Controller's
// registry, report cache, and statistics cache.
type Reaper struct {
	cron            *cron.Cron
	registry        *controller.Registry
	reader          *reportcache.Reader
	meta            *postgres.MetaStore
	service         *controller.Service
	orphanThreshold time.Duration
}

// New returns a Reaper that has not yet been started. schedule is a
// standard five-field cron expression shared by every job.
func New(registry *controller.Registry, reader *reportcache.Reader, meta *postgres.MetaStore, service *controller.Service, schedule string, orphanThreshold time.Duration) (*Reaper, error) {
	r := &Reaper{
		cron:            cron.New(),
		registry:        registry,
		reader:          reader,
		meta:            meta,
		service:         service,
		orphanThreshold: orphanThreshold,
	}

	if _, err := r.cron.AddFunc(schedule, r.sweepOrphans); err != nil {
		return nil, err
	}
	if _, err := r.cron.AddFunc(schedule, r.gcReportCache); err != nil {
		return nil, err
	}
	if _, err := r.cron.AddFunc(schedule, r.refreshStatistics); err != nil {
		return nil, err
	}
	return r, nil
}

// Start launches the cron scheduler in its own goroutine.
func (r *Reaper) Start() {
	r.cron.Start()
}

// Stop stops the scheduler and waits for any in-flight job to finish,
// up to ctx's deadline.
func (r *Reaper) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// sweepOrphans marks every active scan older than orphanThreshold as
// failed: its Runner almost certainly crashed or was killed without the
// SSE stream ever reaching EOF, which is the only other path that
// retires a scan from active_scans.
func (r *Reaper) sweepOrphans() {
	ctx := context.Background()
	cutoff := time.Now().Add(-r.orphanThreshold)
	stale := r.registry.StaleActive(cutoff)

	for _, rec := range stale {
		if err := r.registry.MarkFailed(ctx, rec.ScanID, "reaper: orphaned scan record"); err != nil {
			slog.Error("reaper: failed to mark orphaned scan failed", "scan_id", rec.ScanID, "error", err)
			continue
		}
		slog.Warn("reaper: marked orphaned scan failed", "scan_id", rec.ScanID, "age", time.Since(time.Unix(rec.CreatedAtUnix, 0)))
	}

	if err := r.meta.Set(ctx, metaKeyOrphanSweep, time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Error("reaper: failed to record orphan-sweep timestamp", "error", err)
	}
}

// gcReportCache sweeps expired report-cache entries so a long-lived
// Controller process doesn't grow its in-memory cache unbounded.
func (r *Reaper) gcReportCache() {
	removed := r.reader.GC()
	if removed > 0 {
		slog.Info("reaper: swept report cache", "entries_removed", removed)
	}

	if err := r.meta.Set(context.Background(), metaKeyCacheGC, time.Now().UTC().Format(time.RFC3339)); err != nil {
		slog.Error("reaper: failed to record cache-gc timestamp", "error", err)
	}
}

// refreshStatistics recomputes the default 7-day statistics window and
// caches it, keeping GET /scan/statistics off the registry-scan hot
// path for the common case.
func (r *Reaper) refreshStatistics() {
	ctx := context.Background()
	now := time.Now()

	if err := r.service.RefreshStatisticsCache(ctx, now); err != nil {
		slog.Error("reaper: failed to refresh statistics cache", "error", err)
		return
	}

	if err := r.meta.Set(ctx, metaKeyStatsRefresh, now.UTC().Format(time.RFC3339)); err != nil {
		slog.Error("reaper: failed to record stats-refresh timestamp", "error", err)
	}
}
