package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
	"github.com/garak-ctl/garak-ctl/internal/blobstore"
	"github.com/garak-ctl/garak-ctl/internal/reportcache"
	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
	"github.com/garak-ctl/garak-ctl/internal/storage/postgres"
	"github.com/garak-ctl/garak-ctl/internal/workflow"
)

// Service orchestrates the submit/cancel/delete paths from spec.md
// §4.4, wiring the Registry, the RunnerClient, and the blob store
// together. HTTP handlers call Service; they never touch Registry or
// RunnerClient directly.
type Service struct {
	registry      *Registry
	runner        *RunnerClient
	blobs         blobstore.Store
	analyzer      *workflow.Analyzer
	stats         *reportcache.StatsComputer
	maxConcurrent int

	statsCacheMu sync.RWMutex
	statsCache   *Statistics
}

// NewService returns a Service enforcing maxConcurrent as the
// concurrency cap. analyzer feeds the live workflow graph and stats
// materializes per-category probe stats once a scan completes; either
// may be nil to skip that wiring.
func NewService(registry *Registry, runner *RunnerClient, blobs blobstore.Store, analyzer *workflow.Analyzer, stats *reportcache.StatsComputer, maxConcurrent int) *Service {
	return &Service{registry: registry, runner: runner, blobs: blobs, analyzer: analyzer, stats: stats, maxConcurrent: maxConcurrent}
}

// Submit implements spec.md §4.4's submit path: capacity check, UUID
// assignment, Runner dispatch, registry bookkeeping, then launches the
// SSE consumer in the background so the HTTP response isn't held open
// for the scan's lifetime.
func (s *Service) Submit(ctx context.Context, cfg scanmodel.ScanConfig) (scanmodel.ScanRecord, error) {
	if err := CheckCapacity(s.registry, s.maxConcurrent); err != nil {
		return scanmodel.ScanRecord{}, err
	}

	scanID := uuid.NewString()

	if err := s.runner.StartScan(ctx, scanID, cfg); err != nil {
		return scanmodel.ScanRecord{}, err
	}

	now := time.Now().Unix()
	rec := scanmodel.ScanRecord{
		ScanID:        scanID,
		Status:        scanmodel.StatusPending,
		CreatedAtUnix: now,
		Config:        cfg,
	}
	if err := s.registry.Create(ctx, rec); err != nil {
		return scanmodel.ScanRecord{}, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}

	consumer := NewSSEConsumer(s.runner.base, s.registry, s.analyzer, s.stats)
	go consumer.Run(context.Background(), scanID)

	return rec, nil
}

// Cancel signals the Runner, then marks the registry cancelled
// directly rather than waiting on the SSE consumer's own EOF handling
// — DELETE should not block on the stream closing.
func (s *Service) Cancel(ctx context.Context, scanID string) error {
	if err := s.runner.Cancel(ctx, scanID); err != nil {
		return err
	}
	return s.registry.Cancel(ctx, scanID)
}

// Snapshot returns scanID's current view, live or persisted.
func (s *Service) Snapshot(ctx context.Context, scanID string) (scanmodel.ScanRecord, error) {
	return s.registry.Snapshot(ctx, scanID)
}

// History lists scans from the durable store per opts.
func (s *Service) History(ctx context.Context, opts postgres.ListOpts) ([]scanmodel.ScanRecord, error) {
	return s.registry.History(ctx, opts)
}

// Delete cancels scanID if still active, removes its registry row, and
// sweeps every blob under its prefix, per spec.md §8's delete
// invariant: "removes the row, the in-memory entry, and every blob
// under prefix {scan_id}/".
func (s *Service) Delete(ctx context.Context, scanID string) error {
	_ = s.runner.Cancel(ctx, scanID)

	keys, err := s.blobs.ListKeys(ctx, blobstore.Prefix(scanID))
	if err == nil {
		for _, key := range keys {
			_ = s.blobs.Delete(ctx, key)
		}
	}

	if s.analyzer != nil {
		s.analyzer.Clear(scanID)
	}

	return s.registry.Delete(ctx, scanID)
}
