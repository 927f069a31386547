package reportcache

import (
	"context"
	"strings"

	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

// ScanRecordStats is the minimal interface StatsComputer needs against
// a persisted scan record: read the write-once-cached stats, or write
// them back the first time they're computed.
type ScanRecordStats interface {
	ProbeStats(ctx context.Context, scanID string) (scanmodel.ProbeStats, bool, error)
	SaveProbeStats(ctx context.Context, scanID string, stats scanmodel.ProbeStats) error
}

// StatsComputer materializes per-category pass/fail tallies, following
// the write-once rule from spec.md §4.5: compute once from report
// entries, persist, and serve the persisted copy thereafter.
type StatsComputer struct {
	reader  *Reader
	records ScanRecordStats
}

// NewStatsComputer returns a StatsComputer backed by reader and records.
func NewStatsComputer(reader *Reader, records ScanRecordStats) *StatsComputer {
	return &StatsComputer{reader: reader, records: records}
}

// ProbeStats returns scanID's per-category pass/fail tallies, computing
// and persisting them on first read if the record doesn't have them
// yet.
func (c *StatsComputer) ProbeStats(ctx context.Context, scanID string) (scanmodel.ProbeStats, error) {
	if stats, ok, err := c.records.ProbeStats(ctx, scanID); err != nil {
		return nil, err
	} else if ok {
		return stats, nil
	}

	entries, found, err := c.reader.Entries(ctx, scanID)
	if err != nil {
		return nil, err
	}
	if !found {
		return scanmodel.ProbeStats{}, nil
	}

	stats := ComputeProbeStats(entries)
	if err := c.records.SaveProbeStats(ctx, scanID, stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// ComputeProbeStats tallies pass/fail counts per probe category
// (probe_classname split on its first '.') from attempt entries with
// status 2 (passed) or 1 (failed).
func ComputeProbeStats(entries []Entry) scanmodel.ProbeStats {
	stats := scanmodel.ProbeStats{}
	for _, e := range entries {
		if e.EntryType() != "attempt" {
			continue
		}
		category := category(e.ProbeClassname())
		tally := stats[category]
		switch e.Status() {
		case 2:
			tally.Passed++
		case 1:
			tally.Failed++
		default:
			continue
		}
		stats[category] = tally
	}
	return stats
}

func category(probeClassname string) string {
	if idx := strings.Index(probeClassname, "."); idx >= 0 {
		return probeClassname[:idx]
	}
	return probeClassname
}
