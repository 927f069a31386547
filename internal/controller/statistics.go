package controller

import (
	"context"
	"sort"
	"time"

	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

// StatusCounts tallies scans by coarse lifecycle bucket.
type StatusCounts struct {
	Completed       int `json:"completed"`
	Failed          int `json:"failed"`
	Cancelled       int `json:"cancelled"`
	RunningOrPending int `json:"running_or_pending"`
}

// DailyTrend is one day's aggregate within the statistics window.
type DailyTrend struct {
	Date         string  `json:"date"`
	ScanCount    int     `json:"scan_count"`
	TotalPassed  int     `json:"total_passed"`
	TotalFailed  int     `json:"total_failed"`
	AvgPassRate  float64 `json:"avg_pass_rate"`
}

// FailingProbe is one entry of the top-failing-probes ranking.
type FailingProbe struct {
	ProbeCategory string `json:"probe_category"`
	FailureCount  int    `json:"failure_count"`
}

// TargetBreakdown aggregates scans for one (target_type, target_name)
// pair.
type TargetBreakdown struct {
	TargetType  string  `json:"target_type"`
	TargetName  string  `json:"target_name"`
	ScanCount   int     `json:"scan_count"`
	AvgPassRate float64 `json:"avg_pass_rate"`
	LastScanned int64   `json:"last_scanned"`
}

// Statistics is the full response of statistics(days), per spec.md
// §4.6.
type Statistics struct {
	StatusCounts      StatusCounts      `json:"status_counts"`
	OverallPassRate   float64           `json:"overall_pass_rate"`
	AvgPassRate       float64           `json:"avg_pass_rate"`
	MinPassRate       float64           `json:"min_pass_rate"`
	MaxPassRate       float64           `json:"max_pass_rate"`
	DailyTrends       []DailyTrend      `json:"daily_trends"`
	TopFailingProbes  []FailingProbe    `json:"top_failing_probes"`
	TargetBreakdown   []TargetBreakdown `json:"target_breakdown"`
}

// statsCacheWindow is the only window the reaper keeps warm — the
// default `days` value every dashboard load asks for.
const statsCacheWindow = 7

// Statistics computes the aggregate view over every scan created in
// the last `days` days, per spec.md §4.6. `now` is passed in explicitly
// so the computation stays deterministic and testable. The default
// 7-day window is served from the reaper-refreshed cache when one is
// present, keeping GET /scan/statistics off the registry-scan hot path.
func (s *Service) Statistics(ctx context.Context, days int, now time.Time) (Statistics, error) {
	if days <= 0 {
		days = statsCacheWindow
	}

	if days == statsCacheWindow {
		if cached, ok := s.cachedStatistics(); ok {
			return cached, nil
		}
	}

	stats, err := s.computeStatistics(ctx, days, now)
	if err != nil {
		return Statistics{}, err
	}

	if days == statsCacheWindow {
		s.setCachedStatistics(stats)
	}
	return stats, nil
}

// RefreshStatisticsCache recomputes the statsCacheWindow-day statistics
// and stores them for subsequent Statistics calls to serve directly.
// Intended to run on the reaper's cron schedule.
func (s *Service) RefreshStatisticsCache(ctx context.Context, now time.Time) error {
	stats, err := s.computeStatistics(ctx, statsCacheWindow, now)
	if err != nil {
		return err
	}
	s.setCachedStatistics(stats)
	return nil
}

func (s *Service) computeStatistics(ctx context.Context, days int, now time.Time) (Statistics, error) {
	cutoff := now.AddDate(0, 0, -days).Truncate(24 * time.Hour)

	scans, err := s.registry.Since(ctx, cutoff)
	if err != nil {
		return Statistics{}, err
	}

	return computeStatistics(scans, cutoff, days, now), nil
}

func (s *Service) cachedStatistics() (Statistics, bool) {
	s.statsCacheMu.RLock()
	defer s.statsCacheMu.RUnlock()
	if s.statsCache == nil {
		return Statistics{}, false
	}
	return *s.statsCache, true
}

func (s *Service) setCachedStatistics(stats Statistics) {
	s.statsCacheMu.Lock()
	defer s.statsCacheMu.Unlock()
	s.statsCache = &stats
}

func computeStatistics(scans []scanmodel.ScanRecord, cutoff time.Time, days int, now time.Time) Statistics {
	var (
		counts             StatusCounts
		totalPassed        int
		totalFailed        int
		completedPassRates []float64
	)

	type dayBucket struct {
		count       int
		passed      int
		failed      int
		passRateSum float64
		passRateN   int
	}
	buckets := make(map[string]*dayBucket)
	for i := 0; i < days; i++ {
		day := cutoff.AddDate(0, 0, i).Format("2006-01-02")
		buckets[day] = &dayBucket{}
	}

	failureCounts := map[string]int{}

	type targetKey struct{ typ, name string }
	targetAgg := map[targetKey]*TargetBreakdown{}
	var targetOrder []targetKey

	for _, rec := range scans {
		switch rec.Status {
		case scanmodel.StatusCompleted:
			counts.Completed++
		case scanmodel.StatusFailed:
			counts.Failed++
		case scanmodel.StatusCancelled:
			counts.Cancelled++
		default:
			counts.RunningOrPending++
		}

		totalPassed += rec.Passed
		totalFailed += rec.Failed

		if rec.Status == scanmodel.StatusCompleted && rec.Passed+rec.Failed > 0 {
			completedPassRates = append(completedPassRates, rec.PassRate())
		}

		day := time.Unix(rec.CreatedAtUnix, 0).UTC().Format("2006-01-02")
		if b, ok := buckets[day]; ok {
			b.count++
			b.passed += rec.Passed
			b.failed += rec.Failed
			if rec.Passed+rec.Failed > 0 {
				b.passRateSum += rec.PassRate()
				b.passRateN++
			}
		}

		for category, tally := range rec.ProbeStats {
			failureCounts[category] += tally.Failed
		}

		key := targetKey{rec.Config.TargetType, rec.Config.TargetName}
		agg, ok := targetAgg[key]
		if !ok {
			agg = &TargetBreakdown{TargetType: key.typ, TargetName: key.name}
			targetAgg[key] = agg
			targetOrder = append(targetOrder, key)
		}
		agg.ScanCount++
		if rec.Passed+rec.Failed > 0 {
			agg.AvgPassRate += rec.PassRate()
		}
		if rec.CreatedAtUnix > agg.LastScanned {
			agg.LastScanned = rec.CreatedAtUnix
		}
	}

	stats := Statistics{StatusCounts: counts}

	if totalPassed+totalFailed > 0 {
		stats.OverallPassRate = float64(totalPassed) / float64(totalPassed+totalFailed) * 100
	}

	if len(completedPassRates) > 0 {
		sum, min, max := 0.0, completedPassRates[0], completedPassRates[0]
		for _, pr := range completedPassRates {
			sum += pr
			if pr < min {
				min = pr
			}
			if pr > max {
				max = pr
			}
		}
		stats.AvgPassRate = sum / float64(len(completedPassRates))
		stats.MinPassRate = min
		stats.MaxPassRate = max
	}

	days2 := make([]string, 0, len(buckets))
	for day := range buckets {
		days2 = append(days2, day)
	}
	sort.Strings(days2)
	for _, day := range days2 {
		b := buckets[day]
		trend := DailyTrend{Date: day, ScanCount: b.count, TotalPassed: b.passed, TotalFailed: b.failed}
		if b.passRateN > 0 {
			trend.AvgPassRate = b.passRateSum / float64(b.passRateN)
		}
		stats.DailyTrends = append(stats.DailyTrends, trend)
	}

	var failing []FailingProbe
	for category, count := range failureCounts {
		if count > 0 {
			failing = append(failing, FailingProbe{ProbeCategory: category, FailureCount: count})
		}
	}
	sort.Slice(failing, func(i, j int) bool {
		if failing[i].FailureCount != failing[j].FailureCount {
			return failing[i].FailureCount > failing[j].FailureCount
		}
		return failing[i].ProbeCategory < failing[j].ProbeCategory
	})
	if len(failing) > 10 {
		failing = failing[:10]
	}
	stats.TopFailingProbes = failing

	for _, key := range targetOrder {
		agg := targetAgg[key]
		if agg.ScanCount > 0 {
			agg.AvgPassRate /= float64(agg.ScanCount)
		}
		stats.TargetBreakdown = append(stats.TargetBreakdown, *agg)
	}

	return stats
}
