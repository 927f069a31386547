package controller

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

func TestComputeStatistics_OverallPassRateAndStatusCounts(t *testing.T) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -7).Truncate(24 * time.Hour)

	scans := []scanmodel.ScanRecord{
		{ScanID: "a", Status: scanmodel.StatusCompleted, Passed: 10, Failed: 0, CreatedAtUnix: now.Unix(), Config: scanmodel.ScanConfig{TargetType: "ollama", TargetName: "llama3"}},
		{ScanID: "b", Status: scanmodel.StatusCompleted, Passed: 1, Failed: 1, CreatedAtUnix: now.Unix(), Config: scanmodel.ScanConfig{TargetType: "ollama", TargetName: "llama3"}},
		{ScanID: "c", Status: scanmodel.StatusFailed, CreatedAtUnix: now.Unix(), Config: scanmodel.ScanConfig{TargetType: "openai", TargetName: "gpt"}},
	}

	stats := computeStatistics(scans, cutoff, 7, now)

	assert.Equal(t, 2, stats.StatusCounts.Completed)
	assert.Equal(t, 1, stats.StatusCounts.Failed)
	assert.InDelta(t, 91.7, stats.OverallPassRate, 0.1)
}

func TestComputeStatistics_DailyTrendsHasOneBucketForDaysEqualsOne(t *testing.T) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -1).Truncate(24 * time.Hour)

	scans := []scanmodel.ScanRecord{
		{ScanID: "a", Status: scanmodel.StatusCompleted, Passed: 5, CreatedAtUnix: now.Unix(), Config: scanmodel.ScanConfig{TargetType: "ollama", TargetName: "x"}},
	}

	stats := computeStatistics(scans, cutoff, 1, now)
	assert.Len(t, stats.DailyTrends, 1)
}

func TestComputeStatistics_TopFailingProbesSortedDescending(t *testing.T) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -7)

	scans := []scanmodel.ScanRecord{
		{
			ScanID: "a", Status: scanmodel.StatusCompleted, CreatedAtUnix: now.Unix(),
			Config:     scanmodel.ScanConfig{TargetType: "ollama", TargetName: "x"},
			ProbeStats: scanmodel.ProbeStats{"dan": {Failed: 5}, "toxicity": {Failed: 2}},
		},
	}

	stats := computeStatistics(scans, cutoff, 7, now)
	assert.Equal(t, "dan", stats.TopFailingProbes[0].ProbeCategory)
	assert.Equal(t, 5, stats.TopFailingProbes[0].FailureCount)
}

func TestComputeStatistics_TargetBreakdownAveragesPerTarget(t *testing.T) {
	now := time.Now().UTC()
	cutoff := now.AddDate(0, 0, -7)

	scans := []scanmodel.ScanRecord{
		{ScanID: "a", Status: scanmodel.StatusCompleted, Passed: 10, Failed: 0, CreatedAtUnix: now.Unix(), Config: scanmodel.ScanConfig{TargetType: "ollama", TargetName: "llama3"}},
		{ScanID: "b", Status: scanmodel.StatusCompleted, Passed: 0, Failed: 10, CreatedAtUnix: now.Unix(), Config: scanmodel.ScanConfig{TargetType: "ollama", TargetName: "llama3"}},
	}

	stats := computeStatistics(scans, cutoff, 7, now)
	require := stats.TargetBreakdown[0]
	assert.Equal(t, 2, require.ScanCount)
	assert.InDelta(t, 50.0, require.AvgPassRate, 0.1)
}

func TestService_CachedStatisticsServeSubsequentDefaultWindowReads(t *testing.T) {
	s := &Service{}
	stats := Statistics{OverallPassRate: 42}
	s.setCachedStatistics(stats)

	cached, err := s.Statistics(context.Background(), statsCacheWindow, time.Now())
	assert.NoError(t, err)
	assert.Equal(t, 42.0, cached.OverallPassRate)
}
