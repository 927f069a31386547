package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/garak-ctl/garak-ctl/internal/blobstore/localfs"
	"github.com/garak-ctl/garak-ctl/internal/controller"
	"github.com/garak-ctl/garak-ctl/internal/fanout"
	"github.com/garak-ctl/garak-ctl/internal/reportcache"
	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
	"github.com/garak-ctl/garak-ctl/internal/storage/postgres"
)

func setupTestDeps(t *testing.T) (*controller.Registry, *reportcache.Reader, *postgres.MetaStore, *controller.Service) {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	client, err := postgres.NewClient(ctx, postgres.Config{
		Host: host, Port: port.Int(), User: "test", Password: "test", Database: "test",
		SSLMode: "disable", MaxOpenConns: 5, MaxIdleConns: 2,
		ConnMaxLifetime: time.Hour, ConnMaxIdleTime: 15 * time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	registry := controller.NewRegistry(postgres.NewScanStore(client), fanout.NewHub())

	blobs, err := localfs.New(t.TempDir())
	require.NoError(t, err)
	reader := reportcache.NewReader(blobs, registry, "", 0)
	service := controller.NewService(registry, nil, blobs, nil, nil, 5)

	return registry, reader, postgres.NewMetaStore(client), service
}

func sampleCfg() scanmodel.ScanConfig {
	return scanmodel.ScanConfig{TargetType: "ollama", TargetName: "llama3.2:3b", Generations: 1}
}

func TestReaper_SweepOrphansFailsStaleActiveScans(t *testing.T) {
	registry, reader, meta, service := setupTestDeps(t)
	ctx := context.Background()

	rec := scanmodel.ScanRecord{
		ScanID:        "orphaned",
		Status:        scanmodel.StatusRunning,
		CreatedAtUnix: time.Now().Add(-2 * time.Hour).Unix(),
		Config:        sampleCfg(),
	}
	require.NoError(t, registry.Create(ctx, rec))

	r, err := New(registry, reader, meta, service, "@every 1h", time.Hour)
	require.NoError(t, err)

	r.sweepOrphans()

	snap, err := registry.Snapshot(ctx, "orphaned")
	require.NoError(t, err)
	require.Equal(t, scanmodel.StatusFailed, snap.Status)
	require.Equal(t, "reaper: orphaned scan record", snap.ErrorMessage)

	recorded, err := meta.Get(ctx, metaKeyOrphanSweep)
	require.NoError(t, err)
	require.NotEmpty(t, recorded)
}

func TestReaper_SweepOrphansLeavesFreshScansAlone(t *testing.T) {
	registry, reader, meta, service := setupTestDeps(t)
	ctx := context.Background()

	rec := scanmodel.ScanRecord{
		ScanID:        "fresh",
		Status:        scanmodel.StatusRunning,
		CreatedAtUnix: time.Now().Unix(),
		Config:        sampleCfg(),
	}
	require.NoError(t, registry.Create(ctx, rec))

	r, err := New(registry, reader, meta, service, "@every 1h", time.Hour)
	require.NoError(t, err)

	r.sweepOrphans()

	snap, err := registry.Snapshot(ctx, "fresh")
	require.NoError(t, err)
	require.Equal(t, scanmodel.StatusRunning, snap.Status)
}

func TestReaper_GCReportCacheRecordsTimestamp(t *testing.T) {
	registry, reader, meta, service := setupTestDeps(t)
	ctx := context.Background()

	r, err := New(registry, reader, meta, service, "@every 1h", time.Hour)
	require.NoError(t, err)

	r.gcReportCache()

	recorded, err := meta.Get(ctx, metaKeyCacheGC)
	require.NoError(t, err)
	require.NotEmpty(t, recorded)
}

func TestReaper_RefreshStatisticsRecordsTimestampAndWarmsCache(t *testing.T) {
	registry, reader, meta, service := setupTestDeps(t)
	ctx := context.Background()

	rec := scanmodel.ScanRecord{
		ScanID:        "s1",
		Status:        scanmodel.StatusCompleted,
		CreatedAtUnix: time.Now().Unix(),
		Config:        sampleCfg(),
		Passed:        2,
		Failed:        1,
	}
	require.NoError(t, registry.Create(ctx, rec))

	r, err := New(registry, reader, meta, service, "@every 1h", time.Hour)
	require.NoError(t, err)

	r.refreshStatistics()

	recorded, err := meta.Get(ctx, metaKeyStatsRefresh)
	require.NoError(t, err)
	require.NotEmpty(t, recorded)

	stats, err := service.Statistics(ctx, 7, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, stats.StatusCounts.Completed)
}
