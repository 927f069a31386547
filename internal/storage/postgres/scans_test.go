package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/garak-ctl/garak-ctl/internal/apperr"
	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

// setupTestClient starts a throwaway postgres container, applies
// migrations, and returns a connected Client cleaned up at test end.
func setupTestClient(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	cfg := Config{
		Host:            host,
		Port:            port.Int(),
		User:            "test",
		Password:        "test",
		Database:        "test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: time.Hour,
		ConnMaxIdleTime: 15 * time.Minute,
	}

	client, err := NewClient(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client
}

func sampleRecord(id string) scanmodel.ScanRecord {
	now := time.Now().Unix()
	return scanmodel.ScanRecord{
		ScanID:      id,
		Status:      scanmodel.StatusPending,
		CreatedAtUnix: now,
		Config: scanmodel.ScanConfig{
			TargetType:  "ollama",
			TargetName:  "llama3",
			Generations: 5,
		},
	}
}

func TestScanStore_InsertGetUpdateDelete(t *testing.T) {
	client := setupTestClient(t)
	store := NewScanStore(client)
	ctx := context.Background()

	rec := sampleRecord("scan-1")
	require.NoError(t, store.Insert(ctx, rec))

	got, err := store.Get(ctx, "scan-1")
	require.NoError(t, err)
	require.Equal(t, scanmodel.StatusPending, got.Status)
	require.Equal(t, "ollama", got.Config.TargetType)
	require.Equal(t, 5, got.Config.Generations)

	started := time.Now().Unix()
	got.Status = scanmodel.StatusRunning
	got.StartedAtUnix = &started
	got.Passed = 3
	got.Failed = 1
	got.ProbeStats = scanmodel.ProbeStats{"dan": {Passed: 3, Failed: 1}}
	require.NoError(t, store.UpdateStatus(ctx, got))

	updated, err := store.Get(ctx, "scan-1")
	require.NoError(t, err)
	require.Equal(t, scanmodel.StatusRunning, updated.Status)
	require.Equal(t, 3, updated.Passed)
	require.Equal(t, 1, updated.Failed)
	require.Equal(t, 3, updated.ProbeStats["dan"].Passed)

	require.NoError(t, store.Delete(ctx, "scan-1"))
	_, err = store.Get(ctx, "scan-1")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestScanStore_UpdateStatus_MissingScanReturnsNotFound(t *testing.T) {
	client := setupTestClient(t)
	store := NewScanStore(client)
	ctx := context.Background()

	err := store.UpdateStatus(ctx, sampleRecord("does-not-exist"))
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestScanStore_ListFiltersAndOrders(t *testing.T) {
	client := setupTestClient(t)
	store := NewScanStore(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := sampleRecord(fmt.Sprintf("scan-%d", i))
		rec.CreatedAtUnix = time.Now().Add(time.Duration(i) * time.Second).Unix()
		if i == 1 {
			rec.Status = scanmodel.StatusCompleted
		}
		require.NoError(t, store.Insert(ctx, rec))
	}

	all, err := store.List(ctx, ListOpts{Limit: 10})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "scan-2", all[0].ScanID, "newest first")

	completed, err := store.List(ctx, ListOpts{Status: string(scanmodel.StatusCompleted)})
	require.NoError(t, err)
	require.Len(t, completed, 1)
	require.Equal(t, "scan-1", completed[0].ScanID)
}

func TestMetaStore_SetGetUpsert(t *testing.T) {
	client := setupTestClient(t)
	store := NewMetaStore(client)
	ctx := context.Background()

	_, err := store.Get(ctx, "last_stats_refresh")
	require.ErrorIs(t, err, apperr.ErrNotFound)

	require.NoError(t, store.Set(ctx, "last_stats_refresh", "100"))
	v, err := store.Get(ctx, "last_stats_refresh")
	require.NoError(t, err)
	require.Equal(t, "100", v)

	require.NoError(t, store.Set(ctx, "last_stats_refresh", "200"))
	v, err = store.Get(ctx, "last_stats_refresh")
	require.NoError(t, err)
	require.Equal(t, "200", v)
}
