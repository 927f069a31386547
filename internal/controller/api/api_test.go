package api

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/goccy/go-json"
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
	"github.com/garak-ctl/garak-ctl/internal/workflow"
)

// fakeRunnerSSE stands in for the Runner in-process: it accepts
// POST /scans, then serves a short canned SSE stream for
// GET /scans/{id}/progress ending in a "complete" frame.
func fakeRunnerSSE(t *testing.T) string {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/scans", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("/scans/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		frames := []string{
			`{"event_type":"result","total_passed":3,"total_failed":1}`,
			`{"event_type":"complete"}`,
		}
		for _, f := range frames {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", "status", f)
		}
		w.(http.Flusher).Flush()
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv := &http.Server{Handler: mux}
	go srv.Serve(ln)
	t.Cleanup(func() { _ = srv.Close() })

	return "http://" + ln.Addr().String()
}

func setupTestServer(t *testing.T) (*Server, string) {
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

	store := postgres.NewScanStore(client)
	hub := fanout.NewHub()
	registry := controller.NewRegistry(store, hub)

	runnerBase := fakeRunnerSSE(t)
	runnerClient := controller.NewRunnerClient(runnerBase)

	blobs, err := localfs.New(t.TempDir())
	require.NoError(t, err)

	analyzer := workflow.NewAnalyzer()
	reader := reportcache.NewReader(blobs, registry, runnerBase, 0)
	stats := reportcache.NewStatsComputer(reader, registry)
	graphs := workflow.NewStore(analyzer, reader)

	service := controller.NewService(registry, runnerClient, blobs, analyzer, stats, 5)

	srv := NewServer(service, runnerClient, reader, stats, hub, graphs, blobs)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.StartWithListener(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	return srv, "http://" + ln.Addr().String()
}

func sampleConfigBody() scanmodel.ScanConfig {
	return scanmodel.ScanConfig{TargetType: "ollama", TargetName: "llama3.2:3b", Generations: 1}
}

func TestAPI_SubmitThenStatusReachesCompleted(t *testing.T) {
	_, base := setupTestServer(t)

	body, err := json.Marshal(SubmitRequest{Config: sampleConfigBody()})
	require.NoError(t, err)

	resp, err := http.Post(base+"/api/v1/scan/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var rec scanmodel.ScanRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rec))
	require.NotEmpty(t, rec.ScanID)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		r, err := http.Get(base + "/api/v1/scan/" + rec.ScanID + "/status")
		require.NoError(t, err)
		var snap scanmodel.ScanRecord
		require.NoError(t, json.NewDecoder(r.Body).Decode(&snap))
		r.Body.Close()
		if snap.Status.Terminal() {
			require.Equal(t, scanmodel.StatusCompleted, snap.Status)
			require.Equal(t, 3, snap.Passed)
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("scan did not reach a terminal status in time")
}

func TestAPI_HealthReportsRunnerReachable(t *testing.T) {
	_, base := setupTestServer(t)

	resp, err := http.Get(base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, true, body["runner_reachable"])
}

func TestAPI_StatusOnUnknownScanIsNotFound(t *testing.T) {
	_, base := setupTestServer(t)

	resp, err := http.Get(base + "/api/v1/scan/does-not-exist/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_HistoryReturnsSubmittedScan(t *testing.T) {
	_, base := setupTestServer(t)

	body, err := json.Marshal(SubmitRequest{Config: sampleConfigBody()})
	require.NoError(t, err)
	resp, err := http.Post(base+"/api/v1/scan/start", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp, err = http.Get(base + "/api/v1/scan/history")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var hist HistoryResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&hist))
	require.Len(t, hist.Scans, 1)
}

func TestAPI_StatisticsReturnsZeroedWindowWhenEmpty(t *testing.T) {
	_, base := setupTestServer(t)

	resp, err := http.Get(base + "/api/v1/scan/statistics?days=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats StatisticsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	require.Len(t, stats.DailyTrends, 3)
}
