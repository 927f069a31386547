package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garak-ctl/garak-ctl/internal/blobstore/localfs"
	"github.com/garak-ctl/garak-ctl/internal/scanmodel"
)

// writeFakeEngine writes an executable shell script standing in for
// the ENGINE binary and returns its path. The script ignores its argv
// (so argv.Build's required flags never need satisfying by a real
// CLI) and just prints body to stdout.
func writeFakeEngine(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-engine.sh")
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestManager(t *testing.T, enginePath string) *Manager {
	t.Helper()
	store, err := localfs.New(t.TempDir())
	require.NoError(t, err)

	cfg := Config{
		EnginePath:      enginePath,
		SpoolDir:        t.TempDir(),
		GracefulTimeout: 200 * time.Millisecond,
	}
	return NewManager(cfg, store)
}

func sampleConfig() scanmodel.ScanConfig {
	return scanmodel.ScanConfig{
		TargetType:  "ollama",
		TargetName:  "llama3.2:3b",
		Generations: 1,
	}
}

func awaitTerminal(t *testing.T, m *Manager, scanID string, timeout time.Duration) scanmodel.ScanRecord {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		snap, ok := m.Status(scanID)
		require.True(t, ok)
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("scan %s did not reach a terminal status within %s", scanID, timeout)
	return scanmodel.ScanRecord{}
}

func TestManager_StartSucceedsAndTalliesResult(t *testing.T) {
	engine := writeFakeEngine(t, `
echo 'probes.dan.Dan_11_0:  50%'
echo 'probes.dan.Dan_11_0: 100%'
echo 'dan.Dan_11_0  dan.DAN: PASS  ok on   2/  2'
echo 'report html summary being written to /tmp/garak.scan-1.report.html'
exit 0
`)
	m := newTestManager(t, engine)

	snap, err := m.Start(context.Background(), "scan-1", sampleConfig())
	require.NoError(t, err)
	assert.Equal(t, scanmodel.StatusRunning, snap.Status)

	final := awaitTerminal(t, m, "scan-1", 2*time.Second)
	assert.Equal(t, scanmodel.StatusCompleted, final.Status)
	assert.Equal(t, 2, final.Passed)
	assert.Equal(t, 0, final.Failed)
	assert.Equal(t, 100, final.Progress)
	assert.NotNil(t, final.CompletedAtUnix)
}

func TestManager_NonZeroExitMarksFailed(t *testing.T) {
	engine := writeFakeEngine(t, `
echo 'something went wrong'
exit 1
`)
	m := newTestManager(t, engine)

	_, err := m.Start(context.Background(), "scan-2", sampleConfig())
	require.NoError(t, err)

	final := awaitTerminal(t, m, "scan-2", 2*time.Second)
	assert.Equal(t, scanmodel.StatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "exited with code 1")
	assert.Contains(t, final.ErrorMessage, "something went wrong")
}

func TestManager_ParserErrorLinePromotesFailureEvenOnZeroExit(t *testing.T) {
	engine := writeFakeEngine(t, `
echo 'ConnectionError: connection refused'
exit 0
`)
	m := newTestManager(t, engine)

	_, err := m.Start(context.Background(), "scan-3", sampleConfig())
	require.NoError(t, err)

	final := awaitTerminal(t, m, "scan-3", 2*time.Second)
	assert.Equal(t, scanmodel.StatusFailed, final.Status)
	assert.Contains(t, final.ErrorMessage, "ConnectionError")
}

func TestManager_CancelSignalsLiveProcessAndIsIdempotent(t *testing.T) {
	engine := writeFakeEngine(t, `
trap 'exit 0' TERM
sleep 5 &
wait $!
`)
	m := newTestManager(t, engine)

	_, err := m.Start(context.Background(), "scan-4", sampleConfig())
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)
	assert.True(t, m.Cancel("scan-4"))
	assert.False(t, m.Cancel("scan-4"))

	final := awaitTerminal(t, m, "scan-4", 2*time.Second)
	assert.Equal(t, scanmodel.StatusCancelled, final.Status)
}

func TestManager_CancelOnUnknownScanReturnsFalse(t *testing.T) {
	m := newTestManager(t, "/bin/sh")
	assert.False(t, m.Cancel("does-not-exist"))
}

func TestManager_StatusUnknownScanReturnsFalse(t *testing.T) {
	m := newTestManager(t, "/bin/sh")
	_, ok := m.Status("does-not-exist")
	assert.False(t, ok)
}

func TestManager_OpenProgressStreamDeniesSecondConsumer(t *testing.T) {
	engine := writeFakeEngine(t, `sleep 1`)
	m := newTestManager(t, engine)

	_, err := m.Start(context.Background(), "scan-5", sampleConfig())
	require.NoError(t, err)

	_, release, err := m.OpenProgressStream("scan-5")
	require.NoError(t, err)
	defer release()

	_, _, err = m.OpenProgressStream("scan-5")
	assert.Error(t, err)
}

func TestManager_StartRejectsDuplicateScanID(t *testing.T) {
	engine := writeFakeEngine(t, `sleep 1`)
	m := newTestManager(t, engine)

	_, err := m.Start(context.Background(), "scan-6", sampleConfig())
	require.NoError(t, err)

	_, err = m.Start(context.Background(), "scan-6", sampleConfig())
	assert.Error(t, err)
}
