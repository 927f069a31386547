package reportcache

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garak-ctl/garak-ctl/internal/blobstore"
	"github.com/garak-ctl/garak-ctl/internal/blobstore/localfs"
)

type fakeRecords struct {
	localPaths map[string]string
	filenames  map[string]string
	persisted  map[string]string
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		localPaths: map[string]string{},
		filenames:  map[string]string{},
		persisted:  map[string]string{},
	}
}

func (f *fakeRecords) LocalReportPath(_ context.Context, scanID string) (string, bool) {
	p, ok := f.localPaths[scanID]
	return p, ok
}

func (f *fakeRecords) OriginalFilename(_ context.Context, scanID string) (string, bool) {
	p, ok := f.filenames[scanID]
	return p, ok
}

func (f *fakeRecords) PersistJSONLKey(_ context.Context, scanID, key string) error {
	f.persisted[scanID] = key
	return nil
}

const sampleJSONL = `{"entry_type": "config", "plugins.target_type": "ollama"}
{"entry_type": "attempt", "probe_classname": "dan.DanJailbreak", "status": 2, "goal": "jailbreak"}
{"entry_type": "attempt", "probe_classname": "dan.DanJailbreak", "status": 1, "goal": "jailbreak"}
{"entry_type": "attempt", "probe_classname": "encoding.InjectBase64", "status": 2, "goal": "inject"}
`

func TestReader_ObjectStoreHitIsCachedImmutable(t *testing.T) {
	dir := t.TempDir()
	store, err := localfs.New(dir)
	require.NoError(t, err)

	ctx := context.Background()
	key := blobstore.ReportKey("scan-1", "jsonl")
	require.NoError(t, store.Put(ctx, key, []byte(sampleJSONL), "application/jsonl"))

	reader := NewReader(store, newFakeRecords(), "", 0)
	entries, found, err := reader.Entries(ctx, "scan-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, entries, 4)

	// Second call must hit the immutable cache, not re-read the store —
	// verified indirectly by deleting the backing blob and confirming
	// entries are still returned.
	require.NoError(t, store.Delete(ctx, key))
	entries2, found2, err := reader.Entries(ctx, "scan-1")
	require.NoError(t, err)
	require.True(t, found2)
	assert.Len(t, entries2, 4)
}

func TestReader_LocalFilesystemFallback(t *testing.T) {
	dir := t.TempDir()
	store, err := localfs.New(dir)
	require.NoError(t, err)

	spoolDir := t.TempDir()
	localPath := spoolDir + "/garak.scan-2.report.jsonl"
	require.NoError(t, os.WriteFile(localPath, []byte(sampleJSONL), 0o644))

	records := newFakeRecords()
	records.localPaths["scan-2"] = localPath

	reader := NewReader(store, records, "", 0)
	entries, found, err := reader.Entries(context.Background(), "scan-2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, entries, 4)
}

func TestReader_UnknownScanNotFound(t *testing.T) {
	dir := t.TempDir()
	store, err := localfs.New(dir)
	require.NoError(t, err)

	reader := NewReader(store, newFakeRecords(), "", 0)
	_, found, err := reader.Entries(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.False(t, found)
}
