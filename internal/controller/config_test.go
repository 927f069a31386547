package controller

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfig_ValidateRejectsBadConcurrency(t *testing.T) {
	cfg := Config{RunnerBaseURL: "http://localhost:8081", MaxConcurrentScans: 0, BlobBackend: "localfs", LocalFSDir: "/tmp/x"}
	require.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsEmptyRunnerBaseURL(t *testing.T) {
	cfg := Config{RunnerBaseURL: "", MaxConcurrentScans: 5, BlobBackend: "localfs", LocalFSDir: "/tmp/x"}
	require.Error(t, cfg.Validate())
}

func TestConfig_ValidateRejectsUnknownBlobBackend(t *testing.T) {
	cfg := Config{RunnerBaseURL: "http://localhost:8081", MaxConcurrentScans: 5, BlobBackend: "nope"}
	require.Error(t, cfg.Validate())
}

func TestConfig_ValidateRequiresObjectStoreFieldsWhenSelected(t *testing.T) {
	cfg := Config{RunnerBaseURL: "http://localhost:8081", MaxConcurrentScans: 5, BlobBackend: "objectstore"}
	require.Error(t, cfg.Validate())

	cfg.ObjectStoreEndpoint = "minio:9000"
	cfg.ObjectStoreBucket = "reports"
	require.NoError(t, cfg.Validate())
}

func TestConfig_ValidateAcceptsLocalfsDefaults(t *testing.T) {
	cfg := Config{RunnerBaseURL: "http://localhost:8081", MaxConcurrentScans: 5, BlobBackend: "localfs", LocalFSDir: "/tmp/garak-blobs"}
	require.NoError(t, cfg.Validate())
}
