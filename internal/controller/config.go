package controller

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the Controller's process-wide configuration, read once at
// startup from the environment.
type Config struct {
	// ListenAddr is the address the HTTP/WS server binds.
	ListenAddr string

	// RunnerBaseURL is the Runner's HTTP base, e.g. http://runner:8081.
	RunnerBaseURL string

	// MaxConcurrentScans bounds simultaneously active scans, per
	// spec.md §4.4's capacity check.
	MaxConcurrentScans int

	// ReportCacheTTL bounds how long entries parsed from a scan's local
	// report file stay cached before Reader re-reads the file. Entries
	// read from the blob store or fetched from the Runner are cached
	// without expiry.
	ReportCacheTTL time.Duration

	// BlobBackend selects the blobstore implementation: "localfs" or
	// "objectstore".
	BlobBackend string

	// LocalFSDir is the root directory when BlobBackend is "localfs".
	LocalFSDir string

	// ObjectStore* configure the objectstore backend when BlobBackend
	// is "objectstore".
	ObjectStoreEndpoint  string
	ObjectStoreAccessKey string
	ObjectStoreSecretKey string
	ObjectStoreBucket    string
	ObjectStoreUseSSL    bool

	// ReaperCron is the cron schedule the orphaned-scan sweep and
	// stats-cache refresh run on, expressed as a standard cron spec.
	ReaperCron string

	// OrphanThreshold is how long after its creation a scan may remain
	// in active_scans before the reaper marks it failed.
	OrphanThreshold time.Duration
}

// LoadConfigFromEnv builds a Config from the process environment,
// following the same getEnvOrDefault/getEnvDurationSeconds shape as the
// Runner's and the postgres package's loaders.
func LoadConfigFromEnv() (Config, error) {
	maxConcurrent, err := strconv.Atoi(getEnvOrDefault("MAX_CONCURRENT_SCANS", "5"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid MAX_CONCURRENT_SCANS: %w", err)
	}

	cfg := Config{
		ListenAddr:         getEnvOrDefault("CONTROLLER_LISTEN_ADDR", ":8080"),
		RunnerBaseURL:      getEnvOrDefault("RUNNER_BASE_URL", "http://localhost:8081"),
		MaxConcurrentScans: maxConcurrent,
		ReportCacheTTL:     getEnvDurationSeconds("REPORT_CACHE_TTL_SECONDS", 30),
		BlobBackend:        getEnvOrDefault("BLOB_BACKEND", "localfs"),
		LocalFSDir:         getEnvOrDefault("BLOB_LOCALFS_DIR", "/tmp/garak-blobs"),

		ObjectStoreEndpoint:  os.Getenv("BLOB_S3_ENDPOINT"),
		ObjectStoreAccessKey: os.Getenv("BLOB_S3_ACCESS_KEY"),
		ObjectStoreSecretKey: os.Getenv("BLOB_S3_SECRET_KEY"),
		ObjectStoreBucket:    getEnvOrDefault("BLOB_S3_BUCKET", "garak-reports"),
		ObjectStoreUseSSL:    getEnvOrDefault("BLOB_S3_USE_SSL", "false") == "true",

		ReaperCron:      getEnvOrDefault("REAPER_CRON", "*/5 * * * *"),
		OrphanThreshold: getEnvDurationSeconds("REAPER_ORPHAN_THRESHOLD_SECONDS", 3600),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports a descriptive error if required fields are unusable.
func (c Config) Validate() error {
	if c.RunnerBaseURL == "" {
		return fmt.Errorf("RUNNER_BASE_URL must not be empty")
	}
	if c.MaxConcurrentScans < 1 {
		return fmt.Errorf("MAX_CONCURRENT_SCANS must be at least 1")
	}
	switch c.BlobBackend {
	case "localfs":
		if c.LocalFSDir == "" {
			return fmt.Errorf("BLOB_LOCALFS_DIR must not be empty when BLOB_BACKEND=localfs")
		}
	case "objectstore":
		if c.ObjectStoreEndpoint == "" || c.ObjectStoreBucket == "" {
			return fmt.Errorf("BLOB_S3_ENDPOINT and BLOB_S3_BUCKET are required when BLOB_BACKEND=objectstore")
		}
	default:
		return fmt.Errorf("BLOB_BACKEND must be %q or %q, got %q", "localfs", "objectstore", c.BlobBackend)
	}
	return nil
}

func getEnvOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvDurationSeconds(key string, defSeconds int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(defSeconds) * time.Second
}
