// Command runnerd is the Runner process from spec.md §4.1: it spawns
// ENGINE child processes and exposes their progress over HTTP/SSE. It
// holds no durable state and can be restarted freely — the Controller
// is the only long-lived source of truth.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/garak-ctl/garak-ctl/internal/blobstore"
	"github.com/garak-ctl/garak-ctl/internal/blobstore/localfs"
	"github.com/garak-ctl/garak-ctl/internal/blobstore/objectstore"
	"github.com/garak-ctl/garak-ctl/internal/runner"
	"github.com/garak-ctl/garak-ctl/internal/runner/api"
	"github.com/garak-ctl/garak-ctl/pkg/version"
)

func main() {
	slog.SetDefault(slog.New(newLogHandler()))

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded, continuing with process environment", "error", err)
	}

	cfg := runner.LoadConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid runner configuration", "error", err)
		os.Exit(1)
	}

	blobs, err := newBlobStore(context.Background())
	if err != nil {
		slog.Error("failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	manager := runner.NewManager(cfg, blobs)
	if !manager.IsEngineAvailable() {
		slog.Warn("ENGINE executable not found on PATH at startup", "engine_path", cfg.EnginePath)
	}

	server := api.NewServer(manager, cfg.SpoolDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("runnerd listening", "addr", cfg.ListenAddr, "version", version.Full())
		if err := server.Start(cfg.ListenAddr); err != nil {
			slog.Error("runnerd http server exited", "error", err)
		}
	}()

	<-ctx.Done()
	slog.Info("runnerd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("runnerd shutdown error", "error", err)
	}
}

// newBlobStore selects the blob-store backend from BLOB_BACKEND,
// following the Controller's own selection env var so both processes
// agree on layout when pointed at the same object store.
func newBlobStore(ctx context.Context) (blobstore.Store, error) {
	backend := os.Getenv("BLOB_BACKEND")
	if backend == "" {
		backend = "localfs"
	}

	switch backend {
	case "objectstore":
		return objectstore.New(ctx, objectstore.Config{
			Endpoint:  os.Getenv("BLOB_S3_ENDPOINT"),
			AccessKey: os.Getenv("BLOB_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("BLOB_S3_SECRET_KEY"),
			Bucket:    envOrDefault("BLOB_S3_BUCKET", "garak-reports"),
			UseSSL:    os.Getenv("BLOB_S3_USE_SSL") == "true",
		})
	default:
		return localfs.New(envOrDefault("BLOB_LOCALFS_DIR", "/tmp/garak-blobs"))
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// newLogHandler returns a JSON handler in production and a human-readable
// text handler everywhere else, selected by APP_ENV.
func newLogHandler() slog.Handler {
	if os.Getenv("APP_ENV") == "production" {
		return slog.NewJSONHandler(os.Stdout, nil)
	}
	return slog.NewTextHandler(os.Stdout, nil)
}
