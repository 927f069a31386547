// Command controllerd is the Controller process from spec.md §4.4: the
// durable scan registry, statistics, workflow graphs, and the HTTP/WS
// API the CLI and dashboard talk to. It owns the postgres store and the
// only long-lived knowledge of scan history; the Runner is disposable.
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
	"github.com/garak-ctl/garak-ctl/internal/controller"
	controllerapi "github.com/garak-ctl/garak-ctl/internal/controller/api"
	"github.com/garak-ctl/garak-ctl/internal/fanout"
	"github.com/garak-ctl/garak-ctl/internal/reaper"
	"github.com/garak-ctl/garak-ctl/internal/reportcache"
	"github.com/garak-ctl/garak-ctl/internal/storage/postgres"
	"github.com/garak-ctl/garak-ctl/internal/workflow"
	"github.com/garak-ctl/garak-ctl/pkg/version"
)

func main() {
	slog.SetDefault(slog.New(newLogHandler()))

	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded, continuing with process environment", "error", err)
	}

	ctx := context.Background()

	cfg, err := controller.LoadConfigFromEnv()
	if err != nil {
		slog.Error("invalid controller configuration", "error", err)
		os.Exit(1)
	}

	dbCfg, err := postgres.LoadConfigFromEnv()
	if err != nil {
		slog.Error("invalid database configuration", "error", err)
		os.Exit(1)
	}

	dbClient, err := postgres.NewClient(ctx, dbCfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()
	slog.Info("connected to postgres", "host", dbCfg.Host, "database", dbCfg.Database)

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to initialize blob store", "error", err)
		os.Exit(1)
	}

	store := postgres.NewScanStore(dbClient)
	meta := postgres.NewMetaStore(dbClient)
	hub := fanout.NewHub()
	registry := controller.NewRegistry(store, hub)
	runnerClient := controller.NewRunnerClient(cfg.RunnerBaseURL)

	analyzer := workflow.NewAnalyzer()
	reader := reportcache.NewReader(blobs, registry, cfg.RunnerBaseURL, cfg.ReportCacheTTL)
	stats := reportcache.NewStatsComputer(reader, registry)
	graphs := workflow.NewStore(analyzer, reader)

	service := controller.NewService(registry, runnerClient, blobs, analyzer, stats, cfg.MaxConcurrentScans)
	server := controllerapi.NewServer(service, runnerClient, reader, stats, hub, graphs, blobs)

	rpr, err := reaper.New(registry, reader, meta, service, cfg.ReaperCron, cfg.OrphanThreshold)
	if err != nil {
		slog.Error("failed to build reaper", "error", err)
		os.Exit(1)
	}
	rpr.Start()

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		slog.Info("controllerd listening", "addr", cfg.ListenAddr, "version", version.Full(), "runner_base_url", cfg.RunnerBaseURL)
		if err := server.Start(cfg.ListenAddr); err != nil {
			slog.Error("controllerd http server exited", "error", err)
		}
	}()

	<-sigCtx.Done()
	slog.Info("controllerd shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rpr.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("controllerd shutdown error", "error", err)
	}
}

// newBlobStore selects the blob-store backend per cfg.BlobBackend,
// already validated by Config.Validate.
func newBlobStore(ctx context.Context, cfg controller.Config) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case "objectstore":
		return objectstore.New(ctx, objectstore.Config{
			Endpoint:  cfg.ObjectStoreEndpoint,
			AccessKey: cfg.ObjectStoreAccessKey,
			SecretKey: cfg.ObjectStoreSecretKey,
			Bucket:    cfg.ObjectStoreBucket,
			UseSSL:    cfg.ObjectStoreUseSSL,
		})
	default:
		return localfs.New(cfg.LocalFSDir)
	}
}

// newLogHandler returns a JSON handler in production and a human-readable
// text handler everywhere else, selected by APP_ENV.
func newLogHandler() slog.Handler {
	if os.Getenv("APP_ENV") == "production" {
		return slog.NewJSONHandler(os.Stdout, nil)
	}
	return slog.NewTextHandler(os.Stdout, nil)
}
