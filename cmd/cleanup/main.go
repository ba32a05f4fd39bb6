// Command cleanup wipes the catalogue and its thumbnail/upload
// directories (§4.9 "Cleanup", §5 "cleanup"). Destructive and
// irreversible, so it refuses to run without --force.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/facecat/facecat/internal/cluster"
	"github.com/facecat/facecat/internal/config"
	"github.com/facecat/facecat/internal/maintenance"
	"github.com/facecat/facecat/internal/observability"
	"github.com/facecat/facecat/internal/similarity"
	"github.com/facecat/facecat/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	force := flag.Bool("force", false, "confirm the destructive wipe")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if !*force {
		fmt.Fprintln(os.Stderr, "cleanup wipes the entire catalogue and every thumbnail; pass --force to confirm")
		os.Exit(1)
	}

	store, err := storage.NewCatalogueStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	tol := similarity.Tolerances{Tau128: cfg.Vision.Tau128, Tau512: cfg.Vision.Tau512, FastPathTau512: cfg.Vision.FastPathTau512}
	engine := cluster.NewEngine(store, nil, tol, cfg.Ingest.ThumbnailDir)
	ops := maintenance.New(store, engine, cfg.Vision.MinFaceScore, cfg.Vision.EdgeMarginPx, cfg.Ingest.ThumbnailDir)

	slog.Warn("wiping catalogue", "thumbnail_dir", cfg.Ingest.ThumbnailDir, "upload_dir", cfg.Ingest.UploadDir,
		"progress_log", cfg.Ingest.ProgressLogPath)
	if err := ops.Cleanup(context.Background(), cfg.Ingest.ThumbnailDir, cfg.Ingest.UploadDir, cfg.Ingest.ProgressLogPath); err != nil {
		slog.Error("cleanup failed", "error", err)
		os.Exit(1)
	}
	slog.Info("cleanup complete")
}
