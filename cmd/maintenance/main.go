// Command maintenance runs the offline catalogue-hygiene passes (§4.9,
// §5 "maintenance"): pruning low-quality faces, merging duplicate
// persons, and rebuilding representative thumbnails after an
// orientation fix. Each pass can be skipped independently.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/facecat/facecat/internal/cluster"
	"github.com/facecat/facecat/internal/config"
	"github.com/facecat/facecat/internal/maintenance"
	"github.com/facecat/facecat/internal/observability"
	"github.com/facecat/facecat/internal/similarity"
	"github.com/facecat/facecat/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	skipPrune := flag.Bool("skip-prune", false, "skip the prune pass")
	skipMerge := flag.Bool("skip-merge", false, "skip the duplicate-merge pass")
	fixOrientation := flag.Bool("fix-orientation", false, "rebuild every person's representative thumbnail")
	tolerance := flag.Float64("tolerance", 0, "override the duplicate-merge distance tolerance (0 = tau_512 default)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting facecat maintenance")

	store, err := storage.NewCatalogueStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()

	var blob *storage.MinIOStore
	var engineBlob cluster.BlobSink
	if cfg.MinIO.Endpoint != "" {
		blob, err = storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		engineBlob = blob
	}

	tol := similarity.Tolerances{Tau128: cfg.Vision.Tau128, Tau512: cfg.Vision.Tau512, FastPathTau512: cfg.Vision.FastPathTau512}
	engine := cluster.NewEngine(store, engineBlob, tol, cfg.Ingest.ThumbnailDir)
	ops := maintenance.New(store, engine, cfg.Vision.MinFaceScore, cfg.Vision.EdgeMarginPx, cfg.Ingest.ThumbnailDir)

	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		mux.Handle("/metrics", promhttp.Handler())
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("maintenance ops server listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			slog.Error("ops server error", "error", err)
		}
	}()

	if !*skipPrune {
		result, err := ops.Prune(ctx)
		if err != nil {
			slog.Error("prune failed", "error", err)
		} else {
			slog.Info("prune complete", "faces_deleted", result.FacesDeleted, "persons_deleted", result.PersonsDeleted)
		}
	} else {
		slog.Info("prune skipped")
	}

	if !*skipMerge {
		mergeTolerance := *tolerance
		if mergeTolerance == 0 {
			mergeTolerance = cfg.Vision.Tau512
		}
		results, err := ops.MergeDuplicates(ctx, mergeTolerance)
		if err != nil {
			slog.Error("merge duplicates failed", "error", err)
		} else {
			slog.Info("merge duplicates complete", "merges", len(results))
		}
	} else {
		slog.Info("merge skipped")
	}

	if *fixOrientation {
		result, err := ops.FixOrientation(ctx)
		if err != nil {
			slog.Error("fix orientation failed", "error", err)
		} else {
			slog.Info("fix orientation complete", "fixed", result.PersonsFixed, "failed", result.PersonsFailed)
		}
	}

	slog.Info("maintenance complete")
}
