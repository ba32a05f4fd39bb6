// Command ingest walks an import root, detects and clusters faces in
// every image under it, and writes the results to the catalogue (§5
// "ingest"). It resumes from the progress log on restart and serves
// the ops status/progress endpoints for the duration of the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/facecat/facecat/internal/cluster"
	"github.com/facecat/facecat/internal/config"
	"github.com/facecat/facecat/internal/folders"
	"github.com/facecat/facecat/internal/observability"
	"github.com/facecat/facecat/internal/opsapi"
	"github.com/facecat/facecat/internal/queue"
	"github.com/facecat/facecat/internal/scheduler"
	"github.com/facecat/facecat/internal/similarity"
	"github.com/facecat/facecat/internal/storage"
	"github.com/facecat/facecat/internal/vision"
	"github.com/facecat/facecat/internal/worker"
)

// taskProcessor pairs one worker goroutine's private pipeline and
// clustering view with the shared Runner, satisfying the scheduler's
// Processor interface.
type taskProcessor struct {
	runner   *worker.Runner
	pipeline *vision.Pipeline
	view     *cluster.WorkerView
}

func (p *taskProcessor) Process(ctx context.Context, task worker.Task) worker.Result {
	return p.runner.Process(ctx, p.pipeline, p.view, task)
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	disableUpload := flag.Bool("disable-upload", false, "skip publishing originals/thumbnails to the blob sink")
	uploadOnly := flag.Bool("upload-only", false, "skip detection and only upload images not yet marked uploaded")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting facecat ingest", "import_root", cfg.Ingest.ImportRoot, "upload_only", *uploadOnly)

	store, err := storage.NewCatalogueStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		slog.Error("migrate catalogue", "error", err)
		os.Exit(1)
	}

	var blob *storage.MinIOStore
	var engineBlob cluster.BlobSink
	var runnerBlob worker.BlobSink
	uploadsEnabled := !*disableUpload
	if uploadsEnabled {
		blob, err = storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := blob.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		engineBlob, runnerBlob = blob, blob
	}

	var producer *queue.Producer
	if cfg.NATS.Enabled() {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		if err := producer.EnsureStream(ctx); err != nil {
			slog.Warn("ensure nats stream", "error", err)
		}
	}

	if *uploadOnly {
		runUploadOnly(ctx, store, blob)
		return
	}

	ort.SetSharedLibraryPath(onnxLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("init onnx runtime", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	tol := similarity.Tolerances{Tau128: cfg.Vision.Tau128, Tau512: cfg.Vision.Tau512, FastPathTau512: cfg.Vision.FastPathTau512}
	engine := cluster.NewEngine(store, engineBlob, tol, cfg.Ingest.ThumbnailDir)
	materialiser := folders.New(store)

	progressLog, err := storage.OpenProgressLog(cfg.Ingest.ProgressLogPath)
	if err != nil {
		slog.Error("open progress log", "error", err)
		os.Exit(1)
	}
	defer progressLog.Close()

	seen, err := storage.LoadProgressSet(cfg.Ingest.ProgressLogPath)
	if err != nil {
		slog.Error("load progress set", "error", err)
		os.Exit(1)
	}
	slog.Info("resumed from progress log", "already_done", len(seen))

	sched := scheduler.New(scheduler.Config{
		ImportRoot:     cfg.Ingest.ImportRoot,
		MinWorkers:     cfg.Ingest.MinWorkers,
		MaxWorkers:     cfg.Ingest.MaxWorkers,
		StartWorkers:   cfg.Ingest.StartWorkers,
		SampleInterval: cfg.Ingest.SampleInterval,
	}, progressLog, seen)

	runnerOpts := worker.Options{
		ImportRoot:     cfg.Ingest.ImportRoot,
		ThumbnailDir:   cfg.Ingest.ThumbnailDir,
		UploadDir:      cfg.Ingest.UploadDir,
		UploadsEnabled: uploadsEnabled,
		MinFaceScore:   cfg.Vision.MinFaceScore,
		EdgeMarginPx:   cfg.Vision.EdgeMarginPx,
	}

	snapshot, err := cluster.LoadSnapshot(ctx, store)
	if err != nil {
		slog.Error("load snapshot", "error", err)
		os.Exit(1)
	}
	shared := cluster.NewSharedClusters()

	spawn := func(id int64) (scheduler.Processor, func(), error) {
		pipeline, err := vision.NewPipelineFromConfig(cfg.Vision)
		if err != nil {
			return nil, nil, fmt.Errorf("worker %d: load pipeline: %w", id, err)
		}
		runner := worker.NewRunner(store, runnerBlob, engine, materialiser, runnerOpts)
		view := cluster.NewWorkerView(snapshot, shared)
		proc := &taskProcessor{runner: runner, pipeline: pipeline, view: view}
		return proc, pipeline.Close, nil
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("shutting down ingest...")
		cancel()
	}()

	hub := opsapi.NewHub()
	go hub.Run()
	router := opsapi.NewRouter(opsapi.Config{
		Port:   cfg.Server.Port,
		APIKey: cfg.Server.APIKey,
		Checks: healthChecks(store, blob),
		Hub:    hub,
	})
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		slog.Info("ops server listening", "addr", addr)
		if err := http.ListenAndServe(addr, router); err != nil {
			slog.Error("ops server error", "error", err)
		}
	}()

	count, err := sched.Walk(rootCtx)
	if err != nil {
		slog.Error("walk import root", "error", err)
	}
	slog.Info("walk complete", "queued", count)
	sched.CloseTasks()

	go func() {
		for result := range sched.Results() {
			hub.Broadcast(opsapi.ProgressEvent{
				RelativePath:  result.RelativePath,
				Succeeded:     result.Succeeded,
				Processed:     sched.Succeeded(),
				Failed:        sched.Failed(),
				ActiveWorkers: cfg.Ingest.StartWorkers,
			})
			if result.Succeeded && producer != nil {
				_ = producer.PublishImageIngested(rootCtx, queue.ImageIngested{
					RelativePath: result.RelativePath,
					FaceCount:    len(result.Faces),
					NewPersons:   result.NewPersons,
					MatchedFaces: result.MatchedFaces,
				})
			}
		}
	}()

	sched.RunPool(rootCtx, spawn)

	slog.Info("ingest complete", "succeeded", sched.Succeeded(), "failed", sched.Failed())
}

// runUploadOnly walks already-processed images not yet marked uploaded
// and publishes each to the blob sink without re-running detection
// (§5 "--upload-only").
func runUploadOnly(ctx context.Context, store *storage.CatalogueStore, blob *storage.MinIOStore) {
	if blob == nil {
		slog.Error("upload-only requires uploads to be enabled")
		os.Exit(1)
	}
	images, err := store.ListNotUploaded(ctx)
	if err != nil {
		slog.Error("list not-uploaded images", "error", err)
		os.Exit(1)
	}
	slog.Info("upload-only pass", "pending", len(images))

	uploaded := 0
	for _, img := range images {
		data, err := os.ReadFile(img.Path)
		if err != nil {
			slog.Warn("read image for upload", "path", img.Path, "error", err)
			continue
		}
		origKey := fmt.Sprintf("originals/%s", img.OriginalFilename)
		if err := blob.PutObject(ctx, origKey, data, img.MimeType); err != nil {
			slog.Warn("upload image", "path", img.Path, "error", err)
			continue
		}

		thumb, err := os.ReadFile(img.ThumbnailPath)
		if err != nil {
			slog.Warn("read existing thumbnail for upload", "path", img.ThumbnailPath, "error", err)
			continue
		}
		thumbKey := fmt.Sprintf("images/%s", filepath.Base(img.ThumbnailPath))
		if err := blob.PutObject(ctx, thumbKey, thumb, "image/jpeg"); err != nil {
			slog.Warn("upload existing thumbnail", "path", img.ThumbnailPath, "error", err)
			continue
		}

		if err := store.SetImageUploaded(ctx, img.ID, true); err != nil {
			slog.Warn("mark image uploaded", "image", img.ID, "error", err)
			continue
		}
		uploaded++
	}
	slog.Info("upload-only complete", "uploaded", uploaded)
}

func healthChecks(store *storage.CatalogueStore, blob *storage.MinIOStore) map[string]opsapi.HealthChecker {
	checks := map[string]opsapi.HealthChecker{"database": store}
	if blob != nil {
		checks["blob"] = blob
	}
	return checks
}

func onnxLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
