// Package scheduler implements the directory walk and adaptive worker
// pool (C8, §4.8): feeding filesystem paths to worker tasks, scaling
// pool size to host memory/CPU pressure, respawning crashed workers,
// and committing progress only after a task succeeds.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/facecat/facecat/internal/models"
	"github.com/facecat/facecat/internal/observability"
	"github.com/facecat/facecat/internal/storage"
	"github.com/facecat/facecat/internal/worker"
)

const (
	scaleDownMemPct   = 85.0
	scaleUpMemPct     = 60.0
	scaleUpCPUPct     = 90.0
	backlogMultiplier = 2
)

// Processor is what a worker goroutine drives a task through; the
// concrete type is *worker.Runner paired with a per-goroutine
// detection pipeline, but the scheduler only needs this much of it.
type Processor interface {
	Process(ctx context.Context, task worker.Task) worker.Result
}

// Spawn builds one worker goroutine's private collaborators (pipeline,
// clustering view). Called once per initial pool slot and once per
// crash respawn; id is a monotonically increasing worker identity used
// only for logging.
type Spawn func(id int64) (Processor, func(), error)

// Config bundles the scheduler's tunables (§4.8's adaptive-sizing
// parameters).
type Config struct {
	ImportRoot      string
	MinWorkers      int
	MaxWorkers      int
	StartWorkers    int
	SampleInterval  time.Duration
}

// Scheduler owns the task/result queues, the progress log, and the
// adaptive pool.
type Scheduler struct {
	importRoot  string
	progressLog *storage.ProgressLog
	seen        map[string]struct{}
	seenMu      sync.Mutex

	minWorkers, maxWorkers, startWorkers int
	sampleInterval                       time.Duration

	tasks   chan worker.Task
	results chan worker.Result

	workerSeq     int64
	activeWorkers int64
	stopOne       chan struct{} // one signal consumed by exactly one worker to scale down

	succeeded atomic.Int64
	failed    atomic.Int64
}

func New(cfg Config, progressLog *storage.ProgressLog, seen map[string]struct{}) *Scheduler {
	return &Scheduler{
		importRoot:     cfg.ImportRoot,
		progressLog:    progressLog,
		seen:           seen,
		minWorkers:     cfg.MinWorkers,
		maxWorkers:     cfg.MaxWorkers,
		startWorkers:   cfg.StartWorkers,
		sampleInterval: cfg.SampleInterval,
		tasks:          make(chan worker.Task, 4096),
		results:        make(chan worker.Result, 4096),
		stopOne:        make(chan struct{}, 64),
	}
}

// Walk recursively scans importRoot, skipping dotfiles and non-image
// MIME types, and enqueues one task per file whose relative path isn't
// already in the progress set (§4.8 "Walk"). Folder pre-creation is
// performed by the worker per task via folders.Materialiser, which is
// idempotent and cheap enough not to need a separate walk-time pass.
func (s *Scheduler) Walk(ctx context.Context) (int, error) {
	count := 0
	err := filepath.Walk(s.importRoot, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasPrefix(info.Name(), ".") {
			return nil
		}
		observability.FilesWalked.Inc()

		rel, err := filepath.Rel(s.importRoot, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if s.isSeen(rel) {
			return nil
		}

		mtype, err := mimetype.DetectFile(path)
		if err != nil || !strings.HasPrefix(mtype.String(), "image/") {
			return nil
		}

		select {
		case s.tasks <- worker.Task{RelativePath: rel, AbsolutePath: path}:
			count++
			observability.QueueDepth.Set(float64(len(s.tasks)))
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("walk import root: %w", err)
	}
	return count, nil
}

func (s *Scheduler) isSeen(rel string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	_, ok := s.seen[rel]
	return ok
}

// CloseTasks signals that no further tasks will be enqueued; each
// worker exits once the channel drains (§4.8's sentinel, here a closed
// channel rather than an explicit sentinel value).
func (s *Scheduler) CloseTasks() {
	close(s.tasks)
}

// Results exposes the result channel for the caller's aggregation loop.
func (s *Scheduler) Results() <-chan worker.Result {
	return s.results
}

func (s *Scheduler) Succeeded() int64 { return s.succeeded.Load() }
func (s *Scheduler) Failed() int64    { return s.failed.Load() }

// RunPool starts startWorkers goroutines and blocks until every worker
// has exited (task channel drained or scaled to zero), then closes the
// result channel. spawn is called once per goroutine launch, including
// crash respawns and scale-ups.
func (s *Scheduler) RunPool(ctx context.Context, spawn Spawn) {
	var wg sync.WaitGroup

	var launch func()
	launch = func() {
		id := atomic.AddInt64(&s.workerSeq, 1)
		wg.Add(1)
		atomic.AddInt64(&s.activeWorkers, 1)
		observability.ActiveWorkers.Set(float64(atomic.LoadInt64(&s.activeWorkers)))

		go func() {
			defer wg.Done()
			defer func() {
				atomic.AddInt64(&s.activeWorkers, -1)
				observability.ActiveWorkers.Set(float64(atomic.LoadInt64(&s.activeWorkers)))
				if r := recover(); r != nil {
					slog.Error("worker panicked, respawning", "worker_id", id, "panic", r)
					observability.WorkerRespawns.Inc()
					launch()
				}
			}()
			s.runWorkerLoop(ctx, id, spawn)
		}()
	}

	for i := 0; i < s.startWorkers; i++ {
		launch()
	}

	stopAdapt := make(chan struct{})
	go s.adaptLoop(ctx, stopAdapt, launch)

	wg.Wait()
	close(stopAdapt)
	close(s.results)
}

func (s *Scheduler) runWorkerLoop(ctx context.Context, id int64, spawn Spawn) {
	processor, closeFn, err := spawn(id)
	if err != nil {
		slog.Error("spawn worker failed", "worker_id", id, "error", err)
		return
	}
	if closeFn != nil {
		defer closeFn()
	}

	for {
		select {
		case <-s.stopOne:
			slog.Info("worker scaled down", "worker_id", id)
			return
		case task, ok := <-s.tasks:
			if !ok {
				return
			}
			result := processor.Process(ctx, task)
			if result.Succeeded {
				s.succeeded.Add(1)
				observability.ImagesProcessed.WithLabelValues("processed").Inc()
				if err := s.progressLog.Append(toProgressRecord(result)); err != nil {
					slog.Error("append progress record failed", "path", result.RelativePath, "error", err)
				}
			} else {
				s.failed.Add(1)
			}
			observability.QueueDepth.Set(float64(len(s.tasks)))
			s.results <- result
		}
	}
}

// adaptLoop samples host memory/CPU every sampleInterval and scales the
// pool per §4.8's thresholds, bounded to [minWorkers, maxWorkers].
func (s *Scheduler) adaptLoop(ctx context.Context, stop <-chan struct{}, launch func()) {
	ticker := time.NewTicker(s.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			current := atomic.LoadInt64(&s.activeWorkers)
			if current == 0 {
				continue
			}

			memStat, err := mem.VirtualMemory()
			if err != nil {
				slog.Warn("sample memory failed", "error", err)
				continue
			}
			cpuPct, err := cpu.Percent(0, false)
			if err != nil || len(cpuPct) == 0 {
				slog.Warn("sample cpu failed", "error", err)
				continue
			}
			backlog := len(s.tasks)

			switch {
			case memStat.UsedPercent > scaleDownMemPct && current > int64(s.minWorkers):
				select {
				case s.stopOne <- struct{}{}:
					slog.Info("scaling down worker pool", "mem_pct", memStat.UsedPercent, "workers", current)
				default:
				}
			case memStat.UsedPercent < scaleUpMemPct && cpuPct[0] < scaleUpCPUPct &&
				current < int64(s.maxWorkers) && backlog > backlogMultiplier*int(current):
				slog.Info("scaling up worker pool", "mem_pct", memStat.UsedPercent, "cpu_pct", cpuPct[0], "workers", current)
				launch()
			}
		}
	}
}

func toProgressRecord(r worker.Result) models.ProgressRecord {
	return models.ProgressRecord{
		Key: r.RelativePath,
		Data: models.ProgressData{
			ProcessedAt: time.Now(),
			Thumbnail:   r.ThumbnailPath,
			Faces:       r.Faces,
		},
	}
}
