// Package worker implements the per-image task (C7, §4.7): read,
// decode, detect, cluster, thumbnail, persist, optionally upload.
package worker

import (
	"bytes"
	"context"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/facecat/facecat/internal/cluster"
	"github.com/facecat/facecat/internal/codec"
	"github.com/facecat/facecat/internal/folders"
	"github.com/facecat/facecat/internal/models"
	"github.com/facecat/facecat/internal/observability"
	"github.com/facecat/facecat/internal/thumbnail"
	"github.com/facecat/facecat/internal/vision"
)

const (
	minFaceScore = 0.65
	edgeMarginPx = 10
)

// Store is the slice of the catalogue store a task needs beyond what
// cluster.Store already provides.
type Store interface {
	cluster.Store
	CreateImage(ctx context.Context, img *models.Image) error
	UpdateImageState(ctx context.Context, id uuid.UUID, state models.ProcessingState) error
	SetImageFaces(ctx context.Context, id uuid.UUID, faceIDs []uuid.UUID) error
	SetImageUploaded(ctx context.Context, id uuid.UUID, uploaded bool) error
	CreateFace(ctx context.Context, f *models.Face) error
	SetFaceThumbnail(ctx context.Context, faceID uuid.UUID, path string) error
}

// BlobSink is the upload collaborator (§6); nil disables uploads.
type BlobSink interface {
	cluster.BlobSink
}

// Options bundles the per-task runtime configuration a worker needs.
type Options struct {
	ImportRoot     string
	ThumbnailDir   string
	UploadDir      string
	UploadsEnabled bool
	MinFaceScore   float64
	EdgeMarginPx   int
}

// Task is one unit of work the scheduler hands to a worker: an image
// file to ingest.
type Task struct {
	RelativePath string // relative to ImportRoot; the resume/retry key
	AbsolutePath string
}

// Result is what the scheduler gets back after a task runs, mirroring
// §4.7 step 10's return tuple plus the outcome needed for metrics.
type Result struct {
	RelativePath     string
	ThumbnailPath    string
	Faces            []models.FaceSummary
	Succeeded        bool
	NewPersons       int
	MatchedFaces     int
	Err              error
}

// Runner executes §4.7's ordered steps for one task. It is safe for
// concurrent use by multiple pool goroutines as long as the pipeline
// and view passed to Process are each owned by a single goroutine at
// a time (the scheduler gives every worker its own
// Pipeline and WorkerView; the Store/BlobSink/Materialiser below are
// shared and already safe for concurrent use).
type Runner struct {
	store       Store
	blob        BlobSink
	engine      *cluster.Engine
	materialize *folders.Materialiser
	opts        Options
}

func NewRunner(store Store, blob BlobSink, engine *cluster.Engine, materialiser *folders.Materialiser, opts Options) *Runner {
	if opts.MinFaceScore == 0 {
		opts.MinFaceScore = minFaceScore
	}
	if opts.EdgeMarginPx == 0 {
		opts.EdgeMarginPx = edgeMarginPx
	}
	return &Runner{store: store, blob: blob, engine: engine, materialize: materialiser, opts: opts}
}

// Process runs the full per-image pipeline for one task, using pipeline
// for detection/embedding and view for this worker's clustering
// candidate cache. It never returns an error for a processing failure:
// the failure is logged and counted, and a failure Result is returned
// instead. Every failure path comes before the image row is written,
// so a failed task leaves no image row behind and none is marked
// failed in the catalogue.
func (r *Runner) Process(ctx context.Context, pipeline *vision.Pipeline, view *cluster.WorkerView, task Task) Result {
	data, err := os.ReadFile(task.AbsolutePath)
	if err != nil {
		return r.fail(task, fmt.Errorf("read file: %w", err))
	}

	mtype := mimetype.Detect(data)
	if !mimeIsImage(mtype.String()) {
		return r.fail(task, fmt.Errorf("refuse non-image mime %q", mtype.String()))
	}

	upright, err := thumbnail.DecodeOriented(bytes.NewReader(data))
	if err != nil {
		return r.fail(task, fmt.Errorf("decode image: %w", err))
	}
	bounds := upright.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	faceResults, err := pipeline.DetectFaces(upright)
	if err != nil {
		return r.fail(task, fmt.Errorf("detect faces: %w", err))
	}
	faceResults = filterFaces(faceResults, width, height, r.opts.MinFaceScore, r.opts.EdgeMarginPx)

	wholeThumb, err := thumbnail.Whole(bytes.NewReader(data))
	if err != nil {
		return r.fail(task, fmt.Errorf("whole thumbnail: %w", err))
	}
	wholeThumbName := fmt.Sprintf("image_%s.jpg", uuid.New())
	wholeThumbPath := filepath.Join(r.opts.ThumbnailDir, "images", wholeThumbName)
	if err := writeFile(wholeThumbPath, wholeThumb); err != nil {
		return r.fail(task, fmt.Errorf("write whole thumbnail: %w", err))
	}

	isUploaded := false
	if r.opts.UploadsEnabled && r.blob != nil {
		origKey := fmt.Sprintf("originals/%s", filepath.Base(task.RelativePath))
		thumbKey := fmt.Sprintf("images/%s", wholeThumbName)
		if err := r.blob.PutObject(ctx, origKey, data, mtype.String()); err != nil {
			slog.Warn("upload original failed", "path", task.RelativePath, "error", err)
		} else if err := r.blob.PutObject(ctx, thumbKey, wholeThumb, "image/jpeg"); err != nil {
			slog.Warn("upload whole thumbnail failed", "path", task.RelativePath, "error", err)
		} else {
			isUploaded = true
		}
	}

	metadata := extractMetadata(data)

	folderDir := filepath.Dir(task.RelativePath)
	var folderID uuid.UUID
	if r.materialize != nil {
		folder, err := r.materialize.EnsurePath(ctx, folderDir)
		if err != nil {
			return r.fail(task, fmt.Errorf("ensure folder: %w", err))
		}
		if folder != nil {
			folderID = folder.ID
		}
	}

	img := &models.Image{
		StoredFilename:   fmt.Sprintf("%s.jpg", uuid.New()),
		OriginalFilename: filepath.Base(task.RelativePath),
		Path:             task.AbsolutePath,
		ThumbnailPath:    wholeThumbPath,
		Width:            width,
		Height:           height,
		ByteSize:         int64(len(data)),
		MimeType:         mtype.String(),
		ProcessingState:  models.ProcessingProcessed,
		IsUploaded:       isUploaded,
		RelativePath:     task.RelativePath,
		Metadata:         metadata,
		FolderID:         folderID,
	}
	if err := r.store.CreateImage(ctx, img); err != nil {
		return r.fail(task, fmt.Errorf("create image: %w", err))
	}

	summaries := make([]models.FaceSummary, 0, len(faceResults))
	faceIDs := make([]uuid.UUID, 0, len(faceResults))
	newPersons, matchedFaces := 0, 0

	for _, fr := range faceResults {
		vec := embeddingVector(fr.Embedding)
		embeddingBytes := codec.Encode(vec)

		face := &models.Face{
			ImageID:        img.ID,
			BBox:           fr.BBox,
			EmbeddingBytes: embeddingBytes,
			DetScore:       fr.DetScore,
			Age:            fr.Age,
			Gender:         fr.Gender,
		}
		if err := r.store.CreateFace(ctx, face); err != nil {
			slog.Error("create face failed", "image", task.RelativePath, "error", err)
			continue
		}

		personID, isNew, err := r.engine.MatchOrCreate(ctx, view, face.ID, vec, fr.DetScore)
		if err != nil {
			slog.Error("match-or-create failed", "image", task.RelativePath, "face", face.ID, "error", err)
			observability.FacesMatched.WithLabelValues("error").Inc()
			continue
		}
		if isNew {
			newPersons++
			observability.FacesMatched.WithLabelValues("new_person").Inc()
		} else {
			matchedFaces++
			observability.FacesMatched.WithLabelValues("existing_person").Inc()
		}
		observability.FacesDetected.Inc()

		faceThumb, err := thumbnail.Face(upright, fr.BBox)
		if err != nil {
			slog.Error("face thumbnail failed", "face", face.ID, "error", err)
		} else {
			faceThumbPath := filepath.Join(r.opts.ThumbnailDir, "faces", fmt.Sprintf("face_%s.jpg", face.ID))
			if err := writeFile(faceThumbPath, faceThumb); err != nil {
				slog.Error("write face thumbnail failed", "face", face.ID, "error", err)
			} else {
				_ = r.store.SetFaceThumbnail(ctx, face.ID, faceThumbPath)
				face.ThumbnailPath = faceThumbPath
				if r.opts.UploadsEnabled && r.blob != nil {
					_ = r.blob.PutObject(ctx, fmt.Sprintf("faces/face_%s.jpg", face.ID), faceThumb, "image/jpeg")
				}
			}

			shouldUpdate, err := r.engine.ShouldUpdateRepresentative(ctx, view, personID, fr.DetScore)
			if err != nil {
				slog.Error("should-update-representative failed", "person", personID, "error", err)
			} else if shouldUpdate {
				if err := r.engine.CommitRepresentative(ctx, view, personID, face.ID, fr.DetScore, faceThumb); err != nil {
					slog.Error("commit representative failed", "person", personID, "error", err)
				}
			}
		}

		faceIDs = append(faceIDs, face.ID)
		summaries = append(summaries, models.FaceSummary{FaceID: face.ID, PersonID: personID, ThumbnailPath: face.ThumbnailPath})
	}

	if len(faceIDs) > 0 {
		if err := r.store.SetImageFaces(ctx, img.ID, faceIDs); err != nil {
			slog.Error("set image faces failed", "image", img.ID, "error", err)
		}
	}

	return Result{
		RelativePath:  task.RelativePath,
		ThumbnailPath: wholeThumbName,
		Faces:         summaries,
		Succeeded:     true,
		NewPersons:    newPersons,
		MatchedFaces:  matchedFaces,
	}
}

func (r *Runner) fail(task Task, err error) Result {
	slog.Error("process image failed", "path", task.RelativePath, "error", err)
	observability.ImagesProcessed.WithLabelValues("failed").Inc()
	return Result{RelativePath: task.RelativePath, Succeeded: false, Err: err}
}

// filterFaces drops faces below minScore or whose bbox touches the
// image edge within margin, per §4.7 step 3.
func filterFaces(faces []vision.FaceResult, width, height int, minScore float64, margin int) []vision.FaceResult {
	out := faces[:0]
	for _, f := range faces {
		if f.DetScore < minScore {
			continue
		}
		if f.BBox.TouchesEdge(width, height, margin) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// embeddingVector wraps a raw detector embedding into a codec.Vector,
// L2-normalising the 512-d ArcFace case per §4.1.
func embeddingVector(raw []float32) codec.Vector {
	v := make([]float32, len(raw))
	copy(v, raw)
	if len(v) == 512 {
		codec.Normalize(v)
	}
	dim := len(v)
	return codec.Vector{ElemType: codec.F32, Dim: dim, F32: v}
}

func mimeIsImage(mtype string) bool {
	return len(mtype) >= 6 && mtype[:6] == "image/"
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// extractMetadata reads the date-time/make/model/GPS tags named in §6;
// any read failure yields a zero-value ImageMetadata rather than an
// error, since EXIF absence is common and not a processing failure.
func extractMetadata(data []byte) models.ImageMetadata {
	var meta models.ImageMetadata
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return meta
	}
	if dt, err := x.DateTime(); err == nil {
		t := dt
		meta.DateTime = &t
	}
	if tag, err := x.Get(exif.Make); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.CameraMake = s
		}
	}
	if tag, err := x.Get(exif.Model); err == nil {
		if s, err := tag.StringVal(); err == nil {
			meta.CameraModel = s
		}
	}
	lat, lon, err := x.LatLong()
	if err == nil {
		meta.GPSLatitude = &lat
		meta.GPSLongitude = &lon
	}
	return meta
}
