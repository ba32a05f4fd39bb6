package scheduler

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/facecat/facecat/internal/models"
	"github.com/facecat/facecat/internal/storage"
	"github.com/facecat/facecat/internal/worker"
)

func writeJPEG(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()

	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 50), G: uint8(y * 50), B: 100, A: 255})
		}
	}
	if err := jpeg.Encode(f, img, nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
}

func TestWalkEnqueuesImagesSkipsSeenAndDotfiles(t *testing.T) {
	root := t.TempDir()
	writeJPEG(t, filepath.Join(root, "a.jpg"))
	writeJPEG(t, filepath.Join(root, "sub", "b.jpg"))
	writeJPEG(t, filepath.Join(root, ".hidden.jpg"))
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write notes.txt: %v", err)
	}

	progressPath := filepath.Join(t.TempDir(), "progress.jsonl")
	log, err := storage.OpenProgressLog(progressPath)
	if err != nil {
		t.Fatalf("open progress log: %v", err)
	}
	defer log.Close()

	seen := map[string]struct{}{"a.jpg": {}}
	s := New(Config{ImportRoot: root, MinWorkers: 1, MaxWorkers: 1, StartWorkers: 1, SampleInterval: time.Second}, log, seen)

	count, err := s.Walk(context.Background())
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if count != 1 {
		t.Fatalf("queued = %d, want 1 (only sub/b.jpg should be new)", count)
	}

	s.CloseTasks()
	task, ok := <-s.tasks
	if !ok {
		t.Fatal("expected one task on the channel")
	}
	if filepath.ToSlash(task.RelativePath) != "sub/b.jpg" {
		t.Fatalf("relative path = %q, want sub/b.jpg", task.RelativePath)
	}
}

func TestToProgressRecord(t *testing.T) {
	r := worker.Result{
		RelativePath:  "a/b.jpg",
		ThumbnailPath: "image_x.jpg",
		Faces:         []models.FaceSummary{{ThumbnailPath: "face_x.jpg"}},
	}
	rec := toProgressRecord(r)
	if rec.Key != "a/b.jpg" {
		t.Fatalf("key = %q, want a/b.jpg", rec.Key)
	}
	if rec.Data.Thumbnail != "image_x.jpg" {
		t.Fatalf("thumbnail = %q, want image_x.jpg", rec.Data.Thumbnail)
	}
	if len(rec.Data.Faces) != 1 {
		t.Fatalf("faces = %d, want 1", len(rec.Data.Faces))
	}
}
