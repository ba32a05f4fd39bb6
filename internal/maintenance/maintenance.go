// Package maintenance implements the offline catalogue-hygiene
// operations (C9, §4.9): pruning low-quality/edge faces, merging
// duplicate persons, rebuilding representative thumbnails after an
// orientation fix, and full catalogue cleanup.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/cluster"
)

// Store is the slice of the catalogue store maintenance operations need
// beyond what the clustering engine already requires.
type Store interface {
	cluster.Store
	DeleteFace(ctx context.Context, faceID uuid.UUID) error
	SetImageFaces(ctx context.Context, id uuid.UUID, faceIDs []uuid.UUID) error
	DeleteAllImages(ctx context.Context) error
	DeleteAllFolders(ctx context.Context) error
}

// Ops bundles the maintenance operations over a Store and the
// clustering Engine that already implements merge/recluster/sweep.
type Ops struct {
	store  Store
	engine *cluster.Engine

	minFaceScore float64
	edgeMarginPx int
	thumbnailDir string
}

func New(store Store, engine *cluster.Engine, minFaceScore float64, edgeMarginPx int, thumbnailDir string) *Ops {
	return &Ops{store: store, engine: engine, minFaceScore: minFaceScore, edgeMarginPx: edgeMarginPx, thumbnailDir: thumbnailDir}
}

// PruneResult summarises one prune pass.
type PruneResult struct {
	FacesDeleted   int
	PersonsDeleted int
}

// Prune scans every face and deletes those below the quality/edge
// thresholds, removing the reference from its owning image's face list
// and deleting any person left with zero faces (§4.9 "Prune").
func (o *Ops) Prune(ctx context.Context) (PruneResult, error) {
	faces, err := o.store.ListAllFaces(ctx)
	if err != nil {
		return PruneResult{}, fmt.Errorf("prune: list faces: %w", err)
	}

	var result PruneResult
	emptiedPersons := make(map[uuid.UUID]bool)

	for _, f := range faces {
		img, err := o.store.GetImage(ctx, f.ImageID)
		if err != nil || img == nil {
			continue
		}
		if f.DetScore >= o.minFaceScore && !f.BBox.TouchesEdge(img.Width, img.Height, o.edgeMarginPx) {
			continue
		}

		if err := o.store.DeleteFace(ctx, f.ID); err != nil {
			slog.Error("prune: delete face failed", "face", f.ID, "error", err)
			continue
		}
		result.FacesDeleted++

		remaining := make([]uuid.UUID, 0, len(img.FaceIDs))
		for _, id := range img.FaceIDs {
			if id != f.ID {
				remaining = append(remaining, id)
			}
		}
		if err := o.store.SetImageFaces(ctx, img.ID, remaining); err != nil {
			slog.Error("prune: update image faces failed", "image", img.ID, "error", err)
		}

		if f.PersonID != nil && !emptiedPersons[*f.PersonID] {
			remainingFaces, err := o.store.ListFacesByPerson(ctx, *f.PersonID)
			if err == nil && len(remainingFaces) == 0 {
				if err := o.store.DeletePerson(ctx, *f.PersonID); err != nil {
					slog.Error("prune: delete empty person failed", "person", *f.PersonID, "error", err)
				} else {
					result.PersonsDeleted++
					emptiedPersons[*f.PersonID] = true
					_ = os.Remove(o.representativeThumbnailPath(*f.PersonID))
				}
			}
		}
	}

	return result, nil
}

// MergeDuplicates delegates to the clustering engine's offline
// duplicate-person sweep (§4.6/§4.9 "Merge duplicates").
func (o *Ops) MergeDuplicates(ctx context.Context, tolerance float64) ([]cluster.DuplicateSweepResult, error) {
	return o.engine.SweepDuplicates(ctx, tolerance)
}

// FixOrientationResult summarises one orientation-repair pass.
type FixOrientationResult struct {
	PersonsFixed  int
	PersonsFailed int
}

// FixOrientation re-derives every person's representative thumbnail
// from its highest-det_score face whose source image still exists on
// disk (§4.9 "Fix orientation").
func (o *Ops) FixOrientation(ctx context.Context) (FixOrientationResult, error) {
	persons, err := o.store.ListPersons(ctx)
	if err != nil {
		return FixOrientationResult{}, fmt.Errorf("fix orientation: list persons: %w", err)
	}

	var result FixOrientationResult
	for _, p := range persons {
		if err := o.engine.RecomputeRepresentative(ctx, p.ID); err != nil {
			slog.Error("fix orientation: recompute representative failed", "person", p.ID, "error", err)
			result.PersonsFailed++
			continue
		}
		result.PersonsFixed++
	}
	return result, nil
}

// Cleanup truncates all four collections (faces, persons, images,
// folders), wipes the thumbnail/upload directories, and resets the
// ingest progress log so a subsequent run doesn't skip files whose
// catalogue rows just got erased. Guarded by the caller's confirmation
// flag (§4.9 "Cleanup", §6 "--force").
func (o *Ops) Cleanup(ctx context.Context, thumbnailDir, uploadDir, progressLogPath string) error {
	if err := o.store.ClearAllFacePersons(ctx); err != nil {
		return fmt.Errorf("cleanup: clear face persons: %w", err)
	}
	if err := o.store.DeleteAllPersons(ctx); err != nil {
		return fmt.Errorf("cleanup: delete persons: %w", err)
	}

	faces, err := o.store.ListAllFaces(ctx)
	if err != nil {
		return fmt.Errorf("cleanup: list faces: %w", err)
	}
	for _, f := range faces {
		if err := o.store.DeleteFace(ctx, f.ID); err != nil {
			slog.Error("cleanup: delete face failed", "face", f.ID, "error", err)
		}
	}

	if err := o.store.DeleteAllImages(ctx); err != nil {
		return fmt.Errorf("cleanup: delete images: %w", err)
	}
	if err := o.store.DeleteAllFolders(ctx); err != nil {
		return fmt.Errorf("cleanup: delete folders: %w", err)
	}

	if thumbnailDir != "" {
		if err := os.RemoveAll(thumbnailDir); err != nil {
			slog.Error("cleanup: remove thumbnail dir failed", "dir", thumbnailDir, "error", err)
		}
	}
	if uploadDir != "" {
		if err := os.RemoveAll(uploadDir); err != nil {
			slog.Error("cleanup: remove upload dir failed", "dir", uploadDir, "error", err)
		}
	}
	if progressLogPath != "" {
		if err := os.Remove(progressLogPath); err != nil && !os.IsNotExist(err) {
			slog.Error("cleanup: remove progress log failed", "path", progressLogPath, "error", err)
		}
	}

	return nil
}

func (o *Ops) representativeThumbnailPath(personID uuid.UUID) string {
	return filepath.Join(o.thumbnailDir, "faces", fmt.Sprintf("person_%s.jpg", personID))
}
