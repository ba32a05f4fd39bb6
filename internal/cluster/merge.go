package cluster

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/thumbnail"
)

// Merge moves every face from source onto target, per the offline
// merge operation (§4.6). Merging a named person into an unnamed one
// reverses direction so the named record survives; merging two
// differently-named persons is refused.
func (e *Engine) Merge(ctx context.Context, source, target uuid.UUID) error {
	sp, err := e.store.GetPerson(ctx, source)
	if err != nil {
		return fmt.Errorf("merge: get source: %w", err)
	}
	tp, err := e.store.GetPerson(ctx, target)
	if err != nil {
		return fmt.Errorf("merge: get target: %w", err)
	}
	if sp == nil || tp == nil {
		return fmt.Errorf("merge: source or target person not found")
	}

	if sp.Named() && tp.Named() && *sp.Name != *tp.Name {
		return fmt.Errorf("merge refused: %s and %s are both named and differ", source, target)
	}

	survivor, doomed := target, source
	if sp.Named() && !tp.Named() {
		survivor, doomed = source, target
	}

	if err := e.store.ReassignPerson(ctx, doomed, survivor); err != nil {
		return fmt.Errorf("merge: reassign faces: %w", err)
	}
	if err := e.store.SetFacesThumbnailPath(ctx, survivor, fmt.Sprintf("faces/person_%s.jpg", survivor)); err != nil {
		return fmt.Errorf("merge: update moved faces' thumbnail path: %w", err)
	}

	doomedThumb := e.representativePath(doomed)
	_ = os.Remove(doomedThumb) // best-effort, per §6 "delete is best-effort"
	if e.blob != nil {
		_ = e.blob.DeleteObject(ctx, fmt.Sprintf("faces/person_%s.jpg", doomed))
	}

	if err := e.store.DeletePerson(ctx, doomed); err != nil {
		return fmt.Errorf("merge: delete doomed person: %w", err)
	}

	return e.RecomputeRepresentative(ctx, survivor)
}

// RecomputeRepresentative picks the highest-det_score face belonging to
// personID whose owning image still exists on disk, regenerates its
// thumbnail, and unconditionally persists it as the representative.
// Used after merge and by the fix-orientation maintenance op (§4.9).
func (e *Engine) RecomputeRepresentative(ctx context.Context, personID uuid.UUID) error {
	faces, err := e.store.ListFacesByPerson(ctx, personID)
	if err != nil {
		return fmt.Errorf("recompute representative: list faces: %w", err)
	}
	if len(faces) == 0 {
		return nil
	}

	bestIdx := -1
	for i, f := range faces {
		img, err := e.store.GetImage(ctx, f.ImageID)
		if err != nil || img == nil {
			continue
		}
		if _, err := os.Stat(img.Path); err != nil {
			continue
		}
		if bestIdx == -1 || f.DetScore > faces[bestIdx].DetScore {
			bestIdx = i
		}
	}
	if bestIdx == -1 {
		return nil // no surviving face has a reachable source image
	}
	best := faces[bestIdx]

	img, err := e.store.GetImage(ctx, best.ImageID)
	if err != nil || img == nil {
		return fmt.Errorf("recompute representative: image %s missing", best.ImageID)
	}
	data, err := os.ReadFile(img.Path)
	if err != nil {
		return fmt.Errorf("recompute representative: read source: %w", err)
	}
	upright, err := thumbnail.DecodeOriented(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("recompute representative: decode source: %w", err)
	}
	thumb, err := thumbnail.Face(upright, best.BBox)
	if err != nil {
		return fmt.Errorf("recompute representative: crop: %w", err)
	}

	path := e.representativePath(personID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("recompute representative: mkdir: %w", err)
	}
	if err := os.WriteFile(path, thumb, 0o644); err != nil {
		return fmt.Errorf("recompute representative: write: %w", err)
	}
	if e.blob != nil {
		key := fmt.Sprintf("faces/person_%s.jpg", personID)
		if err := e.blob.PutObject(ctx, key, thumb, "image/jpeg"); err != nil {
			return fmt.Errorf("recompute representative: upload: %w", err)
		}
	}

	return e.store.ForceSetRepresentative(ctx, personID, best.ID, best.DetScore)
}
