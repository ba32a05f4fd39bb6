package cluster

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/codec"
	"github.com/facecat/facecat/internal/similarity"
)

// Engine is the online match-or-create clustering path (§4.6) plus the
// representative-face update it triggers for every accepted face.
type Engine struct {
	store        Store
	blob         BlobSink // nil when uploads are disabled
	tol          similarity.Tolerances
	thumbnailDir string
}

func NewEngine(store Store, blob BlobSink, tol similarity.Tolerances, thumbnailDir string) *Engine {
	return &Engine{store: store, blob: blob, tol: tol, thumbnailDir: thumbnailDir}
}

// MatchOrCreate resolves embedding to a person: an existing cluster if
// C2 finds one, or a freshly created singleton cluster otherwise. The
// match is attempted twice — once against the static snapshot at the
// metric's normal tolerance, once against this run's freshly created
// clusters at the fast-path tolerance (§4.2) — keeping
// whichever match is closer.
func (e *Engine) MatchOrCreate(ctx context.Context, view *WorkerView, face uuid.UUID, embedding codec.Vector, detScore float64) (personID uuid.UUID, isNew bool, err error) {
	snapPerson, snapDist, snapFound := similarity.Match(embedding, view.snapshotCandidates(), e.tol, false)
	sharedPerson, sharedDist, sharedFound := similarity.Match(embedding, view.SharedCandidates(), e.tol, true)

	var matched uuid.UUID
	found := false
	switch {
	case snapFound && sharedFound:
		if sharedDist < snapDist {
			matched, found = sharedPerson, true
		} else {
			matched, found = snapPerson, true
		}
	case snapFound:
		matched, found = snapPerson, true
	case sharedFound:
		matched, found = sharedPerson, true
	}

	if found {
		if err := e.store.AssignFacePerson(ctx, face, matched); err != nil {
			return uuid.UUID{}, false, fmt.Errorf("match-or-create: assign face: %w", err)
		}
		view.shared.Append(matched, embedding)
		return matched, false, nil
	}

	p, err := e.store.CreatePerson(ctx, face, detScore)
	if err != nil {
		return uuid.UUID{}, false, fmt.Errorf("match-or-create: create person: %w", err)
	}
	if err := e.store.AssignFacePerson(ctx, face, p.ID); err != nil {
		return uuid.UUID{}, false, fmt.Errorf("match-or-create: assign face to new person: %w", err)
	}
	view.shared.Append(p.ID, embedding)
	view.SetCachedBestScore(p.ID, detScore)
	return p.ID, true, nil
}

// ShouldUpdateRepresentative reports whether detScore warrants
// regenerating personID's representative thumbnail: either detScore
// beats the cached/persisted best_face_score, or no representative
// thumbnail file exists yet on disk (§4.6).
func (e *Engine) ShouldUpdateRepresentative(ctx context.Context, view *WorkerView, personID uuid.UUID, detScore float64) (bool, error) {
	best, cached := view.CachedBestScore(personID)
	if !cached {
		p, err := e.store.GetPerson(ctx, personID)
		if err != nil {
			return false, fmt.Errorf("should update representative: %w", err)
		}
		if p != nil {
			best = p.BestFaceScore
		}
	}

	if detScore > best {
		return true, nil
	}

	if _, err := os.Stat(e.representativePath(personID)); os.IsNotExist(err) {
		return true, nil
	}
	return false, nil
}

// CommitRepresentative writes thumbnailBytes under the cluster's stable
// representative filename, optionally uploads it to the blob sink, and
// persists the winning best_face_score/representative_face_id.
func (e *Engine) CommitRepresentative(ctx context.Context, view *WorkerView, personID, faceID uuid.UUID, detScore float64, thumbnailBytes []byte) error {
	path := e.representativePath(personID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("commit representative: mkdir: %w", err)
	}
	if err := os.WriteFile(path, thumbnailBytes, 0o644); err != nil {
		return fmt.Errorf("commit representative: write thumbnail: %w", err)
	}

	if e.blob != nil {
		key := fmt.Sprintf("faces/person_%s.jpg", personID)
		if err := e.blob.PutObject(ctx, key, thumbnailBytes, "image/jpeg"); err != nil {
			return fmt.Errorf("commit representative: upload: %w", err)
		}
	}

	if err := e.store.UpdateRepresentative(ctx, personID, faceID, detScore); err != nil {
		return fmt.Errorf("commit representative: persist: %w", err)
	}
	view.SetCachedBestScore(personID, detScore)
	return nil
}

func (e *Engine) representativePath(personID uuid.UUID) string {
	return filepath.Join(e.thumbnailDir, "faces", fmt.Sprintf("person_%s.jpg", personID))
}

// snapshotCandidates exposes the static layer alone for the two-pass
// match in MatchOrCreate.
func (w *WorkerView) snapshotCandidates() []similarity.Candidate {
	return w.snapshot.candidates
}
