package cluster

import (
	"context"
	"fmt"

	"github.com/facecat/facecat/internal/codec"
)

// Recluster clears every face's person reference, deletes every person,
// then streams every face with a decodable embedding through the online
// match-or-create path in id order (§4.6). It runs single-threaded, so
// a fresh WorkerView with an empty snapshot and shared layer suffices —
// every match after the first face of a person is resolved against
// clusters this pass itself has created.
func (e *Engine) Recluster(ctx context.Context) error {
	faces, err := e.store.ListAllFaces(ctx)
	if err != nil {
		return fmt.Errorf("recluster: list faces: %w", err)
	}

	if err := e.store.ClearAllFacePersons(ctx); err != nil {
		return fmt.Errorf("recluster: clear face persons: %w", err)
	}
	if err := e.store.DeleteAllPersons(ctx); err != nil {
		return fmt.Errorf("recluster: delete persons: %w", err)
	}

	view := NewWorkerView(&Snapshot{}, NewSharedClusters())

	for _, f := range faces {
		v, err := codec.Decode(f.EmbeddingBytes)
		if err != nil {
			continue // undecodable embedding: face stays person-less (§7)
		}
		personID, isNew, err := e.MatchOrCreate(ctx, view, f.ID, v, f.DetScore)
		if err != nil {
			return fmt.Errorf("recluster: match-or-create face %s: %w", f.ID, err)
		}
		_ = isNew

		shouldUpdate, err := e.ShouldUpdateRepresentative(ctx, view, personID, f.DetScore)
		if err != nil {
			return fmt.Errorf("recluster: should update representative: %w", err)
		}
		if shouldUpdate {
			if err := e.RecomputeRepresentative(ctx, personID); err != nil {
				return fmt.Errorf("recluster: recompute representative: %w", err)
			}
			view.SetCachedBestScore(personID, f.DetScore)
		}
	}

	return nil
}
