// Package cluster implements the online match-or-create engine and the
// offline merge/re-cluster/duplicate-sweep operations (§4.6).
package cluster

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/codec"
	"github.com/facecat/facecat/internal/similarity"
)

// Snapshot is the static, read-only layer of the candidate set: every
// pre-existing person's exemplars, loaded once at worker startup (§5).
type Snapshot struct {
	candidates []similarity.Candidate
}

// LoadSnapshot reads every person and its faces, decoding each face's
// embedding into an exemplar. Faces with undecodable embeddings are
// silently skipped (§4.1).
func LoadSnapshot(ctx context.Context, store Store) (*Snapshot, error) {
	persons, err := store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: list persons: %w", err)
	}

	candidates := make([]similarity.Candidate, 0, len(persons))
	for _, p := range persons {
		faces, err := store.ListFacesByPerson(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("load snapshot: list faces for person %s: %w", p.ID, err)
		}
		var exemplars []codec.Vector
		for _, f := range faces {
			v, err := codec.Decode(f.EmbeddingBytes)
			if err != nil {
				continue
			}
			exemplars = append(exemplars, v)
		}
		if len(exemplars) > 0 {
			candidates = append(candidates, similarity.Candidate{PersonID: p.ID, Exemplars: exemplars})
		}
	}

	return &Snapshot{candidates: candidates}, nil
}

// SharedClusters is the append-only layer of clusters created during the
// current run, published across workers (§5). Safe for concurrent
// append and read.
type SharedClusters struct {
	mu         sync.RWMutex
	candidates []similarity.Candidate
}

func NewSharedClusters() *SharedClusters {
	return &SharedClusters{}
}

// Append adds a new cluster (new person, first exemplar) or, if
// personID already has an entry, adds exemplar to its existing entry.
func (s *SharedClusters) Append(personID uuid.UUID, exemplar codec.Vector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.candidates {
		if s.candidates[i].PersonID == personID {
			s.candidates[i].Exemplars = append(s.candidates[i].Exemplars, exemplar)
			return
		}
	}
	s.candidates = append(s.candidates, similarity.Candidate{PersonID: personID, Exemplars: []codec.Vector{exemplar}})
}

// snapshot returns the current length and a shallow copy of the
// candidate slice, so callers never read elements that a later Append
// rewrites (exemplar slices are not deep-copied; Append only extends
// them, never overwrites their existing entries).
func (s *SharedClusters) snapshot() (int, []similarity.Candidate) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]similarity.Candidate, len(s.candidates))
	copy(out, s.candidates)
	return len(out), out
}

// WorkerView is a per-worker cache over Snapshot + SharedClusters.
// It rebuilds its combined candidate slice only when the shared list's
// length has changed since it last observed it, per §5's "rebuilt
// lazily when the shared list's length changes" rule (mirroring the
// Python original's `_LAST_NEW_FACES_LEN` cache).
type WorkerView struct {
	snapshot *Snapshot
	shared   *SharedClusters

	lastSharedLen int
	combined      []similarity.Candidate

	// bestScore caches each person's best_face_score for this worker,
	// avoiding a document re-read per face (§9 supplemented feature).
	bestScore map[uuid.UUID]float64
}

func NewWorkerView(snapshot *Snapshot, shared *SharedClusters) *WorkerView {
	return &WorkerView{snapshot: snapshot, shared: shared, lastSharedLen: -1, bestScore: make(map[uuid.UUID]float64)}
}

// Candidates returns the combined static + shared candidate list,
// rebuilding the cache if the shared layer has grown.
func (w *WorkerView) Candidates() []similarity.Candidate {
	n, shared := w.shared.snapshot()
	if n == w.lastSharedLen {
		return w.combined
	}
	w.lastSharedLen = n
	combined := make([]similarity.Candidate, 0, len(w.snapshot.candidates)+len(shared))
	combined = append(combined, w.snapshot.candidates...)
	combined = append(combined, shared...)
	w.combined = combined
	return combined
}

// SharedCandidates returns only the shared (freshly-created-this-run)
// layer, for the fast-path match (§4.2).
func (w *WorkerView) SharedCandidates() []similarity.Candidate {
	_, shared := w.shared.snapshot()
	return shared
}

// CachedBestScore returns the worker's cached best_face_score for a
// person, and whether it has been seen before.
func (w *WorkerView) CachedBestScore(personID uuid.UUID) (float64, bool) {
	v, ok := w.bestScore[personID]
	return v, ok
}

func (w *WorkerView) SetCachedBestScore(personID uuid.UUID, score float64) {
	w.bestScore[personID] = score
}
