package cluster

import (
	"context"
	"fmt"

	"github.com/facecat/facecat/internal/codec"
	"github.com/facecat/facecat/internal/similarity"
)

// DuplicateSweepResult reports one pair considered by SweepDuplicates.
type DuplicateSweepResult struct {
	PersonA, PersonB string
	Merged           bool
	Reason           string // set when Merged is false
}

// SweepDuplicates compares every pair of persons' representative
// embeddings under C2 and merges pairs whose distance is below
// tolerance, obeying the named-wins merge rule. O(n^2) in cluster
// count, acceptable as an offline operation (§4.6).
func (e *Engine) SweepDuplicates(ctx context.Context, tolerance float64) ([]DuplicateSweepResult, error) {
	persons, err := e.store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("sweep duplicates: list persons: %w", err)
	}

	type repExemplar struct {
		personID string
		vec      codec.Vector
		ok       bool
	}
	reps := make([]repExemplar, len(persons))
	for i, p := range persons {
		reps[i] = repExemplar{personID: p.ID.String()}
		if p.RepresentativeFaceID == nil {
			continue
		}
		f, err := e.store.GetFace(ctx, *p.RepresentativeFaceID)
		if err != nil || f == nil {
			continue
		}
		v, err := codec.Decode(f.EmbeddingBytes)
		if err != nil {
			continue
		}
		reps[i].vec = v
		reps[i].ok = true
	}

	var results []DuplicateSweepResult
	merged := make(map[string]bool) // personID already folded into another this sweep

	for i := 0; i < len(persons); i++ {
		if !reps[i].ok || merged[reps[i].personID] {
			continue
		}
		for j := i + 1; j < len(persons); j++ {
			if !reps[j].ok || merged[reps[j].personID] {
				continue
			}
			if reps[i].vec.Dim != reps[j].vec.Dim {
				continue
			}
			dist, ok := similarity.DistanceOnly(reps[i].vec, reps[j].vec)
			if !ok || dist >= tolerance {
				continue
			}

			err := e.Merge(ctx, persons[j].ID, persons[i].ID)
			if err != nil {
				results = append(results, DuplicateSweepResult{
					PersonA: reps[i].personID, PersonB: reps[j].personID, Merged: false, Reason: err.Error(),
				})
				continue
			}
			folded := reps[j].personID
			if persons[j].Named() && !persons[i].Named() {
				folded = reps[i].personID // Merge kept the named source, so i was deleted
			}
			merged[folded] = true
			results = append(results, DuplicateSweepResult{PersonA: reps[i].personID, PersonB: reps[j].personID, Merged: true})
			if folded == reps[i].personID {
				break
			}
		}
	}

	return results, nil
}
