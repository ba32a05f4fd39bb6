// Package similarity implements the distance kernel the clustering
// engine matches faces against clusters with (§4.2).
package similarity

import (
	"math"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/codec"
)

// Tolerances holds the default per-dimension distance thresholds. A
// distance strictly below the threshold is a match.
type Tolerances struct {
	Tau128        float64 // Euclidean tolerance for 128-d embeddings
	Tau512        float64 // cosine-distance tolerance for 512-d embeddings
	FastPathTau512 float64 // 512-d tolerance for the worker's in-process fast path (§4.2); its 0.45 default admits larger distances than Tau512
}

// DefaultTolerances returns the defaults named in §4.2.
func DefaultTolerances() Tolerances {
	return Tolerances{Tau128: 0.6, Tau512: 0.4, FastPathTau512: 0.45}
}

// Candidate is one cluster's set of exemplar embeddings, all belonging
// to the same person.
type Candidate struct {
	PersonID  uuid.UUID
	Exemplars []codec.Vector
}

// ToleranceFor returns the metric's tolerance for a query of the given
// dimension, and whether that dimension is supported at all.
func (t Tolerances) ToleranceFor(dim int, fastPath bool) (float64, bool) {
	switch dim {
	case 512:
		if fastPath {
			return t.FastPathTau512, true
		}
		return t.Tau512, true
	case 128:
		return t.Tau128, true
	default:
		return 0, false
	}
}

// Match finds the candidate cluster nearest the query embedding under
// the metric implied by the query's dimensionality, using
// nearest-neighbour linkage (cluster distance = min over per-exemplar
// distance). Candidates (or individual exemplars) whose dimension
// differs from the query are skipped silently. Ties are broken by
// first-encountered order in candidates.
func Match(query codec.Vector, candidates []Candidate, tol Tolerances, fastPath bool) (personID uuid.UUID, distance float64, found bool) {
	threshold, ok := tol.ToleranceFor(query.Dim, fastPath)
	if !ok {
		return uuid.UUID{}, 0, false
	}

	bestDistance := math.Inf(1)
	var bestPerson uuid.UUID
	matched := false

	for _, cand := range candidates {
		for _, ex := range cand.Exemplars {
			if ex.Dim != query.Dim {
				continue
			}
			d, ok := distanceBetween(query, ex)
			if !ok {
				continue
			}
			if d < bestDistance {
				bestDistance = d
				bestPerson = cand.PersonID
				matched = true
			}
		}
	}

	if !matched || bestDistance >= threshold {
		return uuid.UUID{}, 0, false
	}
	return bestPerson, bestDistance, true
}

// DistanceOnly exposes the §4.2 distance metric for callers (e.g. the
// duplicate-person sweep) that need a raw pairwise distance rather than
// a full candidate match.
func DistanceOnly(a, b codec.Vector) (float64, bool) {
	return distanceBetween(a, b)
}

// distanceBetween computes the §4.2 distance between two same-dimension
// vectors: cosine distance at 512-d, Euclidean at 128-d.
func distanceBetween(a, b codec.Vector) (float64, bool) {
	switch a.Dim {
	case 512:
		return cosineDistance(a, b), true
	case 128:
		return euclideanDistance(a, b), true
	default:
		return 0, false
	}
}

func cosineDistance(a, b codec.Vector) float64 {
	av, bv := asFloat64(a), asFloat64(b)
	var dot float64
	for i := range av {
		dot += av[i] * bv[i]
	}
	return 1 - dot
}

func euclideanDistance(a, b codec.Vector) float64 {
	av, bv := asFloat64(a), asFloat64(b)
	var sum float64
	for i := range av {
		d := av[i] - bv[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func asFloat64(v codec.Vector) []float64 {
	if v.ElemType == codec.F64 {
		return v.F64
	}
	out := make([]float64, len(v.F32))
	for i, x := range v.F32 {
		out[i] = float64(x)
	}
	return out
}
