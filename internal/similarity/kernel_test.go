package similarity

import (
	"testing"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/codec"
)

func unitVec512(bump int) codec.Vector {
	v := make([]float32, 512)
	v[0] = 1
	if bump > 0 {
		v[0] = 0.8
		v[1] = 0.6
	}
	return codec.Vector{ElemType: codec.F32, Dim: 512, F32: v}
}

func TestMatch512Cosine(t *testing.T) {
	tol := DefaultTolerances()
	pA := uuid.New()
	candidates := []Candidate{
		{PersonID: pA, Exemplars: []codec.Vector{unitVec512(0)}},
	}

	query := unitVec512(0) // identical -> distance 0
	person, dist, found := Match(query, candidates, tol, false)
	if !found || person != pA {
		t.Fatalf("expected match to %v, got found=%v person=%v", pA, found, person)
	}
	if dist != 0 {
		t.Fatalf("expected distance 0, got %v", dist)
	}

	farQuery := unitVec512(1) // similarity 0.8 -> distance 0.2, still within tau512=0.4
	_, dist, found = Match(farQuery, candidates, tol, false)
	if !found {
		t.Fatalf("expected match within tolerance, got none (dist=%v)", dist)
	}
}

func TestMatchSkipsMismatchedDimension(t *testing.T) {
	tol := DefaultTolerances()
	candidates := []Candidate{
		{PersonID: uuid.New(), Exemplars: []codec.Vector{{ElemType: codec.F64, Dim: 128, F64: make([]float64, 128)}}},
	}
	query := unitVec512(0)
	_, _, found := Match(query, candidates, tol, false)
	if found {
		t.Fatal("expected no match across mismatched dimensions")
	}
}

func TestMatchNearestNeighbourLinkage(t *testing.T) {
	tol := DefaultTolerances()
	pNear := uuid.New()
	pFar := uuid.New()

	near := unitVec512(0)
	far := codec.Vector{ElemType: codec.F32, Dim: 512, F32: make([]float32, 512)}
	far.F32[2] = 1 // orthogonal to query -> distance 1, outside tolerance

	candidates := []Candidate{
		{PersonID: pFar, Exemplars: []codec.Vector{far}},
		{PersonID: pNear, Exemplars: []codec.Vector{far, near}}, // min distance comes from 'near' exemplar
	}

	query := unitVec512(0)
	person, _, found := Match(query, candidates, tol, false)
	if !found || person != pNear {
		t.Fatalf("expected nearest-neighbour linkage to pick %v, got found=%v person=%v", pNear, found, person)
	}
}

func TestEuclidean128(t *testing.T) {
	tol := DefaultTolerances()
	base := make([]float64, 128)
	base[0] = 1.0
	close := make([]float64, 128)
	close[0] = 1.1 // distance 0.1, within tau128=0.6

	pA := uuid.New()
	candidates := []Candidate{
		{PersonID: pA, Exemplars: []codec.Vector{{ElemType: codec.F64, Dim: 128, F64: base}}},
	}
	query := codec.Vector{ElemType: codec.F64, Dim: 128, F64: close}
	person, dist, found := Match(query, candidates, tol, false)
	if !found || person != pA {
		t.Fatalf("expected match, got found=%v person=%v dist=%v", found, person, dist)
	}
}
