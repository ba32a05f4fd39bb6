package worker

import (
	"testing"

	"github.com/facecat/facecat/internal/models"
	"github.com/facecat/facecat/internal/vision"
)

func TestFilterFacesDropsLowScoreAndEdge(t *testing.T) {
	faces := []vision.FaceResult{
		{DetScore: 0.9, BBox: models.BBox{Left: 50, Top: 50, Right: 150, Bottom: 150}},  // interior, keep
		{DetScore: 0.3, BBox: models.BBox{Left: 50, Top: 50, Right: 150, Bottom: 150}},  // low score, drop
		{DetScore: 0.9, BBox: models.BBox{Left: 0, Top: 50, Right: 150, Bottom: 150}},   // touches edge, drop
	}

	out := filterFaces(faces, 1000, 1000, 0.65, 10)
	if len(out) != 1 {
		t.Fatalf("filterFaces returned %d faces, want 1", len(out))
	}
	if out[0].DetScore != 0.9 || out[0].BBox.Left != 50 {
		t.Fatalf("unexpected survivor %+v", out[0])
	}
}

func TestFilterFacesKeepsAllWhenClean(t *testing.T) {
	faces := []vision.FaceResult{
		{DetScore: 0.7, BBox: models.BBox{Left: 20, Top: 20, Right: 80, Bottom: 80}},
		{DetScore: 0.8, BBox: models.BBox{Left: 200, Top: 200, Right: 300, Bottom: 300}},
	}
	out := filterFaces(faces, 1000, 1000, 0.65, 10)
	if len(out) != 2 {
		t.Fatalf("filterFaces returned %d faces, want 2", len(out))
	}
}

func TestEmbeddingVectorNormalizes512(t *testing.T) {
	raw := make([]float32, 512)
	raw[0] = 3
	raw[1] = 4 // norm = 5

	v := embeddingVector(raw)
	if v.Dim != 512 {
		t.Fatalf("dim = %d, want 512", v.Dim)
	}
	var sumSq float64
	for _, f := range v.F32 {
		sumSq += float64(f) * float64(f)
	}
	if diff := sumSq - 1.0; diff > 1e-4 || diff < -1e-4 {
		t.Fatalf("expected unit-norm 512-d vector, got sum of squares %v", sumSq)
	}
}

func TestEmbeddingVectorLeaves128Unnormalized(t *testing.T) {
	raw := make([]float32, 128)
	raw[0] = 3
	raw[1] = 4

	v := embeddingVector(raw)
	if v.Dim != 128 {
		t.Fatalf("dim = %d, want 128", v.Dim)
	}
	if v.F32[0] != 3 || v.F32[1] != 4 {
		t.Fatalf("128-d embedding should be left untouched, got %v", v.F32[:2])
	}
}

func TestMimeIsImage(t *testing.T) {
	cases := map[string]bool{
		"image/jpeg":       true,
		"image/png":        true,
		"application/json": false,
		"":                 false,
	}
	for mtype, want := range cases {
		if got := mimeIsImage(mtype); got != want {
			t.Errorf("mimeIsImage(%q) = %v, want %v", mtype, got, want)
		}
	}
}
