package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/facecat/facecat/internal/models"
)

func solidImage(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encode(t *testing.T, img image.Image) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestWholeResizesToFitPreservingAspect(t *testing.T) {
	src := encode(t, solidImage(900, 600, color.White))
	out, err := Whole(src)
	if err != nil {
		t.Fatalf("Whole: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != WholeImageMax || b.Dy() != 200 {
		t.Fatalf("got %dx%d, want %dx200", b.Dx(), b.Dy(), WholeImageMax)
	}
}

func TestWholeSmallerThanMaxUnscaled(t *testing.T) {
	src := encode(t, solidImage(100, 80, color.White))
	out, err := Whole(src)
	if err != nil {
		t.Fatalf("Whole: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 100 || b.Dy() != 80 {
		t.Fatalf("got %dx%d, want 100x80 unscaled", b.Dx(), b.Dy())
	}
}

func TestFaceExpandsAndClipsPadding(t *testing.T) {
	img := solidImage(200, 200, color.White)
	box := models.BBox{Left: 10, Top: 10, Right: 30, Bottom: 30}
	out, err := Face(img, box)
	if err != nil {
		t.Fatalf("Face: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out)); err != nil {
		t.Fatalf("decode face thumbnail: %v", err)
	}
}

func TestFacePaddingClippedAtEdge(t *testing.T) {
	img := solidImage(50, 50, color.White)
	box := models.BBox{Left: 0, Top: 0, Right: 40, Bottom: 40}
	padded := expand(box, facePadding, 50, 50)
	if padded.Left != 0 || padded.Top != 0 {
		t.Fatalf("expected clip to 0, got left=%d top=%d", padded.Left, padded.Top)
	}
	if padded.Right > 50 || padded.Bottom > 50 {
		t.Fatalf("expected clip to image bounds, got right=%d bottom=%d", padded.Right, padded.Bottom)
	}
}

func TestApplyOrientationRotate90(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(0, 0, color.RGBA{255, 0, 0, 255})
	rotated := applyOrientation(img, 6)
	b := rotated.Bounds()
	if b.Dx() != 2 || b.Dy() != 3 {
		t.Fatalf("got %dx%d after rotate90, want 2x3", b.Dx(), b.Dy())
	}
}
