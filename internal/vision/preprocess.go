package vision

import "image"

// toCHW stretches img to exactly w x h (no aspect preservation — the
// detector and embedder both expect a fixed tensor shape) and returns
// it as a planar (channel, height, width) float32 slice normalized by
// (pixel - mean) / std, matching the preprocessing each ONNX model was
// trained with.
func toCHW(img image.Image, w, h int, mean, std float32) []float32 {
	b := img.Bounds()
	sw, sh := b.Dx(), b.Dy()

	out := make([]float32, 3*h*w)
	plane := h * w

	for y := 0; y < h; y++ {
		sy := b.Min.Y + y*sh/h
		for x := 0; x < w; x++ {
			sx := b.Min.X + x*sw/w
			r, g, bl, _ := img.At(sx, sy).RGBA()
			idx := y*w + x
			out[0*plane+idx] = (float32(r>>8) - mean) / std
			out[1*plane+idx] = (float32(g>>8) - mean) / std
			out[2*plane+idx] = (float32(bl>>8) - mean) / std
		}
	}
	return out
}

// DetectorInput preprocesses a full image for RetinaFace: 640x640,
// normalized (pixel-127.5)/128.
func DetectorInput(img image.Image, w, h int) []float32 {
	return toCHW(img, w, h, 127.5, 128)
}

// EmbedderInput preprocesses a face crop for ArcFace: 112x112,
// normalized (pixel-127.5)/127.5.
func EmbedderInput(img image.Image, w, h int) []float32 {
	return toCHW(img, w, h, 127.5, 127.5)
}

// AttributeInput preprocesses a face crop for the genderage model:
// 96x96, normalized (pixel-0)/1 per InsightFace's genderage preprocessing.
func AttributeInput(img image.Image, w, h int) []float32 {
	return toCHW(img, w, h, 0, 1)
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

// CropRect returns the sub-image of img within r, clipped to bounds.
func CropRect(img image.Image, r image.Rectangle) image.Image {
	r = r.Intersect(img.Bounds())
	if si, ok := img.(subImager); ok {
		return si.SubImage(r)
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			dst.Set(x-r.Min.X, y-r.Min.Y, img.At(x, y))
		}
	}
	return dst
}
