// Package thumbnail generates the whole-image and face-crop JPEGs the
// worker attaches to each processed image and face (§4.3).
package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/facecat/facecat/internal/models"
)

const (
	// WholeImageMax is the bounding box whole-image thumbnails are
	// resized to fit, preserving aspect ratio.
	WholeImageMax = 300
	// FaceMax is the bounding box face-crop thumbnails are resized to
	// fit, preserving aspect ratio.
	FaceMax = 150

	wholeImageQuality = 85
	faceQuality       = 90

	// facePadding is the fraction of bbox width/height added on each
	// axis before cropping, per §4.3.
	facePadding = 0.3
)

// Whole decodes src, corrects its EXIF orientation, resizes it to fit
// within WholeImageMax x WholeImageMax preserving aspect ratio, and
// returns a quality-85 JPEG. src must support Seek back to the start
// for the EXIF pass; callers typically pass a *bytes.Reader.
func Whole(src io.ReadSeeker) ([]byte, error) {
	orientation, err := readOrientation(src)
	if err != nil {
		orientation = 1 // no EXIF, or unreadable: treat as already upright
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return nil, err
	}

	img = applyOrientation(img, orientation)
	img = resizeToFit(img, WholeImageMax, WholeImageMax)
	return encodeJPEG(img, wholeImageQuality)
}

// Face crops box out of img (already orientation-corrected), expanded
// by facePadding on each axis and clipped to img's bounds, resizes the
// crop to fit within FaceMax x FaceMax, and returns a quality-90 JPEG.
func Face(img image.Image, box models.BBox) ([]byte, error) {
	padded := expand(box, facePadding, img.Bounds().Dx(), img.Bounds().Dy())
	cropped := crop(img, padded)
	resized := resizeToFit(cropped, FaceMax, FaceMax)
	return encodeJPEG(resized, faceQuality)
}

// DecodeOriented decodes src and returns the orientation-corrected
// image, for callers (e.g. the face cropper) that need the upright
// pixel data directly rather than a finished thumbnail.
func DecodeOriented(src io.ReadSeeker) (image.Image, error) {
	orientation, err := readOrientation(src)
	if err != nil {
		orientation = 1
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, err
	}
	return applyOrientation(img, orientation), nil
}

func readOrientation(src io.ReadSeeker) (int, error) {
	x, err := exif.Decode(src)
	if err != nil {
		return 1, err
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1, err
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1, err
	}
	return v, nil
}

// expand grows box by frac of its width/height on each side, clipped
// to [0, width) x [0, height).
func expand(box models.BBox, frac float64, width, height int) models.BBox {
	dw := int(float64(box.Width()) * frac)
	dh := int(float64(box.Height()) * frac)

	left := box.Left - dw
	top := box.Top - dh
	right := box.Right + dw
	bottom := box.Bottom + dh

	if left < 0 {
		left = 0
	}
	if top < 0 {
		top = 0
	}
	if right > width {
		right = width
	}
	if bottom > height {
		bottom = height
	}
	return models.BBox{Left: left, Top: top, Right: right, Bottom: bottom}
}

type subImager interface {
	SubImage(r image.Rectangle) image.Image
}

func crop(img image.Image, box models.BBox) image.Image {
	r := image.Rect(box.Left, box.Top, box.Right, box.Bottom).Intersect(img.Bounds())
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

// resizeToFit nearest-neighbour resizes img so it fits within
// maxW x maxH, preserving aspect ratio. Images already within bounds
// are returned unscaled.
func resizeToFit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	scale := float64(maxW) / float64(w)
	if alt := float64(maxH) / float64(h); alt < scale {
		scale = alt
	}
	nw := int(float64(w) * scale)
	nh := int(float64(h) * scale)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	for y := 0; y < nh; y++ {
		sy := b.Min.Y + y*h/nh
		for x := 0; x < nw; x++ {
			sx := b.Min.X + x*w/nw
			dst.Set(x, y, img.At(sx, sy))
		}
	}
	return dst
}

// encodeJPEG flattens any alpha onto white (JPEG carries no alpha
// channel) and encodes at the given quality.
func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	b := img.Bounds()
	rgb := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			if a == 0xffff {
				rgb.Set(x, y, color.RGBA{uint8(r >> 8), uint8(g >> 8), uint8(bl >> 8), 0xff})
				continue
			}
			af := float64(a) / 0xffff
			blend := func(c uint32) uint8 {
				cf := float64(c>>8) / 255
				out := cf*af + 1*(1-af)
				return uint8(out * 255)
			}
			rgb.Set(x, y, color.RGBA{blend(r), blend(g), blend(bl), 0xff})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
