package models

import (
	"time"

	"github.com/google/uuid"
)

// BBox is a face bounding box in pixel coordinates, top/right/bottom/left
// order to match the catalogue's storage convention.
type BBox struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

func (b BBox) Width() int  { return b.Right - b.Left }
func (b BBox) Height() int { return b.Bottom - b.Top }

// Within reports whether b lies inside the extent [0,width) x [0,height).
func (b BBox) Within(width, height int) bool {
	return b.Left >= 0 && b.Top >= 0 && b.Right <= width && b.Bottom <= height && b.Left < b.Right && b.Top < b.Bottom
}

// TouchesEdge reports whether b comes within margin pixels of the image edge.
func (b BBox) TouchesEdge(width, height, margin int) bool {
	return b.Left <= margin || b.Top <= margin || b.Right >= width-margin || b.Bottom >= height-margin
}

// Face is one detected face belonging to an image.
type Face struct {
	ID             uuid.UUID
	ImageID        uuid.UUID
	PersonID       *uuid.UUID // null during the brief window before clustering
	BBox           BBox
	EmbeddingBytes []byte
	ThumbnailPath  string
	CreatedAt      time.Time
	DetScore       float64
	Age            *int
	Gender         *string
}
