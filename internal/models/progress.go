package models

import (
	"time"

	"github.com/google/uuid"
)

// FaceSummary is the per-face payload recorded in the progress log.
type FaceSummary struct {
	FaceID        uuid.UUID `json:"face_id"`
	PersonID      uuid.UUID `json:"person_id"`
	ThumbnailPath string    `json:"thumbnail_path"`
}

// ProgressData is the value half of a progress log line.
type ProgressData struct {
	ProcessedAt time.Time     `json:"processed_at"`
	Thumbnail   string        `json:"thumbnail"`
	Faces       []FaceSummary `json:"faces"`
}

// ProgressRecord is one line of the append-only progress log:
// {"key": "<relative path>", "data": {...}}.
type ProgressRecord struct {
	Key  string       `json:"key"`
	Data ProgressData `json:"data"`
}
