package models

import (
	"time"

	"github.com/google/uuid"
)

// ProcessingState is the lifecycle state of an ingested image.
type ProcessingState string

const (
	ProcessingPending   ProcessingState = "pending"
	ProcessingProcessed ProcessingState = "processed"
	ProcessingFailed    ProcessingState = "failed"
)

// ImageMetadata holds the EXIF tags the catalogue cares about.
type ImageMetadata struct {
	DateTime     *time.Time `json:"date_time,omitempty"`
	CameraMake   string     `json:"camera_make,omitempty"`
	CameraModel  string     `json:"camera_model,omitempty"`
	GPSLatitude  *float64   `json:"gps_latitude,omitempty"`
	GPSLongitude *float64   `json:"gps_longitude,omitempty"`
}

// Image is one ingested photograph.
type Image struct {
	ID               uuid.UUID
	StoredFilename   string // generated, globally unique
	OriginalFilename string
	Path             string // absolute on-disk path
	ThumbnailPath    string
	Width            int
	Height           int
	ByteSize         int64
	MimeType         string
	UploadedAt       time.Time
	ProcessingState  ProcessingState
	IsUploaded       bool
	RelativePath     string // relative to import root; resume/retry key
	Metadata         ImageMetadata
	FolderID         uuid.UUID
	FaceIDs          []uuid.UUID // denormalised for fast image-detail reads
}
