package models

import (
	"time"

	"github.com/google/uuid"
)

// Folder is one node of the materialised folder tree mirroring the
// import root's directory structure.
type Folder struct {
	ID        uuid.UUID
	Name      string
	ParentID  *uuid.UUID
	Path      string // slash-separated path from the import root
	CreatedAt time.Time
	UpdatedAt time.Time
}
