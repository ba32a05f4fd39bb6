package models

import (
	"time"

	"github.com/google/uuid"
)

// Person is a cluster of faces believed to depict one individual.
type Person struct {
	ID                   uuid.UUID
	Name                 *string // nil = unlabeled
	CreatedAt            time.Time
	UpdatedAt            time.Time
	RepresentativeFaceID *uuid.UUID
	BestFaceScore        float64
}

// Named reports whether the person has a user-assigned name.
func (p Person) Named() bool {
	return p.Name != nil && *p.Name != ""
}
