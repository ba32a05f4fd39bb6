package cluster

import (
	"context"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/models"
)

// Store is the slice of the catalogue store the clustering engine
// depends on. *storage.CatalogueStore satisfies it; tests substitute a
// fake.
type Store interface {
	CreatePerson(ctx context.Context, repFaceID uuid.UUID, bestFaceScore float64) (*models.Person, error)
	GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error)
	SetPersonName(ctx context.Context, id uuid.UUID, name string) error
	AssignFacePerson(ctx context.Context, faceID, personID uuid.UUID) error
	UpdateRepresentative(ctx context.Context, id, faceID uuid.UUID, score float64) error
	ForceSetRepresentative(ctx context.Context, id, faceID uuid.UUID, score float64) error
	ReassignPerson(ctx context.Context, fromPerson, toPerson uuid.UUID) error
	SetFacesThumbnailPath(ctx context.Context, personID uuid.UUID, thumbnailPath string) error
	DeletePerson(ctx context.Context, id uuid.UUID) error
	ListPersons(ctx context.Context) ([]models.Person, error)
	ListFacesByPerson(ctx context.Context, personID uuid.UUID) ([]models.Face, error)
	ListAllFaces(ctx context.Context) ([]models.Face, error)
	ClearAllFacePersons(ctx context.Context) error
	DeleteAllPersons(ctx context.Context) error
	GetFace(ctx context.Context, faceID uuid.UUID) (*models.Face, error)
	GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error)
}

// BlobSink is the slice of the blob-sink collaborator (§6) the engine
// needs to publish representative thumbnails.
type BlobSink interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}
