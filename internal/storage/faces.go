package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/models"
)

func (s *CatalogueStore) CreateFace(ctx context.Context, f *models.Face) error {
	f.ID = uuid.New()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO faces (id, image_id, person_id, bbox_top, bbox_right, bbox_bottom, bbox_left,
		 embedding_bytes, thumbnail_path, det_score, age, gender)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING created_at`,
		f.ID, f.ImageID, f.PersonID, f.BBox.Top, f.BBox.Right, f.BBox.Bottom, f.BBox.Left,
		f.EmbeddingBytes, f.ThumbnailPath, f.DetScore, f.Age, f.Gender,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("create face: %w", err)
	}
	return nil
}

func (s *CatalogueStore) GetFace(ctx context.Context, faceID uuid.UUID) (*models.Face, error) {
	var f models.Face
	err := s.pool.QueryRow(ctx, `SELECT id, image_id, person_id, bbox_top, bbox_right, bbox_bottom, bbox_left,
		embedding_bytes, thumbnail_path, created_at, det_score, age, gender FROM faces WHERE id = $1`, faceID,
	).Scan(&f.ID, &f.ImageID, &f.PersonID, &f.BBox.Top, &f.BBox.Right, &f.BBox.Bottom, &f.BBox.Left,
		&f.EmbeddingBytes, &f.ThumbnailPath, &f.CreatedAt, &f.DetScore, &f.Age, &f.Gender)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get face %s: %w", faceID, err)
	}
	return &f, nil
}

func (s *CatalogueStore) AssignFacePerson(ctx context.Context, faceID, personID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE faces SET person_id = $1 WHERE id = $2`, personID, faceID)
	if err != nil {
		return fmt.Errorf("assign face %s to person %s: %w", faceID, personID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("face %s not found", faceID)
	}
	return nil
}

func (s *CatalogueStore) SetFaceThumbnail(ctx context.Context, faceID uuid.UUID, thumbnailPath string) error {
	_, err := s.pool.Exec(ctx, `UPDATE faces SET thumbnail_path = $1 WHERE id = $2`, thumbnailPath, faceID)
	if err != nil {
		return fmt.Errorf("set face thumbnail %s: %w", faceID, err)
	}
	return nil
}

func (s *CatalogueStore) ListFacesByImage(ctx context.Context, imageID uuid.UUID) ([]models.Face, error) {
	return s.queryFaces(ctx, `SELECT id, image_id, person_id, bbox_top, bbox_right, bbox_bottom, bbox_left,
		embedding_bytes, thumbnail_path, created_at, det_score, age, gender FROM faces WHERE image_id = $1`, imageID)
}

func (s *CatalogueStore) ListFacesByPerson(ctx context.Context, personID uuid.UUID) ([]models.Face, error) {
	return s.queryFaces(ctx, `SELECT id, image_id, person_id, bbox_top, bbox_right, bbox_bottom, bbox_left,
		embedding_bytes, thumbnail_path, created_at, det_score, age, gender FROM faces WHERE person_id = $1`, personID)
}

// ReassignPerson moves every face belonging to fromPerson onto toPerson,
// used by the offline merge operation (§4.6).
func (s *CatalogueStore) ReassignPerson(ctx context.Context, fromPerson, toPerson uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE faces SET person_id = $1 WHERE person_id = $2`, toPerson, fromPerson)
	if err != nil {
		return fmt.Errorf("reassign faces from %s to %s: %w", fromPerson, toPerson, err)
	}
	return nil
}

// SetFacesThumbnailPath rewrites the thumbnail_path of every face
// belonging to personID, used after a merge to point the moved faces'
// per-face crops at the survivor's representative thumbnail (§4.6).
func (s *CatalogueStore) SetFacesThumbnailPath(ctx context.Context, personID uuid.UUID, thumbnailPath string) error {
	_, err := s.pool.Exec(ctx, `UPDATE faces SET thumbnail_path = $1 WHERE person_id = $2`, thumbnailPath, personID)
	if err != nil {
		return fmt.Errorf("set thumbnail path for person %s faces: %w", personID, err)
	}
	return nil
}

func (s *CatalogueStore) DeleteFace(ctx context.Context, faceID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM faces WHERE id = $1`, faceID)
	if err != nil {
		return fmt.Errorf("delete face %s: %w", faceID, err)
	}
	return nil
}

// ListAllFaces returns every face in the catalogue, ordered by id for a
// deterministic (but arbitrary) re-cluster order (§4.6).
func (s *CatalogueStore) ListAllFaces(ctx context.Context) ([]models.Face, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, image_id, person_id, bbox_top, bbox_right, bbox_bottom, bbox_left,
		embedding_bytes, thumbnail_path, created_at, det_score, age, gender FROM faces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list all faces: %w", err)
	}
	defer rows.Close()

	var out []models.Face
	for rows.Next() {
		var f models.Face
		if err := rows.Scan(&f.ID, &f.ImageID, &f.PersonID, &f.BBox.Top, &f.BBox.Right, &f.BBox.Bottom,
			&f.BBox.Left, &f.EmbeddingBytes, &f.ThumbnailPath, &f.CreatedAt, &f.DetScore, &f.Age, &f.Gender); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}

// ClearAllFacePersons nulls every face's person reference, the first
// step of an offline full re-cluster (§4.6).
func (s *CatalogueStore) ClearAllFacePersons(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `UPDATE faces SET person_id = NULL`)
	if err != nil {
		return fmt.Errorf("clear all face persons: %w", err)
	}
	return nil
}

func (s *CatalogueStore) queryFaces(ctx context.Context, query string, arg uuid.UUID) ([]models.Face, error) {
	rows, err := s.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("query faces: %w", err)
	}
	defer rows.Close()

	var out []models.Face
	for rows.Next() {
		var f models.Face
		if err := rows.Scan(&f.ID, &f.ImageID, &f.PersonID, &f.BBox.Top, &f.BBox.Right, &f.BBox.Bottom,
			&f.BBox.Left, &f.EmbeddingBytes, &f.ThumbnailPath, &f.CreatedAt, &f.DetScore, &f.Age, &f.Gender); err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}
