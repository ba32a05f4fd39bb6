package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/models"
)

func (s *CatalogueStore) CreatePerson(ctx context.Context, repFaceID uuid.UUID, bestFaceScore float64) (*models.Person, error) {
	p := &models.Person{ID: uuid.New(), RepresentativeFaceID: &repFaceID, BestFaceScore: bestFaceScore}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO persons (id, representative_face_id, best_face_score) VALUES ($1, $2, $3)
		 RETURNING created_at, updated_at`,
		p.ID, p.RepresentativeFaceID, p.BestFaceScore,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create person: %w", err)
	}
	return p, nil
}

func (s *CatalogueStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p := &models.Person{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at, updated_at, representative_face_id, best_face_score FROM persons WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt, &p.RepresentativeFaceID, &p.BestFaceScore)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get person %s: %w", id, err)
	}
	return p, nil
}

func (s *CatalogueStore) SetPersonName(ctx context.Context, id uuid.UUID, name string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE persons SET name = $1, updated_at = now() WHERE id = $2`, name, id)
	if err != nil {
		return fmt.Errorf("set person name %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("person %s not found", id)
	}
	return nil
}

// UpdateRepresentative sets the representative face and score only if
// score exceeds the person's current best, keeping best_face_score
// monotonically non-decreasing (§4.2, testable property §8).
func (s *CatalogueStore) UpdateRepresentative(ctx context.Context, id, faceID uuid.UUID, score float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE persons SET representative_face_id = $1, best_face_score = $2, updated_at = now()
		 WHERE id = $3 AND best_face_score < $2`,
		faceID, score, id)
	if err != nil {
		return fmt.Errorf("update representative for person %s: %w", id, err)
	}
	return nil
}

// ForceSetRepresentative unconditionally sets a person's representative
// face and score, used by offline recomputation (merge, fix-orientation)
// where the caller has already determined the correct winner (§4.6, §4.9).
func (s *CatalogueStore) ForceSetRepresentative(ctx context.Context, id, faceID uuid.UUID, score float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE persons SET representative_face_id = $1, best_face_score = $2, updated_at = now() WHERE id = $3`,
		faceID, score, id)
	if err != nil {
		return fmt.Errorf("force set representative for person %s: %w", id, err)
	}
	return nil
}

func (s *CatalogueStore) DeletePerson(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM persons WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete person %s: %w", id, err)
	}
	return nil
}

// DeleteAllPersons removes every person document, the second step of an
// offline full re-cluster (§4.6).
func (s *CatalogueStore) DeleteAllPersons(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM persons`)
	if err != nil {
		return fmt.Errorf("delete all persons: %w", err)
	}
	return nil
}

// ListPersons returns every person, used by the online worker to build
// the static exemplar snapshot (§4.2/§4.8) and by offline maintenance.
func (s *CatalogueStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, created_at, updated_at, representative_face_id, best_face_score
		 FROM persons ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list persons: %w", err)
	}
	defer rows.Close()

	var out []models.Person
	for rows.Next() {
		var p models.Person
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt, &p.RepresentativeFaceID, &p.BestFaceScore); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}
