package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/models"
)

// EnsureFolder upserts the single folder row at path and returns the
// (possibly pre-existing) folder. It does not create ancestors; the
// folders.Materialiser walks the chain one component at a time.
// Concurrent callers racing on the same path converge on one row: the
// insert conflicts on the path unique constraint and the ON CONFLICT
// update returns the row that won (§4.5).
func (s *CatalogueStore) EnsureFolder(ctx context.Context, path, name string, parentID *uuid.UUID) (*models.Folder, error) {
	f := &models.Folder{ID: uuid.New(), Name: name, ParentID: parentID, Path: path}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO folders (id, name, parent_id, path) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (path) DO UPDATE SET updated_at = now()
		 RETURNING id, name, parent_id, path, created_at, updated_at`,
		f.ID, f.Name, f.ParentID, f.Path,
	).Scan(&f.ID, &f.Name, &f.ParentID, &f.Path, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ensure folder %s: %w", path, err)
	}
	return f, nil
}

func (s *CatalogueStore) GetFolderByPath(ctx context.Context, path string) (*models.Folder, error) {
	f := &models.Folder{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, parent_id, path, created_at, updated_at FROM folders WHERE path = $1`, path,
	).Scan(&f.ID, &f.Name, &f.ParentID, &f.Path, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get folder %s: %w", path, err)
	}
	return f, nil
}

// DeleteAllFolders truncates the folders collection, the last step of a
// full catalogue cleanup (§4.9 "Cleanup"). Callers must delete every
// image first: folders.id is still referenced by images.folder_id.
func (s *CatalogueStore) DeleteAllFolders(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM folders`)
	if err != nil {
		return fmt.Errorf("delete all folders: %w", err)
	}
	return nil
}

func (s *CatalogueStore) ListFolders(ctx context.Context) ([]models.Folder, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, parent_id, path, created_at, updated_at FROM folders ORDER BY path`)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	defer rows.Close()

	var out []models.Folder
	for rows.Next() {
		var f models.Folder
		if err := rows.Scan(&f.ID, &f.Name, &f.ParentID, &f.Path, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan folder: %w", err)
		}
		out = append(out, f)
	}
	return out, nil
}
