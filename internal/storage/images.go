package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/models"
)

func (s *CatalogueStore) CreateImage(ctx context.Context, img *models.Image) error {
	img.ID = uuid.New()
	metadata, err := json.Marshal(img.Metadata)
	if err != nil {
		return fmt.Errorf("marshal image metadata: %w", err)
	}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO images (id, stored_filename, original_filename, path, thumbnail_path, width, height,
		 byte_size, mime_type, processing_state, is_uploaded, relative_path, metadata, folder_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 RETURNING uploaded_at`,
		img.ID, img.StoredFilename, img.OriginalFilename, img.Path, img.ThumbnailPath, img.Width, img.Height,
		img.ByteSize, img.MimeType, img.ProcessingState, img.IsUploaded, img.RelativePath, metadata, img.FolderID,
	).Scan(&img.UploadedAt)
	if err != nil {
		return fmt.Errorf("create image %s: %w", img.RelativePath, err)
	}
	return nil
}

func (s *CatalogueStore) GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	img := &models.Image{}
	var metadata []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, stored_filename, original_filename, path, thumbnail_path, width, height, byte_size,
		 mime_type, uploaded_at, processing_state, is_uploaded, relative_path, metadata, folder_id, face_ids
		 FROM images WHERE id = $1`, id,
	).Scan(&img.ID, &img.StoredFilename, &img.OriginalFilename, &img.Path, &img.ThumbnailPath, &img.Width,
		&img.Height, &img.ByteSize, &img.MimeType, &img.UploadedAt, &img.ProcessingState, &img.IsUploaded,
		&img.RelativePath, &metadata, &img.FolderID, &img.FaceIDs)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get image %s: %w", id, err)
	}
	if err := json.Unmarshal(metadata, &img.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal image metadata: %w", err)
	}
	return img, nil
}

// UpdateImageState transitions an image's processing state, e.g. to
// "processed" after a successful detect-and-cluster pass or "failed"
// after a transient or decode error (§7).
func (s *CatalogueStore) UpdateImageState(ctx context.Context, id uuid.UUID, state models.ProcessingState) error {
	tag, err := s.pool.Exec(ctx, `UPDATE images SET processing_state = $1 WHERE id = $2`, state, id)
	if err != nil {
		return fmt.Errorf("update image state %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("image %s not found", id)
	}
	return nil
}

func (s *CatalogueStore) SetImageThumbnail(ctx context.Context, id uuid.UUID, thumbnailPath string) error {
	_, err := s.pool.Exec(ctx, `UPDATE images SET thumbnail_path = $1 WHERE id = $2`, thumbnailPath, id)
	if err != nil {
		return fmt.Errorf("set image thumbnail %s: %w", id, err)
	}
	return nil
}

// SetImageFaces patches the denormalised face list (§3, step 9 of §4.7).
func (s *CatalogueStore) SetImageFaces(ctx context.Context, id uuid.UUID, faceIDs []uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE images SET face_ids = $1 WHERE id = $2`, faceIDs, id)
	if err != nil {
		return fmt.Errorf("set image faces %s: %w", id, err)
	}
	return nil
}

// SetImageUploaded marks the image's original+thumbnail as having
// reached the blob sink (§3).
func (s *CatalogueStore) SetImageUploaded(ctx context.Context, id uuid.UUID, uploaded bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE images SET is_uploaded = $1 WHERE id = $2`, uploaded, id)
	if err != nil {
		return fmt.Errorf("set image uploaded %s: %w", id, err)
	}
	return nil
}

// GetImageByRelativePath looks an image up by its resume/retry key.
func (s *CatalogueStore) GetImageByRelativePath(ctx context.Context, relativePath string) (*models.Image, error) {
	img := &models.Image{}
	var metadata []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, stored_filename, original_filename, path, thumbnail_path, width, height, byte_size,
		 mime_type, uploaded_at, processing_state, is_uploaded, relative_path, metadata, folder_id, face_ids
		 FROM images WHERE relative_path = $1`, relativePath,
	).Scan(&img.ID, &img.StoredFilename, &img.OriginalFilename, &img.Path, &img.ThumbnailPath, &img.Width,
		&img.Height, &img.ByteSize, &img.MimeType, &img.UploadedAt, &img.ProcessingState, &img.IsUploaded,
		&img.RelativePath, &metadata, &img.FolderID, &img.FaceIDs)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get image by relative path %s: %w", relativePath, err)
	}
	if err := json.Unmarshal(metadata, &img.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal image metadata: %w", err)
	}
	return img, nil
}

// ListNotUploaded returns every image with is_uploaded=false, the work
// list for the --upload-only backfill pass.
func (s *CatalogueStore) ListNotUploaded(ctx context.Context) ([]models.Image, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, stored_filename, original_filename, path, thumbnail_path, width, height, byte_size,
		 mime_type, uploaded_at, processing_state, is_uploaded, relative_path, metadata, folder_id, face_ids
		 FROM images WHERE is_uploaded = false ORDER BY uploaded_at`)
	if err != nil {
		return nil, fmt.Errorf("list not-uploaded images: %w", err)
	}
	defer rows.Close()

	var out []models.Image
	for rows.Next() {
		var img models.Image
		var metadata []byte
		if err := rows.Scan(&img.ID, &img.StoredFilename, &img.OriginalFilename, &img.Path, &img.ThumbnailPath,
			&img.Width, &img.Height, &img.ByteSize, &img.MimeType, &img.UploadedAt, &img.ProcessingState,
			&img.IsUploaded, &img.RelativePath, &metadata, &img.FolderID, &img.FaceIDs); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		if err := json.Unmarshal(metadata, &img.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal image metadata: %w", err)
		}
		out = append(out, img)
	}
	return out, nil
}

// DeleteAllImages truncates the images collection, the third step of a
// full catalogue cleanup (§4.9 "Cleanup").
func (s *CatalogueStore) DeleteAllImages(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM images`)
	if err != nil {
		return fmt.Errorf("delete all images: %w", err)
	}
	return nil
}

// ListProcessed supports the offline maintenance operations that
// walk already-processed images (thumbnail rebuild, full re-cluster).
func (s *CatalogueStore) ListProcessed(ctx context.Context) ([]models.Image, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, stored_filename, original_filename, path, thumbnail_path, width, height, byte_size,
		 mime_type, uploaded_at, processing_state, is_uploaded, relative_path, metadata, folder_id, face_ids
		 FROM images WHERE processing_state = $1 ORDER BY uploaded_at`, models.ProcessingProcessed)
	if err != nil {
		return nil, fmt.Errorf("list processed images: %w", err)
	}
	defer rows.Close()

	var out []models.Image
	for rows.Next() {
		var img models.Image
		var metadata []byte
		if err := rows.Scan(&img.ID, &img.StoredFilename, &img.OriginalFilename, &img.Path, &img.ThumbnailPath,
			&img.Width, &img.Height, &img.ByteSize, &img.MimeType, &img.UploadedAt, &img.ProcessingState,
			&img.IsUploaded, &img.RelativePath, &metadata, &img.FolderID, &img.FaceIDs); err != nil {
			return nil, fmt.Errorf("scan image: %w", err)
		}
		if err := json.Unmarshal(metadata, &img.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal image metadata: %w", err)
		}
		out = append(out, img)
	}
	return out, nil
}
