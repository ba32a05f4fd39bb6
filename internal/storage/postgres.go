// Package storage adapts the catalogue's four collections (images,
// faces, persons, folders) onto Postgres via pgx, and the blob sink
// onto MinIO, per §4.4 and §6.
package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/facecat/facecat/internal/config"
)

// CatalogueStore is the document-store collaborator of §1/§4.4,
// implemented as one Postgres table per collection. Every write below
// is a single statement, so per-document atomicity holds without an
// explicit transaction.
type CatalogueStore struct {
	pool *pgxpool.Pool
}

func NewCatalogueStore(cfg config.DatabaseConfig) (*CatalogueStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &CatalogueStore{pool: pool}, nil
}

func (s *CatalogueStore) Close() {
	s.pool.Close()
}

func (s *CatalogueStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// schemaDDL is applied by Migrate, which cmd/ingest runs at startup; it
// names the required indices from §4.4 directly.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS folders (
	id uuid PRIMARY KEY,
	name text NOT NULL,
	parent_id uuid REFERENCES folders(id),
	path text NOT NULL UNIQUE,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_folders_path ON folders(path);

CREATE TABLE IF NOT EXISTS images (
	id uuid PRIMARY KEY,
	stored_filename text NOT NULL,
	original_filename text NOT NULL,
	path text NOT NULL,
	thumbnail_path text NOT NULL DEFAULT '',
	width int NOT NULL DEFAULT 0,
	height int NOT NULL DEFAULT 0,
	byte_size bigint NOT NULL DEFAULT 0,
	mime_type text NOT NULL DEFAULT '',
	uploaded_at timestamptz NOT NULL DEFAULT now(),
	processing_state text NOT NULL DEFAULT 'pending',
	is_uploaded boolean NOT NULL DEFAULT false,
	relative_path text NOT NULL UNIQUE,
	metadata jsonb NOT NULL DEFAULT '{}',
	folder_id uuid REFERENCES folders(id),
	face_ids uuid[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_images_processed ON images(processing_state);
CREATE INDEX IF NOT EXISTS idx_images_uploaded_at ON images(uploaded_at);

CREATE TABLE IF NOT EXISTS persons (
	id uuid PRIMARY KEY,
	name text,
	created_at timestamptz NOT NULL DEFAULT now(),
	updated_at timestamptz NOT NULL DEFAULT now(),
	representative_face_id uuid,
	best_face_score double precision NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_persons_name ON persons(name);
CREATE INDEX IF NOT EXISTS idx_persons_created_at ON persons(created_at);

CREATE TABLE IF NOT EXISTS faces (
	id uuid PRIMARY KEY,
	image_id uuid NOT NULL REFERENCES images(id),
	person_id uuid REFERENCES persons(id),
	bbox_top int NOT NULL,
	bbox_right int NOT NULL,
	bbox_bottom int NOT NULL,
	bbox_left int NOT NULL,
	embedding_bytes bytea NOT NULL,
	thumbnail_path text NOT NULL DEFAULT '',
	created_at timestamptz NOT NULL DEFAULT now(),
	det_score double precision NOT NULL DEFAULT 0,
	age int,
	gender text
);
CREATE INDEX IF NOT EXISTS idx_faces_image_id ON faces(image_id);
CREATE INDEX IF NOT EXISTS idx_faces_person_id ON faces(person_id);
`

// Migrate applies schemaDDL. Idempotent: safe to run on every startup.
func (s *CatalogueStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func isNoRows(err error) bool {
	return err == pgx.ErrNoRows
}
