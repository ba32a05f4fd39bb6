// Package folders implements the idempotent folder-path materialiser
// (C5, §4.5): turning a slash-separated relative path into a chain of
// folder rows mirroring the import tree.
package folders

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/models"
)

// Store is the slice of the catalogue store the materialiser needs.
type Store interface {
	EnsureFolder(ctx context.Context, path, name string, parentID *uuid.UUID) (*models.Folder, error)
}

// Materialiser walks the components of a relative path, upserting one
// folder per component keyed by its full path from the import root.
type Materialiser struct {
	store Store
}

func New(store Store) *Materialiser {
	return &Materialiser{store: store}
}

// EnsurePath walks relativeDir ("a/b/c") and returns the leaf folder,
// creating every missing ancestor along the way. The root directory
// itself ("" or ".") is not represented as a folder row. Safe to call
// concurrently for overlapping prefixes: each component upsert resolves
// via EnsureFolder's ON CONFLICT retry (§4.5).
func (m *Materialiser) EnsurePath(ctx context.Context, relativeDir string) (*models.Folder, error) {
	clean := path.Clean(filepathToSlash(relativeDir))
	if clean == "." || clean == "" {
		return nil, nil
	}

	components := strings.Split(clean, "/")
	var parentID *uuid.UUID
	var current *models.Folder
	accPath := ""

	for _, name := range components {
		if name == "" {
			continue
		}
		if accPath == "" {
			accPath = name
		} else {
			accPath = accPath + "/" + name
		}
		f, err := m.store.EnsureFolder(ctx, accPath, name, parentID)
		if err != nil {
			return nil, fmt.Errorf("ensure folder %s: %w", accPath, err)
		}
		current = f
		id := f.ID
		parentID = &id
	}

	return current, nil
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
