package folders

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/models"
)

type fakeStore struct {
	byPath map[string]*models.Folder
	calls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byPath: make(map[string]*models.Folder)}
}

func (s *fakeStore) EnsureFolder(ctx context.Context, path, name string, parentID *uuid.UUID) (*models.Folder, error) {
	s.calls++
	if f, ok := s.byPath[path]; ok {
		return f, nil
	}
	f := &models.Folder{ID: uuid.New(), Name: name, ParentID: parentID, Path: path}
	s.byPath[path] = f
	return f, nil
}

func TestEnsurePathCreatesEachComponent(t *testing.T) {
	store := newFakeStore()
	m := New(store)

	leaf, err := m.EnsurePath(context.Background(), "2024/vacation/beach")
	if err != nil {
		t.Fatalf("EnsurePath: %v", err)
	}
	if leaf == nil || leaf.Name != "beach" {
		t.Fatalf("leaf = %+v, want folder named beach", leaf)
	}
	if store.calls != 3 {
		t.Fatalf("calls = %d, want 3", store.calls)
	}

	beach := store.byPath["2024/vacation/beach"]
	vacation := store.byPath["2024/vacation"]
	if beach.ParentID == nil || *beach.ParentID != vacation.ID {
		t.Fatalf("beach parent = %v, want vacation id %v", beach.ParentID, vacation.ID)
	}
}

func TestEnsurePathIdempotent(t *testing.T) {
	store := newFakeStore()
	m := New(store)
	ctx := context.Background()

	first, err := m.EnsurePath(ctx, "a/b")
	if err != nil {
		t.Fatalf("first EnsurePath: %v", err)
	}
	second, err := m.EnsurePath(ctx, "a/b")
	if err != nil {
		t.Fatalf("second EnsurePath: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("got different folder ids %v != %v across repeated calls", first.ID, second.ID)
	}
	if store.calls != 4 {
		t.Fatalf("calls = %d, want 4 (2 components x 2 passes)", store.calls)
	}
}

func TestEnsurePathRootIsNoop(t *testing.T) {
	store := newFakeStore()
	m := New(store)

	for _, rel := range []string{"", ".", "/"} {
		f, err := m.EnsurePath(context.Background(), rel)
		if err != nil {
			t.Fatalf("EnsurePath(%q): %v", rel, err)
		}
		if f != nil {
			t.Fatalf("EnsurePath(%q) = %+v, want nil", rel, f)
		}
	}
	if store.calls != 0 {
		t.Fatalf("calls = %d, want 0 for root paths", store.calls)
	}
}

func TestEnsurePathBackslashSeparators(t *testing.T) {
	store := newFakeStore()
	m := New(store)

	leaf, err := m.EnsurePath(context.Background(), `2024\vacation`)
	if err != nil {
		t.Fatalf("EnsurePath: %v", err)
	}
	if leaf == nil || leaf.Name != "vacation" {
		t.Fatalf("leaf = %+v, want folder named vacation", leaf)
	}
	if _, ok := store.byPath["2024/vacation"]; !ok {
		t.Fatalf("expected slash-normalised path 2024/vacation to be stored")
	}
}
