package cluster

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/codec"
	"github.com/facecat/facecat/internal/models"
	"github.com/facecat/facecat/internal/similarity"
)

// fakeStore is an in-memory Store used only by this package's tests.
type fakeStore struct {
	mu      sync.Mutex
	persons map[uuid.UUID]*models.Person
	faces   map[uuid.UUID]*models.Face
}

func newFakeStore() *fakeStore {
	return &fakeStore{persons: map[uuid.UUID]*models.Person{}, faces: map[uuid.UUID]*models.Face{}}
}

func (s *fakeStore) CreatePerson(ctx context.Context, repFaceID uuid.UUID, bestFaceScore float64) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := &models.Person{ID: uuid.New(), RepresentativeFaceID: &repFaceID, BestFaceScore: bestFaceScore}
	s.persons[p.ID] = p
	return p, nil
}

func (s *fakeStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *fakeStore) SetPersonName(ctx context.Context, id uuid.UUID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons[id].Name = &name
	return nil
}

func (s *fakeStore) AssignFacePerson(ctx context.Context, faceID, personID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faces[faceID]
	if !ok {
		f = &models.Face{ID: faceID}
		s.faces[faceID] = f
	}
	f.PersonID = &personID
	return nil
}

func (s *fakeStore) UpdateRepresentative(ctx context.Context, id, faceID uuid.UUID, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[id]
	if !ok {
		return nil
	}
	if score > p.BestFaceScore {
		p.BestFaceScore = score
		p.RepresentativeFaceID = &faceID
	}
	return nil
}

func (s *fakeStore) ForceSetRepresentative(ctx context.Context, id, faceID uuid.UUID, score float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.persons[id]
	if !ok {
		return nil
	}
	p.BestFaceScore = score
	p.RepresentativeFaceID = &faceID
	return nil
}

func (s *fakeStore) ReassignPerson(ctx context.Context, fromPerson, toPerson uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.faces {
		if f.PersonID != nil && *f.PersonID == fromPerson {
			pid := toPerson
			f.PersonID = &pid
		}
	}
	return nil
}

func (s *fakeStore) SetFacesThumbnailPath(ctx context.Context, personID uuid.UUID, thumbnailPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.faces {
		if f.PersonID != nil && *f.PersonID == personID {
			f.ThumbnailPath = thumbnailPath
		}
	}
	return nil
}

func (s *fakeStore) DeletePerson(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.persons, id)
	return nil
}

func (s *fakeStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Person
	for _, p := range s.persons {
		out = append(out, *p)
	}
	return out, nil
}

func (s *fakeStore) ListFacesByPerson(ctx context.Context, personID uuid.UUID) ([]models.Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Face
	for _, f := range s.faces {
		if f.PersonID != nil && *f.PersonID == personID {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (s *fakeStore) ListAllFaces(ctx context.Context) ([]models.Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Face
	for _, f := range s.faces {
		out = append(out, *f)
	}
	return out, nil
}

func (s *fakeStore) ClearAllFacePersons(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range s.faces {
		f.PersonID = nil
	}
	return nil
}

func (s *fakeStore) DeleteAllPersons(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persons = map[uuid.UUID]*models.Person{}
	return nil
}

func (s *fakeStore) GetFace(ctx context.Context, faceID uuid.UUID) (*models.Face, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.faces[faceID]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}

func (s *fakeStore) GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	return nil, nil // recompute-from-disk path is not exercised by these tests
}

func vec512(bump float32) codec.Vector {
	v := make([]float32, 512)
	v[0] = 1
	if bump != 0 {
		v[0] = 1 - bump
		v[1] = bump
	}
	return codec.Vector{ElemType: codec.F32, Dim: 512, F32: v}
}

func TestMatchOrCreateNewPersonThenMatch(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := NewEngine(store, nil, defaultTol(), t.TempDir())
	view := NewWorkerView(&Snapshot{}, NewSharedClusters())

	face1 := uuid.New()
	p1, isNew1, err := engine.MatchOrCreate(ctx, view, face1, vec512(0), 0.9)
	if err != nil || !isNew1 {
		t.Fatalf("expected new person, got isNew=%v err=%v", isNew1, err)
	}

	face2 := uuid.New()
	p2, isNew2, err := engine.MatchOrCreate(ctx, view, face2, vec512(0), 0.7)
	if err != nil {
		t.Fatalf("MatchOrCreate: %v", err)
	}
	if isNew2 || p2 != p1 {
		t.Fatalf("expected second identical face to match %v, got p=%v isNew=%v", p1, p2, isNew2)
	}
}

func TestRepresentativeMonotonic(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	p, _ := store.CreatePerson(ctx, uuid.New(), 0.5)

	if err := store.UpdateRepresentative(ctx, p.ID, uuid.New(), 0.9); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.GetPerson(ctx, p.ID)
	if got.BestFaceScore != 0.9 {
		t.Fatalf("expected 0.9, got %v", got.BestFaceScore)
	}

	if err := store.UpdateRepresentative(ctx, p.ID, uuid.New(), 0.3); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ = store.GetPerson(ctx, p.ID)
	if got.BestFaceScore != 0.9 {
		t.Fatalf("best_face_score must not decrease, got %v", got.BestFaceScore)
	}
}

func TestMergeRefusesDifferentlyNamed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := NewEngine(store, nil, defaultTol(), t.TempDir())

	a, _ := store.CreatePerson(ctx, uuid.New(), 0.5)
	b, _ := store.CreatePerson(ctx, uuid.New(), 0.5)
	store.SetPersonName(ctx, a.ID, "Alice")
	store.SetPersonName(ctx, b.ID, "Bob")

	if err := engine.Merge(ctx, a.ID, b.ID); err == nil {
		t.Fatal("expected merge of differently-named persons to be refused")
	}
}

func TestMergeNamedWinsOverUnnamed(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	engine := NewEngine(store, nil, defaultTol(), t.TempDir())

	named, _ := store.CreatePerson(ctx, uuid.New(), 0.5)
	store.SetPersonName(ctx, named.ID, "Alice")
	unnamed, _ := store.CreatePerson(ctx, uuid.New(), 0.5)

	// merge(source=unnamed, target=named) should keep the named record
	if err := engine.Merge(ctx, unnamed.ID, named.ID); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if _, err := store.GetPerson(ctx, named.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if p, _ := store.GetPerson(ctx, named.ID); p == nil {
		t.Fatal("named survivor should still exist")
	}
	if p, _ := store.GetPerson(ctx, unnamed.ID); p != nil {
		t.Fatal("unnamed person should have been deleted")
	}

	// Now the reverse direction: source named, target unnamed — the
	// named record must still win even though it's passed as source.
	named2, _ := store.CreatePerson(ctx, uuid.New(), 0.5)
	store.SetPersonName(ctx, named2.ID, "Carol")
	unnamed2, _ := store.CreatePerson(ctx, uuid.New(), 0.5)

	if err := engine.Merge(ctx, named2.ID, unnamed2.ID); err != nil {
		t.Fatalf("merge: %v", err)
	}
	if p, _ := store.GetPerson(ctx, named2.ID); p == nil {
		t.Fatal("named source should survive the merge")
	}
	if p, _ := store.GetPerson(ctx, unnamed2.ID); p != nil {
		t.Fatal("unnamed target should have been deleted")
	}
}

func defaultTol() similarity.Tolerances {
	return similarity.DefaultTolerances()
}
