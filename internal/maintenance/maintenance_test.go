package maintenance

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/facecat/facecat/internal/models"
)

// fakeStore is an in-memory Store used only by this package's tests; it
// only implements the subset Prune actually exercises.
type fakeStore struct {
	images  map[uuid.UUID]*models.Image
	faces   map[uuid.UUID]*models.Face
	persons map[uuid.UUID]*models.Person
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		images:  map[uuid.UUID]*models.Image{},
		faces:   map[uuid.UUID]*models.Face{},
		persons: map[uuid.UUID]*models.Person{},
	}
}

func (s *fakeStore) CreatePerson(ctx context.Context, repFaceID uuid.UUID, bestFaceScore float64) (*models.Person, error) {
	p := &models.Person{ID: uuid.New(), RepresentativeFaceID: &repFaceID, BestFaceScore: bestFaceScore}
	s.persons[p.ID] = p
	return p, nil
}
func (s *fakeStore) GetPerson(ctx context.Context, id uuid.UUID) (*models.Person, error) {
	p, ok := s.persons[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}
func (s *fakeStore) SetPersonName(ctx context.Context, id uuid.UUID, name string) error {
	s.persons[id].Name = &name
	return nil
}
func (s *fakeStore) AssignFacePerson(ctx context.Context, faceID, personID uuid.UUID) error {
	s.faces[faceID].PersonID = &personID
	return nil
}
func (s *fakeStore) UpdateRepresentative(ctx context.Context, id, faceID uuid.UUID, score float64) error {
	return nil
}
func (s *fakeStore) ForceSetRepresentative(ctx context.Context, id, faceID uuid.UUID, score float64) error {
	return nil
}
func (s *fakeStore) ReassignPerson(ctx context.Context, fromPerson, toPerson uuid.UUID) error {
	return nil
}
func (s *fakeStore) SetFacesThumbnailPath(ctx context.Context, personID uuid.UUID, thumbnailPath string) error {
	return nil
}
func (s *fakeStore) DeletePerson(ctx context.Context, id uuid.UUID) error {
	delete(s.persons, id)
	return nil
}
func (s *fakeStore) ListPersons(ctx context.Context) ([]models.Person, error) {
	var out []models.Person
	for _, p := range s.persons {
		out = append(out, *p)
	}
	return out, nil
}
func (s *fakeStore) ListFacesByPerson(ctx context.Context, personID uuid.UUID) ([]models.Face, error) {
	var out []models.Face
	for _, f := range s.faces {
		if f.PersonID != nil && *f.PersonID == personID {
			out = append(out, *f)
		}
	}
	return out, nil
}
func (s *fakeStore) ListAllFaces(ctx context.Context) ([]models.Face, error) {
	var out []models.Face
	for _, f := range s.faces {
		out = append(out, *f)
	}
	return out, nil
}
func (s *fakeStore) ClearAllFacePersons(ctx context.Context) error {
	for _, f := range s.faces {
		f.PersonID = nil
	}
	return nil
}
func (s *fakeStore) DeleteAllPersons(ctx context.Context) error {
	s.persons = map[uuid.UUID]*models.Person{}
	return nil
}
func (s *fakeStore) DeleteAllImages(ctx context.Context) error {
	s.images = map[uuid.UUID]*models.Image{}
	return nil
}
func (s *fakeStore) DeleteAllFolders(ctx context.Context) error {
	return nil
}
func (s *fakeStore) GetFace(ctx context.Context, faceID uuid.UUID) (*models.Face, error) {
	f, ok := s.faces[faceID]
	if !ok {
		return nil, nil
	}
	cp := *f
	return &cp, nil
}
func (s *fakeStore) GetImage(ctx context.Context, id uuid.UUID) (*models.Image, error) {
	img, ok := s.images[id]
	if !ok {
		return nil, nil
	}
	cp := *img
	return &cp, nil
}
func (s *fakeStore) DeleteFace(ctx context.Context, faceID uuid.UUID) error {
	delete(s.faces, faceID)
	return nil
}
func (s *fakeStore) SetImageFaces(ctx context.Context, id uuid.UUID, faceIDs []uuid.UUID) error {
	s.images[id].FaceIDs = faceIDs
	return nil
}

func TestPruneDeletesLowScoreAndEdgeFaces(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	img := &models.Image{ID: uuid.New(), Width: 1000, Height: 1000}
	store.images[img.ID] = img

	good := &models.Face{ID: uuid.New(), ImageID: img.ID, DetScore: 0.9, BBox: models.BBox{Left: 100, Top: 100, Right: 200, Bottom: 200}}
	lowScore := &models.Face{ID: uuid.New(), ImageID: img.ID, DetScore: 0.2, BBox: models.BBox{Left: 100, Top: 100, Right: 200, Bottom: 200}}
	edgeTouching := &models.Face{ID: uuid.New(), ImageID: img.ID, DetScore: 0.9, BBox: models.BBox{Left: 0, Top: 100, Right: 200, Bottom: 200}}
	store.faces[good.ID] = good
	store.faces[lowScore.ID] = lowScore
	store.faces[edgeTouching.ID] = edgeTouching
	img.FaceIDs = []uuid.UUID{good.ID, lowScore.ID, edgeTouching.ID}

	ops := New(store, nil, 0.65, 10, t.TempDir())
	result, err := ops.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if result.FacesDeleted != 2 {
		t.Fatalf("faces deleted = %d, want 2", result.FacesDeleted)
	}
	if _, ok := store.faces[good.ID]; !ok {
		t.Fatal("high-quality interior face should survive")
	}
	if _, ok := store.faces[lowScore.ID]; ok {
		t.Fatal("low-score face should have been deleted")
	}
	if _, ok := store.faces[edgeTouching.ID]; ok {
		t.Fatal("edge-touching face should have been deleted")
	}
	if len(store.images[img.ID].FaceIDs) != 1 || store.images[img.ID].FaceIDs[0] != good.ID {
		t.Fatalf("image face list = %v, want only %v", store.images[img.ID].FaceIDs, good.ID)
	}
}

func TestPruneDeletesEmptiedPerson(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	img := &models.Image{ID: uuid.New(), Width: 1000, Height: 1000}
	store.images[img.ID] = img

	person, _ := store.CreatePerson(ctx, uuid.New(), 0.1)
	lone := &models.Face{ID: uuid.New(), ImageID: img.ID, DetScore: 0.1, PersonID: &person.ID, BBox: models.BBox{Left: 100, Top: 100, Right: 200, Bottom: 200}}
	store.faces[lone.ID] = lone
	img.FaceIDs = []uuid.UUID{lone.ID}

	ops := New(store, nil, 0.65, 10, t.TempDir())
	result, err := ops.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if result.PersonsDeleted != 1 {
		t.Fatalf("persons deleted = %d, want 1", result.PersonsDeleted)
	}
	if _, ok := store.persons[person.ID]; ok {
		t.Fatal("person left with zero faces should have been deleted")
	}
}

func TestPruneKeepsHighQualityFacesAndPersons(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	img := &models.Image{ID: uuid.New(), Width: 1000, Height: 1000}
	store.images[img.ID] = img

	person, _ := store.CreatePerson(ctx, uuid.New(), 0.9)
	face := &models.Face{ID: uuid.New(), ImageID: img.ID, DetScore: 0.9, PersonID: &person.ID, BBox: models.BBox{Left: 100, Top: 100, Right: 200, Bottom: 200}}
	store.faces[face.ID] = face
	img.FaceIDs = []uuid.UUID{face.ID}

	ops := New(store, nil, 0.65, 10, t.TempDir())
	result, err := ops.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if result.FacesDeleted != 0 || result.PersonsDeleted != 0 {
		t.Fatalf("expected nothing pruned, got %+v", result)
	}
	if _, ok := store.faces[face.ID]; !ok {
		t.Fatal("face should have survived prune")
	}
}
