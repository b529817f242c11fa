package identity

import (
	"context"
	"testing"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
)

func TestCreatePerson_SequenceNames(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	first, err := e.CreatePerson(ctx, "")
	if err != nil {
		t.Fatalf("CreatePerson failed: %v", err)
	}
	second, err := e.CreatePerson(ctx, "")
	if err != nil {
		t.Fatalf("CreatePerson failed: %v", err)
	}

	if first.Name != "Person 1" {
		t.Errorf("expected 'Person 1', got '%s'", first.Name)
	}
	if second.Name != "Person 2" {
		t.Errorf("expected 'Person 2', got '%s'", second.Name)
	}
}

func TestCreatePerson_TrimsName(t *testing.T) {
	e, _ := newTestEngine(t)

	person, err := e.CreatePerson(context.Background(), "  Jan Novák  ")
	if err != nil {
		t.Fatalf("CreatePerson failed: %v", err)
	}

	if person.Name != "Jan Novák" {
		t.Errorf("expected trimmed name, got '%s'", person.Name)
	}
	if person.ID == 0 {
		t.Error("expected a real id")
	}
}

func TestRenamePerson_Updates(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	pid := seedPerson(t, store, "Person 1", time.Now())
	seedFace(t, store, pid, database.OriginAuto, emb(0, 0))

	person, err := e.RenamePerson(ctx, pid, "Alice")
	if err != nil {
		t.Fatalf("RenamePerson failed: %v", err)
	}

	if person.Name != "Alice" {
		t.Errorf("expected returned name 'Alice', got '%s'", person.Name)
	}

	stored, err := store.GetPerson(ctx, pid)
	if err != nil {
		t.Fatalf("GetPerson failed: %v", err)
	}
	if stored.Name != "Alice" {
		t.Errorf("expected stored name 'Alice', got '%s'", stored.Name)
	}
}

func TestRenamePerson_BlankName(t *testing.T) {
	e, store := newTestEngine(t)

	pid := seedPerson(t, store, "Person 1", time.Now())

	_, err := e.RenamePerson(context.Background(), pid, "   ")
	if !IsValidation(err) {
		t.Errorf("expected ValidationError, got %T: %v", err, err)
	}
}

func TestRenamePerson_Unknown(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.RenamePerson(context.Background(), 999, "Alice")
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}
}

func TestPersons_SortedWithThumbnails(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	bob := seedPerson(t, store, "Bob", time.Now())
	seedFace(t, store, bob, database.OriginAuto, emb(2, 0))
	alice := seedPerson(t, store, "Alice", time.Now())
	small := database.Face{ImageID: "img-1", Embedding: emb(0, 0), PersonID: alice, Origin: database.OriginAuto, BBox: []float64{0, 0, 10, 10}}
	store.AddFace(small)
	big := database.Face{ImageID: "img-2", Embedding: emb(0.125, 0), PersonID: alice, Origin: database.OriginAuto, BBox: []float64{0, 0, 50, 40}}
	bigID := store.AddFace(big)

	summaries, err := e.Persons(ctx)
	if err != nil {
		t.Fatalf("Persons failed: %v", err)
	}

	if len(summaries) != 2 {
		t.Fatalf("expected 2 persons, got %d", len(summaries))
	}

	// Sorted by name.
	if summaries[0].Name != "Alice" || summaries[1].Name != "Bob" {
		t.Errorf("expected Alice before Bob, got %s, %s", summaries[0].Name, summaries[1].Name)
	}

	if summaries[0].FaceCount != 2 {
		t.Errorf("expected Alice with 2 faces, got %d", summaries[0].FaceCount)
	}

	// Thumbnail is the face with the largest bounding box.
	if summaries[0].Thumbnail == nil {
		t.Fatal("expected a thumbnail for Alice")
	}
	if summaries[0].Thumbnail.FaceID != bigID {
		t.Errorf("expected thumbnail face %d, got %d", bigID, summaries[0].Thumbnail.FaceID)
	}
}

func TestPerson_ReturnsDetail(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	alice := seedPerson(t, store, "Alice", time.Now())
	f1 := seedFace(t, store, alice, database.OriginAuto, emb(0, 0))
	f2 := seedFace(t, store, alice, database.OriginManual, emb(0.125, 0))

	detail, err := e.Person(ctx, alice)
	if err != nil {
		t.Fatalf("Person failed: %v", err)
	}

	if detail.Name != "Alice" {
		t.Errorf("expected name 'Alice', got '%s'", detail.Name)
	}
	if len(detail.Faces) != 2 {
		t.Fatalf("expected 2 faces, got %d", len(detail.Faces))
	}

	got := map[int64]database.FaceOrigin{}
	for _, ref := range detail.Faces {
		got[ref.FaceID] = ref.Origin
	}
	if got[f1] != database.OriginAuto {
		t.Errorf("expected face %d automatic, got %s", f1, got[f1])
	}
	if got[f2] != database.OriginManual {
		t.Errorf("expected face %d manual, got %s", f2, got[f2])
	}

	if detail.Thumbnail == nil {
		t.Error("expected a thumbnail")
	}
}

func TestPerson_Unknown(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.Person(context.Background(), 999)
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}
}

func TestThumbnailFace_PicksLargestBBox(t *testing.T) {
	e, store := newTestEngine(t)

	alice := seedPerson(t, store, "Alice", time.Now())
	store.AddFace(database.Face{ImageID: "img-1", Embedding: emb(0, 0), PersonID: alice, BBox: []float64{0, 0, 20, 20}})
	bigID := store.AddFace(database.Face{ImageID: "img-2", Embedding: emb(0.125, 0), PersonID: alice, BBox: []float64{100, 100, 180, 200}})
	store.AddFace(database.Face{ImageID: "img-3", Embedding: emb(0.25, 0), PersonID: alice, BBox: []float64{0, 0, 30, 30}})

	face, err := e.ThumbnailFace(context.Background(), alice)
	if err != nil {
		t.Fatalf("ThumbnailFace failed: %v", err)
	}

	if face == nil {
		t.Fatal("expected a thumbnail face")
	}
	if face.ID != bigID {
		t.Errorf("expected face %d, got %d", bigID, face.ID)
	}
}

func TestThumbnailFace_NoFaces(t *testing.T) {
	e, store := newTestEngine(t)

	// A person without faces does not normally survive engine
	// operations, but the store can hold one.
	alice := seedPerson(t, store, "Alice", time.Now())

	face, err := e.ThumbnailFace(context.Background(), alice)
	if err != nil {
		t.Fatalf("ThumbnailFace failed: %v", err)
	}
	if face != nil {
		t.Errorf("expected nil for a person without faces, got face %d", face.ID)
	}
}

func TestThumbnailFace_UnknownPerson(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.ThumbnailFace(context.Background(), 999)
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}
}
