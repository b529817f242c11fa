package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/database/memory"
)

// Test embeddings use exact binary fractions so distance thresholds
// compare deterministically. The test policy joins within 0.5 and
// clusters within 0.25.
func testPolicy(t *testing.T) DistancePolicy {
	t.Helper()
	policy, err := NewDistancePolicy(0.5, 0.25, 2)
	if err != nil {
		t.Fatalf("failed to build test policy: %v", err)
	}
	return policy
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	store := memory.New()
	return NewEngine(store, testPolicy(t), opts...), store
}

func emb(x, y float32) []float32 {
	return []float32{x, y}
}

func testFace(imageID string, embedding []float32) *database.Face {
	return &database.Face{
		ImageID:   imageID,
		Embedding: embedding,
		BBox:      []float64{0, 0, 100, 100},
		DetScore:  0.9,
	}
}

func mustAssign(t *testing.T, e *Engine, imageID string, embedding []float32) *AssignResult {
	t.Helper()
	result, err := e.Assign(context.Background(), testFace(imageID, embedding))
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	return result
}

func seedPerson(t *testing.T, store *memory.Store, name string, createdAt time.Time) int64 {
	t.Helper()
	return store.AddPerson(database.Person{Name: name, CreatedAt: createdAt, UpdatedAt: createdAt})
}

func seedFace(t *testing.T, store *memory.Store, personID int64, origin database.FaceOrigin, embedding []float32) int64 {
	t.Helper()
	face := *testFace("img-seed", embedding)
	face.PersonID = personID
	face.Origin = origin
	return store.AddFace(face)
}

func mustGetFace(t *testing.T, store *memory.Store, id int64) *database.Face {
	t.Helper()
	face, err := store.GetFace(context.Background(), id)
	if err != nil {
		t.Fatalf("GetFace failed: %v", err)
	}
	if face == nil {
		t.Fatalf("face %d not found", id)
	}
	return face
}

// assertPartition checks the two structural invariants of the mapping:
// every face belongs to an existing person and no person is empty.
func assertPartition(t *testing.T, store *memory.Store) {
	t.Helper()
	ctx := context.Background()

	faces, err := store.ListFaces(ctx)
	if err != nil {
		t.Fatalf("ListFaces failed: %v", err)
	}
	persons, err := store.ListPersons(ctx)
	if err != nil {
		t.Fatalf("ListPersons failed: %v", err)
	}

	known := make(map[int64]bool, len(persons))
	for _, p := range persons {
		known[p.ID] = true
	}

	owned := make(map[int64]int)
	for _, f := range faces {
		if !known[f.PersonID] {
			t.Errorf("face %d belongs to unknown person %d", f.ID, f.PersonID)
		}
		owned[f.PersonID]++
	}

	for _, p := range persons {
		if owned[p.ID] == 0 {
			t.Errorf("person %d (%s) owns no faces", p.ID, p.Name)
		}
	}
}

func TestAssign_ConflictWhileReclusterRuns(t *testing.T) {
	e, _ := newTestEngine(t)

	// Simulate a long-running re-cluster holding the exclusive lock.
	e.clusterMu.Lock()
	defer e.clusterMu.Unlock()

	_, err := e.Assign(context.Background(), testFace("img-1", emb(0, 0)))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsConflict(err) {
		t.Errorf("expected ConflictError, got %T: %v", err, err)
	}
}

func TestAssign_ContextEndsWhileWaiting(t *testing.T) {
	e, _ := newTestEngine(t)

	e.clusterMu.Lock()
	defer e.clusterMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_, err := e.Assign(ctx, testFace("img-1", emb(0, 0)))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context deadline error, got %v", err)
	}
}

func TestAssign_RetriesUntilReclusterFinishes(t *testing.T) {
	e, store := newTestEngine(t)

	e.clusterMu.Lock()
	go func() {
		time.Sleep(120 * time.Millisecond)
		e.clusterMu.Unlock()
	}()

	result, err := e.Assign(context.Background(), testFace("img-1", emb(0, 0)))
	if err != nil {
		t.Fatalf("expected assign to succeed after the lock clears, got %v", err)
	}
	if !result.PersonCreated {
		t.Error("expected a new person to be created")
	}

	assertPartition(t, store)
}

func TestMoveFaceToPerson_ConflictWhileReclusterRuns(t *testing.T) {
	e, store := newTestEngine(t)
	pid := seedPerson(t, store, "Alice", time.Now())
	fid := seedFace(t, store, pid, database.OriginAuto, emb(0, 0))

	e.clusterMu.Lock()
	defer e.clusterMu.Unlock()

	_, err := e.MoveFaceToPerson(context.Background(), fid, pid)
	if !IsConflict(err) {
		t.Errorf("expected ConflictError, got %T: %v", err, err)
	}
}

func TestEngine_WorkloadKeepsPartitionIntact(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	// Three identities arrive interleaved.
	a1 := mustAssign(t, e, "img-1", emb(0, 0))
	mustAssign(t, e, "img-2", emb(2, 0))
	mustAssign(t, e, "img-3", emb(0.125, 0))
	b2 := mustAssign(t, e, "img-4", emb(2.125, 0))
	c1 := mustAssign(t, e, "img-5", emb(4, 0))

	// A correction pins one face, another face is removed.
	if _, err := e.MoveFaceToPerson(ctx, b2.FaceID, a1.PersonID); err != nil {
		t.Fatalf("MoveFaceToPerson failed: %v", err)
	}
	if _, err := e.DeleteFace(ctx, c1.FaceID); err != nil {
		t.Fatalf("DeleteFace failed: %v", err)
	}
	assertPartition(t, store)

	if _, err := e.Recluster(ctx); err != nil {
		t.Fatalf("Recluster failed: %v", err)
	}
	assertPartition(t, store)

	// Manual face survived the re-cluster with its person.
	moved := mustGetFace(t, store, b2.FaceID)
	if moved.PersonID != a1.PersonID {
		t.Errorf("expected manual face to stay with person %d, got %d", a1.PersonID, moved.PersonID)
	}
	if !moved.Origin.IsManual() {
		t.Error("expected manual origin to survive the re-cluster")
	}
}
