package identity

import (
	"context"
	"testing"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
)

func TestMoveFaceToPerson_MarksFaceManual(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	alice := seedPerson(t, store, "Alice", time.Now())
	seedFace(t, store, alice, database.OriginAuto, emb(0, 0))
	bob := seedPerson(t, store, "Bob", time.Now())
	fid := seedFace(t, store, bob, database.OriginAuto, emb(2, 0))
	seedFace(t, store, bob, database.OriginAuto, emb(2.125, 0))

	result, err := e.MoveFaceToPerson(ctx, fid, alice)
	if err != nil {
		t.Fatalf("MoveFaceToPerson failed: %v", err)
	}

	if result.FromPersonID != bob {
		t.Errorf("expected source person %d, got %d", bob, result.FromPersonID)
	}
	if result.ToPersonID != alice {
		t.Errorf("expected target person %d, got %d", alice, result.ToPersonID)
	}
	if result.PersonDeleted {
		t.Error("expected source person to survive, it still owns a face")
	}

	face := mustGetFace(t, store, fid)
	if face.PersonID != alice {
		t.Errorf("expected face owned by %d, got %d", alice, face.PersonID)
	}
	if !face.Origin.IsManual() {
		t.Errorf("expected manual origin after move, got %s", face.Origin)
	}
}

func TestMoveFaceToPerson_CleansUpEmptiedSource(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	alice := seedPerson(t, store, "Alice", time.Now())
	seedFace(t, store, alice, database.OriginAuto, emb(0, 0))
	bob := seedPerson(t, store, "Bob", time.Now())
	fid := seedFace(t, store, bob, database.OriginAuto, emb(2, 0))

	result, err := e.MoveFaceToPerson(ctx, fid, alice)
	if err != nil {
		t.Fatalf("MoveFaceToPerson failed: %v", err)
	}

	if !result.PersonDeleted {
		t.Error("expected emptied source person to be deleted")
	}

	gone, err := store.GetPerson(ctx, bob)
	if err != nil {
		t.Fatalf("GetPerson failed: %v", err)
	}
	if gone != nil {
		t.Errorf("expected person %d to be gone, still present", bob)
	}

	assertPartition(t, store)
}

func TestMoveFaceToPerson_SameTargetIsIdempotent(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	alice := seedPerson(t, store, "Alice", time.Now())
	fid := seedFace(t, store, alice, database.OriginAuto, emb(0, 0))

	for i := 0; i < 2; i++ {
		result, err := e.MoveFaceToPerson(ctx, fid, alice)
		if err != nil {
			t.Fatalf("MoveFaceToPerson run %d failed: %v", i+1, err)
		}
		if result.PersonDeleted {
			t.Error("moving a face onto its own person must not delete it")
		}

		face := mustGetFace(t, store, fid)
		if face.PersonID != alice {
			t.Errorf("expected face to stay with person %d, got %d", alice, face.PersonID)
		}
		if !face.Origin.IsManual() {
			t.Error("expected the move to mark the face manual")
		}
	}

	count, err := store.CountPersons(ctx)
	if err != nil {
		t.Fatalf("CountPersons failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected one person, got %d", count)
	}
}

func TestMoveFaceToPerson_UnknownPerson(t *testing.T) {
	e, store := newTestEngine(t)

	alice := seedPerson(t, store, "Alice", time.Now())
	fid := seedFace(t, store, alice, database.OriginAuto, emb(0, 0))

	_, err := e.MoveFaceToPerson(context.Background(), fid, 999)
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}

	// The face is untouched.
	face := mustGetFace(t, store, fid)
	if face.PersonID != alice || face.Origin.IsManual() {
		t.Error("expected failed move to leave the face untouched")
	}
}

func TestMoveFaceToPerson_UnknownFace(t *testing.T) {
	e, store := newTestEngine(t)

	alice := seedPerson(t, store, "Alice", time.Now())
	seedFace(t, store, alice, database.OriginAuto, emb(0, 0))

	_, err := e.MoveFaceToPerson(context.Background(), 999, alice)
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}
}

func TestMoveFaceToNewPerson_CreatesNamedPerson(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	alice := seedPerson(t, store, "Alice", time.Now())
	fid := seedFace(t, store, alice, database.OriginAuto, emb(0, 0))
	seedFace(t, store, alice, database.OriginAuto, emb(0.125, 0))

	result, err := e.MoveFaceToNewPerson(ctx, fid, "Jan Novák")
	if err != nil {
		t.Fatalf("MoveFaceToNewPerson failed: %v", err)
	}

	if !result.PersonCreated {
		t.Error("expected a new person")
	}
	if result.ToPersonName != "Jan Novák" {
		t.Errorf("expected name 'Jan Novák', got '%s'", result.ToPersonName)
	}

	face := mustGetFace(t, store, fid)
	if face.PersonID != result.ToPersonID {
		t.Errorf("expected face owned by new person %d, got %d", result.ToPersonID, face.PersonID)
	}
	if !face.Origin.IsManual() {
		t.Error("expected manual origin after move")
	}
}

func TestMoveFaceToNewPerson_BlankNameGetsSequenceName(t *testing.T) {
	e, store := newTestEngine(t)

	alice := seedPerson(t, store, "Alice", time.Now())
	fid := seedFace(t, store, alice, database.OriginAuto, emb(0, 0))
	seedFace(t, store, alice, database.OriginAuto, emb(0.125, 0))

	result, err := e.MoveFaceToNewPerson(context.Background(), fid, "  ")
	if err != nil {
		t.Fatalf("MoveFaceToNewPerson failed: %v", err)
	}

	if result.ToPersonName != "Person 2" {
		t.Errorf("expected name 'Person 2', got '%s'", result.ToPersonName)
	}
}

func TestMoveFaceToNewPerson_UnknownFaceLeavesNoPersonBehind(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	_, err := e.MoveFaceToNewPerson(ctx, 999, "Ghost")
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}

	count, err := store.CountPersons(ctx)
	if err != nil {
		t.Fatalf("CountPersons failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no person to be created, got %d", count)
	}
}

func TestDeleteFace_RemovesFaceAndEmptiedPerson(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	alice := seedPerson(t, store, "Alice", time.Now())
	fid := seedFace(t, store, alice, database.OriginAuto, emb(0, 0))

	result, err := e.DeleteFace(ctx, fid)
	if err != nil {
		t.Fatalf("DeleteFace failed: %v", err)
	}

	if !result.PersonDeleted {
		t.Error("expected emptied person to be deleted")
	}

	face, err := store.GetFace(ctx, fid)
	if err != nil {
		t.Fatalf("GetFace failed: %v", err)
	}
	if face != nil {
		t.Error("expected face to be gone")
	}

	count, err := store.CountPersons(ctx)
	if err != nil {
		t.Fatalf("CountPersons failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no persons left, got %d", count)
	}
}

func TestDeleteFace_KeepsPopulatedPerson(t *testing.T) {
	e, store := newTestEngine(t)
	ctx := context.Background()

	alice := seedPerson(t, store, "Alice", time.Now())
	fid := seedFace(t, store, alice, database.OriginAuto, emb(0, 0))
	seedFace(t, store, alice, database.OriginAuto, emb(0.125, 0))

	result, err := e.DeleteFace(ctx, fid)
	if err != nil {
		t.Fatalf("DeleteFace failed: %v", err)
	}

	if result.PersonDeleted {
		t.Error("expected person with remaining faces to survive")
	}

	person, err := store.GetPerson(ctx, alice)
	if err != nil {
		t.Fatalf("GetPerson failed: %v", err)
	}
	if person == nil {
		t.Fatal("expected person to still exist")
	}
	if person.FaceCount != 1 {
		t.Errorf("expected one remaining face, got %d", person.FaceCount)
	}
}

func TestDeleteFace_Unknown(t *testing.T) {
	e, _ := newTestEngine(t)

	_, err := e.DeleteFace(context.Background(), 999)
	if !IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %T: %v", err, err)
	}
}
