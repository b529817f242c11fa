package identity

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-sorter/internal/database"
)

// MoveResult describes an explicit face reassignment.
type MoveResult struct {
	FaceID        int64
	FromPersonID  int64
	ToPersonID    int64
	ToPersonName  string
	PersonCreated bool // a new person was created as the target
	PersonDeleted bool // the source person was removed because it became empty
}

// DeleteFaceResult describes a face removal.
type DeleteFaceResult struct {
	FaceID        int64
	PersonID      int64
	PersonDeleted bool
}

// MoveFaceToPerson reassigns a face to an existing person and marks it
// manual. Moving a face to the person that already owns it succeeds and
// (re)marks it manual with no other effect.
func (e *Engine) MoveFaceToPerson(ctx context.Context, faceID, personID int64) (*MoveResult, error) {
	if err := e.acquireWriteSlot(ctx, "move face"); err != nil {
		return nil, err
	}
	defer e.releaseWriteSlot()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	target, err := e.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to load person %d: %w", personID, err)
	}
	if target == nil {
		return nil, &NotFoundError{Kind: "person", ID: personID}
	}

	return e.moveLocked(ctx, faceID, target, false)
}

// MoveFaceToNewPerson creates a person (named, or "Person N" when name is
// blank) and manually moves the face there.
func (e *Engine) MoveFaceToNewPerson(ctx context.Context, faceID int64, name string) (*MoveResult, error) {
	if err := e.acquireWriteSlot(ctx, "move face"); err != nil {
		return nil, err
	}
	defer e.releaseWriteSlot()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	// Check the face first so an unknown id does not leave an empty
	// person behind.
	face, err := e.store.GetFace(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load face %d: %w", faceID, err)
	}
	if face == nil {
		return nil, &NotFoundError{Kind: "face", ID: faceID}
	}

	target, err := e.createPersonLocked(ctx, name)
	if err != nil {
		return nil, err
	}

	result, err := e.moveLocked(ctx, faceID, target, true)
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteFace removes a face outright, cleaning up its person when that
// leaves it empty.
func (e *Engine) DeleteFace(ctx context.Context, faceID int64) (*DeleteFaceResult, error) {
	if err := e.acquireWriteSlot(ctx, "delete face"); err != nil {
		return nil, err
	}
	defer e.releaseWriteSlot()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	face, err := e.store.GetFace(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load face %d: %w", faceID, err)
	}
	if face == nil {
		return nil, &NotFoundError{Kind: "face", ID: faceID}
	}

	if err := e.store.DeleteFace(ctx, faceID); err != nil {
		return nil, fmt.Errorf("failed to delete face %d: %w", faceID, err)
	}

	personDeleted, err := e.deletePersonIfEmpty(ctx, face.PersonID)
	if err != nil {
		return nil, err
	}

	log.Infof("faces: face %d deleted", faceID)
	return &DeleteFaceResult{
		FaceID:        faceID,
		PersonID:      face.PersonID,
		PersonDeleted: personDeleted,
	}, nil
}

// moveLocked performs the actual reassignment. Callers hold writeMu and a
// write slot, and have verified the target person exists.
func (e *Engine) moveLocked(ctx context.Context, faceID int64, target *database.Person, created bool) (*MoveResult, error) {
	face, err := e.store.GetFace(ctx, faceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load face %d: %w", faceID, err)
	}
	if face == nil {
		return nil, &NotFoundError{Kind: "face", ID: faceID}
	}

	if err := e.store.UpdateFaceOwner(ctx, faceID, target.ID, database.OriginManual); err != nil {
		return nil, fmt.Errorf("failed to move face %d: %w", faceID, err)
	}

	result := &MoveResult{
		FaceID:        faceID,
		FromPersonID:  face.PersonID,
		ToPersonID:    target.ID,
		ToPersonName:  target.Name,
		PersonCreated: created,
	}

	if face.PersonID != target.ID {
		deleted, err := e.deletePersonIfEmpty(ctx, face.PersonID)
		if err != nil {
			return nil, err
		}
		result.PersonDeleted = deleted
	}

	log.Infof("faces: face %d manually moved to person %d", faceID, target.ID)
	return result, nil
}

// deletePersonIfEmpty removes a person that no longer owns any face.
func (e *Engine) deletePersonIfEmpty(ctx context.Context, personID int64) (bool, error) {
	person, err := e.store.GetPerson(ctx, personID)
	if err != nil {
		return false, fmt.Errorf("failed to load person %d: %w", personID, err)
	}
	if person == nil || person.FaceCount > 0 {
		return false, nil
	}

	if err := e.store.DeletePerson(ctx, personID); err != nil {
		return false, fmt.Errorf("failed to delete empty person %d: %w", personID, err)
	}

	log.Infof("persons: removed empty person %d (%s)", personID, person.Name)
	return true, nil
}
