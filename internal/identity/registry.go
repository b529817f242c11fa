package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
)

// FaceRef points at a stored face without carrying its embedding.
type FaceRef struct {
	FaceID    int64
	ImageID   string
	ImagePath string
	BBox      []float64
	Origin    database.FaceOrigin
}

// PersonSummary is a person plus the face used as its thumbnail.
type PersonSummary struct {
	database.Person
	Thumbnail *FaceRef
}

// PersonDetail adds the person's faces to the summary.
type PersonDetail struct {
	database.Person
	Faces     []FaceRef
	Thumbnail *FaceRef
}

// CreatePerson registers a person. A blank name yields the next "Person N"
// sequence name.
func (e *Engine) CreatePerson(ctx context.Context, name string) (*database.Person, error) {
	if err := e.acquireWriteSlot(ctx, "create person"); err != nil {
		return nil, err
	}
	defer e.releaseWriteSlot()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	return e.createPersonLocked(ctx, name)
}

// createPersonLocked creates a person while the caller holds writeMu.
func (e *Engine) createPersonLocked(ctx context.Context, name string) (*database.Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		count, err := e.store.CountPersons(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to count persons: %w", err)
		}
		name = fmt.Sprintf("Person %d", count+1)
	}

	now := time.Now()
	person := &database.Person{Name: name, CreatedAt: now, UpdatedAt: now}
	id, err := e.store.CreatePerson(ctx, person)
	if err != nil {
		return nil, fmt.Errorf("failed to create person: %w", err)
	}
	person.ID = id

	log.Infof("persons: created person %d (%s)", id, name)
	return person, nil
}

// RenamePerson gives a person a new display name.
func (e *Engine) RenamePerson(ctx context.Context, personID int64, name string) (*database.Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "must not be blank"}
	}

	if err := e.acquireWriteSlot(ctx, "rename person"); err != nil {
		return nil, err
	}
	defer e.releaseWriteSlot()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	person, err := e.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to load person %d: %w", personID, err)
	}
	if person == nil {
		return nil, &NotFoundError{Kind: "person", ID: personID}
	}

	if err := e.store.RenamePerson(ctx, personID, name); err != nil {
		return nil, fmt.Errorf("failed to rename person %d: %w", personID, err)
	}

	person.Name = name
	log.Infof("persons: renamed person %d to %q", personID, name)
	return person, nil
}

// Persons lists all persons sorted by normalized name, each with its
// thumbnail face.
func (e *Engine) Persons(ctx context.Context) ([]PersonSummary, error) {
	persons, err := e.store.ListPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list persons: %w", err)
	}

	summaries := make([]PersonSummary, len(persons))
	for i, person := range persons {
		summaries[i] = PersonSummary{Person: person}

		thumb, err := e.thumbnailFace(ctx, person.ID)
		if err != nil {
			return nil, err
		}
		if thumb != nil {
			ref := newFaceRef(thumb)
			summaries[i].Thumbnail = &ref
		}
	}

	return summaries, nil
}

// Person returns one person with all its faces.
func (e *Engine) Person(ctx context.Context, personID int64) (*PersonDetail, error) {
	person, err := e.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to load person %d: %w", personID, err)
	}
	if person == nil {
		return nil, &NotFoundError{Kind: "person", ID: personID}
	}

	faces, err := e.store.ListFacesByPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to list faces for person %d: %w", personID, err)
	}

	detail := &PersonDetail{Person: *person}
	var best *database.Face
	for i := range faces {
		detail.Faces = append(detail.Faces, newFaceRef(&faces[i]))
		if best == nil || faces[i].BBoxArea() > best.BBoxArea() {
			best = &faces[i]
		}
	}
	if best != nil {
		ref := newFaceRef(best)
		detail.Thumbnail = &ref
	}

	return detail, nil
}

// ThumbnailFace returns the face backing a person's thumbnail: the one
// with the largest bounding box area. Nil when the person owns no faces.
func (e *Engine) ThumbnailFace(ctx context.Context, personID int64) (*database.Face, error) {
	person, err := e.store.GetPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to load person %d: %w", personID, err)
	}
	if person == nil {
		return nil, &NotFoundError{Kind: "person", ID: personID}
	}

	return e.thumbnailFace(ctx, personID)
}

func (e *Engine) thumbnailFace(ctx context.Context, personID int64) (*database.Face, error) {
	faces, err := e.store.ListFacesByPerson(ctx, personID)
	if err != nil {
		return nil, fmt.Errorf("failed to list faces for person %d: %w", personID, err)
	}

	var best *database.Face
	for i := range faces {
		if best == nil || faces[i].BBoxArea() > best.BBoxArea() {
			best = &faces[i]
		}
	}
	return best, nil
}

func newFaceRef(f *database.Face) FaceRef {
	return FaceRef{
		FaceID:    f.ID,
		ImageID:   f.ImageID,
		ImagePath: f.ImagePath,
		BBox:      f.BBox,
		Origin:    f.Origin,
	}
}
