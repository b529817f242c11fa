package database

import (
	"context"
)

// FaceReader provides read-only access to stored faces
type FaceReader interface {
	// GetFace retrieves a face by id, returns nil if not found
	GetFace(ctx context.Context, id int64) (*Face, error)
	// ListFaces retrieves every stored face including embeddings
	ListFaces(ctx context.Context) ([]Face, error)
	// ListFacesByPerson retrieves all faces owned by a person, newest first
	ListFacesByPerson(ctx context.Context, personID int64) ([]Face, error)
	// CountFaces returns the total number of faces stored
	CountFaces(ctx context.Context) (int, error)
	// CountFacesByOrigin returns the number of faces with the given origin
	CountFacesByOrigin(ctx context.Context, origin FaceOrigin) (int, error)
	// CountImages returns the number of distinct source images with faces
	CountImages(ctx context.Context) (int, error)
	// FindSimilarWithDistance finds faces within maxDistance of the query
	// embedding using Euclidean distance, ordered by ascending distance,
	// and returns the matching distances alongside the faces
	FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]Face, []float64, error)
}

// FaceWriter provides write access to face data
type FaceWriter interface {
	FaceReader

	// CreateFace stores a new face and returns its id
	CreateFace(ctx context.Context, face *Face) (int64, error)

	// UpdateFaceOwner moves a face to another person and records how the
	// assignment happened
	UpdateFaceOwner(ctx context.Context, faceID, personID int64, origin FaceOrigin) error

	// DeleteFace removes a face by id. Deleting an unknown id is a no-op;
	// callers that care check existence first.
	DeleteFace(ctx context.Context, faceID int64) error
}

// PersonReader provides read-only access to persons
type PersonReader interface {
	// GetPerson retrieves a person by id with its face count populated,
	// returns nil if not found
	GetPerson(ctx context.Context, id int64) (*Person, error)
	// GetPersonByName retrieves a person by name, returns nil if not found.
	// Names are normalized before comparison (lowercase, no diacritics,
	// dashes to spaces) so "jan-novak" matches "Jan Novák".
	GetPersonByName(ctx context.Context, name string) (*Person, error)
	// ListPersons retrieves all persons with face counts populated,
	// sorted by normalized name
	ListPersons(ctx context.Context) ([]Person, error)
	// CountPersons returns the total number of persons
	CountPersons(ctx context.Context) (int, error)
}

// PersonWriter provides write access to persons
type PersonWriter interface {
	PersonReader

	// CreatePerson stores a new person and returns its id
	CreatePerson(ctx context.Context, person *Person) (int64, error)

	// RenamePerson updates a person's name. Renaming an unknown id is a
	// no-op; callers that care check existence first.
	RenamePerson(ctx context.Context, id int64, name string) error

	// DeletePerson removes a person. The store does not cascade to faces;
	// callers move or delete faces first.
	DeletePerson(ctx context.Context, id int64) error
}

// Store is the full persistence surface the identity engine works against
type Store interface {
	FaceWriter
	PersonWriter

	// ApplyRecluster commits a complete re-clustering outcome atomically:
	// create plan.NewPersons, execute plan.Moves, delete
	// plan.DeletePersonIDs. Either everything is applied or nothing is.
	ApplyRecluster(ctx context.Context, plan *ReclusterPlan) error
}
