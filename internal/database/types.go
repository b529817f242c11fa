package database

import (
	"time"
)

// FaceOrigin records how a face ended up in its current person.
type FaceOrigin string

const (
	// OriginAuto marks faces placed by the incremental assigner or the
	// batch clusterer. Automatic faces are free to move on re-cluster.
	OriginAuto FaceOrigin = "auto"

	// OriginManual marks faces placed by an explicit user action. Manual
	// faces anchor their person during re-clustering.
	OriginManual FaceOrigin = "manual"
)

// IsManual reports whether the face was assigned by a user.
func (o FaceOrigin) IsManual() bool {
	return o == OriginManual
}

// Face represents a face embedding owned by exactly one person.
type Face struct {
	ID         int64
	ImageID    string
	Embedding  []float32
	BBox       []float64 // [x1, y1, x2, y2] in raw pixel coordinates
	DetScore   float64
	PersonID   int64
	Origin     FaceOrigin
	CreatedAt  time.Time
	AssignedAt time.Time

	// Cached source image data (populated during ingest when known)
	ImagePath   string
	ImageWidth  int
	ImageHeight int
}

// BBoxArea returns the pixel area of the face bounding box,
// or 0 for malformed boxes.
func (f *Face) BBoxArea() float64 {
	if len(f.BBox) != 4 {
		return 0
	}
	w := f.BBox[2] - f.BBox[0]
	h := f.BBox[3] - f.BBox[1]
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Person groups faces that belong to the same identity.
type Person struct {
	ID        int64
	Name      string
	FaceCount int // derived, populated by list queries
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FaceMove reassigns a single face inside a ReclusterPlan. Exactly one of
// PersonID (> 0, existing person) or NewPersonIdx (index into
// ReclusterPlan.NewPersons) identifies the target.
type FaceMove struct {
	FaceID       int64
	PersonID     int64
	NewPersonIdx int
	Origin       FaceOrigin
}

// ReclusterPlan is the complete outcome of a batch clustering run. A store
// applies it in a single transaction: create NewPersons, execute Moves,
// then delete DeletePersonIDs (which must be empty of faces by then).
type ReclusterPlan struct {
	NewPersons      []Person
	Moves           []FaceMove
	DeletePersonIDs []int64
}
