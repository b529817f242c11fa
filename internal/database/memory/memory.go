// Package memory provides an in-memory implementation of the database
// interfaces. It backs the server when no DATABASE_URL is configured and
// doubles as the store for engine tests, with error injection fields for
// exercising failure paths.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/facematch"
)

// Store is an in-memory database.Store
type Store struct {
	mu      sync.RWMutex
	faces   map[int64]*database.Face
	persons map[int64]*database.Person

	faceCounter   int64
	personCounter int64

	// Error injection
	GetFaceError         error
	ListFacesError       error
	CountError           error
	FindSimilarError     error
	CreateFaceError      error
	UpdateFaceOwnerError error
	DeleteFaceError      error
	GetPersonError       error
	ListPersonsError     error
	CreatePersonError    error
	RenamePersonError    error
	DeletePersonError    error
	ApplyReclusterError  error
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		faces:   make(map[int64]*database.Face),
		persons: make(map[int64]*database.Person),
	}
}

// AddFace seeds a face directly, bypassing error injection. A zero ID is
// replaced with the next free one. Returns the stored id.
func (s *Store) AddFace(face database.Face) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if face.ID == 0 {
		s.faceCounter++
		face.ID = s.faceCounter
	} else if face.ID > s.faceCounter {
		s.faceCounter = face.ID
	}
	s.faces[face.ID] = &face
	return face.ID
}

// AddPerson seeds a person directly, bypassing error injection. A zero ID
// is replaced with the next free one. Returns the stored id.
func (s *Store) AddPerson(person database.Person) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if person.ID == 0 {
		s.personCounter++
		person.ID = s.personCounter
	} else if person.ID > s.personCounter {
		s.personCounter = person.ID
	}
	s.persons[person.ID] = &person
	return person.ID
}

// GetFace retrieves a face by id, returns nil if not found
func (s *Store) GetFace(ctx context.Context, id int64) (*database.Face, error) {
	if s.GetFaceError != nil {
		return nil, s.GetFaceError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.faces[id]
	if !ok {
		return nil, nil
	}
	face := *f
	return &face, nil
}

// ListFaces retrieves every stored face ordered by id
func (s *Store) ListFaces(ctx context.Context) ([]database.Face, error) {
	if s.ListFacesError != nil {
		return nil, s.ListFacesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	faces := make([]database.Face, 0, len(s.faces))
	for _, f := range s.faces {
		faces = append(faces, *f)
	}
	sort.Slice(faces, func(i, j int) bool { return faces[i].ID < faces[j].ID })
	return faces, nil
}

// ListFacesByPerson retrieves all faces owned by a person, newest first
func (s *Store) ListFacesByPerson(ctx context.Context, personID int64) ([]database.Face, error) {
	if s.ListFacesError != nil {
		return nil, s.ListFacesError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var faces []database.Face
	for _, f := range s.faces {
		if f.PersonID == personID {
			faces = append(faces, *f)
		}
	}
	sort.Slice(faces, func(i, j int) bool {
		if !faces[i].CreatedAt.Equal(faces[j].CreatedAt) {
			return faces[i].CreatedAt.After(faces[j].CreatedAt)
		}
		return faces[i].ID > faces[j].ID
	})
	return faces, nil
}

// CountFaces returns the total number of faces stored
func (s *Store) CountFaces(ctx context.Context) (int, error) {
	if s.CountError != nil {
		return 0, s.CountError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.faces), nil
}

// CountFacesByOrigin returns the number of faces with the given origin
func (s *Store) CountFacesByOrigin(ctx context.Context, origin database.FaceOrigin) (int, error) {
	if s.CountError != nil {
		return 0, s.CountError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, f := range s.faces {
		if f.Origin == origin {
			count++
		}
	}
	return count, nil
}

// CountImages returns the number of distinct source images with faces
func (s *Store) CountImages(ctx context.Context) (int, error) {
	if s.CountError != nil {
		return 0, s.CountError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	images := make(map[string]struct{})
	for _, f := range s.faces {
		images[f.ImageID] = struct{}{}
	}
	return len(images), nil
}

// FindSimilarWithDistance finds faces within maxDistance of the query
// embedding, ordered by ascending Euclidean distance
func (s *Store) FindSimilarWithDistance(ctx context.Context, embedding []float32, limit int, maxDistance float64) ([]database.Face, []float64, error) {
	if s.FindSimilarError != nil {
		return nil, nil, s.FindSimilarError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	type hit struct {
		face database.Face
		dist float64
	}
	var hits []hit
	for _, f := range s.faces {
		dist := database.EuclideanDistance(embedding, f.Embedding)
		if dist <= maxDistance {
			hits = append(hits, hit{face: *f, dist: dist})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].face.ID < hits[j].face.ID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}

	faces := make([]database.Face, len(hits))
	distances := make([]float64, len(hits))
	for i, h := range hits {
		faces[i] = h.face
		distances[i] = h.dist
	}
	return faces, distances, nil
}

// CreateFace stores a new face and returns its id
func (s *Store) CreateFace(ctx context.Context, face *database.Face) (int64, error) {
	if s.CreateFaceError != nil {
		return 0, s.CreateFaceError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.faceCounter++
	stored := *face
	stored.ID = s.faceCounter
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	s.faces[stored.ID] = &stored
	return stored.ID, nil
}

// UpdateFaceOwner moves a face to another person and records how the
// assignment happened. Unknown ids are a no-op.
func (s *Store) UpdateFaceOwner(ctx context.Context, faceID, personID int64, origin database.FaceOrigin) error {
	if s.UpdateFaceOwnerError != nil {
		return s.UpdateFaceOwnerError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.faces[faceID]
	if !ok {
		return nil
	}
	f.PersonID = personID
	f.Origin = origin
	f.AssignedAt = time.Now()
	return nil
}

// DeleteFace removes a face by id. Deleting an unknown id is a no-op.
func (s *Store) DeleteFace(ctx context.Context, faceID int64) error {
	if s.DeleteFaceError != nil {
		return s.DeleteFaceError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.faces, faceID)
	return nil
}

// GetPerson retrieves a person by id with its face count populated,
// returns nil if not found
func (s *Store) GetPerson(ctx context.Context, id int64) (*database.Person, error) {
	if s.GetPersonError != nil {
		return nil, s.GetPersonError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.persons[id]
	if !ok {
		return nil, nil
	}
	person := *p
	person.FaceCount = s.countFacesLocked(id)
	return &person, nil
}

// GetPersonByName retrieves a person by normalized name, returns nil if
// not found
func (s *Store) GetPersonByName(ctx context.Context, name string) (*database.Person, error) {
	if s.GetPersonError != nil {
		return nil, s.GetPersonError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	normalized := facematch.NormalizePersonName(name)
	for _, p := range s.persons {
		if facematch.NormalizePersonName(p.Name) == normalized {
			person := *p
			person.FaceCount = s.countFacesLocked(p.ID)
			return &person, nil
		}
	}
	return nil, nil
}

// ListPersons retrieves all persons with face counts populated, sorted by
// normalized name
func (s *Store) ListPersons(ctx context.Context) ([]database.Person, error) {
	if s.ListPersonsError != nil {
		return nil, s.ListPersonsError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	persons := make([]database.Person, 0, len(s.persons))
	for _, p := range s.persons {
		person := *p
		person.FaceCount = s.countFacesLocked(p.ID)
		persons = append(persons, person)
	}
	sort.Slice(persons, func(i, j int) bool {
		ni := facematch.NormalizePersonName(persons[i].Name)
		nj := facematch.NormalizePersonName(persons[j].Name)
		if ni != nj {
			return ni < nj
		}
		return persons[i].ID < persons[j].ID
	})
	return persons, nil
}

// CountPersons returns the total number of persons
func (s *Store) CountPersons(ctx context.Context) (int, error) {
	if s.CountError != nil {
		return 0, s.CountError
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.persons), nil
}

// CreatePerson stores a new person and returns its id
func (s *Store) CreatePerson(ctx context.Context, person *database.Person) (int64, error) {
	if s.CreatePersonError != nil {
		return 0, s.CreatePersonError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createPersonLocked(person), nil
}

// RenamePerson updates a person's name. Renaming an unknown id is a no-op.
func (s *Store) RenamePerson(ctx context.Context, id int64, name string) error {
	if s.RenamePersonError != nil {
		return s.RenamePersonError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.persons[id]
	if !ok {
		return nil
	}
	p.Name = name
	p.UpdatedAt = time.Now()
	return nil
}

// DeletePerson removes a person. Faces are not cascaded.
func (s *Store) DeletePerson(ctx context.Context, id int64) error {
	if s.DeletePersonError != nil {
		return s.DeletePersonError
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.persons, id)
	return nil
}

// ApplyRecluster commits a re-clustering plan. The plan is validated in
// full before any change is made, so a bad plan leaves the store
// untouched.
func (s *Store) ApplyRecluster(ctx context.Context, plan *database.ReclusterPlan) error {
	if s.ApplyReclusterError != nil {
		return s.ApplyReclusterError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validatePlanLocked(plan); err != nil {
		return err
	}

	now := time.Now()
	createdIDs := make([]int64, len(plan.NewPersons))
	for i := range plan.NewPersons {
		person := plan.NewPersons[i]
		if person.CreatedAt.IsZero() {
			person.CreatedAt = now
		}
		person.UpdatedAt = now
		createdIDs[i] = s.createPersonLocked(&person)
	}

	for _, m := range plan.Moves {
		target := m.PersonID
		if m.NewPersonIdx >= 0 {
			target = createdIDs[m.NewPersonIdx]
		}
		f := s.faces[m.FaceID]
		f.PersonID = target
		f.Origin = m.Origin
		f.AssignedAt = now
	}

	for _, id := range plan.DeletePersonIDs {
		delete(s.persons, id)
	}
	return nil
}

// validatePlanLocked checks every reference in the plan against the
// current state, including that persons marked for deletion end up with
// no faces once the moves are applied.
func (s *Store) validatePlanLocked(plan *database.ReclusterPlan) error {
	// face -> planned owner; new persons get -(idx+1) as a placeholder
	planned := make(map[int64]int64, len(plan.Moves))
	for _, m := range plan.Moves {
		if _, ok := s.faces[m.FaceID]; !ok {
			return fmt.Errorf("recluster plan references unknown face %d", m.FaceID)
		}
		if m.NewPersonIdx >= len(plan.NewPersons) {
			return fmt.Errorf("recluster plan references new person index %d out of range", m.NewPersonIdx)
		}
		if m.NewPersonIdx >= 0 {
			planned[m.FaceID] = -int64(m.NewPersonIdx + 1)
			continue
		}
		if _, ok := s.persons[m.PersonID]; !ok {
			return fmt.Errorf("recluster plan references unknown person %d", m.PersonID)
		}
		planned[m.FaceID] = m.PersonID
	}

	deleted := make(map[int64]struct{}, len(plan.DeletePersonIDs))
	for _, id := range plan.DeletePersonIDs {
		if _, ok := s.persons[id]; !ok {
			return fmt.Errorf("recluster plan deletes unknown person %d", id)
		}
		deleted[id] = struct{}{}
	}
	for id, f := range s.faces {
		owner, moved := planned[id]
		if !moved {
			owner = f.PersonID
		}
		if _, gone := deleted[owner]; gone {
			return fmt.Errorf("recluster plan deletes person %d that still owns face %d", owner, id)
		}
	}
	return nil
}

func (s *Store) createPersonLocked(person *database.Person) int64 {
	s.personCounter++
	stored := *person
	stored.ID = s.personCounter
	s.persons[stored.ID] = &stored
	person.ID = stored.ID
	return stored.ID
}

func (s *Store) countFacesLocked(personID int64) int {
	count := 0
	for _, f := range s.faces {
		if f.PersonID == personID {
			count++
		}
	}
	return count
}

// Verify interface compliance
var _ database.Store = (*Store)(nil)
