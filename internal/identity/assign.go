package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
)

// AssignResult describes where an ingested face ended up.
type AssignResult struct {
	FaceID        int64
	PersonID      int64
	PersonName    string
	PersonCreated bool
	MatchedFaceID int64   // nearest stored face when matched, 0 for founders
	Distance      float64 // distance to MatchedFaceID, meaningless for founders
}

// Assign places a new face with the person owning the nearest stored face,
// or founds a new person when no face lies within the policy tolerance.
// The face arrives without an owner; its origin is always automatic.
func (e *Engine) Assign(ctx context.Context, face *database.Face) (*AssignResult, error) {
	if len(face.Embedding) == 0 {
		return nil, &ValidationError{Field: "embedding", Reason: "must not be empty"}
	}
	if face.ImageID == "" {
		return nil, &ValidationError{Field: "imageId", Reason: "must not be empty"}
	}

	if err := e.acquireWriteSlot(ctx, "assign"); err != nil {
		return nil, err
	}
	defer e.releaseWriteSlot()

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	candidates, distances, err := e.store.FindSimilarWithDistance(ctx, face.Embedding, database.MaxSimilarCandidates, e.policy.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar faces: %w", err)
	}

	now := time.Now()
	face.Origin = database.OriginAuto
	if face.CreatedAt.IsZero() {
		face.CreatedAt = now
	}
	face.AssignedAt = now

	if len(candidates) == 0 {
		person, err := e.createPersonLocked(ctx, "")
		if err != nil {
			return nil, err
		}

		face.PersonID = person.ID
		faceID, err := e.store.CreateFace(ctx, face)
		if err != nil {
			return nil, fmt.Errorf("failed to store face: %w", err)
		}
		face.ID = faceID

		log.Infof("faces: face %d founded person %q", faceID, person.Name)
		return &AssignResult{
			FaceID:        faceID,
			PersonID:      person.ID,
			PersonName:    person.Name,
			PersonCreated: true,
		}, nil
	}

	winner, matchedFaceID, dist, err := e.pickNearestPerson(ctx, candidates, distances)
	if err != nil {
		return nil, err
	}

	face.PersonID = winner.ID
	faceID, err := e.store.CreateFace(ctx, face)
	if err != nil {
		return nil, fmt.Errorf("failed to store face: %w", err)
	}
	face.ID = faceID

	log.Debugf("faces: face %d joined person %d at distance %.4f", faceID, winner.ID, dist)
	return &AssignResult{
		FaceID:        faceID,
		PersonID:      winner.ID,
		PersonName:    winner.Name,
		MatchedFaceID: matchedFaceID,
		Distance:      dist,
	}, nil
}

// pickNearestPerson resolves the owning person among the closest stored
// faces. Candidates arrive distance-ascending; persons tied exactly at the
// minimum distance go through the tie-break strategy.
func (e *Engine) pickNearestPerson(ctx context.Context, faces []database.Face, distances []float64) (database.Person, int64, float64, error) {
	minDist := distances[0]

	// Record the nearest face per person, first occurrence wins.
	nearestFace := make(map[int64]int64)
	nearestDist := make(map[int64]float64)
	var order []int64
	for i := range faces {
		pid := faces[i].PersonID
		if _, seen := nearestDist[pid]; !seen {
			nearestDist[pid] = distances[i]
			nearestFace[pid] = faces[i].ID
			order = append(order, pid)
		}
	}

	var tied []int64
	for _, pid := range order {
		if nearestDist[pid] == minDist {
			tied = append(tied, pid)
		}
	}

	if len(tied) == 1 {
		person, err := e.loadKnownPerson(ctx, tied[0])
		if err != nil {
			return database.Person{}, 0, 0, err
		}
		return *person, nearestFace[tied[0]], minDist, nil
	}

	assignCandidates := make([]AssignCandidate, 0, len(tied))
	for _, pid := range tied {
		person, err := e.loadKnownPerson(ctx, pid)
		if err != nil {
			return database.Person{}, 0, 0, err
		}
		assignCandidates = append(assignCandidates, AssignCandidate{
			Person:    *person,
			Distance:  nearestDist[pid],
			FaceCount: person.FaceCount,
		})
	}

	winner := e.tieBreak(assignCandidates)
	log.Debugf("faces: tie between %d persons resolved to person %d", len(tied), winner.ID)
	return winner, nearestFace[winner.ID], nearestDist[winner.ID], nil
}

// loadKnownPerson loads a person the store just reported faces for.
func (e *Engine) loadKnownPerson(ctx context.Context, id int64) (*database.Person, error) {
	person, err := e.store.GetPerson(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load person %d: %w", id, err)
	}
	if person == nil {
		return nil, fmt.Errorf("person %d vanished during assignment", id)
	}
	return person, nil
}
