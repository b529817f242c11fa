package identity

import (
	"github.com/kozaktomas/face-sorter/internal/database"
)

// AssignCandidate is a person tied at the minimum distance during
// incremental assignment.
type AssignCandidate struct {
	Person    database.Person
	Distance  float64
	FaceCount int
}

// TieBreaker picks one person among candidates tied at the minimum
// distance. The slice is never empty.
type TieBreaker func(candidates []AssignCandidate) database.Person

// PreferLargerPerson is the default tie breaker: the person with more
// faces wins, remaining ties go to the earlier CreatedAt, then lower id.
func PreferLargerPerson(candidates []AssignCandidate) database.Person {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.FaceCount > best.FaceCount:
			best = c
		case c.FaceCount == best.FaceCount && olderPerson(c.Person, best.Person):
			best = c
		}
	}
	return best.Person
}

// MergeCandidate is a person contending for survival when one derived
// cluster reaches faces anchored to several persons.
type MergeCandidate struct {
	Person        database.Person
	AnchoredFaces int // anchored faces of this person inside the disputed cluster
}

// SurvivorPicker picks the person a disputed cluster collapses into.
// The slice always holds at least two candidates.
type SurvivorPicker func(candidates []MergeCandidate) database.Person

// PreferMoreAnchors is the default survivor picker: the person with more
// anchored faces in the disputed cluster wins, remaining ties go to the
// earlier CreatedAt, then lower id.
func PreferMoreAnchors(candidates []MergeCandidate) database.Person {
	best := candidates[0]
	for _, c := range candidates[1:] {
		switch {
		case c.AnchoredFaces > best.AnchoredFaces:
			best = c
		case c.AnchoredFaces == best.AnchoredFaces && olderPerson(c.Person, best.Person):
			best = c
		}
	}
	return best.Person
}

// olderPerson reports whether a was created strictly before b, falling
// back to the lower id so ordering is total.
func olderPerson(a, b database.Person) bool {
	if a.CreatedAt.Equal(b.CreatedAt) {
		return a.ID < b.ID
	}
	return a.CreatedAt.Before(b.CreatedAt)
}
