package identity

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-sorter/internal/database"
)

// DefaultSearchLimit caps similarity results when the caller does not
// ask for a specific count.
const DefaultSearchLimit = 20

// Match is a single similarity search hit.
type Match struct {
	FaceID     int64
	PersonID   int64
	ImageID    string
	Distance   float64
	Confidence float64
}

// Search finds stored faces within tolerance of the query embedding,
// ordered by ascending distance. A non-positive tolerance falls back to
// the policy tolerance and a non-positive limit falls back to
// DefaultSearchLimit. No matches is not an error.
func (e *Engine) Search(ctx context.Context, embedding []float32, tolerance float64, limit int) ([]Match, error) {
	if len(embedding) == 0 {
		return nil, &ValidationError{Field: "embedding", Reason: "must not be empty"}
	}
	if tolerance <= 0 {
		tolerance = e.policy.Tolerance
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > database.MaxSimilarCandidates {
		limit = database.MaxSimilarCandidates
	}

	faces, distances, err := e.store.FindSimilarWithDistance(ctx, embedding, limit, tolerance)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar faces: %w", err)
	}

	matches := make([]Match, 0, len(faces))
	for i := range faces {
		confidence := 1 - distances[i]/tolerance
		if confidence < 0 {
			confidence = 0
		}
		if confidence > 1 {
			confidence = 1
		}
		matches = append(matches, Match{
			FaceID:     faces[i].ID,
			PersonID:   faces[i].PersonID,
			ImageID:    faces[i].ImageID,
			Distance:   distances[i],
			Confidence: confidence,
		})
	}

	return matches, nil
}
