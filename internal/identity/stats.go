package identity

import (
	"context"
	"fmt"

	"github.com/kozaktomas/face-sorter/internal/database"
)

// Stats summarizes the state of the face collection.
type Stats struct {
	Persons           int
	Faces             int
	Images            int
	ManualFaces       int
	AutomaticFaces    int
	AvgFacesPerPerson float64
	Policy            DistancePolicy
}

// Stats computes collection counters from the store.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	persons, err := e.store.CountPersons(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count persons: %w", err)
	}

	faces, err := e.store.CountFaces(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count faces: %w", err)
	}

	images, err := e.store.CountImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count images: %w", err)
	}

	manual, err := e.store.CountFacesByOrigin(ctx, database.OriginManual)
	if err != nil {
		return nil, fmt.Errorf("failed to count manual faces: %w", err)
	}

	stats := &Stats{
		Persons:        persons,
		Faces:          faces,
		Images:         images,
		ManualFaces:    manual,
		AutomaticFaces: faces - manual,
		Policy:         e.policy,
	}
	if persons > 0 {
		stats.AvgFacesPerPerson = float64(faces) / float64(persons)
	}

	return stats, nil
}
