package identity

// Default thresholds for 128-dim face embeddings under Euclidean distance.
const (
	// DefaultTolerance is the maximum distance at which a new face still
	// joins an existing person.
	DefaultTolerance = 0.6

	// DefaultEps is the DBSCAN neighborhood radius for batch re-clustering.
	DefaultEps = 0.4

	// DefaultMinSamples is the minimum DBSCAN neighborhood size (the point
	// itself counts) for a face to become a core point.
	DefaultMinSamples = 2
)

// DistancePolicy bundles the distance thresholds an engine works with.
// It is a plain immutable value: construct it once via NewDistancePolicy
// and pass it around by value. Operations never mutate it.
type DistancePolicy struct {
	// Tolerance is the incremental match threshold.
	Tolerance float64

	// Eps is the DBSCAN neighborhood radius.
	Eps float64

	// MinSamples is the DBSCAN core point threshold, counting the
	// candidate point itself.
	MinSamples int
}

// NewDistancePolicy validates the thresholds and returns a policy.
func NewDistancePolicy(tolerance, eps float64, minSamples int) (DistancePolicy, error) {
	if tolerance <= 0 {
		return DistancePolicy{}, &ValidationError{Field: "tolerance", Reason: "must be greater than zero"}
	}
	if eps <= 0 {
		return DistancePolicy{}, &ValidationError{Field: "eps", Reason: "must be greater than zero"}
	}
	if minSamples < 1 {
		return DistancePolicy{}, &ValidationError{Field: "minSamples", Reason: "must be at least 1"}
	}

	return DistancePolicy{
		Tolerance:  tolerance,
		Eps:        eps,
		MinSamples: minSamples,
	}, nil
}

// DefaultPolicy returns the policy tuned for 128-dim face embeddings.
func DefaultPolicy() DistancePolicy {
	return DistancePolicy{
		Tolerance:  DefaultTolerance,
		Eps:        DefaultEps,
		MinSamples: DefaultMinSamples,
	}
}
