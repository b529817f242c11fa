package identity

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/face-sorter/internal/database"
)

var log = logrus.StandardLogger()

// DistanceFunc measures how far apart two embeddings are. Implementations
// must be symmetric and return +Inf for incomparable vectors.
type DistanceFunc func(a, b []float32) float64

// Engine owns every transition of the face-to-person mapping. All writes
// for one store go through one Engine so its locking holds.
type Engine struct {
	store    database.Store
	policy   DistancePolicy
	dist     DistanceFunc
	tieBreak TieBreaker
	survivor SurvivorPicker

	// clusterMu serializes batch re-clustering (write side) against
	// incremental writes (read side).
	clusterMu sync.RWMutex

	// writeMu serializes assign/move decisions with their commits, so two
	// near-duplicate faces cannot found two persons concurrently and a
	// move target cannot vanish mid-flight.
	writeMu sync.Mutex
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithTieBreaker overrides the incremental assignment tie-break strategy.
func WithTieBreaker(tb TieBreaker) Option {
	return func(e *Engine) { e.tieBreak = tb }
}

// WithSurvivorPicker overrides the merge survivor strategy.
func WithSurvivorPicker(sp SurvivorPicker) Option {
	return func(e *Engine) { e.survivor = sp }
}

// WithDistanceFunc overrides the embedding distance metric.
func WithDistanceFunc(d DistanceFunc) Option {
	return func(e *Engine) { e.dist = d }
}

// NewEngine creates an engine over the given store. The policy is copied
// and never mutated afterwards.
func NewEngine(store database.Store, policy DistancePolicy, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		policy:   policy,
		dist:     database.EuclideanDistance,
		tieBreak: PreferLargerPerson,
		survivor: PreferMoreAnchors,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the distance policy the engine was built with.
func (e *Engine) Policy() DistancePolicy {
	return e.policy
}

// Retry parameters for writes contending with a running re-cluster.
const (
	writeRetryAttempts  = 5
	writeRetryBaseDelay = 50 * time.Millisecond
)

// acquireWriteSlot takes a shared slot against the exclusive re-cluster
// lock. While a re-cluster runs it retries with exponential backoff and
// returns ConflictError once attempts are exhausted, or the context error
// if that ends first.
func (e *Engine) acquireWriteSlot(ctx context.Context, op string) error {
	delay := writeRetryBaseDelay
	for attempt := 1; ; attempt++ {
		if e.clusterMu.TryRLock() {
			return nil
		}
		if attempt == writeRetryAttempts {
			return &ConflictError{Op: op}
		}

		log.Debugf("faces: %s waiting for re-cluster to finish (attempt %d/%d)", op, attempt, writeRetryAttempts)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (e *Engine) releaseWriteSlot() {
	e.clusterMu.RUnlock()
}
