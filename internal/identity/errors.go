// Package identity maintains the mapping from face embeddings to persons.
// It hosts the incremental assigner, the batch clusterer with manual-anchor
// handling, the person registry and the similarity search.
package identity

import (
	"errors"
	"fmt"
)

// NotFoundError reports that a referenced face or person does not exist.
type NotFoundError struct {
	Kind string // "face" or "person"
	ID   int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Kind, e.ID)
}

// ValidationError reports input that the engine refuses to work with.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictError reports an operation that gave up waiting for an exclusive
// engine operation (typically a running re-cluster) to finish.
type ConflictError struct {
	Op string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s aborted: conflicting operation in progress, retries exhausted", e.Op)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}
