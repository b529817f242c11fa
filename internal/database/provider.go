package database

import (
	"context"
	"fmt"
)

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
	// SaveHNSWIndex saves the current index to disk (if path configured)
	SaveHNSWIndex() error
}

var (
	backendStore       func() Store
	backendName        string
	faceHNSW           HNSWRebuilder // Singleton for face HNSW rebuilding
	backendInitialized bool
)

// RegisterBackend registers the active storage backend constructor.
// This is called by the postgres or memory package to avoid import cycles.
func RegisterBackend(name string, store func() Store) {
	backendName = name
	backendStore = store
	backendInitialized = true
}

// RegisterFaceHNSWRebuilder registers the HNSW rebuilder for the face store.
// This allows rebuilding the in-memory HNSW index without knowing the concrete type.
func RegisterFaceHNSWRebuilder(rebuilder HNSWRebuilder) {
	faceHNSW = rebuilder
}

// GetFaceHNSWRebuilder returns the registered face HNSW rebuilder, or nil if not registered.
func GetFaceHNSWRebuilder() HNSWRebuilder {
	return faceHNSW
}

// IsInitialized returns whether a storage backend has been initialized.
func IsInitialized() bool {
	return backendInitialized
}

// BackendName returns the name of the active storage backend ("postgres"
// or "memory"), or an empty string before initialization.
func BackendName() string {
	return backendName
}

// GetStore returns the active storage backend
func GetStore(ctx context.Context) (Store, error) {
	if !backendInitialized {
		return nil, fmt.Errorf("storage backend not initialized: set DATABASE_URL or enable the memory backend")
	}
	if backendStore == nil {
		return nil, fmt.Errorf("storage backend not registered")
	}
	return backendStore(), nil
}
