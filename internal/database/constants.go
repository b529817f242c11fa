package database

// FaceEmbeddingDim is the expected length of face embedding vectors.
// The schema pins the pgvector column to this dimension; vectors of any
// other length are rejected at ingest.
const FaceEmbeddingDim = 128

// Face filter constants - minimum quality for detected faces worth keeping
const (
	// MinFaceWidthPx is the absolute minimum face width in pixels
	MinFaceWidthPx = 35

	// MinDetScore is the minimum detector confidence for ingested faces
	MinDetScore = 0.5
)

// HNSW index parameters for face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWEfConstruction is used during index building.
	// Higher values improve index quality but slow down construction.
	HNSWEfConstruction = 200

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// to ensure we have enough after distance filtering.
	HNSWSearchMultiplier = 3
)

// MaxSimilarCandidates caps how many neighbors a single similarity query
// may return regardless of the caller's limit.
const MaxSimilarCandidates = 500
