// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Face matching constants
const (
	// IoUThreshold is the minimum Intersection over Union required to consider
	// a legacy marker as matching a stored face
	IoUThreshold = 0.1
)

// Ingest constants
const (
	// DefaultIngestConcurrency is the default number of parallel workers for
	// face extraction during ingest
	DefaultIngestConcurrency = 5
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for job event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum upload request size in bytes (100MB)
	MaxUploadSize = 100 << 20
)

// Thumbnail constants
const (
	// DefaultThumbnailSize is the edge length of person thumbnails in pixels
	DefaultThumbnailSize = 256

	// MaxThumbnailSize caps the requested thumbnail edge length
	MaxThumbnailSize = 1024

	// ThumbnailMargin widens the face crop on each side as a fraction of
	// the bounding box, so thumbnails show a bit of context around the face
	ThumbnailMargin = 0.25
)
