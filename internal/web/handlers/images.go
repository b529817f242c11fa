package handlers

import (
	"bytes"
	"context"
	"errors"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/kozaktomas/face-sorter/internal/constants"
	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/extractor"
	"github.com/kozaktomas/face-sorter/internal/identity"
)

// ImagesHandler handles image ingest endpoints.
type ImagesHandler struct {
	engine    *identity.Engine
	extractor *extractor.Client
	photosDir string
	stats     *StatsHandler
}

// NewImagesHandler creates a new images handler. When photosDir is set,
// uploaded images are kept there so person thumbnails can be served.
func NewImagesHandler(engine *identity.Engine, ex *extractor.Client, photosDir string, stats *StatsHandler) *ImagesHandler {
	return &ImagesHandler{
		engine:    engine,
		extractor: ex,
		photosDir: photosDir,
		stats:     stats,
	}
}

// AssignmentResponse reports where one ingested face ended up.
type AssignmentResponse struct {
	FaceID        int64   `json:"face_id"`
	PersonID      int64   `json:"person_id"`
	PersonName    string  `json:"person_name"`
	PersonCreated bool    `json:"person_created"`
	Distance      float64 `json:"distance,omitempty"`
}

// ImageResult reports the ingest outcome for one uploaded image.
type ImageResult struct {
	ImageID       string               `json:"image_id"`
	FacesDetected int                  `json:"faces_detected"`
	FacesUsable   int                  `json:"faces_usable"`
	Assignments   []AssignmentResponse `json:"assignments"`
	Error         string               `json:"error,omitempty"`
}

// UploadResponse wraps the per-image ingest results.
type UploadResponse struct {
	Images []ImageResult `json:"images"`
}

// Upload ingests uploaded images: detect faces, filter out unusable
// detections and assign each remaining face to a person. Extraction
// failures are reported per image, they do not fail the request.
func (h *ImagesHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no files provided")
		return
	}

	response := UploadResponse{Images: make([]ImageResult, 0, len(files))}
	for _, fileHeader := range files {
		response.Images = append(response.Images, h.ingestFile(r.Context(), fileHeader))
	}

	h.stats.InvalidateCache()
	respondJSON(w, http.StatusOK, response)
}

// ingestFile runs the extract-filter-assign pipeline for one upload.
func (h *ImagesHandler) ingestFile(ctx context.Context, fileHeader *multipart.FileHeader) ImageResult {
	imageID := filepath.Base(fileHeader.Filename)
	result := ImageResult{ImageID: imageID, Assignments: []AssignmentResponse{}}

	data, err := readUploadedFile(fileHeader)
	if err != nil {
		result.Error = err.Error()
		return result
	}

	imagePath, width, height := h.storeImage(imageID, data)

	extracted, err := h.extractor.ExtractFaces(ctx, data)
	if err != nil {
		// An extractor timeout means no faces for this image, not a
		// failed upload.
		if extractor.IsTimeout(err) {
			log.Warnf("ingest: extractor timed out on %s", sanitizeForLog(imageID))
			return result
		}
		result.Error = "face extraction failed: " + err.Error()
		return result
	}

	result.FacesDetected = extracted.FacesCount
	usable := extractor.UsableFaces(extracted.Faces, database.MinFaceWidthPx, database.MinDetScore, database.FaceEmbeddingDim)
	result.FacesUsable = len(usable)

	for i := range usable {
		face := &database.Face{
			ImageID:     imageID,
			Embedding:   usable[i].Embedding,
			BBox:        usable[i].BBox,
			DetScore:    usable[i].DetScore,
			CreatedAt:   time.Now(),
			ImagePath:   imagePath,
			ImageWidth:  width,
			ImageHeight: height,
		}

		assigned, err := h.engine.Assign(ctx, face)
		if err != nil {
			result.Error = "face assignment failed: " + err.Error()
			return result
		}

		result.Assignments = append(result.Assignments, AssignmentResponse{
			FaceID:        assigned.FaceID,
			PersonID:      assigned.PersonID,
			PersonName:    assigned.PersonName,
			PersonCreated: assigned.PersonCreated,
			Distance:      assigned.Distance,
		})
	}

	return result
}

// storeImage saves the upload under the photos directory and returns its
// path and pixel dimensions. Without a photos directory the image is not
// kept and thumbnails for its faces stay unavailable.
func (h *ImagesHandler) storeImage(imageID string, data []byte) (path string, width, height int) {
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		width, height = cfg.Width, cfg.Height
	}

	if h.photosDir == "" {
		return "", width, height
	}
	if err := os.MkdirAll(h.photosDir, 0o750); err != nil {
		log.Warnf("ingest: failed to create photos dir: %v", err)
		return "", width, height
	}

	path = filepath.Join(h.photosDir, imageID)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		log.Warnf("ingest: failed to store %s: %v", sanitizeForLog(imageID), err)
		return "", width, height
	}
	return path, width, height
}

func readUploadedFile(fileHeader *multipart.FileHeader) ([]byte, error) {
	file, err := fileHeader.Open()
	if err != nil {
		return nil, errors.New("failed to open uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, errors.New("failed to read uploaded file")
	}
	return data, nil
}
