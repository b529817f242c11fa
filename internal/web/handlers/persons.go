package handlers

import (
	"encoding/json"
	"image"
	"image/jpeg"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "image/gif"
	_ "image/png"

	"golang.org/x/image/draw"

	"github.com/kozaktomas/face-sorter/internal/constants"
	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/identity"
)

// PersonsHandler handles person registry endpoints.
type PersonsHandler struct {
	engine    *identity.Engine
	photosDir string
	stats     *StatsHandler
}

// NewPersonsHandler creates a new persons handler. photosDir is the root
// for relative face image paths used by the thumbnail endpoint.
func NewPersonsHandler(engine *identity.Engine, photosDir string, stats *StatsHandler) *PersonsHandler {
	return &PersonsHandler{
		engine:    engine,
		photosDir: photosDir,
		stats:     stats,
	}
}

// FaceRefResponse represents a face reference in API responses.
type FaceRefResponse struct {
	FaceID  int64     `json:"face_id"`
	ImageID string    `json:"image_id"`
	BBox    []float64 `json:"bbox"`
	Origin  string    `json:"origin"`
}

// PersonResponse represents a person in API responses.
type PersonResponse struct {
	ID        int64            `json:"id"`
	Name      string           `json:"name"`
	FaceCount int              `json:"face_count"`
	Thumbnail *FaceRefResponse `json:"thumbnail,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// PersonDetailResponse adds the person's faces to the summary.
type PersonDetailResponse struct {
	PersonResponse
	Faces []FaceRefResponse `json:"faces"`
}

func faceRefToResponse(ref *identity.FaceRef) *FaceRefResponse {
	if ref == nil {
		return nil
	}
	return &FaceRefResponse{
		FaceID:  ref.FaceID,
		ImageID: ref.ImageID,
		BBox:    ref.BBox,
		Origin:  string(ref.Origin),
	}
}

func personToResponse(p database.Person, thumb *identity.FaceRef) PersonResponse {
	return PersonResponse{
		ID:        p.ID,
		Name:      p.Name,
		FaceCount: p.FaceCount,
		Thumbnail: faceRefToResponse(thumb),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

// List returns all persons sorted by name.
func (h *PersonsHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.engine.Persons(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}

	response := make([]PersonResponse, len(summaries))
	for i := range summaries {
		response[i] = personToResponse(summaries[i].Person, summaries[i].Thumbnail)
	}

	respondJSON(w, http.StatusOK, response)
}

// CreatePersonRequest is the request body for creating a person.
type CreatePersonRequest struct {
	Name string `json:"name"`
}

// Create registers a new, empty person. A blank name yields the next
// "Person N" sequence name.
func (h *PersonsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	person, err := h.engine.CreatePerson(r.Context(), req.Name)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	h.stats.InvalidateCache()
	respondJSON(w, http.StatusCreated, personToResponse(*person, nil))
}

// Get returns a single person with all its faces.
func (h *PersonsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := parseIDParam(w, r, "id")
	if id == 0 {
		return
	}

	detail, err := h.engine.Person(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	response := PersonDetailResponse{
		PersonResponse: personToResponse(detail.Person, detail.Thumbnail),
		Faces:          make([]FaceRefResponse, len(detail.Faces)),
	}
	response.FaceCount = len(detail.Faces)
	for i := range detail.Faces {
		response.Faces[i] = *faceRefToResponse(&detail.Faces[i])
	}

	respondJSON(w, http.StatusOK, response)
}

// RenamePersonRequest is the request body for renaming a person.
type RenamePersonRequest struct {
	Name string `json:"name"`
}

// Rename gives a person a new display name.
func (h *PersonsHandler) Rename(w http.ResponseWriter, r *http.Request) {
	id := parseIDParam(w, r, "id")
	if id == 0 {
		return
	}

	var req RenamePersonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	person, err := h.engine.RenamePerson(r.Context(), id, req.Name)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, personToResponse(*person, nil))
}

// Thumbnail serves a square JPEG crop of the person's thumbnail face,
// the face with the largest bounding box. Responds 404 when the person
// owns no faces or the source image is not available on disk.
func (h *PersonsHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	id := parseIDParam(w, r, "id")
	if id == 0 {
		return
	}

	size := constants.DefaultThumbnailSize
	if raw := r.URL.Query().Get("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > constants.MaxThumbnailSize {
			respondError(w, http.StatusBadRequest, "invalid size")
			return
		}
		size = parsed
	}

	face, err := h.engine.ThumbnailFace(r.Context(), id)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if face == nil || face.ImagePath == "" {
		respondError(w, http.StatusNotFound, "no face image available")
		return
	}

	path := face.ImagePath
	if !filepath.IsAbs(path) {
		if h.photosDir == "" {
			respondError(w, http.StatusNotFound, "no face image available")
			return
		}
		path = filepath.Join(h.photosDir, path)
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		respondError(w, http.StatusNotFound, "face image not found")
		return
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		respondError(w, http.StatusNotFound, "face image not readable")
		return
	}

	crop := faceCropRect(face.BBox, img.Bounds())
	if crop.Empty() {
		respondError(w, http.StatusNotFound, "face region outside image")
		return
	}

	thumb := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.ApproxBiLinear.Scale(thumb, thumb.Bounds(), img, crop, draw.Src, nil)

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "private, max-age=300")
	if err := jpeg.Encode(w, thumb, &jpeg.Options{Quality: 85}); err != nil {
		log.Errorf("thumbnail: failed to encode person %d: %v", id, err)
	}
}

// faceCropRect turns a face bounding box into a square crop rectangle.
// The box is widened by the thumbnail margin, squared around its center
// and clamped to the image bounds.
func faceCropRect(bbox []float64, bounds image.Rectangle) image.Rectangle {
	if len(bbox) != 4 {
		return image.Rectangle{}
	}

	x1, y1, x2, y2 := bbox[0], bbox[1], bbox[2], bbox[3]
	w := x2 - x1
	h := y2 - y1
	if w <= 0 || h <= 0 {
		return image.Rectangle{}
	}

	x1 -= w * constants.ThumbnailMargin
	x2 += w * constants.ThumbnailMargin
	y1 -= h * constants.ThumbnailMargin
	y2 += h * constants.ThumbnailMargin

	// Square around the center so scaling does not distort the face.
	cx := (x1 + x2) / 2
	cy := (y1 + y2) / 2
	side := x2 - x1
	if y2-y1 > side {
		side = y2 - y1
	}

	crop := image.Rect(
		int(cx-side/2), int(cy-side/2),
		int(cx+side/2), int(cy+side/2),
	)
	return crop.Intersect(bounds)
}
