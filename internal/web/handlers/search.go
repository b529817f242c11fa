package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/face-sorter/internal/identity"
)

// SearchHandler handles similarity search endpoints.
type SearchHandler struct {
	engine *identity.Engine
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(engine *identity.Engine) *SearchHandler {
	return &SearchHandler{engine: engine}
}

// SearchRequest is the request body for a similarity search. Tolerance
// and limit are optional; omitted or non-positive values fall back to
// the engine defaults.
type SearchRequest struct {
	Embedding []float32 `json:"embedding"`
	Tolerance float64   `json:"tolerance"`
	Limit     int       `json:"limit"`
}

// MatchResponse represents a single similarity search hit.
type MatchResponse struct {
	FaceID     int64   `json:"face_id"`
	PersonID   int64   `json:"person_id"`
	ImageID    string  `json:"image_id"`
	Distance   float64 `json:"distance"`
	Confidence float64 `json:"confidence"`
}

// SearchResponse wraps the ordered match list.
type SearchResponse struct {
	Matches []MatchResponse `json:"matches"`
}

// Search finds stored faces near the query embedding, ordered by
// ascending distance. No matches yields an empty list, not an error.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	matches, err := h.engine.Search(r.Context(), req.Embedding, req.Tolerance, req.Limit)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	response := SearchResponse{Matches: make([]MatchResponse, len(matches))}
	for i, m := range matches {
		response.Matches[i] = MatchResponse{
			FaceID:     m.FaceID,
			PersonID:   m.PersonID,
			ImageID:    m.ImageID,
			Distance:   m.Distance,
			Confidence: m.Confidence,
		}
	}

	respondJSON(w, http.StatusOK, response)
}
