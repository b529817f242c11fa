package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/kozaktomas/face-sorter/internal/identity"
)

// FacesHandler handles manual face mutation endpoints.
type FacesHandler struct {
	engine *identity.Engine
	stats  *StatsHandler
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(engine *identity.Engine, stats *StatsHandler) *FacesHandler {
	return &FacesHandler{
		engine: engine,
		stats:  stats,
	}
}

// MoveResponse represents the outcome of a manual face move.
type MoveResponse struct {
	FaceID        int64  `json:"face_id"`
	FromPersonID  int64  `json:"from_person_id"`
	ToPersonID    int64  `json:"to_person_id"`
	ToPersonName  string `json:"to_person_name"`
	PersonCreated bool   `json:"person_created"`
	PersonDeleted bool   `json:"person_deleted"`
}

func moveToResponse(m *identity.MoveResult) MoveResponse {
	return MoveResponse{
		FaceID:        m.FaceID,
		FromPersonID:  m.FromPersonID,
		ToPersonID:    m.ToPersonID,
		ToPersonName:  m.ToPersonName,
		PersonCreated: m.PersonCreated,
		PersonDeleted: m.PersonDeleted,
	}
}

// MoveRequest is the request body for moving a face to an existing person.
type MoveRequest struct {
	PersonID int64 `json:"person_id"`
}

// Move reassigns a face to an existing person and marks it manual.
func (h *FacesHandler) Move(w http.ResponseWriter, r *http.Request) {
	faceID := parseIDParam(w, r, "id")
	if faceID == 0 {
		return
	}

	var req MoveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.PersonID <= 0 {
		respondError(w, http.StatusBadRequest, "person_id is required")
		return
	}

	result, err := h.engine.MoveFaceToPerson(r.Context(), faceID, req.PersonID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	h.stats.InvalidateCache()
	respondJSON(w, http.StatusOK, moveToResponse(result))
}

// MoveToNewRequest is the request body for moving a face to a new person.
type MoveToNewRequest struct {
	Name string `json:"name"`
}

// MoveToNew creates a person and manually moves the face there. A blank
// name yields the next "Person N" sequence name.
func (h *FacesHandler) MoveToNew(w http.ResponseWriter, r *http.Request) {
	faceID := parseIDParam(w, r, "id")
	if faceID == 0 {
		return
	}

	var req MoveToNewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	result, err := h.engine.MoveFaceToNewPerson(r.Context(), faceID, req.Name)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	h.stats.InvalidateCache()
	respondJSON(w, http.StatusCreated, moveToResponse(result))
}

// DeleteResponse represents the outcome of a face deletion.
type DeleteResponse struct {
	FaceID        int64 `json:"face_id"`
	PersonID      int64 `json:"person_id"`
	PersonDeleted bool  `json:"person_deleted"`
}

// Delete removes a face, cleaning up its person when it becomes empty.
func (h *FacesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	faceID := parseIDParam(w, r, "id")
	if faceID == 0 {
		return
	}

	result, err := h.engine.DeleteFace(r.Context(), faceID)
	if err != nil {
		respondEngineError(w, err)
		return
	}

	h.stats.InvalidateCache()
	respondJSON(w, http.StatusOK, DeleteResponse{
		FaceID:        result.FaceID,
		PersonID:      result.PersonID,
		PersonDeleted: result.PersonDeleted,
	})
}
