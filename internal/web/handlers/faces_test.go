package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/identity"
)

func newFacesHandler(engine *identity.Engine) *FacesHandler {
	return NewFacesHandler(engine, NewStatsHandler(engine))
}

func TestFacesHandler_Move(t *testing.T) {
	engine, store := newTestEngine(t)
	from := createTestPerson(t, store, "Jan")
	to := createTestPerson(t, store, "Petr")
	faceID := createTestFace(t, store, "img-1.jpg", from, 0.125)
	createTestFace(t, store, "img-2.jpg", from, 0.25)

	handler := newFacesHandler(engine)
	req := httptest.NewRequest("PUT", "/api/v1/faces/1/person",
		bytes.NewBufferString(`{"person_id":`+strconv.FormatInt(to, 10)+`}`))
	req = requestWithChiParams(req, map[string]string{"id": strconv.FormatInt(faceID, 10)})
	recorder := httptest.NewRecorder()

	handler.Move(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result MoveResponse
	parseJSONResponse(t, recorder, &result)
	if result.ToPersonID != to {
		t.Errorf("expected target person %d, got %d", to, result.ToPersonID)
	}
	if result.PersonDeleted {
		t.Error("source person still owns a face, it must not be deleted")
	}

	face, err := store.GetFace(context.Background(), faceID)
	if err != nil {
		t.Fatalf("failed to load face: %v", err)
	}
	if face.PersonID != to {
		t.Errorf("expected face owned by %d, got %d", to, face.PersonID)
	}
	if face.Origin != database.OriginManual {
		t.Errorf("expected manual origin after move, got %s", face.Origin)
	}
}

func TestFacesHandler_Move_CleansUpEmptySource(t *testing.T) {
	engine, store := newTestEngine(t)
	from := createTestPerson(t, store, "Jan")
	to := createTestPerson(t, store, "Petr")
	faceID := createTestFace(t, store, "img-1.jpg", from, 0.125)

	handler := newFacesHandler(engine)
	req := httptest.NewRequest("PUT", "/api/v1/faces/1/person",
		bytes.NewBufferString(`{"person_id":`+strconv.FormatInt(to, 10)+`}`))
	req = requestWithChiParams(req, map[string]string{"id": strconv.FormatInt(faceID, 10)})
	recorder := httptest.NewRecorder()

	handler.Move(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result MoveResponse
	parseJSONResponse(t, recorder, &result)
	if !result.PersonDeleted {
		t.Error("expected the emptied source person to be deleted")
	}

	person, err := store.GetPerson(context.Background(), from)
	if err != nil {
		t.Fatalf("failed to load person: %v", err)
	}
	if person != nil {
		t.Errorf("expected person %d gone, still present", from)
	}
}

func TestFacesHandler_Move_FaceNotFound(t *testing.T) {
	engine, store := newTestEngine(t)
	to := createTestPerson(t, store, "Petr")

	handler := newFacesHandler(engine)
	req := httptest.NewRequest("PUT", "/api/v1/faces/99/person",
		bytes.NewBufferString(`{"person_id":`+strconv.FormatInt(to, 10)+`}`))
	req = requestWithChiParams(req, map[string]string{"id": "99"})
	recorder := httptest.NewRecorder()

	handler.Move(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestFacesHandler_Move_PersonNotFound(t *testing.T) {
	engine, store := newTestEngine(t)
	from := createTestPerson(t, store, "Jan")
	faceID := createTestFace(t, store, "img-1.jpg", from, 0.125)

	handler := newFacesHandler(engine)
	req := httptest.NewRequest("PUT", "/api/v1/faces/1/person", bytes.NewBufferString(`{"person_id":77}`))
	req = requestWithChiParams(req, map[string]string{"id": strconv.FormatInt(faceID, 10)})
	recorder := httptest.NewRecorder()

	handler.Move(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestFacesHandler_Move_MissingPersonID(t *testing.T) {
	engine, store := newTestEngine(t)
	from := createTestPerson(t, store, "Jan")
	faceID := createTestFace(t, store, "img-1.jpg", from, 0.125)

	handler := newFacesHandler(engine)
	req := httptest.NewRequest("PUT", "/api/v1/faces/1/person", bytes.NewBufferString(`{}`))
	req = requestWithChiParams(req, map[string]string{"id": strconv.FormatInt(faceID, 10)})
	recorder := httptest.NewRecorder()

	handler.Move(recorder, req)

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "person_id is required")
}

func TestFacesHandler_MoveToNew(t *testing.T) {
	engine, store := newTestEngine(t)
	from := createTestPerson(t, store, "Jan")
	faceID := createTestFace(t, store, "img-1.jpg", from, 0.125)
	createTestFace(t, store, "img-2.jpg", from, 0.25)

	handler := newFacesHandler(engine)
	req := httptest.NewRequest("POST", "/api/v1/faces/1/person", bytes.NewBufferString(`{"name":"Eva"}`))
	req = requestWithChiParams(req, map[string]string{"id": strconv.FormatInt(faceID, 10)})
	recorder := httptest.NewRecorder()

	handler.MoveToNew(recorder, req)

	assertStatusCode(t, recorder, http.StatusCreated)
	var result MoveResponse
	parseJSONResponse(t, recorder, &result)
	if !result.PersonCreated {
		t.Error("expected a created target person")
	}
	if result.ToPersonName != "Eva" {
		t.Errorf("expected target name Eva, got %s", result.ToPersonName)
	}

	face, err := store.GetFace(context.Background(), faceID)
	if err != nil {
		t.Fatalf("failed to load face: %v", err)
	}
	if face.PersonID != result.ToPersonID {
		t.Errorf("expected face owned by %d, got %d", result.ToPersonID, face.PersonID)
	}
	if face.Origin != database.OriginManual {
		t.Errorf("expected manual origin, got %s", face.Origin)
	}
}

func TestFacesHandler_MoveToNew_FaceNotFound(t *testing.T) {
	engine, store := newTestEngine(t)

	handler := newFacesHandler(engine)
	req := httptest.NewRequest("POST", "/api/v1/faces/5/person", bytes.NewBufferString(`{"name":"Eva"}`))
	req = requestWithChiParams(req, map[string]string{"id": "5"})
	recorder := httptest.NewRecorder()

	handler.MoveToNew(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)

	// The aborted move must not leave an empty person behind.
	count, err := store.CountPersons(context.Background())
	if err != nil {
		t.Fatalf("failed to count persons: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no persons, got %d", count)
	}
}

func TestFacesHandler_Delete(t *testing.T) {
	engine, store := newTestEngine(t)
	person := createTestPerson(t, store, "Jan")
	faceID := createTestFace(t, store, "img-1.jpg", person, 0.125)

	handler := newFacesHandler(engine)
	req := httptest.NewRequest("DELETE", "/api/v1/faces/1", nil)
	req = requestWithChiParams(req, map[string]string{"id": strconv.FormatInt(faceID, 10)})
	recorder := httptest.NewRecorder()

	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var result DeleteResponse
	parseJSONResponse(t, recorder, &result)
	if !result.PersonDeleted {
		t.Error("expected the emptied person to be deleted")
	}

	face, err := store.GetFace(context.Background(), faceID)
	if err != nil {
		t.Fatalf("failed to load face: %v", err)
	}
	if face != nil {
		t.Error("expected face gone, still present")
	}
}

func TestFacesHandler_Delete_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)

	handler := newFacesHandler(engine)
	req := httptest.NewRequest("DELETE", "/api/v1/faces/123", nil)
	req = requestWithChiParams(req, map[string]string{"id": "123"})
	recorder := httptest.NewRecorder()

	handler.Delete(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}
