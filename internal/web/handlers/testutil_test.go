package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/database/memory"
	"github.com/kozaktomas/face-sorter/internal/identity"
)

// newTestEngine creates an engine over a fresh in-memory store.
func newTestEngine(t *testing.T) (*identity.Engine, *memory.Store) {
	t.Helper()
	policy, err := identity.NewDistancePolicy(0.5, 0.25, 2)
	if err != nil {
		t.Fatalf("failed to create policy: %v", err)
	}
	store := memory.New()
	return identity.NewEngine(store, policy), store
}

// testEmbedding builds a valid embedding with the first component set.
func testEmbedding(first float32) []float32 {
	e := make([]float32, database.FaceEmbeddingDim)
	e[0] = first
	return e
}

// createTestPerson seeds a person directly in the store.
func createTestPerson(t *testing.T, store *memory.Store, name string) int64 {
	t.Helper()
	id, err := store.CreatePerson(context.Background(), &database.Person{Name: name})
	if err != nil {
		t.Fatalf("failed to create person: %v", err)
	}
	return id
}

// createTestFace seeds a face directly in the store.
func createTestFace(t *testing.T, store *memory.Store, imageID string, personID int64, first float32) int64 {
	t.Helper()
	id, err := store.CreateFace(context.Background(), &database.Face{
		ImageID:   imageID,
		Embedding: testEmbedding(first),
		BBox:      []float64{10, 10, 110, 110},
		DetScore:  0.9,
		PersonID:  personID,
		Origin:    database.OriginAuto,
	})
	if err != nil {
		t.Fatalf("failed to create face: %v", err)
	}
	return id
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
