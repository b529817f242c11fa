package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/face-sorter/internal/database"
	"github.com/kozaktomas/face-sorter/internal/identity"
)

func newClusterHandler(engine *identity.Engine) *ClusterHandler {
	return NewClusterHandler(engine, NewJobManager(), NewStatsHandler(engine))
}

// waitForJob polls the job until it reaches a terminal state.
func waitForJob(t *testing.T, job *ClusterJob) ClusterJobView {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if isJobTerminal(job.GetStatus()) {
			return job.View()
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job did not finish, status %s", job.GetStatus())
	return ClusterJobView{}
}

func TestClusterHandler_Preview(t *testing.T) {
	engine, store := newTestEngine(t)
	person := createTestPerson(t, store, "Jan")
	// Two free faces within eps of each other form one cluster, the third
	// is an outlier.
	createTestFace(t, store, "img-1.jpg", person, 0.125)
	createTestFace(t, store, "img-2.jpg", person, 0.25)
	createTestFace(t, store, "img-3.jpg", person, 4)

	// A manual face stays anchored and out of the clustering input.
	manualID := createTestFace(t, store, "img-4.jpg", person, 10)
	if err := store.UpdateFaceOwner(context.Background(), manualID, person, database.OriginManual); err != nil {
		t.Fatalf("failed to mark face manual: %v", err)
	}

	handler := newClusterHandler(engine)
	req := httptest.NewRequest("POST", "/api/v1/cluster/preview", nil)
	recorder := httptest.NewRecorder()

	handler.Preview(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var preview PreviewResponse
	parseJSONResponse(t, recorder, &preview)

	if len(preview.ClusterSizes) != 1 || preview.ClusterSizes[0] != 2 {
		t.Errorf("expected cluster sizes [2], got %v", preview.ClusterSizes)
	}
	if preview.ClusteredFaces != 2 {
		t.Errorf("expected 2 clustered faces, got %d", preview.ClusteredFaces)
	}
	if preview.Outliers != 1 {
		t.Errorf("expected 1 outlier, got %d", preview.Outliers)
	}
	if preview.AnchoredFaces != 1 {
		t.Errorf("expected 1 anchored face, got %d", preview.AnchoredFaces)
	}
	if preview.FreeFaces != 3 {
		t.Errorf("expected 3 free faces, got %d", preview.FreeFaces)
	}
}

func TestClusterHandler_Preview_Empty(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newClusterHandler(engine)

	req := httptest.NewRequest("POST", "/api/v1/cluster/preview", nil)
	recorder := httptest.NewRecorder()

	handler.Preview(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	var preview PreviewResponse
	parseJSONResponse(t, recorder, &preview)
	if len(preview.ClusterSizes) != 0 {
		t.Errorf("expected no clusters, got %v", preview.ClusterSizes)
	}
}

func TestClusterHandler_StartAndStatus(t *testing.T) {
	engine, store := newTestEngine(t)
	personA := createTestPerson(t, store, "Person 1")
	personB := createTestPerson(t, store, "Person 2")
	// Both faces belong together under eps, currently split over two persons.
	createTestFace(t, store, "img-1.jpg", personA, 0.125)
	createTestFace(t, store, "img-2.jpg", personB, 0.25)

	handler := newClusterHandler(engine)
	req := httptest.NewRequest("POST", "/api/v1/cluster", nil)
	recorder := httptest.NewRecorder()

	handler.Start(recorder, req)

	assertStatusCode(t, recorder, http.StatusAccepted)
	var started map[string]string
	parseJSONResponse(t, recorder, &started)
	jobID := started["job_id"]
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	job := handler.jobManager.GetJob(jobID)
	if job == nil {
		t.Fatal("expected the job to be registered")
	}

	final := waitForJob(t, job)
	if final.Status != JobStatusCompleted {
		t.Fatalf("expected completed job, got %s (error %q)", final.Status, final.Error)
	}
	if final.Result == nil {
		t.Fatal("expected a job result")
	}
	if final.Result.FacesProcessed != 2 {
		t.Errorf("expected 2 faces processed, got %d", final.Result.FacesProcessed)
	}

	// Status endpoint reflects the finished job.
	statusReq := httptest.NewRequest("GET", "/api/v1/cluster/"+jobID, nil)
	statusReq = requestWithChiParams(statusReq, map[string]string{"jobId": jobID})
	statusRecorder := httptest.NewRecorder()

	handler.Status(statusRecorder, statusReq)

	assertStatusCode(t, statusRecorder, http.StatusOK)
	var view ClusterJobView
	parseJSONResponse(t, statusRecorder, &view)
	if view.Status != JobStatusCompleted {
		t.Errorf("expected completed status, got %s", view.Status)
	}
	if view.CompletedAt == nil {
		t.Error("expected a completion timestamp")
	}

	// The two persons collapsed into one.
	count, err := store.CountPersons(context.Background())
	if err != nil {
		t.Fatalf("failed to count persons: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 person after re-cluster, got %d", count)
	}
}

func TestClusterHandler_Status_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newClusterHandler(engine)

	req := httptest.NewRequest("GET", "/api/v1/cluster/nope", nil)
	req = requestWithChiParams(req, map[string]string{"jobId": "nope"})
	recorder := httptest.NewRecorder()

	handler.Status(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestClusterHandler_Cancel(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newClusterHandler(engine)
	job := handler.jobManager.CreateJob("job-1")

	req := httptest.NewRequest("DELETE", "/api/v1/cluster/job-1", nil)
	req = requestWithChiParams(req, map[string]string{"jobId": "job-1"})
	recorder := httptest.NewRecorder()

	handler.Cancel(recorder, req)

	assertStatusCode(t, recorder, http.StatusOK)
	if job.GetStatus() != JobStatusCancelled {
		t.Errorf("expected cancelled status, got %s", job.GetStatus())
	}
}

func TestClusterHandler_Cancel_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newClusterHandler(engine)

	req := httptest.NewRequest("DELETE", "/api/v1/cluster/nope", nil)
	req = requestWithChiParams(req, map[string]string{"jobId": "nope"})
	recorder := httptest.NewRecorder()

	handler.Cancel(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}

func TestClusterHandler_Events_InitialStatus(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newClusterHandler(engine)
	job := handler.jobManager.CreateJob("job-1")
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest("GET", "/api/v1/cluster/job-1/events", nil).WithContext(ctx)
	req = requestWithChiParams(req, map[string]string{"jobId": "job-1"})
	recorder := httptest.NewRecorder()

	handler.Events(recorder, req)

	if ct := recorder.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %s", ct)
	}
	body := recorder.Body.String()
	if !strings.Contains(body, "event: status") {
		t.Errorf("expected an initial status event, got %q", body)
	}
	if !strings.Contains(body, `"status":"completed"`) {
		t.Errorf("expected completed job state in stream, got %q", body)
	}
}

func TestClusterHandler_Events_NotFound(t *testing.T) {
	engine, _ := newTestEngine(t)
	handler := newClusterHandler(engine)

	req := httptest.NewRequest("GET", "/api/v1/cluster/nope/events", nil)
	req = requestWithChiParams(req, map[string]string{"jobId": "nope"})
	recorder := httptest.NewRecorder()

	handler.Events(recorder, req)

	assertStatusCode(t, recorder, http.StatusNotFound)
}
