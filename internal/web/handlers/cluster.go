package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kozaktomas/face-sorter/internal/identity"
)

// ClusterHandler handles batch re-clustering endpoints.
type ClusterHandler struct {
	engine     *identity.Engine
	jobManager *JobManager
	stats      *StatsHandler
}

// NewClusterHandler creates a new cluster handler.
func NewClusterHandler(engine *identity.Engine, jm *JobManager, stats *StatsHandler) *ClusterHandler {
	return &ClusterHandler{
		engine:     engine,
		jobManager: jm,
		stats:      stats,
	}
}

// Start launches a re-cluster job in the background and returns its id.
// The engine rejects a second concurrent run; that surfaces as a failed
// job with a conflict message.
func (h *ClusterHandler) Start(w http.ResponseWriter, r *http.Request) {
	jobID := uuid.New().String()
	job := h.jobManager.CreateJob(jobID)

	go h.runClusterJob(job)

	respondJSON(w, http.StatusAccepted, map[string]string{
		"job_id": jobID,
		"status": string(JobStatusPending),
	})
}

// Status returns the status of a cluster job.
func (h *ClusterHandler) Status(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	respondJSON(w, http.StatusOK, job.View())
}

// Events streams job events via SSE.
func (h *ClusterHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r,
		func(id string) SSEJob {
			job := h.jobManager.GetJob(id)
			if job == nil {
				return nil
			}
			return job
		},
		func(job SSEJob) any {
			if cj, ok := job.(*ClusterJob); ok {
				return cj.View()
			}
			return job
		},
	)
}

// Cancel cancels a cluster job.
func (h *ClusterHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobId")
	if jobID == "" {
		respondError(w, http.StatusBadRequest, "missing job ID")
		return
	}

	job := h.jobManager.GetJob(jobID)
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}

	job.Cancel()
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// PreviewResponse reports what a re-cluster would find, without writing.
type PreviewResponse struct {
	ClusterSizes   []int `json:"cluster_sizes"`
	ClusteredFaces int   `json:"clustered_faces"`
	Outliers       int   `json:"outliers"`
	AnchoredFaces  int   `json:"anchored_faces"`
	FreeFaces      int   `json:"free_faces"`
}

// Preview runs the clustering pass over a snapshot and reports the
// resulting cluster sizes without committing anything.
func (h *ClusterHandler) Preview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.engine.PreviewClusters(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}

	sizes := preview.ClusterSizes
	if sizes == nil {
		sizes = []int{}
	}
	respondJSON(w, http.StatusOK, PreviewResponse{
		ClusterSizes:   sizes,
		ClusteredFaces: preview.ClusteredFaces,
		Outliers:       preview.Outliers,
		AnchoredFaces:  preview.AnchoredFaces,
		FreeFaces:      preview.FreeFaces,
	})
}

// runClusterJob runs the re-cluster in the background.
func (h *ClusterHandler) runClusterJob(job *ClusterJob) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	job.mu.Lock()
	job.cancel = cancel
	job.Status = JobStatusRunning
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "started", Message: "Re-cluster started"})

	report, err := h.engine.Recluster(ctx, identity.WithProgress(func(stage string, done, total int) {
		job.mu.Lock()
		job.Stage = stage
		job.mu.Unlock()
		job.SendEvent(JobEvent{
			Type: "progress",
			Data: map[string]any{
				"stage": stage,
				"done":  done,
				"total": total,
			},
		})
	}))

	if err != nil {
		if ctx.Err() != nil {
			job.mu.Lock()
			job.Status = JobStatusCancelled
			job.mu.Unlock()
			job.SendEvent(JobEvent{Type: "cancelled", Message: "Job was cancelled"})
			return
		}
		h.failJob(job, err.Error())
		return
	}

	result := &ClusterJobResult{
		FacesProcessed:  report.FacesProcessed,
		PersonsCreated:  report.PersonsCreated,
		PersonsMerged:   report.PersonsMerged,
		ManualPreserved: report.ManualPreserved,
	}

	now := time.Now()
	job.mu.Lock()
	job.Status = JobStatusCompleted
	job.CompletedAt = &now
	job.Result = result
	job.mu.Unlock()

	job.SendEvent(JobEvent{Type: "completed", Data: result})
	h.stats.InvalidateCache()
}

func (h *ClusterHandler) failJob(job *ClusterJob, message string) {
	now := time.Now()
	job.mu.Lock()
	job.Status = JobStatusFailed
	job.Error = message
	job.CompletedAt = &now
	job.mu.Unlock()
	job.SendEvent(JobEvent{Type: "job_error", Message: message})
}
