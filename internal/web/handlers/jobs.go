package handlers

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/face-sorter/internal/constants"
)

// JobStatus represents the status of an async job.
type JobStatus string

// JobStatus constants define the lifecycle states of an async job.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// ClusterJob represents an async re-cluster job. Mutable fields are
// guarded by the embedded broadcaster mutex; serialize via View.
type ClusterJob struct {
	EventBroadcaster

	ID          string
	Status      JobStatus
	Stage       string
	Error       string
	StartedAt   time.Time
	CompletedAt *time.Time
	Result      *ClusterJobResult
}

// ClusterJobView is the serializable state of a cluster job.
type ClusterJobView struct {
	ID          string            `json:"id"`
	Status      JobStatus         `json:"status"`
	Stage       string            `json:"stage,omitempty"`
	Error       string            `json:"error,omitempty"`
	StartedAt   time.Time         `json:"started_at"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Result      *ClusterJobResult `json:"result,omitempty"`
}

// ClusterJobResult mirrors the engine's re-cluster report.
type ClusterJobResult struct {
	FacesProcessed  int `json:"faces_processed"`
	PersonsCreated  int `json:"persons_created"`
	PersonsMerged   int `json:"persons_merged"`
	ManualPreserved int `json:"manual_preserved"`
}

// View returns a copy of the job state that is safe to serialize while
// the job keeps running.
func (j *ClusterJob) View() ClusterJobView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return ClusterJobView{
		ID:          j.ID,
		Status:      j.Status,
		Stage:       j.Stage,
		Error:       j.Error,
		StartedAt:   j.StartedAt,
		CompletedAt: j.CompletedAt,
		Result:      j.Result,
	}
}

// GetStatus returns the current job status (implements SSEJob).
func (j *ClusterJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// Cancel cancels the cluster job.
func (j *ClusterJob) Cancel() {
	j.EventBroadcaster.Cancel()
	j.mu.Lock()
	j.Status = JobStatusCancelled
	j.mu.Unlock()
}

// JobEvent represents an event from a job.
type JobEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// EventBroadcaster provides listener management and event broadcasting for async jobs.
// Embed this in job structs to get AddListener, RemoveListener, and SendEvent methods.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan JobEvent
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan JobEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan JobEvent, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan JobEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event JobEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// Cancel cancels the job via context and sends a cancelled event.
func (b *EventBroadcaster) Cancel() {
	b.mu.RLock()
	cancel := b.cancel
	b.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	b.SendEvent(JobEvent{Type: "cancelled", Message: "Job cancelled by user"})
}

// SSEJob is the interface required by streamSSEEvents to stream job events via SSE.
type SSEJob interface {
	AddListener() chan JobEvent
	RemoveListener(ch chan JobEvent)
	GetStatus() JobStatus
}

// JobManager manages async jobs.
type JobManager struct {
	jobs map[string]*ClusterJob
	mu   sync.RWMutex
}

// NewJobManager creates a new job manager.
func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*ClusterJob),
	}
}

// CreateJob creates a new cluster job.
func (m *JobManager) CreateJob(id string) *ClusterJob {
	job := &ClusterJob{
		ID:        id,
		Status:    JobStatusPending,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.mu.Unlock()

	return job
}

// GetJob retrieves a job by ID.
func (m *JobManager) GetJob(id string) *ClusterJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}
