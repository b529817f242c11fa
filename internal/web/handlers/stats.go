package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/kozaktomas/face-sorter/internal/identity"
)

const statsCacheTTL = time.Minute

// statsCache holds cached stats with expiry
type statsCache struct {
	mu        sync.RWMutex
	data      *StatsResponse
	expiresAt time.Time
}

func (c *statsCache) get() (*StatsResponse, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data == nil || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return c.data, true
}

func (c *statsCache) set(data *StatsResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.expiresAt = time.Now().Add(statsCacheTTL)
}

func (c *statsCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
}

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	engine *identity.Engine
	cache  statsCache
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(engine *identity.Engine) *StatsHandler {
	return &StatsHandler{engine: engine}
}

// InvalidateCache clears the cached stats so the next request fetches fresh data
func (h *StatsHandler) InvalidateCache() {
	h.cache.invalidate()
}

// PolicyResponse echoes the clustering policy the engine runs with.
type PolicyResponse struct {
	Tolerance  float64 `json:"tolerance"`
	Epsilon    float64 `json:"epsilon"`
	MinSamples int     `json:"min_samples"`
}

// StatsResponse represents the statistics response
type StatsResponse struct {
	Persons           int            `json:"persons"`
	Faces             int            `json:"faces"`
	Images            int            `json:"images"`
	ManualFaces       int            `json:"manual_faces"`
	AutomaticFaces    int            `json:"automatic_faces"`
	AvgFacesPerPerson float64        `json:"avg_faces_per_person"`
	Policy            PolicyResponse `json:"policy"`
}

// Get returns statistics about persons, faces and images
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if cached, ok := h.cache.get(); ok {
		respondJSON(w, http.StatusOK, cached)
		return
	}

	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		respondEngineError(w, err)
		return
	}

	response := &StatsResponse{
		Persons:           stats.Persons,
		Faces:             stats.Faces,
		Images:            stats.Images,
		ManualFaces:       stats.ManualFaces,
		AutomaticFaces:    stats.AutomaticFaces,
		AvgFacesPerPerson: stats.AvgFacesPerPerson,
		Policy: PolicyResponse{
			Tolerance:  stats.Policy.Tolerance,
			Epsilon:    stats.Policy.Eps,
			MinSamples: stats.Policy.MinSamples,
		},
	}

	h.cache.set(response)
	respondJSON(w, http.StatusOK, response)
}
