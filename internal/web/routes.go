package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-sorter/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.version)
	statsHandler := handlers.NewStatsHandler(s.engine)
	personsHandler := handlers.NewPersonsHandler(s.engine, s.config.Photos.Dir, statsHandler)
	facesHandler := handlers.NewFacesHandler(s.engine, statsHandler)
	searchHandler := handlers.NewSearchHandler(s.engine)
	clusterHandler := handlers.NewClusterHandler(s.engine, s.jobManager, statsHandler)
	imagesHandler := handlers.NewImagesHandler(s.engine, s.extractor, s.config.Photos.Dir, statsHandler)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)

		// Persons
		r.Get("/persons", personsHandler.List)
		r.Post("/persons", personsHandler.Create)
		r.Get("/persons/{id}", personsHandler.Get)
		r.Put("/persons/{id}", personsHandler.Rename)
		r.Get("/persons/{id}/thumbnail", personsHandler.Thumbnail)

		// Faces (manual corrections)
		r.Put("/faces/{id}/person", facesHandler.Move)
		r.Post("/faces/{id}/person", facesHandler.MoveToNew)
		r.Delete("/faces/{id}", facesHandler.Delete)

		// Similarity search
		r.Post("/search", searchHandler.Search)

		// Batch re-clustering (long-running operations)
		r.Post("/cluster", clusterHandler.Start)
		r.Post("/cluster/preview", clusterHandler.Preview)
		r.Get("/cluster/{jobId}", clusterHandler.Status)
		r.Get("/cluster/{jobId}/events", clusterHandler.Events)
		r.Delete("/cluster/{jobId}", clusterHandler.Cancel)

		// Image ingest
		r.Post("/images", imagesHandler.Upload)

		// Stats
		r.Get("/stats", statsHandler.Get)
	})

	s.router.Get("/", s.serveIndex)
}

// serveIndex serves a plain landing page pointing at the API.
func (s *Server) serveIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Face Sorter</title>
    <style>
        body { font-family: system-ui, sans-serif; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; background: #1a1a2e; color: #eee; }
        .container { text-align: center; }
        h1 { color: #00d9ff; }
        p { color: #aaa; }
        a { color: #00d9ff; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Face Sorter</h1>
        <p>API is available at <a href="/api/v1/health">/api/v1/health</a></p>
    </div>
</body>
</html>`))
}
