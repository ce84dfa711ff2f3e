package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/neural-scan/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	predictHandler := handlers.NewPredictHandler(s.service, s.logger)
	galleryHandler := handlers.NewGalleryHandler(s.service, s.logger)
	osintHandler := handlers.NewOSINTHandler(s.service, s.logger)
	statusHandler := handlers.NewStatusHandler(s.service, s.logger)

	s.router.Get("/", handlers.Root)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// Legacy routes used by the scan console
	legacy(s.router, "/predict", predictHandler.Predict)
	legacy(s.router, "/upload_data", galleryHandler.Upload)
	legacy(s.router, "/osint", osintHandler.Investigate)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Post("/predict", predictHandler.Predict)
		r.Post("/osint", osintHandler.Investigate)

		// Gallery
		r.Get("/gallery", galleryHandler.List)
		r.Post("/gallery", galleryHandler.Upload)
		r.Post("/gallery/sync", galleryHandler.Sync)
		r.Delete("/gallery/{key}", galleryHandler.Delete)

		r.Get("/status", statusHandler.Status)
		r.Get("/audit", statusHandler.Audit)
	})
}

// legacy registers a POST route with and without the trailing slash.
func legacy(r chi.Router, pattern string, h http.HandlerFunc) {
	r.Post(pattern, h)
	r.Post(pattern+"/", h)
}
