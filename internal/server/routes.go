package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Batches
	mux.HandleFunc("/api/batches", s.app.BatchHandler.StartBatchHandler) // POST - start a batch of jobs
	mux.HandleFunc("/api/batches/", s.app.BatchHandler.BatchRoutes)      // GET/DELETE /{id}

	// API routes - Jobs
	mux.HandleFunc("/api/jobs/", s.app.JobHandler.JobRoutes) // GET/DELETE /{id}

	// API routes - System
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)

	return mux
}
