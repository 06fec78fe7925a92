package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/citelinker/resolver/internal/health"
	"github.com/citelinker/resolver/internal/infra/storage"
	"github.com/citelinker/resolver/internal/resolve/batch"
	"github.com/citelinker/resolver/internal/resolve/orchestrator"
)

// Server exposes the operator HTTP surface: item CRUD and operator
// actions, batch runs with streamed progress, session control, health
// and metrics.
type Server struct {
	items      storage.ItemRepository
	attempts   storage.AttemptRepository
	enrichment storage.EnrichmentRepository
	orch       *orchestrator.Orchestrator
	runner     *batch.Runner
	monitor    *health.Monitor
	server     *http.Server
}

// NewServer creates the API server.
func NewServer(
	port int,
	items storage.ItemRepository,
	attempts storage.AttemptRepository,
	enrichment storage.EnrichmentRepository,
	orch *orchestrator.Orchestrator,
	runner *batch.Runner,
	monitor *health.Monitor,
) *Server {
	mux := http.NewServeMux()
	s := &Server{
		items:      items,
		attempts:   attempts,
		enrichment: enrichment,
		orch:       orch,
		runner:     runner,
		monitor:    monitor,
		server: &http.Server{
			Addr:        fmt.Sprintf(":%d", port),
			Handler:     mux,
			ReadTimeout: 30 * time.Second,
		},
	}

	mux.HandleFunc("POST /items", s.handleCreateItem)
	mux.HandleFunc("GET /items/{id}", s.handleGetItem)
	mux.HandleFunc("POST /items/{id}/process", s.handleProcessItem)
	mux.HandleFunc("POST /items/{id}/reset", s.handleResetItem)
	mux.HandleFunc("POST /items/{id}/intent", s.handleSetIntent)
	mux.HandleFunc("POST /items/{id}/identifiers", s.handleAddIdentifiers)

	mux.HandleFunc("POST /batch", s.handleRunBatch)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/pause", s.handlePauseSession)
	mux.HandleFunc("POST /sessions/{id}/resume", s.handleResumeSession)
	mux.HandleFunc("POST /sessions/{id}/cancel", s.handleCancelSession)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/detailed", s.handleDetailed)
	mux.Handle("GET /metrics", promhttp.Handler())

	return s
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	return s.server.ListenAndServe()
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
