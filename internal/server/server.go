// Package server exposes the workflow submission API over HTTP. It is a
// thin translation layer; all workflow semantics live in the orchestrator.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/optilist/optilist/internal/budget"
	"github.com/optilist/optilist/internal/orchestrator"
)

// Server serves the workflow submission API.
type Server struct {
	orch *orchestrator.Orchestrator
	gov  *budget.Governor
	http *http.Server
}

// New creates a Server listening on addr.
func New(addr string, orch *orchestrator.Orchestrator, gov *budget.Governor) *Server {
	s := &Server{
		orch: orch,
		gov:  gov,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/workflows", s.handleSubmit)
		r.Get("/workflows/{id}", s.handleStatus)
		r.Delete("/workflows/{id}", s.handleCancel)
		r.Get("/budget", s.handleBudget)
	})

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[server] listening on %s", s.http.Addr)
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

// submitRequest is the POST /api/v1/workflows body.
type submitRequest struct {
	Type    string         `json:"type"`
	Context map[string]any `json:"context"`
}

// submitResponse acknowledges an accepted workflow.
type submitResponse struct {
	WorkflowID string `json:"workflow_id"`
}

// budgetResponse reports the governor's view of the current day.
type budgetResponse struct {
	DailyCeiling   float64 `json:"daily_ceiling"`
	PerCallCeiling float64 `json:"per_call_ceiling"`
	SpendToday     float64 `json:"spend_today"`
	Remaining      float64 `json:"remaining"`
}

// errorResponse is the uniform error body.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "type is required"})
		return
	}

	id, err := s.orch.Submit(req.Type, req.Context)
	if err != nil {
		if errors.Is(err, orchestrator.ErrUnknownWorkflowType) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, submitResponse{WorkflowID: id})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	wf, err := s.orch.GetStatus(id)
	if err != nil {
		if errors.Is(err, orchestrator.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.orch.Cancel(id); err != nil {
		if errors.Is(err, orchestrator.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleBudget(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, budgetResponse{
		DailyCeiling:   s.gov.DailyCeiling(),
		PerCallCeiling: s.gov.PerCallCeiling(),
		SpendToday:     s.gov.SpendToday(),
		Remaining:      s.gov.RemainingDailyBudget(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}
