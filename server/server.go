// Package server exposes the gateway, registry and workflow engine over the
// JSON/HTTP tool-call protocol.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/chemgate/chemgate/gateway"
	"github.com/chemgate/chemgate/logging"
	"github.com/chemgate/chemgate/metrics"
	"github.com/chemgate/chemgate/registry"
	"github.com/chemgate/chemgate/types"
	"github.com/chemgate/chemgate/workflow"
)

// Server wires the HTTP surface.
type Server struct {
	registry  *registry.Registry
	gateway   *gateway.Gateway
	engine    *workflow.Engine
	collector *metrics.Collector
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// New creates a Server. gatherer may be nil to disable /metrics.
func New(reg *registry.Registry, gw *gateway.Gateway, eng *workflow.Engine, collector *metrics.Collector, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Server{
		registry:  reg,
		gateway:   gw,
		engine:    eng,
		collector: collector,
		gatherer:  gatherer,
		logger:    logger,
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/tools", s.handleListTools)
	r.Get("/tools/{name}/operations", s.handleListOperations)
	r.Post("/invoke", s.handleInvoke)
	r.Post("/workflows", s.handleSubmitWorkflow)
	r.Get("/workflows/{runID}", s.handleGetRun)
	r.Delete("/workflows/{runID}", s.handleCancelRun)
	r.Get("/stats", s.handleStats)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	tools, err := s.registry.ListTools(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, types.AsError(err))
		return
	}
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"service": "chemgate",
		"version": "1.0.0",
		"tools":   names,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h, err := s.registry.Health(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, types.AsError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	tools, err := s.registry.ListTools(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, types.AsError(err))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tools": tools})
}

func (s *Server) handleListOperations(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	tool, err := s.registry.Resolve(name)
	if err != nil {
		s.writeError(w, http.StatusNotFound, types.AsError(err))
		return
	}

	ops := make([]map[string]interface{}, 0)
	for _, op := range tool.Operations() {
		schema, _ := tool.Schema(op)
		ops = append(ops, map[string]interface{}{"name": op, "schema": schema})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"tool": name, "operations": ops})
}

// invokeRequest is the /invoke body: a ToolRequest plus dispatch overrides.
type invokeRequest struct {
	types.ToolRequest
	TimeoutSec int `json:"timeout_sec,omitempty"`
	MaxRetries int `json:"max_retries,omitempty"`
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest,
			types.NewError(types.CodeInvalidArgument, "malformed request body: %v", err))
		return
	}

	maxRetries := req.MaxRetries
	if maxRetries == 0 {
		maxRetries = -1 // gateway default
	}
	result := s.gateway.Invoke(r.Context(), req.ToolRequest,
		time.Duration(req.TimeoutSec)*time.Second, maxRetries)

	// The result envelope carries its own status; HTTP 200 either way.
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSubmitWorkflow(w http.ResponseWriter, r *http.Request) {
	var def types.WorkflowDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		s.writeError(w, http.StatusBadRequest,
			types.NewError(types.CodeInvalidArgument, "malformed workflow definition: %v", err))
		return
	}

	run, err := s.engine.Submit(r.Context(), def)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, types.AsError(err))
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{"runId": run.ID})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	run, err := s.engine.GetRun(r.Context(), runID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, workflow.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, types.AsError(err))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"runId":            run.ID,
		"state":            run.State,
		"currentStepIndex": run.CurrentStepIndex,
		"stepResults":      run.StepResults,
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	if err := s.engine.Cancel(r.Context(), runID); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, workflow.ErrRunNotFound) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, types.AsError(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.collector == nil {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{})
		return
	}
	s.writeJSON(w, http.StatusOK, s.collector.All())
}

func (s *Server) runID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "runID"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest,
			types.NewError(types.CodeInvalidArgument, "runID must be numeric"))
		return 0, false
	}
	return id, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to write response", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, e *types.Error) {
	s.writeJSON(w, status, map[string]interface{}{
		"status": types.ResultError,
		"error":  e,
	})
}
