// Package server exposes the workflow engine over HTTP.
//
// Runs are started asynchronously by default; ?wait=true blocks until the
// run is terminal. Progress is pushed per NodeVisit over Server-Sent
// Events, and Prometheus metrics are served on /metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cadenlabs/agentbench/pkg/config"
	"github.com/cadenlabs/agentbench/pkg/trace"
	"github.com/cadenlabs/agentbench/pkg/workflow"
)

// Server is the HTTP front of the workflow engine.
type Server struct {
	engine  *workflow.Engine
	metrics *Metrics
	addr    string
}

// New creates a server and wires its metrics into the engine's trace
// observer stream.
func New(cfg *config.ServerConfig, engine *workflow.Engine) *Server {
	s := &Server{
		engine:  engine,
		metrics: NewMetrics(),
		addr:    cfg.Address,
	}
	engine.Observe(s.metrics.ObserveVisit)
	return s
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/workflows", s.handleListWorkflows)
		r.Post("/runs", s.handleStartRun)
		r.Get("/runs/{id}", s.handlePollRun)
		r.Get("/runs/{id}/result", s.handleRunResult)
		r.Delete("/runs/{id}", s.handleCancelRun)
		r.Get("/runs/{id}/events", s.handleRunEvents)
		r.Post("/comparisons", s.handleCompare)
	})
	r.Handle("/metrics", s.metrics.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "address", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type startRunRequest struct {
	WorkflowType string              `json:"workflow_type"`
	Task         workflow.Task       `json:"task"`
	Parameters   workflow.Parameters `json:"parameters"`
}

type startRunResponse struct {
	RunID string `json:"run_id"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	typ, err := workflow.ParseType(req.WorkflowType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Task.Instruction == "" {
		writeError(w, http.StatusBadRequest, "task.instruction is required")
		return
	}

	id, err := s.engine.Start(typ, req.Task, req.Parameters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.RunStarted()
	go s.recordWhenDone(id)

	if r.URL.Query().Get("wait") == "true" {
		res, err := s.engine.Wait(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusGatewayTimeout, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusAccepted, startRunResponse{RunID: id})
}

// recordWhenDone moves the run into the metrics once it is terminal.
func (s *Server) recordWhenDone(id string) {
	defer s.metrics.RunFinished()
	done, err := s.engine.Done(id)
	if err != nil {
		return
	}
	<-done
	if res, err := s.engine.Result(id); err == nil {
		s.metrics.ObserveRun(res)
	}
}

func (s *Server) handlePollRun(w http.ResponseWriter, r *http.Request) {
	snap, err := s.engine.Poll(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleRunResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.engine.Result(chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(chi.URLParam(r, "id")); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

// handleRunEvents streams NodeVisits over Server-Sent Events until the run
// is terminal or the client disconnects. Visits recorded before the
// subscription are replayed first so late subscribers see the full trace.
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	done, err := s.engine.Done(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	events := make(chan trace.NodeVisit, 64)
	if err := s.engine.Subscribe(id, func(v trace.NodeVisit) {
		select {
		case events <- v:
		default:
			// A slow client drops visits rather than blocking the run.
		}
	}); err != nil {
		writeEngineError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	snap, err := s.engine.Poll(id)
	if err != nil {
		return
	}
	for _, v := range snap.Trace {
		writeEvent(w, "visit", v)
	}
	flusher.Flush()

	for {
		select {
		case v := <-events:
			writeEvent(w, "visit", v)
			flusher.Flush()
		case <-done:
			// Drain anything buffered before announcing the result.
			for {
				select {
				case v := <-events:
					writeEvent(w, "visit", v)
				default:
					if res, err := s.engine.Result(id); err == nil {
						writeEvent(w, "result", res)
					}
					flusher.Flush()
					return
				}
			}
		case <-r.Context().Done():
			return
		}
	}
}

type compareRequest struct {
	Task       workflow.Task       `json:"task"`
	Parameters workflow.Parameters `json:"parameters"`
}

func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Task.Instruction == "" {
		writeError(w, http.StatusBadRequest, "task.instruction is required")
		return
	}

	cmp, err := s.engine.Compare(r.Context(), req.Task, req.Parameters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.ObserveComparison(cmp)
	s.metrics.ObserveRun(cmp.Adaptive)
	s.metrics.ObserveRun(cmp.Rigid)
	writeJSON(w, http.StatusOK, cmp)
}

type workflowInfo struct {
	Type    workflow.Type `json:"type"`
	Mermaid string        `json:"mermaid"`
}

func (s *Server) handleListWorkflows(w http.ResponseWriter, _ *http.Request) {
	infos := make([]workflowInfo, 0, len(workflow.AllTypes()))
	for _, typ := range workflow.AllTypes() {
		mermaid, err := s.engine.Describe(typ)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		infos = append(infos, workflowInfo{Type: typ, Mermaid: mermaid})
	}
	writeJSON(w, http.StatusOK, infos)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, workflow.ErrRunNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrRunActive):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_, _ = w.Write([]byte("event: " + event + "\ndata: " + string(data) + "\n\n"))
}

// requestLogger logs one line per request through slog.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}
