// Package server exposes the workflow over HTTP: a batch endpoint, a
// Server-Sent Events stream, a WebSocket stream and a health probe.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/hupe1980/factoryops"
	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/logging"
	"github.com/hupe1980/factoryops/transcode"
)

// Workflow runs one analysis per request.
type Workflow interface {
	Analyze(ctx context.Context, runID string, req factoryops.AnalyzeRequest) (*core.WorkflowResponse, error)
	Stream(ctx context.Context, runID string, req factoryops.AnalyzeRequest) (<-chan core.RunUpdate, <-chan error)
}

// Mirror receives a copy of every run's output. Failures are logged only.
type Mirror interface {
	PublishEvent(runID string, ev transcode.Event) error
	PublishResult(runID string, resp *core.WorkflowResponse) error
}

// Options configures a Server. Mirror, when set, receives every wire event
// and batch result of a run.
type Options struct {
	Addr            string
	AllowedOrigins  []string
	ShutdownTimeout time.Duration
	Mirror          Mirror
	Logger          logging.Logger
}

// Server serves the workflow endpoints for one Workflow.
type Server struct {
	wf   Workflow
	opts Options
	mux  *http.ServeMux
}

// New creates a server for wf.
func New(wf Workflow, optFns ...func(o *Options)) *Server {
	opts := Options{
		Addr:            ":8080",
		AllowedOrigins:  []string{"*"},
		ShutdownTimeout: 10 * time.Second,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{wf: wf, opts: opts, mux: http.NewServeMux()}
	s.mux.HandleFunc("POST /api/analyze_machine", s.handleAnalyze)
	s.mux.HandleFunc("POST /api/analyze_machine_stream", s.handleStream)
	s.mux.HandleFunc("GET /api/analyze_machine_ws", s.handleWebSocket)
	s.mux.HandleFunc("GET /health", s.handleHealth)

	return s
}

// Handler returns the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.withMiddleware(s.mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("server.listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()

	s.opts.Logger.Info("server.shutting_down", "timeout", s.opts.ShutdownTimeout.String())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if origin != "*" {
				w.Header().Add("Vary", "Origin")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or "".
func (s *Server) allowOrigin(origin string) string {
	if slices.Contains(s.opts.AllowedOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.opts.AllowedOrigins, origin) {
		return origin
	}
	return ""
}

func (s *Server) mirrorEvent(runID string, ev transcode.Event) {
	if s.opts.Mirror == nil {
		return
	}
	if err := s.opts.Mirror.PublishEvent(runID, ev); err != nil {
		s.opts.Logger.Warn("server.mirror.failed", "run_id", runID, "event", ev.Name, "error", err)
	}
}

func (s *Server) mirrorResult(runID string, resp *core.WorkflowResponse) {
	if s.opts.Mirror == nil {
		return
	}
	if err := s.opts.Mirror.PublishResult(runID, resp); err != nil {
		s.opts.Logger.Warn("server.mirror.failed", "run_id", runID, "event", "result", "error", err)
	}
}

func jsonResponse(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(data)
}

// problem is the body of a failed request.
type problem struct {
	Detail string `json:"detail"`
}

func jsonError(w http.ResponseWriter, code int, msg string) {
	jsonResponse(w, code, problem{Detail: msg})
}
