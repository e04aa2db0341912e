package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hupe1980/factoryops"
	"github.com/hupe1980/factoryops/core"
	"github.com/hupe1980/factoryops/transcode"
)

const maxBodyBytes = 1 << 20

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string `json:"Status"`
	Timestamp string `json:"Timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, HealthResponse{Status: "Healthy", Timestamp: time.Now().UTC().Format(time.RFC3339)})
}

func decodeRequest(r io.Reader) (factoryops.AnalyzeRequest, error) {
	var req factoryops.AnalyzeRequest
	if err := json.NewDecoder(io.LimitReader(r, maxBodyBytes)).Decode(&req); err != nil {
		return req, fmt.Errorf("invalid request body: %w", err)
	}
	return req, nil
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r.Body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	runID := core.NewID()
	resp, err := s.wf.Analyze(r.Context(), runID, req)
	if err != nil {
		s.opts.Logger.Error("server.analyze.failed", "run_id", runID, "error", err.Error())
		jsonError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := transcode.NewResponse(resp)
	s.mirrorResult(runID, out)

	w.Header().Set("X-Run-Id", runID)
	jsonResponse(w, http.StatusOK, out)
}

// eventWriter delivers wire events to one client.
type eventWriter interface {
	WriteEvent(ev transcode.Event) error
}

type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

func (sw *sseWriter) WriteEvent(ev transcode.Event) error {
	data, err := ev.Payload()
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	req, err := decodeRequest(r.Body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	runID := core.NewID()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.Header().Set("X-Run-Id", runID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	s.relay(r.Context(), runID, req, &sseWriter{w: w, flusher: flusher})
}

// relay runs one streaming workflow and writes its wire events to ew. The
// stream ends with done unless the client went away; an infrastructure
// failure is reported as error right before done.
func (s *Server) relay(ctx context.Context, runID string, req factoryops.AnalyzeRequest, ew eventWriter) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := s.opts.Logger
	tc := transcode.New()
	gone := false

	write := func(ev transcode.Event) {
		if gone {
			return
		}
		if err := ew.WriteEvent(ev); err != nil {
			logger.Debug("server.stream.client_gone", "run_id", runID, "error", err.Error())
			gone = true
			cancel()
			return
		}
		s.mirrorEvent(runID, ev)
	}

	updates, errs := s.wf.Stream(ctx, runID, req)
	for u := range updates {
		if ctx.Err() != nil {
			continue
		}
		for _, ev := range tc.Translate(u) {
			write(ev)
		}
	}

	var runErr error
	for err := range errs {
		if err != nil {
			runErr = err
		}
	}

	if gone || ctx.Err() != nil || errors.Is(runErr, context.Canceled) {
		logger.Debug("server.stream.cancelled", "run_id", runID)
		return
	}

	if runErr != nil {
		logger.Error("server.stream.failed", "run_id", runID, "error", runErr.Error())
		write(tc.Error(runErr))
	}
	write(tc.Done())
}
