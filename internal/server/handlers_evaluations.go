package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ashita-ai/salesbench/internal/evaluation"
	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/progress"
	"github.com/ashita-ai/salesbench/internal/validation"
)

// HandleEvaluate handles POST /v1/evaluations. The response is an SSE stream
// of unit events closed by one complete event. The evaluation runs to the end
// even if the client disconnects.
func (h *Handlers) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req model.EvaluationRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	job, err := h.engine.Prepare(r.Context(), []model.AgentSpec{req.Agent}, req.Mode, req.MultiTurn)
	if err != nil {
		h.writePrepareError(w, r, err)
		return
	}
	if !beginSSE(w) {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	agent := job.Agents[0]
	h.logger.Info("evaluation started",
		"run_key", job.Key, "agent_id", agent.AgentID, "mode", job.Mode,
		"multi_turn", job.MultiTurn, "scenarios", len(job.Scenarios),
		"request_id", RequestIDFromContext(r.Context()))

	out := progress.NewSSEWriter(newFrameWriter(w), h.logger)
	o := h.engine.EvaluateAgent(context.WithoutCancel(r.Context()), job, out)
	out.Close()

	h.logger.Info("evaluation finished",
		"run_key", job.Key, "agent_id", agent.AgentID,
		"percentage", o.Run.Percentage, "failed", o.Run.FailedCount,
		"persisted", o.Persisted, "reason", o.Reason, "client_detached", out.Detached())
}

// HandleBenchmark handles POST /v1/benchmarks. The stream carries one
// agent_complete event per agent and a final complete event with every
// agent's summary.
func (h *Handlers) HandleBenchmark(w http.ResponseWriter, r *http.Request) {
	var req model.BenchmarkRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	job, err := h.engine.Prepare(r.Context(), req.Agents, req.Mode, req.MultiTurn)
	if err != nil {
		h.writePrepareError(w, r, err)
		return
	}
	if !beginSSE(w) {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	h.logger.Info("benchmark started",
		"run_key", job.Key, "agents", len(job.Agents), "mode", job.Mode,
		"scenarios", len(job.Scenarios), "request_id", RequestIDFromContext(r.Context()))

	out := progress.NewSSEWriter(newFrameWriter(w), h.logger)
	outcomes := h.engine.Benchmark(context.WithoutCancel(r.Context()), job, out)
	out.Close()

	persisted := 0
	for _, o := range outcomes {
		if o.Persisted {
			persisted++
		}
	}
	h.logger.Info("benchmark finished",
		"run_key", job.Key, "agents", len(outcomes), "persisted", persisted,
		"client_detached", out.Detached())
}

// decodeRequest reads and validates a JSON body, writing a 400 on failure.
func (h *Handlers) decodeRequest(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxRequestBodyBytes)
	if err := decodeJSON(r, target); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, model.ErrCodeInvalidInput, "request body too large")
			return false
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request body: "+err.Error())
		return false
	}
	if err := validation.Struct(target); err != nil {
		var verr *validation.Error
		if errors.As(err, &verr) {
			writeErrorDetails(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "invalid request", verr.Fields)
			return false
		}
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return false
	}
	return true
}

func (h *Handlers) writePrepareError(w http.ResponseWriter, r *http.Request, err error) {
	if evaluation.IsInvalid(err) {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	h.logger.Error("prepare evaluation failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
	writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to prepare evaluation")
}

// frameWriteTimeout bounds one SSE frame write. A client that cannot take a
// frame in this time is detached.
const frameWriteTimeout = 10 * time.Second

// frameWriter sets a fresh write deadline before every frame, since beginSSE
// lifts the server-wide one for the life of the stream.
type frameWriter struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

func newFrameWriter(w http.ResponseWriter) *frameWriter {
	return &frameWriter{w: w, rc: http.NewResponseController(w)}
}

func (f *frameWriter) Write(p []byte) (int, error) {
	_ = f.rc.SetWriteDeadline(time.Now().Add(frameWriteTimeout))
	return f.w.Write(p)
}

func (f *frameWriter) Flush() { _ = f.rc.Flush() }

// beginSSE writes the event-stream headers and lifts the server's write
// deadline for this connection. It returns false if w cannot stream.
func beginSSE(w http.ResponseWriter) bool {
	if _, ok := w.(http.Flusher); !ok {
		return false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})
	_ = rc.Flush()
	return true
}
