package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ashita-ai/salesbench/internal/evaluation"
	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/progress"
	"github.com/ashita-ai/salesbench/internal/storage"
)

// RunReader serves persisted runs. *storage.DB and *sqlitestore.Store
// satisfy it.
type RunReader interface {
	GetRun(ctx context.Context, id int64) (model.Run, []model.ScenarioResult, error)
	Leaderboard(ctx context.Context, mode model.Mode, limit int) ([]model.LeaderboardEntry, error)
	ListRuns(ctx context.Context, agentID string, limit int) ([]model.Run, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers holds HTTP handler dependencies.
type Handlers struct {
	engine              *evaluation.Engine
	runs                RunReader
	broker              *progress.Broker
	health              Pinger
	logger              *slog.Logger
	startedAt           time.Time
	version             string
	maxRequestBodyBytes int64
}

// HandlersDeps holds all dependencies for constructing Handlers.
// Optional (nil-safe): Runs, Broker, Health.
type HandlersDeps struct {
	Engine              *evaluation.Engine
	Runs                RunReader
	Broker              *progress.Broker
	Health              Pinger
	Logger              *slog.Logger
	Version             string
	MaxRequestBodyBytes int64
}

// NewHandlers creates a new Handlers with all dependencies.
func NewHandlers(d HandlersDeps) *Handlers {
	maxBody := d.MaxRequestBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	return &Handlers{
		engine:              d.Engine,
		runs:                d.Runs,
		broker:              d.Broker,
		health:              d.Health,
		logger:              d.Logger,
		startedAt:           time.Now(),
		version:             d.Version,
		maxRequestBodyBytes: maxBody,
	}
}

type runDetail struct {
	Run       model.Run              `json:"run"`
	Scenarios []model.ScenarioResult `json:"scenarios"`
}

// HandleGetRun handles GET /v1/runs/{run_id}.
func (h *Handlers) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "no run store configured")
		return
	}
	id, err := strconv.ParseInt(r.PathValue("run_id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, "run_id must be a positive integer")
		return
	}

	run, results, err := h.runs.GetRun(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, model.ErrCodeNotFound, "run not found")
		return
	}
	if err != nil {
		h.logger.Error("get run failed", "run_id", id, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load run")
		return
	}
	if results == nil {
		results = []model.ScenarioResult{}
	}
	writeJSON(w, r, http.StatusOK, runDetail{Run: run, Scenarios: results})
}

// HandleListAgentRuns handles GET /v1/agents/{agent_id}/runs?limit=.
func (h *Handlers) HandleListAgentRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "no run store configured")
		return
	}
	agentID := r.PathValue("agent_id")
	if err := model.ValidateAgentID(agentID); err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	runs, err := h.runs.ListRuns(r.Context(), agentID, queryLimit(r, 20))
	if err != nil {
		h.logger.Error("list runs failed", "agent_id", agentID, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, r, http.StatusOK, runs)
}

// HandleLeaderboard handles GET /v1/leaderboard?mode=&limit=.
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "no run store configured")
		return
	}
	mode, err := model.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	entries, err := h.runs.Leaderboard(r.Context(), mode, queryLimit(r, 50))
	if err != nil {
		h.logger.Error("leaderboard query failed", "mode", mode, "error", err)
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "failed to load leaderboard")
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, r, http.StatusOK, entries)
}

type scenarioListing struct {
	ID         string           `json:"checkpointId"`
	DealID     string           `json:"dealId"`
	DealName   string           `json:"dealName,omitempty"`
	Visibility model.Visibility `json:"visibility"`
	TaskType   model.TaskType   `json:"taskType"`
	Artifacts  int              `json:"artifacts"`
}

// HandleListScenarios handles GET /v1/scenarios?mode=. It lists ids and
// metadata only; scenario content is never served.
func (h *Handlers) HandleListScenarios(w http.ResponseWriter, r *http.Request) {
	mode, err := model.ParseMode(r.URL.Query().Get("mode"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, model.ErrCodeInvalidInput, err.Error())
		return
	}
	scenarios := h.engine.Suite().Filter(mode)
	out := make([]scenarioListing, 0, len(scenarios))
	for _, sc := range scenarios {
		out = append(out, scenarioListing{
			ID:         sc.ID,
			DealID:     sc.DealID,
			DealName:   sc.DealName,
			Visibility: sc.Visibility,
			TaskType:   sc.EffectiveTaskType(),
			Artifacts:  len(sc.Artifacts),
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

// HandleSubscribe handles GET /v1/subscribe (SSE). Watchers receive every
// progress event of every evaluation running on this server.
func (h *Handlers) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	if h.broker == nil {
		writeError(w, r, http.StatusServiceUnavailable, model.ErrCodeUnavailable, "event broadcasting not enabled")
		return
	}
	if !beginSSE(w) {
		writeError(w, r, http.StatusInternalServerError, model.ErrCodeInternalError, "streaming not supported")
		return
	}

	sub := h.broker.Subscribe()
	defer sub.Close()

	keepalive := time.NewTicker(15 * time.Second)
	defer keepalive.Stop()

	fw := newFrameWriter(w)
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-keepalive.C:
			if _, err := fw.Write([]byte(":keepalive\n\n")); err != nil {
				return
			}
			fw.Flush()
		case frame, ok := <-sub.C:
			if !ok {
				return
			}
			if _, err := fw.Write(frame); err != nil {
				return
			}
			fw.Flush()
		}
	}
}

type healthResponse struct {
	Status    string         `json:"status"`
	Version   string         `json:"version,omitempty"`
	Store     string         `json:"store"`
	Scenarios map[string]int `json:"scenarios"`
	Watchers  int            `json:"watchers"`
	Uptime    int64          `json:"uptimeSeconds"`
}

// HandleHealth handles GET /health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Version:   h.version,
		Store:     "none",
		Scenarios: map[string]int{},
		Uptime:    int64(time.Since(h.startedAt).Seconds()),
	}
	status := http.StatusOK

	if h.health != nil {
		resp.Store = "connected"
		if err := h.health.Ping(r.Context()); err != nil {
			h.logger.Warn("health: store ping failed", "error", err)
			resp.Store = "disconnected"
			resp.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}
	for vis, n := range h.engine.Suite().Counts() {
		resp.Scenarios[string(vis)] = n
	}
	if h.broker != nil {
		resp.Watchers = h.broker.Subscribers()
	}
	writeJSON(w, r, status, resp)
}

// queryLimit parses ?limit=, clamped to [1, 500].
func queryLimit(r *http.Request, defaultVal int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return defaultVal
	}
	return min(n, 500)
}
