package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashita-ai/salesbench/internal/evaluation"
	"github.com/ashita-ai/salesbench/internal/model"
	"github.com/ashita-ai/salesbench/internal/progress"
	"github.com/ashita-ai/salesbench/internal/ratelimit"
)

const readHeaderTimeout = 10 * time.Second

// Server serves the evaluation API.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// ServerConfig holds the dependencies and settings of a Server. Runs,
// Broker, Limiter and Health may be nil; the routes that need them answer
// 503 or skip the feature.
type ServerConfig struct {
	Engine *evaluation.Engine
	Logger *slog.Logger

	Runs    RunReader
	Broker  *progress.Broker
	Limiter ratelimit.Limiter
	Health  Pinger

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

type route struct {
	pattern string
	handler http.Handler
}

// chain applies mws so that the first one listed sees the request first.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func routes(h *Handlers, throttle func(http.Handler) http.Handler) []route {
	return []route{
		{"POST /v1/evaluations", throttle(http.HandlerFunc(h.HandleEvaluate))},
		{"POST /v1/benchmarks", throttle(http.HandlerFunc(h.HandleBenchmark))},
		{"GET /v1/runs/{run_id}", http.HandlerFunc(h.HandleGetRun)},
		{"GET /v1/agents/{agent_id}/runs", http.HandlerFunc(h.HandleListAgentRuns)},
		{"GET /v1/leaderboard", http.HandlerFunc(h.HandleLeaderboard)},
		{"GET /v1/scenarios", http.HandlerFunc(h.HandleListScenarios)},
		{"GET /v1/subscribe", http.HandlerFunc(h.HandleSubscribe)},
		{"GET /health", http.HandlerFunc(h.HandleHealth)},
	}
}

// New builds the route table and middleware stack.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Engine:              cfg.Engine,
		Runs:                cfg.Runs,
		Broker:              cfg.Broker,
		Health:              cfg.Health,
		Logger:              cfg.Logger,
		Version:             cfg.Version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	// Only the routes that start evaluations are throttled, keyed by client IP.
	throttle := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusTooManyRequests, model.ErrCodeRateLimited, "too many evaluation requests")
	}, cfg.Logger)

	mux := http.NewServeMux()
	for _, rt := range routes(h, throttle) {
		mux.Handle(rt.pattern, rt.handler)
	}

	handler := chain(mux,
		requestIDMiddleware,
		tracingMiddleware,
		func(next http.Handler) http.Handler { return loggingMiddleware(cfg.Logger, next) },
		func(next http.Handler) http.Handler { return recoveryMiddleware(cfg.Logger, next) },
	)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           handler,
			ReadHeaderTimeout: readHeaderTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			ErrorLog:          slog.NewLogLogger(cfg.Logger.Handler(), slog.LevelWarn),
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler exposes the full middleware stack, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured port until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("server: listening", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown stops accepting connections and waits for open streams to end
// or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	return s.httpServer.Shutdown(ctx)
}
