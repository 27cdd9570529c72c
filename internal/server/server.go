// Package server wires the HTTP and WebSocket handlers into one router.
package server

import (
	"net/http"
	"time"

	"github.com/peterje/pocketdev/internal/api"
	"github.com/peterje/pocketdev/internal/config"
	"github.com/peterje/pocketdev/internal/git"
	"github.com/peterje/pocketdev/internal/metrics"
	"github.com/peterje/pocketdev/internal/models"
	"github.com/peterje/pocketdev/internal/preflight"
	"github.com/peterje/pocketdev/internal/store"
	"github.com/peterje/pocketdev/internal/terminal"
	"github.com/peterje/pocketdev/internal/ws"
	"go.uber.org/zap"
)

// Deps are the components the server routes to. Store and Metrics may be nil.
type Deps struct {
	Sessions  terminal.Manager
	Events    ws.Subscriber
	Executor  api.Runner
	Git       git.Service
	Store     *store.Store
	Metrics   *metrics.Metrics
	Preflight preflight.Result
	RateLimit config.RateLimitConfig
	// WatchDebounce is the quiet period for /ws/watch notifications.
	WatchDebounce time.Duration
	// TunnelUp reports whether the gateway tunnel is connected.
	TunnelUp func() bool
	Logger   *zap.Logger
}

type Server struct {
	mux     *http.ServeMux
	handler http.Handler
	deps    Deps
}

func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	s := &Server{mux: http.NewServeMux(), deps: deps}
	s.routes()

	var h http.Handler = s.mux
	if deps.RateLimit.Enabled && deps.RateLimit.RequestsPerSecond > 0 {
		h = newRateLimiter(deps.RateLimit.RequestsPerSecond, deps.RateLimit.Burst).middleware(h)
	}
	var onRequest func(string, int)
	if deps.Metrics != nil {
		onRequest = deps.Metrics.ObserveRequest
	}
	h = observe(deps.Logger.Named("http"), onRequest, h)
	s.handler = recovery(deps.Logger, h)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	logger := s.deps.Logger
	sessions := api.NewSessionsHandler(s.deps.Sessions, logger.Named("api"))

	var history api.CommandRecorder
	if s.deps.Store != nil {
		history = s.deps.Store
	}
	exec := api.NewExecHandler(s.deps.Executor, history, logger.Named("api"))

	var observer ws.Observer
	if s.deps.Metrics != nil {
		observer = ws.Observer{OnConnect: s.deps.Metrics.WSConnected, OnDisconnect: s.deps.Metrics.WSDisconnected}
	}

	// Health
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	// Sessions
	s.mux.HandleFunc("GET /api/sessions", sessions.HandleList)
	s.mux.HandleFunc("POST /api/sessions", sessions.HandleCreate)
	s.mux.HandleFunc("GET /api/sessions/{id}", sessions.HandleGet)
	s.mux.HandleFunc("POST /api/sessions/{id}/input", sessions.HandleInput)
	s.mux.HandleFunc("DELETE /api/sessions/{id}", sessions.HandleDelete)

	// One-shot commands
	s.mux.Handle("POST /api/exec", exec)

	// Git
	if s.deps.Git != nil {
		api.NewGitHandler(s.deps.Git, logger.Named("git")).Routes(s.mux)
	}

	// Projects and history
	if s.deps.Store != nil {
		projects := api.NewProjectsHandler(s.deps.Store, logger.Named("api"))
		s.mux.HandleFunc("GET /api/projects", projects.HandleList)
		s.mux.HandleFunc("POST /api/projects", projects.HandleCreate)
		s.mux.HandleFunc("GET /api/projects/{id}", projects.HandleGet)
		s.mux.HandleFunc("PATCH /api/projects/{id}", projects.HandleUpdate)
		s.mux.HandleFunc("DELETE /api/projects/{id}", projects.HandleDelete)
		s.mux.HandleFunc("GET /api/history/sessions", projects.HandleSessionHistory)
		s.mux.HandleFunc("GET /api/history/commands", projects.HandleCommandHistory)
	}

	// WebSocket
	s.mux.Handle("GET /ws/sessions/{id}", ws.NewSessionHandler(s.deps.Sessions, s.deps.Events, logger.Named("ws"), observer))
	s.mux.Handle("GET /ws/watch", ws.NewWatchHandler(s.deps.WatchDebounce, logger.Named("watch"), observer))

	if s.deps.Metrics != nil {
		s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := models.HealthResponse{
		Status:   "ok",
		Tools:    s.deps.Preflight.Tools,
		Git:      s.deps.Preflight.Git,
		Sessions: len(s.deps.Sessions.List()),
	}
	if resp.Tools == nil {
		resp.Tools = []models.ToolStatus{}
	}
	if s.deps.TunnelUp != nil {
		resp.Tunnel = s.deps.TunnelUp()
	}
	api.WriteJSON(w, http.StatusOK, resp)
}
