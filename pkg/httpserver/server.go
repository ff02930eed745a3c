package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/snow-ghost/readiness/core"
	"github.com/snow-ghost/readiness/pkg/logging"
	"github.com/snow-ghost/readiness/pkg/progress"
	"github.com/snow-ghost/readiness/pkg/streaming"
)

const (
	keepAliveInterval = 15 * time.Second
	writeWait         = 5 * time.Second
)

// ComboRunner runs a combo matrix; implemented by combo.Tester
type ComboRunner interface {
	RunAll(ctx context.Context, mains, executors []string) []core.ComboScore
}

// Server exposes health, metrics, live progress and stored results
type Server struct {
	addr     string
	logger   *logging.Logger
	router   *http.ServeMux
	hub      *progress.Hub
	gatherer prometheus.Gatherer
	store    core.Store
	runner   ComboRunner
	running  atomic.Bool
	baseCtx  context.Context
	upgrader websocket.Upgrader
	started  time.Time
}

// Options configures a Server
type Options struct {
	Addr     string
	Logger   *logging.Logger
	Hub      *progress.Hub
	Gatherer prometheus.Gatherer
	Store    core.Store
	Runner   ComboRunner
	// BaseContext scopes runs started over HTTP; defaults to Background
	BaseContext context.Context
}

// NewServer creates a new HTTP server
func NewServer(opts Options) *Server {
	s := &Server{
		addr:     opts.Addr,
		logger:   logging.OrNop(opts.Logger),
		router:   http.NewServeMux(),
		hub:      opts.Hub,
		gatherer: opts.Gatherer,
		store:    opts.Store,
		runner:   opts.Runner,
		baseCtx:  opts.BaseContext,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}
	if s.hub == nil {
		s.hub = progress.NewHub()
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.baseCtx == nil {
		s.baseCtx = context.Background()
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	s.router.HandleFunc("GET /events", s.handleEvents)
	s.router.HandleFunc("GET /ws", s.handleWebSocket)

	s.router.HandleFunc("GET /v1/combos", s.handleListCombos)
	s.router.HandleFunc("POST /v1/combos/run", s.handleRunCombos)
	s.router.HandleFunc("GET /v1/prosthetics/{model}", s.handleProsthetic)
	s.router.HandleFunc("GET /v1/profiles/{model}", s.handleProfile)
}

// Handler returns the root handler, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"service":     "readiness",
		"running":     s.running.Load(),
		"subscribers": s.hub.Subscribers(),
		"uptime_s":    int(time.Since(s.started).Seconds()),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sse, err := streaming.NewSSEWriter(w)
	if err != nil {
		s.writeError(w, err.Error(), "streaming_unsupported", http.StatusInternalServerError)
		return
	}
	events, cancel := s.hub.Subscribe(progress.DefaultBuffer)
	defer cancel()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sse.WriteComment("keep-alive"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := sse.WriteProgress(ev); err != nil {
				s.logger.Debug("SSE client gone", "error", err)
				return
			}
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	events, cancel := s.hub.Subscribe(progress.DefaultBuffer)
	defer cancel()

	// Reader goroutine only detects the client going away
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-gone:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("websocket client gone", "error", err)
				return
			}
		}
	}
}

func (s *Server) handleListCombos(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "no result store configured", "unavailable", http.StatusServiceUnavailable)
		return
	}
	scores, err := s.store.ListComboScores(r.Context(), r.URL.Query().Get("main"))
	if err != nil {
		s.writeError(w, err.Error(), "store_error", http.StatusInternalServerError)
		return
	}
	core.SortCombos(scores)
	s.writeJSON(w, http.StatusOK, scores)
}

type runRequest struct {
	Mains     []string `json:"mains"`
	Executors []string `json:"executors"`
}

func (s *Server) handleRunCombos(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.writeError(w, "no combo runner configured", "unavailable", http.StatusServiceUnavailable)
		return
	}
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, "invalid JSON: "+err.Error(), "invalid_request", http.StatusBadRequest)
		return
	}
	if len(req.Mains) == 0 || len(req.Executors) == 0 {
		s.writeError(w, "mains and executors are required", "invalid_request", http.StatusBadRequest)
		return
	}
	// one run at a time against the shared runtime
	if !s.running.CompareAndSwap(false, true) {
		s.writeError(w, "a combo run is already in progress", "busy", http.StatusConflict)
		return
	}
	go func() {
		defer s.running.Store(false)
		scores := s.runner.RunAll(s.baseCtx, req.Mains, req.Executors)
		s.logger.Info("combo run finished", "combos", len(scores))
	}()
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "started", "combos": len(req.Mains) * len(req.Executors)})
}

func (s *Server) handleProsthetic(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "no result store configured", "unavailable", http.StatusServiceUnavailable)
		return
	}
	cfg, err := s.store.GetProstheticConfig(r.Context(), r.PathValue("model"))
	s.writeLookup(w, cfg, err)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeError(w, "no result store configured", "unavailable", http.StatusServiceUnavailable)
		return
	}
	profile, err := s.store.GetProfile(r.Context(), r.PathValue("model"))
	s.writeLookup(w, profile, err)
}

func (s *Server) writeLookup(w http.ResponseWriter, v interface{}, err error) {
	switch {
	case errors.Is(err, core.ErrModelNotFound):
		s.writeError(w, err.Error(), "not_found", http.StatusNotFound)
	case err != nil:
		s.writeError(w, err.Error(), "store_error", http.StatusInternalServerError)
	default:
		s.writeJSON(w, http.StatusOK, v)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// ErrorResponse is the JSON error body
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, message, code string, statusCode int) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message, Code: code})
}
