// Package api exposes the engine to the orchestration/UI layer over REST
// plus a websocket change stream.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/deskhive-io/deskhive/internal/confirm"
	"github.com/deskhive-io/deskhive/internal/logbuf"
	"github.com/deskhive-io/deskhive/internal/poller"
	"github.com/deskhive-io/deskhive/internal/queue"
	"github.com/deskhive-io/deskhive/pkg/protocol"
)

// Service is what the API server needs from the engine.
type Service interface {
	QueueItems(status protocol.ProcessingStatus, sorted bool) []queue.Item
	QueueItem(ticketID int64) (queue.Item, bool)
	StartSession(ticketID int64) (string, bool)
	HandleSessionEvent(ctx context.Context, ev protocol.SessionEvent)
	SetStatus(ticketID int64, status protocol.ProcessingStatus, errMsg string) error
	ProposeAction(ctx context.Context, ticketID int64, action protocol.Action) (protocol.Action, bool)
	ConfirmAction(ctx context.Context, ticketID int64, actionID string) error
	ConfirmAll(ctx context.Context, ticketID int64) []confirm.Result
	CancelAction(ticketID int64, actionID string) bool
	CancelAll(ticketID int64)
	PollNow(ctx context.Context) error
	Reconfigure(u poller.ConfigUpdate) error
	PollerConfig() poller.Config
	TicketContext(ctx context.Context, ticketID int64) (string, error)
}

// LogQuerier abstracts log entry querying to avoid coupling to logbuf
// directly.
type LogQuerier interface {
	Query(since time.Time, minLevel slog.Level, limit int) []logbuf.Entry
}

// Config holds API server configuration.
type Config struct {
	Host string
	Port int
	Key  string // API key for Bearer auth
}

// Server is the deskhive REST API server.
type Server struct {
	svc    Service
	cfg    Config
	logger *slog.Logger
	logs   LogQuerier
	hub    *Hub
	srv    *http.Server
}

// NewServer creates the server. logs and hub may be nil.
func NewServer(svc Service, cfg Config, logger *slog.Logger, logs LogQuerier, hub *Hub) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		logger: logger,
		logs:   logs,
		hub:    hub,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/queue", s.requireAuth(s.handleListQueue))
	mux.HandleFunc("GET /api/queue/{id}", s.requireAuth(s.handleGetItem))
	mux.HandleFunc("GET /api/queue/{id}/context", s.requireAuth(s.handleTicketContext))
	mux.HandleFunc("POST /api/queue/{id}/session", s.requireAuth(s.handleStartSession))
	mux.HandleFunc("POST /api/queue/{id}/status", s.requireAuth(s.handleSetStatus))
	mux.HandleFunc("POST /api/queue/{id}/actions", s.requireAuth(s.handleProposeAction))
	mux.HandleFunc("POST /api/queue/{id}/actions/{actionID}/confirm", s.requireAuth(s.handleConfirmAction))
	mux.HandleFunc("DELETE /api/queue/{id}/actions/{actionID}", s.requireAuth(s.handleCancelAction))
	mux.HandleFunc("POST /api/queue/{id}/confirm", s.requireAuth(s.handleConfirmAll))
	mux.HandleFunc("POST /api/queue/{id}/cancel", s.requireAuth(s.handleCancelAll))
	mux.HandleFunc("POST /api/poll", s.requireAuth(s.handlePollNow))
	mux.HandleFunc("GET /api/poller/config", s.requireAuth(s.handleGetPollerConfig))
	mux.HandleFunc("POST /api/poller/config", s.requireAuth(s.handleSetPollerConfig))
	mux.HandleFunc("POST /api/sessions/events", s.requireAuth(s.handleSessionEvent))
	mux.HandleFunc("GET /api/logs", s.requireAuth(s.handleGetLogs))
	if hub != nil {
		mux.HandleFunc("GET /api/events", s.requireAuth(hub.handleWS))
	}

	s.srv = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.corsMiddleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Start begins listening. Blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutCtx)
	}()

	s.logger.Info("api server starting", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// --- Middleware ---

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Key == "" {
			next(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") || strings.TrimPrefix(auth, "Bearer ") != s.cfg.Key {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListQueue(w http.ResponseWriter, r *http.Request) {
	status := protocol.ProcessingStatus(r.URL.Query().Get("status"))
	sorted := r.URL.Query().Get("sort") == "priority"
	items := s.svc.QueueItems(status, sorted)
	if items == nil {
		items = []queue.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ticketID(w, r)
	if !ok {
		return
	}
	item, ok := s.svc.QueueItem(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not in queue"})
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *Server) handleTicketContext(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ticketID(w, r)
	if !ok {
		return
	}
	text, err := s.svc.TicketContext(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ticketID(w, r)
	if !ok {
		return
	}
	sessionID, ok := s.svc.StartSession(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not in queue"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

type setStatusRequest struct {
	Status protocol.ProcessingStatus `json:"status"`
	Error  string                    `json:"error,omitempty"`
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ticketID(w, r)
	if !ok {
		return
	}
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if err := s.svc.SetStatus(id, req.Status, req.Error); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProposeAction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ticketID(w, r)
	if !ok {
		return
	}
	var action protocol.Action
	if err := json.NewDecoder(r.Body).Decode(&action); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if action.Kind == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind is required"})
		return
	}
	stored, ok := s.svc.ProposeAction(r.Context(), id, action)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "ticket not in queue"})
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleConfirmAction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ticketID(w, r)
	if !ok {
		return
	}
	actionID := r.PathValue("actionID")
	if err := s.svc.ConfirmAction(r.Context(), id, actionID); err != nil {
		// The action stays queued for a manual retry or cancel.
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCancelAction(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ticketID(w, r)
	if !ok {
		return
	}
	removed := s.svc.CancelAction(id, r.PathValue("actionID"))
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (s *Server) handleConfirmAll(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ticketID(w, r)
	if !ok {
		return
	}
	results := s.svc.ConfirmAll(r.Context(), id)
	if results == nil {
		results = []confirm.Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleCancelAll(w http.ResponseWriter, r *http.Request) {
	id, ok := s.ticketID(w, r)
	if !ok {
		return
	}
	s.svc.CancelAll(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePollNow(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.PollNow(r.Context()); err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetPollerConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := s.svc.PollerConfig()
	writeJSON(w, http.StatusOK, map[string]any{
		"interval_seconds": int(cfg.Interval / time.Second),
		"auto_process":     cfg.AutoProcess,
	})
}

type pollerConfigRequest struct {
	IntervalSeconds *int  `json:"interval_seconds,omitempty"`
	AutoProcess     *bool `json:"auto_process,omitempty"`
}

func (s *Server) handleSetPollerConfig(w http.ResponseWriter, r *http.Request) {
	var req pollerConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	var u poller.ConfigUpdate
	if req.IntervalSeconds != nil {
		d := time.Duration(*req.IntervalSeconds) * time.Second
		u.Interval = &d
	}
	u.AutoProcess = req.AutoProcess
	if err := s.svc.Reconfigure(u); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSessionEvent(w http.ResponseWriter, r *http.Request) {
	var ev protocol.SessionEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if ev.SessionID == "" || ev.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "session_id and type are required"})
		return
	}
	s.svc.HandleSessionEvent(r.Context(), ev)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request) {
	if s.logs == nil {
		writeJSON(w, http.StatusOK, []logbuf.Entry{})
		return
	}

	limit := 200
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	minLevel := slog.LevelDebug
	if lvl := r.URL.Query().Get("level"); lvl != "" {
		switch strings.ToLower(lvl) {
		case "info":
			minLevel = slog.LevelInfo
		case "warn":
			minLevel = slog.LevelWarn
		case "error":
			minLevel = slog.LevelError
		}
	}

	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
			since = time.UnixMilli(ms)
		}
	}

	entries := s.logs.Query(since, minLevel, limit)
	if entries == nil {
		entries = []logbuf.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Helpers ---

func (s *Server) ticketID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid ticket id"})
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
