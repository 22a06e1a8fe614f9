// Package server exposes the session's views and actions over HTTP plus a
// websocket bridge for pipeline progress events.
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi"
	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	"github.com/rs/cors"

	"github.com/EternisAI/mailsift/pkg/email"
	"github.com/EternisAI/mailsift/pkg/events"
	"github.com/EternisAI/mailsift/pkg/pipeline"
)

type Server struct {
	session  *pipeline.Session
	nc       *nats.Conn
	logger   *log.Logger
	upgrader websocket.Upgrader
}

// New builds the HTTP surface for one session. nc may be nil; the progress
// socket then reports unavailable instead of upgrading.
func New(session *pipeline.Session, nc *nats.Conn, logger *log.Logger) *Server {
	return &Server{
		session: session,
		nc:      nc,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

func (s *Server) Router() *chi.Mux {
	router := chi.NewRouter()

	router.Use(cors.New(cors.Options{
		AllowCredentials: true,
		AllowedOrigins:   []string{"*"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		Debug:            false,
	}).Handler)

	router.Get("/api/health", s.healthHandler)
	router.Get("/api/views/priority", s.priorityViewHandler)
	router.Get("/api/views/cleanup", s.cleanupViewHandler)
	router.Get("/api/views/unsubscribe", s.unsubscribeViewHandler)
	router.Get("/api/views/dashboard", s.dashboardHandler)
	router.Post("/api/messages/{id}/actions", s.applyActionHandler)
	router.Get("/ws/progress", s.progressSocketHandler)

	return router
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"session":   s.session.ID(),
		"provider":  s.session.ProviderName(),
		"lastPass":  s.session.LastStats(),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) priorityViewHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.session.PriorityView(r.Context())
	if err != nil {
		s.writeViewError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) cleanupViewHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.session.CleanupView(r.Context())
	if err != nil {
		s.writeViewError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) unsubscribeViewHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.session.UnsubscribeView(r.Context())
	if err != nil {
		s.writeViewError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := s.session.DashboardStats(r.Context())
	if err != nil {
		s.writeViewError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

type actionRequest struct {
	Action string `json:"action"`
}

func (s *Server) applyActionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	action, ok := email.ParseAction(req.Action)
	if !ok {
		http.Error(w, fmt.Sprintf("unsupported action %q", req.Action), http.StatusBadRequest)
		return
	}

	if err := s.session.ApplyAction(r.Context(), id, action); err != nil {
		s.writeViewError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "accepted",
		"id":     id,
		"action": string(action),
	})
}

// progressSocketHandler forwards pipeline progress events to the client until
// either side disconnects. Payloads pass through as published, so the wire
// format is events.Progress.
func (s *Server) progressSocketHandler(w http.ResponseWriter, r *http.Request) {
	if s.nc == nil {
		http.Error(w, "progress stream unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade to websocket", "error", err)
		return
	}
	defer func() { _ = ws.Close() }()

	msgs := make(chan *nats.Msg, 64)
	sub, err := s.nc.ChanSubscribe(events.SubjectPipelineProgress, msgs)
	if err != nil {
		s.logger.Error("failed to subscribe to progress subject", "error", err)
		return
	}
	defer func() { _ = sub.Unsubscribe() }()

	s.logger.Debug("Progress socket connected", "remote", r.RemoteAddr)

	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case msg := <-msgs:
			if err := ws.WriteMessage(websocket.TextMessage, msg.Data); err != nil {
				return
			}
		case <-disconnected:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}

// writeViewError maps pipeline failures to HTTP statuses. A provider failure
// means the mailbox connection is gone and the client must re-establish it; a
// quota failure clears on its own.
func (s *Server) writeViewError(w http.ResponseWriter, err error) {
	switch {
	case email.IsQuotaExceeded(err):
		s.logger.Warn("Mailbox quota exhausted", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"error": "mailbox quota exhausted, retry later",
		})
	case email.IsProviderError(err):
		s.logger.Error("Mailbox provider failed", "error", err)
		s.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":             "mailbox provider unavailable",
			"reconnectRequired": true,
		})
	default:
		s.logger.Error("Analysis pass failed", "error", err)
		http.Error(w, "analysis pass failed", http.StatusInternalServerError)
	}
}
