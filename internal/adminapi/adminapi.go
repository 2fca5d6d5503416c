// Package adminapi is the local control surface the CLI talks to: plain
// JSON-over-HTTP, the same request/response-struct-per-endpoint shape the
// teacher's internal/server uses for its Rails API exchanges, generalized
// from "talk to the hosted Botster server" to "talk to the orchestrator
// daemon running on this machine". Built on net/http and encoding/json
// directly (no router library): the pack carries nothing beyond
// gorilla/websocket for HTTP concerns, and this surface is a handful of
// fixed routes, not enough to justify pulling one in.
package adminapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/trybotster/botster-orchestrator/internal/command"
	"github.com/trybotster/botster-orchestrator/internal/orchestrator"
	"github.com/trybotster/botster-orchestrator/internal/registry"
	"github.com/trybotster/botster-orchestrator/internal/session"
)

// Server serves the admin HTTP API.
type Server struct {
	orch   *orchestrator.Orchestrator
	logger *slog.Logger
	mux    *http.ServeMux
}

// New constructs a Server bound to orch and wires its routes.
func New(orch *orchestrator.Orchestrator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{orch: orch, logger: logger, mux: http.NewServeMux()}
	s.mux.HandleFunc("/sessions/open", s.handleOpen)
	s.mux.HandleFunc("/sessions/list", s.handleList)
	s.mux.HandleFunc("/sessions/send", s.handleSend)
	s.mux.HandleFunc("/sessions/close", s.handleClose)
	s.mux.HandleFunc("/providers/list", s.handleProvidersList)
	s.mux.HandleFunc("/providers/rank", s.handleProvidersRank)
	s.mux.HandleFunc("/status", s.handleStatus)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode(r *http.Request, v any) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// OpenRequest is the body of POST /sessions/open.
type OpenRequest struct {
	WorkingDir string `json:"working_dir"`
	Title      string `json:"title"`
}

// SessionView is the JSON projection of a session.Summary.
type SessionView struct {
	ID             string    `json:"id"`
	WorkingDir     string    `json:"working_dir"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	NeedsAttention bool      `json:"needs_attention"`
	CreatedAt      time.Time `json:"created_at"`
	LastActivity   time.Time `json:"last_activity"`
}

func toView(sum session.Summary) SessionView {
	return SessionView{
		ID:             string(sum.ID),
		WorkingDir:     sum.WorkingDir,
		Title:          sum.Title,
		Status:         string(sum.Status),
		NeedsAttention: sum.NeedsAttention,
		CreatedAt:      sum.CreatedAt,
		LastActivity:   sum.LastActivity,
	}
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req OpenRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	sess, err := s.orch.OpenSession(req.WorkingDir, req.Title, session.PresentationHints{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, toView(sess.Summarize()))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	summaries := s.orch.ListSessions()
	views := make([]SessionView, 0, len(summaries))
	for _, sum := range summaries {
		views = append(views, toView(sum))
	}
	writeJSON(w, http.StatusOK, views)
}

// SendRequest is the body of POST /sessions/send.
type SendRequest struct {
	SessionID string `json:"session_id"`
	Data      string `json:"data"`
}

// SendResponse reports either a bare delivery or a resolved command.CommandResponse.
type SendResponse struct {
	Delivered bool                     `json:"delivered"`
	Intent    *command.CommandResponse `json:"intent,omitempty"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req SendRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := s.orch.SendInput(r.Context(), session.ID(req.SessionID), []byte(req.Data))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if resp == nil {
		writeJSON(w, http.StatusOK, SendResponse{Delivered: true})
		return
	}
	writeJSON(w, http.StatusOK, SendResponse{Delivered: false, Intent: resp})
}

// CloseRequest is the body of POST /sessions/close.
type CloseRequest struct {
	SessionID string `json:"session_id"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("POST required"))
		return
	}
	var req CloseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.orch.CloseSession(session.ID(req.SessionID)); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

// ProviderView is the JSON projection of a registry.ProviderDescriptor.
type ProviderView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Status       string   `json:"status"`
	Capabilities []string `json:"capabilities"`
}

func toProviderView(d registry.ProviderDescriptor) ProviderView {
	kinds := make([]string, 0, len(d.Capabilities))
	for _, c := range d.Capabilities {
		kinds = append(kinds, string(c.Kind))
	}
	return ProviderView{ID: d.ID, Name: d.Name, Version: d.Version, Status: string(d.Status), Capabilities: kinds}
}

func (s *Server) handleProvidersList(w http.ResponseWriter, r *http.Request) {
	providers := s.orch.Registry().Providers()
	views := make([]ProviderView, 0, len(providers))
	for _, p := range providers {
		views = append(views, toProviderView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleProvidersRank(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, errors.New("session_id query parameter required"))
		return
	}
	set, err := s.orch.AvailableCapabilities(session.ID(sessionID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, set)
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	SessionCount  int `json:"session_count"`
	ProviderCount int `json:"provider_count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		SessionCount:  len(s.orch.ListSessions()),
		ProviderCount: len(s.orch.Registry().Providers()),
	})
}
