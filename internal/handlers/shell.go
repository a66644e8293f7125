package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

type connectRequest struct {
	SessionID string `json:"session_id"`
	HostID    string `json:"host_id"`
}

func (s *Server) ListShellSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Shells.List())
}

// ConnectShell opens a shell session. Output arrives on /events.
func (s *Server) ConnectShell(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireParam(w, "session_id", req.SessionID) || !requireParam(w, "host_id", req.HostID) {
		return
	}
	if err := s.Shells.Connect(r.Context(), req.SessionID, req.HostID); err != nil {
		writeEngineError(w, err)
		return
	}
	sess, _ := s.Shells.Get(req.SessionID)
	if sess == nil {
		// The remote end already hung up.
		writeJSON(w, http.StatusCreated, map[string]string{"session_id": req.SessionID})
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) SendInput(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Data string `json:"data"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Shells.SendInput(r.Context(), chi.URLParam(r, "sessionId"), []byte(req.Data)); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Resize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Cols int `json:"cols"`
		Rows int `json:"rows"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.Shells.Resize(r.Context(), chi.URLParam(r, "sessionId"), req.Cols, req.Rows); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) DisconnectShell(w http.ResponseWriter, r *http.Request) {
	if err := s.Shells.Disconnect(chi.URLParam(r, "sessionId")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Scrollback returns recent output as plain bytes, for clients that
// reattach after missing events.
func (s *Server) Scrollback(w http.ResponseWriter, r *http.Request) {
	data, err := s.Shells.Scrollback(chi.URLParam(r, "sessionId"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(data)
}
