package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) ListTransfers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Transfers.Active())
}

// Pause, resume and cancel succeed for unknown ids; "active" reports
// whether the transfer was still running.

func (s *Server) PauseTransfer(w http.ResponseWriter, r *http.Request) {
	active := s.Transfers.Pause(chi.URLParam(r, "transferId"))
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (s *Server) ResumeTransfer(w http.ResponseWriter, r *http.Request) {
	active := s.Transfers.Resume(chi.URLParam(r, "transferId"))
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}

func (s *Server) CancelTransfer(w http.ResponseWriter, r *http.Request) {
	active := s.Transfers.Cancel(chi.URLParam(r, "transferId"))
	writeJSON(w, http.StatusOK, map[string]bool{"active": active})
}
