package handlers

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/litianfu1997/openssh/internal/logging"
)

func (s *Server) ListTransferSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.SFTP.Sessions())
}

func (s *Server) ConnectTransferSession(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireParam(w, "session_id", req.SessionID) || !requireParam(w, "host_id", req.HostID) {
		return
	}
	if err := s.SFTP.Connect(r.Context(), req.SessionID, req.HostID); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"session_id": req.SessionID, "host_id": req.HostID})
}

func (s *Server) DisconnectTransferSession(w http.ResponseWriter, r *http.Request) {
	if err := s.SFTP.Disconnect(chi.URLParam(r, "sessionId")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) ListDir(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if !requireParam(w, "path", p) {
		return
	}
	entries, err := s.SFTP.ListDir(r.Context(), chi.URLParam(r, "sessionId"), p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) Canonicalize(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if p == "" {
		p = "."
	}
	out, err := s.SFTP.Canonicalize(r.Context(), chi.URLParam(r, "sessionId"), p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": out})
}

func (s *Server) Stat(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if !requireParam(w, "path", p) {
		return
	}
	e, err := s.SFTP.Stat(r.Context(), chi.URLParam(r, "sessionId"), p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

type renameRequest struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
}

func (s *Server) Rename(w http.ResponseWriter, r *http.Request) {
	s.renameOrMove(w, r, "rename", s.SFTP.Rename)
}

func (s *Server) Move(w http.ResponseWriter, r *http.Request) {
	s.renameOrMove(w, r, "move", s.SFTP.Move)
}

func (s *Server) renameOrMove(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, sid, oldPath, newPath string) error) {
	var req renameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireParam(w, "old_path", req.OldPath) || !requireParam(w, "new_path", req.NewPath) {
		return
	}
	sid := chi.URLParam(r, "sessionId")
	err := fn(r.Context(), sid, req.OldPath, req.NewPath)
	s.auditFileOp(r.Context(), sid, op, req.OldPath+" -> "+req.NewPath, err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) Mkdir(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if !decodeJSON(w, r, &req) || !requireParam(w, "path", req.Path) {
		return
	}
	sid := chi.URLParam(r, "sessionId")
	err := s.SFTP.Mkdir(r.Context(), sid, req.Path)
	s.auditFileOp(r.Context(), sid, "mkdir", req.Path, err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) Delete(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if !requireParam(w, "path", p) {
		return
	}
	sid := chi.URLParam(r, "sessionId")
	err := s.SFTP.Delete(r.Context(), sid, p)
	s.auditFileOp(r.Context(), sid, "delete", p, err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReadSmallFile returns a capped preview classified as image or text.
func (s *Server) ReadSmallFile(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if !requireParam(w, "path", p) {
		return
	}
	prev, err := s.SFTP.ReadSmallFile(r.Context(), chi.URLParam(r, "sessionId"), p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prev)
}

func (s *Server) ReadTextFile(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("path")
	if !requireParam(w, "path", p) {
		return
	}
	text, err := s.SFTP.ReadTextFile(r.Context(), chi.URLParam(r, "sessionId"), p)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": p, "content": text})
}

func (s *Server) WriteSmallFile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path    string `json:"path"`
		Content string `json:"content"`
	}
	if !decodeJSON(w, r, &req) || !requireParam(w, "path", req.Path) {
		return
	}
	sid := chi.URLParam(r, "sessionId")
	err := s.SFTP.WriteSmallFile(r.Context(), sid, req.Path, []byte(req.Content))
	s.auditFileOp(r.Context(), sid, "write", req.Path, err)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) auditFileOp(ctx context.Context, sessionID, op, path string, err error) {
	if s.Audit == nil {
		return
	}
	hostID, _ := s.SFTP.HostFor(sessionID)
	name := hostID
	if s.Hosts != nil && hostID != "" {
		name = s.Hosts.Name(ctx, hostID)
	}
	s.Audit.FileOperation(sessionID, hostID, name, op, logging.Sanitize(path), err)
}

type transferRequest struct {
	TransferID string `json:"transfer_id"`
	LocalPath  string `json:"local_path"`
	RemotePath string `json:"remote_path"`
	// Async returns 202 immediately; completion is seen through the
	// progress events and /transfers.
	Async bool `json:"async"`
}

func (s *Server) Upload(w http.ResponseWriter, r *http.Request) {
	s.runTransfer(w, r, "upload", func(ctx context.Context, sid string, req transferRequest) (int64, error) {
		return s.Transfers.Upload(ctx, sid, req.TransferID, req.LocalPath, req.RemotePath)
	})
}

func (s *Server) Download(w http.ResponseWriter, r *http.Request) {
	s.runTransfer(w, r, "download", func(ctx context.Context, sid string, req transferRequest) (int64, error) {
		return s.Transfers.Download(ctx, sid, req.TransferID, req.RemotePath, req.LocalPath)
	})
}

func (s *Server) runTransfer(w http.ResponseWriter, r *http.Request, op string, fn func(context.Context, string, transferRequest) (int64, error)) {
	var req transferRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !requireParam(w, "transfer_id", req.TransferID) ||
		!requireParam(w, "local_path", req.LocalPath) ||
		!requireParam(w, "remote_path", req.RemotePath) {
		return
	}
	sid := chi.URLParam(r, "sessionId")

	if req.Async {
		ctx := context.WithoutCancel(r.Context())
		go func() {
			if _, err := fn(ctx, sid, req); err != nil {
				log.Printf("[api] %s %s: %v", op, req.TransferID, err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"transfer_id": req.TransferID})
		return
	}

	n, err := fn(r.Context(), sid, req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfer_id": req.TransferID, "bytes": n})
}
