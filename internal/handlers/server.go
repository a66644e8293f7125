// Package handlers exposes the session engine over HTTP.
//
// Commands map one-to-one onto routes under /api/v1. Asynchronous output
// (shell data, closed notifications, transfer progress) is streamed to
// clients of the /events WebSocket as JSON {"topic", "payload"} messages.
package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/litianfu1997/openssh/internal/audit"
	"github.com/litianfu1997/openssh/internal/events"
	"github.com/litianfu1997/openssh/internal/hosts"
	"github.com/litianfu1997/openssh/internal/middleware"
	"github.com/litianfu1997/openssh/internal/sftpcache"
	"github.com/litianfu1997/openssh/internal/shell"
	"github.com/litianfu1997/openssh/internal/sshconn"
	"github.com/litianfu1997/openssh/internal/transfer"
	"gorm.io/gorm"
)

// Server holds the engine components every handler works against.
type Server struct {
	DB        *gorm.DB
	Hosts     *hosts.Store
	Shells    *shell.Registry
	SFTP      *sftpcache.Cache
	Transfers *transfer.Engine
	Hub       *events.Hub
	Audit     *audit.Auditor

	// SSH is used by test_connection.
	SSH sshconn.Options

	// APIToken, when set, is required as a bearer token on every route but
	// /health.
	APIToken string

	// EventBuffer is the per-client queue length of the /events stream.
	EventBuffer int
	// WriteTimeout bounds a single WebSocket write.
	WriteTimeout time.Duration
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)

	r.Get("/health", s.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireToken(s.APIToken))

		r.Get("/events", s.EventStream)

		r.Route("/api/v1", func(r chi.Router) {
			r.Use(chimw.Logger)

			r.Get("/hosts", s.ListHosts)
			r.Post("/hosts", s.CreateHost)
			r.Post("/hosts/test", s.TestConnection)
			r.Get("/hosts/{hostId}", s.GetHost)
			r.Put("/hosts/{hostId}", s.UpdateHost)
			r.Delete("/hosts/{hostId}", s.DeleteHost)
			r.Post("/hosts/{hostId}/test", s.TestSavedHost)

			r.Get("/shell/sessions", s.ListShellSessions)
			r.Post("/shell/sessions", s.ConnectShell)
			r.Delete("/shell/sessions/{sessionId}", s.DisconnectShell)
			r.Post("/shell/sessions/{sessionId}/input", s.SendInput)
			r.Post("/shell/sessions/{sessionId}/resize", s.Resize)
			r.Get("/shell/sessions/{sessionId}/scrollback", s.Scrollback)

			r.Get("/sftp/sessions", s.ListTransferSessions)
			r.Post("/sftp/sessions", s.ConnectTransferSession)
			r.Delete("/sftp/sessions/{sessionId}", s.DisconnectTransferSession)
			r.Get("/sftp/sessions/{sessionId}/list", s.ListDir)
			r.Get("/sftp/sessions/{sessionId}/realpath", s.Canonicalize)
			r.Get("/sftp/sessions/{sessionId}/stat", s.Stat)
			r.Post("/sftp/sessions/{sessionId}/rename", s.Rename)
			r.Post("/sftp/sessions/{sessionId}/move", s.Move)
			r.Post("/sftp/sessions/{sessionId}/mkdir", s.Mkdir)
			r.Delete("/sftp/sessions/{sessionId}/file", s.Delete)
			r.Get("/sftp/sessions/{sessionId}/file", s.ReadSmallFile)
			r.Put("/sftp/sessions/{sessionId}/file", s.WriteSmallFile)
			r.Get("/sftp/sessions/{sessionId}/text", s.ReadTextFile)
			r.Post("/sftp/sessions/{sessionId}/upload", s.Upload)
			r.Post("/sftp/sessions/{sessionId}/download", s.Download)

			r.Get("/transfers", s.ListTransfers)
			r.Post("/transfers/{transferId}/pause", s.PauseTransfer)
			r.Post("/transfers/{transferId}/resume", s.ResumeTransfer)
			r.Post("/transfers/{transferId}/cancel", s.CancelTransfer)

			r.Get("/logs", s.GetLogs)
			r.Delete("/logs", s.ClearLogs)
			r.Get("/audit", s.QueryAudit)
			r.Post("/audit/purge", s.PurgeAudit)
		})
	})
	return r
}
