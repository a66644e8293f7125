package handlers

import "net/http"

func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	dbStatus := "disconnected"
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			if err := sqlDB.PingContext(r.Context()); err == nil {
				dbStatus = "connected"
			}
		}
	}

	status := "healthy"
	if dbStatus != "connected" {
		status = "unhealthy"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":            status,
		"database":          dbStatus,
		"shell_sessions":    s.Shells.Count(),
		"sftp_sessions":     len(s.SFTP.Sessions()),
		"active_transfers":  len(s.Transfers.Active()),
		"event_subscribers": s.Hub.Subscribers(),
	})
}
