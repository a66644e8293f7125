package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/litianfu1997/openssh/internal/audit"
)

// QueryAudit lists audit entries. Filters: session_id, host_id, event_type,
// since and until (RFC 3339), limit, offset.
func (s *Server) QueryAudit(w http.ResponseWriter, r *http.Request) {
	if s.Audit == nil {
		writeError(w, http.StatusServiceUnavailable, "Audit log is not enabled")
		return
	}
	q := r.URL.Query()
	opts := audit.QueryOptions{
		SessionID: q.Get("session_id"),
		HostID:    q.Get("host_id"),
		EventType: q.Get("event_type"),
	}
	var err error
	if opts.Limit, err = intParam(q.Get("limit")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit parameter")
		return
	}
	if opts.Offset, err = intParam(q.Get("offset")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid offset parameter")
		return
	}
	if opts.Since, err = timeParam(q.Get("since")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid since parameter")
		return
	}
	if opts.Until, err = timeParam(q.Get("until")); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid until parameter")
		return
	}

	res, err := s.Audit.Query(r.Context(), opts)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// PurgeAudit removes entries older than ?days= (default: retention period).
func (s *Server) PurgeAudit(w http.ResponseWriter, r *http.Request) {
	if s.Audit == nil {
		writeError(w, http.StatusServiceUnavailable, "Audit log is not enabled")
		return
	}
	days, err := intParam(r.URL.Query().Get("days"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid days parameter")
		return
	}
	n, err := s.Audit.PurgeOlderThan(days)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

func timeParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
