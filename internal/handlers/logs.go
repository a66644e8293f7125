package handlers

import (
	"net/http"
	"strconv"

	"github.com/litianfu1997/openssh/internal/logging"
)

// GetLogs returns the last ?lines= lines (default 200) of the engine log.
func (s *Server) GetLogs(w http.ResponseWriter, r *http.Request) {
	n := 200
	if v := r.URL.Query().Get("lines"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "Invalid lines parameter")
			return
		}
		n = parsed
	}
	text, err := logging.ReadTail(n)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(text))
}

func (s *Server) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
