package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/litianfu1997/openssh/internal/apperr"
)

// StatusClientClosed is reported for cancelled transfers.
const StatusClientClosed = 499

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperr.Kind) int {
	switch kind {
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Closed:
		return http.StatusConflict
	case apperr.LockTimeout:
		return http.StatusLocked
	case apperr.AuthError:
		return http.StatusUnauthorized
	case apperr.ConnectError:
		return http.StatusBadGateway
	case apperr.Cancelled:
		return StatusClientClosed
	case apperr.Invalid:
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// writeEngineError reports err with the status of its kind.
func writeEngineError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		log.Printf("[api] %v", err)
	}
	writeJSON(w, status, map[string]string{"detail": err.Error(), "kind": string(kind)})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func requireParam(w http.ResponseWriter, name, value string) bool {
	if value == "" {
		writeEngineError(w, apperr.New(apperr.Invalid, "request", "%s is required", name))
		return false
	}
	return true
}
