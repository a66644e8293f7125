package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/litianfu1997/openssh/internal/crypto"
	"github.com/litianfu1997/openssh/internal/hosts"
	"github.com/litianfu1997/openssh/internal/sshconn"
)

func (s *Server) ListHosts(w http.ResponseWriter, r *http.Request) {
	list, err := s.Hosts.List(r.Context())
	if err != nil {
		writeEngineError(w, err)
		return
	}
	out := make([]hosts.Profile, 0, len(list))
	for _, p := range list {
		out = append(out, p.Redacted())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) GetHost(w http.ResponseWriter, r *http.Request) {
	p, err := s.Hosts.Get(r.Context(), chi.URLParam(r, "hostId"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Redacted())
}

func (s *Server) CreateHost(w http.ResponseWriter, r *http.Request) {
	var p hosts.Profile
	if !decodeJSON(w, r, &p) {
		return
	}
	p.ID = ""
	if err := s.Hosts.Save(r.Context(), &p); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p.Redacted())
}

// UpdateHost replaces a host. Secrets that are empty or still masked keep
// their stored values.
func (s *Server) UpdateHost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "hostId")
	existing, err := s.Hosts.Get(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	var p hosts.Profile
	if !decodeJSON(w, r, &p) {
		return
	}
	p.ID = id
	p.Password = keepSecret(p.Password, existing.Password)
	p.PrivateKey = keepSecret(p.PrivateKey, existing.PrivateKey)
	p.Passphrase = keepSecret(p.Passphrase, existing.Passphrase)
	if err := s.Hosts.Save(r.Context(), &p); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Redacted())
}

func keepSecret(incoming, stored string) string {
	if incoming == "" || incoming == crypto.Mask(stored) {
		return stored
	}
	return incoming
}

func (s *Server) DeleteHost(w http.ResponseWriter, r *http.Request) {
	if err := s.Hosts.Delete(r.Context(), chi.URLParam(r, "hostId")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TestConnection dials an unsaved host configuration.
func (s *Server) TestConnection(w http.ResponseWriter, r *http.Request) {
	var p hosts.Profile
	if !decodeJSON(w, r, &p) {
		return
	}
	if err := p.Validate(); err != nil {
		writeEngineError(w, err)
		return
	}
	if err := sshconn.Test(r.Context(), &p, s.SSH); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) TestSavedHost(w http.ResponseWriter, r *http.Request) {
	p, err := s.Hosts.Get(r.Context(), chi.URLParam(r, "hostId"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	if err := sshconn.Test(r.Context(), p, s.SSH); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}
