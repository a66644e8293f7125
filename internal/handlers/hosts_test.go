package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/litianfu1997/openssh/internal/hosts"
)

func TestHostCRUDMasksSecrets(t *testing.T) {
	e := newTestEnv(t)

	var created hosts.Profile
	out := e.mustDo(t, http.MethodPost, "/api/v1/hosts", map[string]any{
		"name": "db", "host": "10.1.2.3", "username": "admin", "password": "hunter2-long",
	}, http.StatusCreated)
	json.Unmarshal(out, &created)
	if created.ID == "" || created.Password != "****long" || created.Port != 22 {
		t.Fatalf("created = %+v", created)
	}

	var list []hosts.Profile
	json.Unmarshal(e.mustDo(t, http.MethodGet, "/api/v1/hosts", nil, http.StatusOK), &list)
	if len(list) != 2 {
		t.Fatalf("list has %d hosts, want 2", len(list))
	}
	for _, p := range list {
		if p.Password != "" && p.Password[:4] != "****" {
			t.Errorf("list leaked a password for %s", p.Name)
		}
	}

	// Sending the masked value back keeps the stored secret.
	created.Description = "primary"
	e.mustDo(t, http.MethodPut, "/api/v1/hosts/"+created.ID, created, http.StatusOK)
	stored, err := e.api.Hosts.Get(context.Background(), created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Password != "hunter2-long" || stored.Description != "primary" {
		t.Errorf("after update: password=%q description=%q", stored.Password, stored.Description)
	}

	e.mustDo(t, http.MethodDelete, "/api/v1/hosts/"+created.ID, nil, http.StatusNoContent)
	body := e.mustDo(t, http.MethodGet, "/api/v1/hosts/"+created.ID, nil, http.StatusNotFound)
	if kind := errorKind(t, body); kind != "not_found" {
		t.Errorf("kind = %q", kind)
	}
}

func TestCreateHostValidation(t *testing.T) {
	e := newTestEnv(t)
	body := e.mustDo(t, http.MethodPost, "/api/v1/hosts", map[string]any{"host": "x"}, http.StatusBadRequest)
	if kind := errorKind(t, body); kind != "invalid" {
		t.Errorf("kind = %q", kind)
	}
	e.mustDo(t, http.MethodPost, "/api/v1/hosts", nil, http.StatusBadRequest)
}

func TestConnectionTests(t *testing.T) {
	e := newTestEnv(t)

	good := e.ssh.PasswordProfile()
	e.mustDo(t, http.MethodPost, "/api/v1/hosts/test", good, http.StatusOK)

	bad := e.ssh.PasswordProfile()
	bad.Password = "wrong"
	body := e.mustDo(t, http.MethodPost, "/api/v1/hosts/test", bad, http.StatusUnauthorized)
	if kind := errorKind(t, body); kind != "auth_error" {
		t.Errorf("kind = %q", kind)
	}

	e.mustDo(t, http.MethodPost, "/api/v1/hosts/"+e.hostID+"/test", nil, http.StatusOK)

	unreachable := e.ssh.PasswordProfile()
	unreachable.Port = 1
	body = e.mustDo(t, http.MethodPost, "/api/v1/hosts/test", unreachable, http.StatusBadGateway)
	if kind := errorKind(t, body); kind != "connect_error" {
		t.Errorf("kind = %q", kind)
	}
}
