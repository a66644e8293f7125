package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/litianfu1997/openssh/internal/audit"
	"github.com/litianfu1997/openssh/internal/sshtest"
)

type wireEvent struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

func dialEvents(t *testing.T, e *testEnv, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/events" + query
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	waitFor(t, "event subscription", func() bool { return e.api.Hub.Subscribers() == 1 })
	return conn
}

// readShellUntil accumulates ssh:data for sessionID until it contains want.
func readShellUntil(t *testing.T, conn *websocket.Conn, sessionID, want string, got *strings.Builder) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for !strings.Contains(got.String(), want) {
		var ev wireEvent
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			t.Fatalf("waiting for %q, have %q: %v", want, got.String(), err)
		}
		if ev.Topic != "ssh:data" {
			continue
		}
		var d struct {
			SessionID string `json:"sessionId"`
			Data      string `json:"data"`
		}
		json.Unmarshal(ev.Payload, &d)
		if d.SessionID != sessionID {
			t.Fatalf("event for session %q leaked through the filter", d.SessionID)
		}
		got.WriteString(d.Data)
	}
}

func TestShellLifecycleOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	conn := dialEvents(t, e, "?session_id=s1")

	e.mustDo(t, http.MethodPost, "/api/v1/shell/sessions", map[string]string{"session_id": "s1", "host_id": e.hostID}, http.StatusCreated)

	var out strings.Builder
	readShellUntil(t, conn, "s1", strings.TrimSpace(sshtest.Banner), &out)

	e.mustDo(t, http.MethodPost, "/api/v1/shell/sessions/s1/input", map[string]string{"data": "whoami\n"}, http.StatusNoContent)
	readShellUntil(t, conn, "s1", "echo:whoami", &out)

	e.mustDo(t, http.MethodPost, "/api/v1/shell/sessions/s1/resize", map[string]int{"cols": 120, "rows": 30}, http.StatusNoContent)
	readShellUntil(t, conn, "s1", "resize:120x30", &out)

	body := e.mustDo(t, http.MethodPost, "/api/v1/shell/sessions/s1/resize", map[string]int{"cols": 0, "rows": 30}, http.StatusBadRequest)
	if kind := errorKind(t, body); kind != "invalid" {
		t.Errorf("bad resize kind = %q", kind)
	}

	scroll := e.mustDo(t, http.MethodGet, "/api/v1/shell/sessions/s1/scrollback", nil, http.StatusOK)
	if !strings.Contains(string(scroll), "echo:whoami") {
		t.Errorf("scrollback = %q", scroll)
	}

	var list []map[string]any
	json.Unmarshal(e.mustDo(t, http.MethodGet, "/api/v1/shell/sessions", nil, http.StatusOK), &list)
	if len(list) != 1 || list[0]["session_id"] != "s1" {
		t.Errorf("sessions = %v", list)
	}

	e.mustDo(t, http.MethodDelete, "/api/v1/shell/sessions/s1", nil, http.StatusNoContent)
	e.mustDo(t, http.MethodDelete, "/api/v1/shell/sessions/s1", nil, http.StatusNoContent)
	body = e.mustDo(t, http.MethodPost, "/api/v1/shell/sessions/s1/input", map[string]string{"data": "x"}, http.StatusNotFound)
	if kind := errorKind(t, body); kind != "not_found" {
		t.Errorf("input after disconnect kind = %q", kind)
	}

	res, err := e.api.Audit.Query(context.Background(), audit.QueryOptions{SessionID: "s1"})
	if err != nil {
		t.Fatal(err)
	}
	kinds := map[string]bool{}
	for _, en := range res.Entries {
		kinds[en.EventType] = true
	}
	if !kinds[audit.EventSessionConnected] || !kinds[audit.EventSessionDisconnected] {
		t.Errorf("audit events = %v", kinds)
	}
}

func TestConnectShellErrors(t *testing.T) {
	e := newTestEnv(t)
	body := e.mustDo(t, http.MethodPost, "/api/v1/shell/sessions", map[string]string{"session_id": "s1", "host_id": "nope"}, http.StatusNotFound)
	if kind := errorKind(t, body); kind != "not_found" {
		t.Errorf("kind = %q", kind)
	}
	e.mustDo(t, http.MethodPost, "/api/v1/shell/sessions", map[string]string{"host_id": e.hostID}, http.StatusBadRequest)
}
