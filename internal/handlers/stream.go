package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/litianfu1997/openssh/internal/events"
)

const (
	defaultEventBuffer  = 1024
	defaultWriteTimeout = 10 * time.Second
)

// EventStream upgrades to a WebSocket and forwards hub events as JSON.
// An optional session_id query parameter limits the stream to one session.
// A client that falls behind is disconnected with StatusPolicyViolation.
func (s *Server) EventStream(w http.ResponseWriter, r *http.Request) {
	only := r.URL.Query().Get("session_id")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		log.Printf("[api] failed to accept events websocket: %v", err)
		return
	}
	defer conn.CloseNow()

	buffer := s.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	timeout := s.WriteTimeout
	if timeout <= 0 {
		timeout = defaultWriteTimeout
	}

	sub := s.Hub.Subscribe(buffer)
	defer s.Hub.Unsubscribe(sub)

	// The stream is one-way; CloseRead handles pings and notices the
	// client going away.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "event consumer too slow")
				return
			}
			if only != "" && sessionOf(ev.Payload) != only {
				continue
			}
			wctx, cancel := context.WithTimeout(ctx, timeout)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func sessionOf(payload any) string {
	switch p := payload.(type) {
	case events.ShellData:
		return p.SessionID
	case events.ShellClosed:
		return p.SessionID
	case events.TransferProgress:
		return p.SessionID
	}
	return ""
}
