package audit

import (
	"context"
	"errors"
	"fmt"

	"github.com/docker/go-units"
	"github.com/litianfu1997/openssh/internal/apperr"
	"github.com/litianfu1997/openssh/internal/shell"
	"github.com/litianfu1997/openssh/internal/transfer"
)

// HostNames resolves a host id to its display name.
type HostNames interface {
	Name(ctx context.Context, id string) string
}

func (a *Auditor) hostName(names HostNames, id string) string {
	if names == nil || id == "" {
		return id
	}
	return names.Name(context.Background(), id)
}

// ShellObserver records shell session lifecycle changes.
func (a *Auditor) ShellObserver(names HostNames) shell.Observer {
	return func(ev shell.LifecycleEvent) {
		var kind string
		switch ev.Kind {
		case shell.EventConnected:
			kind = EventSessionConnected
		case shell.EventDisconnected:
			kind = EventSessionDisconnected
		case shell.EventClosed:
			kind = EventSessionClosed
		case shell.EventFailed:
			kind = EventSessionFailed
		default:
			return
		}
		a.Log(Entry{
			SessionID:  ev.SessionID,
			HostID:     ev.HostID,
			HostName:   a.hostName(names, ev.HostID),
			EventType:  kind,
			Details:    ev.Detail,
			DurationMs: ev.Duration.Milliseconds(),
		})
	}
}

// TransferObserver records finished transfers. hostFor maps a transfer
// session to its host and may be nil.
func (a *Auditor) TransferObserver(names HostNames, hostFor func(sessionID string) (string, bool)) transfer.Observer {
	return func(r transfer.Result) {
		kind := EventTransferCompleted
		switch {
		case errors.Is(r.Err, apperr.Cancelled):
			kind = EventTransferCancelled
		case r.Err != nil:
			kind = EventTransferFailed
		}
		var hostID string
		if hostFor != nil {
			hostID, _ = hostFor(r.SessionID)
		}
		details := fmt.Sprintf("%s id=%s remote=%s local=%s bytes=%s",
			r.Direction, r.TransferID, r.RemotePath, r.LocalPath, units.HumanSize(float64(r.Bytes)))
		if r.Err != nil {
			details += " error=" + r.Err.Error()
		}
		a.Log(Entry{
			SessionID:  r.SessionID,
			HostID:     hostID,
			HostName:   a.hostName(names, hostID),
			EventType:  kind,
			Details:    details,
			DurationMs: r.Duration.Milliseconds(),
		})
	}
}

// FileOperation records a mutating SFTP operation such as delete or rename.
func (a *Auditor) FileOperation(sessionID, hostID, hostName, op, path string, err error) {
	result := "success"
	if err != nil {
		result = "error: " + err.Error()
	}
	a.Log(Entry{
		SessionID: sessionID,
		HostID:    hostID,
		HostName:  hostName,
		EventType: EventFileOperation,
		Details:   fmt.Sprintf("op=%s path=%s result=%s", op, path, result),
	})
}
