package audit

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/litianfu1997/openssh/internal/apperr"
	"github.com/litianfu1997/openssh/internal/database"
	"github.com/litianfu1997/openssh/internal/shell"
	"github.com/litianfu1997/openssh/internal/transfer"
)

func newTestAuditor(t *testing.T) *Auditor {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	return NewAuditor(db, 0)
}

type names map[string]string

func (n names) Name(_ context.Context, id string) string {
	if v, ok := n[id]; ok {
		return v
	}
	return id
}

func TestQueryFilters(t *testing.T) {
	a := newTestAuditor(t)
	ctx := context.Background()
	a.Log(Entry{SessionID: "s1", HostID: "h1", EventType: EventSessionConnected})
	a.Log(Entry{SessionID: "s1", HostID: "h1", EventType: EventSessionDisconnected})
	a.Log(Entry{SessionID: "s2", HostID: "h2", EventType: EventSessionConnected})

	res, err := a.Query(ctx, QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 3 || res.Limit != 50 {
		t.Fatalf("Query() total=%d limit=%d", res.Total, res.Limit)
	}
	if res.Entries[0].SessionID != "s2" {
		t.Errorf("newest entry first: got %+v", res.Entries[0])
	}

	res, _ = a.Query(ctx, QueryOptions{SessionID: "s1"})
	if res.Total != 2 {
		t.Errorf("by session total = %d", res.Total)
	}
	res, _ = a.Query(ctx, QueryOptions{EventType: EventSessionConnected, HostID: "h2"})
	if res.Total != 1 || res.Entries[0].SessionID != "s2" {
		t.Errorf("by type and host = %+v", res.Entries)
	}
	res, _ = a.Query(ctx, QueryOptions{Limit: 5000, Offset: 2})
	if res.Limit != 1000 || len(res.Entries) != 1 {
		t.Errorf("limit=%d entries=%d", res.Limit, len(res.Entries))
	}
}

func TestPurgeOlderThan(t *testing.T) {
	a := newTestAuditor(t)
	now := time.Now()

	a.SetNowFunc(func() time.Time { return now.AddDate(0, 0, -100) })
	a.Log(Entry{SessionID: "old", EventType: EventSessionConnected})
	a.SetNowFunc(func() time.Time { return now })
	a.Log(Entry{SessionID: "new", EventType: EventSessionConnected})

	n, err := a.PurgeOlderThan(0)
	if err != nil || n != 1 {
		t.Fatalf("PurgeOlderThan = %d, %v", n, err)
	}
	res, _ := a.Query(context.Background(), QueryOptions{})
	if res.Total != 1 || res.Entries[0].SessionID != "new" {
		t.Errorf("remaining = %+v", res.Entries)
	}
	if a.RetentionDays() != DefaultRetentionDays {
		t.Errorf("RetentionDays = %d", a.RetentionDays())
	}
}

func TestShellObserver(t *testing.T) {
	a := newTestAuditor(t)
	obs := a.ShellObserver(names{"h1": "web-1"})

	obs(shell.LifecycleEvent{Kind: shell.EventConnected, SessionID: "s1", HostID: "h1", Detail: "10.0.0.1:22"})
	obs(shell.LifecycleEvent{Kind: shell.EventDisconnected, SessionID: "s1", HostID: "h1", Duration: 1500 * time.Millisecond})

	res, _ := a.Query(context.Background(), QueryOptions{SessionID: "s1", EventType: EventSessionDisconnected})
	if res.Total != 1 {
		t.Fatalf("disconnect entries = %d", res.Total)
	}
	e := res.Entries[0]
	if e.HostName != "web-1" || e.DurationMs != 1500 {
		t.Errorf("entry = %+v", e)
	}
}

func TestTransferObserver(t *testing.T) {
	a := newTestAuditor(t)
	hostFor := func(sid string) (string, bool) { return "h1", sid == "s1" }
	obs := a.TransferObserver(names{"h1": "db"}, hostFor)

	obs(transfer.Result{TransferID: "t1", SessionID: "s1", Direction: transfer.DirectionUpload, RemotePath: "/a", Bytes: 2048})
	obs(transfer.Result{TransferID: "t2", SessionID: "s1", Direction: transfer.DirectionDownload,
		Err: apperr.New(apperr.Cancelled, "download", "transfer t2 cancelled")})
	obs(transfer.Result{TransferID: "t3", SessionID: "s1", Direction: transfer.DirectionDownload,
		Err: apperr.New(apperr.IoError, "read /b", "connection lost")})

	ctx := context.Background()
	for _, tc := range []struct {
		kind string
		id   string
	}{
		{EventTransferCompleted, "t1"},
		{EventTransferCancelled, "t2"},
		{EventTransferFailed, "t3"},
	} {
		res, _ := a.Query(ctx, QueryOptions{EventType: tc.kind})
		if res.Total != 1 || !strings.Contains(res.Entries[0].Details, "id="+tc.id) {
			t.Errorf("%s: %+v", tc.kind, res.Entries)
			continue
		}
		if res.Entries[0].HostName != "db" {
			t.Errorf("%s host name = %q", tc.kind, res.Entries[0].HostName)
		}
	}
}

func TestFileOperation(t *testing.T) {
	a := newTestAuditor(t)
	a.FileOperation("s1", "h1", "web", "delete", "/tmp/x", nil)
	res, _ := a.Query(context.Background(), QueryOptions{EventType: EventFileOperation})
	if res.Total != 1 || res.Entries[0].Details != "op=delete path=/tmp/x result=success" {
		t.Errorf("entries = %+v", res.Entries)
	}
}
