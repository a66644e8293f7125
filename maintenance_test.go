package main

import (
	"context"
	"testing"
	"time"

	"github.com/litianfu1997/openssh/internal/audit"
	"github.com/litianfu1997/openssh/internal/database"
	"github.com/litianfu1997/openssh/internal/sftpcache"
	"github.com/litianfu1997/openssh/internal/sshconn"
	"github.com/litianfu1997/openssh/internal/sshtest"
)

func TestEvictIdleSFTP(t *testing.T) {
	srv := sshtest.NewServer(t)
	cache := sftpcache.New(sshtest.Resolver{"h1": srv.PasswordProfile()}, sftpcache.Options{
		SSH:         sshconn.Options{ConnectTimeout: 5 * time.Second},
		IdleTimeout: time.Minute,
	})
	defer cache.CloseAll()
	if err := cache.Connect(context.Background(), "s1", "h1"); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	clock := time.Now()
	m := &maintenance{cache: cache, now: func() time.Time { return clock }}

	m.evictIdleSFTP()
	if _, ok := cache.HostFor("s1"); !ok {
		t.Fatal("fresh session evicted")
	}

	clock = clock.Add(2 * time.Minute)
	m.evictIdleSFTP()
	if _, ok := cache.HostFor("s1"); ok {
		t.Error("idle session survived eviction")
	}
}

func TestPurgeAudit(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	a := audit.NewAuditor(db, 30)
	a.SetNowFunc(func() time.Time { return time.Now().AddDate(0, 0, -31) })
	a.Log(audit.Entry{SessionID: "old", EventType: audit.EventSessionConnected})
	a.SetNowFunc(time.Now)
	a.Log(audit.Entry{SessionID: "new", EventType: audit.EventSessionConnected})

	m := &maintenance{auditor: a, now: time.Now}
	m.purgeAudit()

	res, err := a.Query(context.Background(), audit.QueryOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Total != 1 || res.Entries[0].SessionID != "new" {
		t.Errorf("after purge = %+v", res.Entries)
	}
}

func TestMaintenanceSchedules(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	m := &maintenance{
		cache:   sftpcache.New(sshtest.Resolver{}, sftpcache.Options{}),
		auditor: audit.NewAuditor(db, 0),
		now:     time.Now,
	}
	c, err := m.start()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()

	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("scheduled %d jobs, want 2", len(entries))
	}
	for _, e := range entries {
		if e.Next.IsZero() || !e.Next.After(time.Now().Add(-time.Second)) {
			t.Errorf("job %d has no future run time: %v", e.ID, e.Next)
		}
	}
}
