package main

import (
	"log"
	"time"

	"github.com/litianfu1997/openssh/internal/audit"
	"github.com/litianfu1997/openssh/internal/sftpcache"
	"github.com/robfig/cron/v3"
)

const (
	evictIdleSchedule  = "@every 1m"
	auditPurgeSchedule = "@daily"
)

// maintenance holds the periodic housekeeping jobs.
type maintenance struct {
	cache   *sftpcache.Cache
	auditor *audit.Auditor
	now     func() time.Time
}

// evictIdleSFTP closes SFTP channels nobody used within the idle timeout.
func (m *maintenance) evictIdleSFTP() {
	if n := m.cache.EvictIdle(m.now()); n > 0 {
		log.Printf("[sftp] evicted %d idle sessions", n)
	}
}

func (m *maintenance) purgeAudit() {
	if _, err := m.auditor.PurgeOlderThan(0); err != nil {
		log.Printf("[audit] scheduled purge failed: %v", err)
	}
}

// start schedules the jobs and returns the running scheduler.
func (m *maintenance) start() (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))))
	if _, err := c.AddFunc(evictIdleSchedule, m.evictIdleSFTP); err != nil {
		return nil, err
	}
	if _, err := c.AddFunc(auditPurgeSchedule, m.purgeAudit); err != nil {
		return nil, err
	}
	c.Start()
	return c, nil
}
