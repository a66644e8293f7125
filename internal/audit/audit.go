// Package audit records session, transfer and file-operation history in the
// audit_logs table and the standard logger.
//
// Shell sessions and transfers report to the Auditor through observers
// installed at startup (see ShellObserver and TransferObserver), so neither
// engine depends on the database. Entries older than the retention period
// are removed by PurgeOlderThan, which main schedules daily.
//
// Log lines use the [audit] prefix.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/litianfu1997/openssh/internal/database"
	"github.com/litianfu1997/openssh/internal/logging"
	"gorm.io/gorm"
)

const (
	EventSessionConnected    = "session_connected"
	EventSessionDisconnected = "session_disconnected"
	EventSessionClosed       = "session_closed"
	EventSessionFailed       = "session_failed"
	EventTransferCompleted   = "transfer_completed"
	EventTransferFailed      = "transfer_failed"
	EventTransferCancelled   = "transfer_cancelled"
	EventFileOperation       = "file_operation"
)

const DefaultRetentionDays = 90

// Entry is one event to record.
type Entry struct {
	SessionID  string
	HostID     string
	HostName   string
	EventType  string
	Details    string
	DurationMs int64
}

type Auditor struct {
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time
}

// NewAuditor writes to db. A retentionDays of 0 means DefaultRetentionDays.
func NewAuditor(db *gorm.DB, retentionDays int) *Auditor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{db: db, retentionDays: retentionDays, nowFn: time.Now}
}

// Log stores e. Failures are logged and returned; callers on hot paths
// ignore them.
func (a *Auditor) Log(e Entry) error {
	record := database.AuditLog{
		SessionID:  e.SessionID,
		HostID:     e.HostID,
		HostName:   e.HostName,
		EventType:  e.EventType,
		Details:    e.Details,
		DurationMs: e.DurationMs,
		CreatedAt:  a.nowFn(),
	}
	if err := a.db.Create(&record).Error; err != nil {
		log.Printf("[audit] failed to write audit log: %v", err)
		return err
	}
	log.Printf("[audit] %s session=%s host=%s details=%s",
		e.EventType, logging.Sanitize(e.SessionID), logging.Sanitize(e.HostName), logging.Sanitize(e.Details))
	return nil
}

type QueryOptions struct {
	SessionID string
	HostID    string
	EventType string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

type QueryResult struct {
	Entries []database.AuditLog `json:"entries"`
	Total   int64               `json:"total"`
	Limit   int                 `json:"limit"`
	Offset  int                 `json:"offset"`
}

// Query returns matching entries, newest first. Limit defaults to 50 and is
// capped at 1000.
func (a *Auditor) Query(ctx context.Context, opts QueryOptions) (*QueryResult, error) {
	tx := a.db.WithContext(ctx).Model(&database.AuditLog{})
	if opts.SessionID != "" {
		tx = tx.Where("session_id = ?", opts.SessionID)
	}
	if opts.HostID != "" {
		tx = tx.Where("host_id = ?", opts.HostID)
	}
	if opts.EventType != "" {
		tx = tx.Where("event_type = ?", opts.EventType)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", *opts.Until)
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, err
	}

	if opts.Limit <= 0 {
		opts.Limit = 50
	}
	if opts.Limit > 1000 {
		opts.Limit = 1000
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}

	var entries []database.AuditLog
	if err := tx.Order("created_at DESC, id DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, err
	}
	return &QueryResult{Entries: entries, Total: total, Limit: opts.Limit, Offset: opts.Offset}, nil
}

// PurgeOlderThan deletes entries older than days, or than the retention
// period when days is 0. It returns the number deleted.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = a.retentionDays
	}
	cutoff := a.nowFn().AddDate(0, 0, -days)
	res := a.db.Where("created_at < ?", cutoff).Delete(&database.AuditLog{})
	if res.Error != nil {
		log.Printf("[audit] purge failed: %v", res.Error)
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[audit] purged %d entries older than %d days", res.RowsAffected, days)
	}
	return res.RowsAffected, nil
}

func (a *Auditor) RetentionDays() int { return a.retentionDays }

// SetNowFunc replaces the clock. Tests only.
func (a *Auditor) SetNowFunc(fn func() time.Time) { a.nowFn = fn }
